package processor

import "github.com/LJTian/hnreader/internal/collector"

// BuildTree 把评论页解析出的扁平列表重建为评论树，返回所有顶层评论。
//
// 纯函数：输入切片不会被修改，每次返回全新的树。按游标单向扫描，每个位置最多访问一次。
// 层级为 L 的父节点，其子节点是紧随其后、层级恰好为 L+1 的连续节点，遇到层级 <= L 的节点结束；
// 比 L+1 更深却没有可挂载父节点的节点（层级跳跃）会被直接丢弃，不视为错误。
func BuildTree(flat []collector.FlatNode) []collector.DiscussionNode {
	roots := make([]collector.DiscussionNode, 0)
	pos := 0
	for pos < len(flat) {
		var batch []collector.DiscussionNode
		batch, pos = collectChildren(flat, -1, pos)
		roots = append(roots, batch...)
		if pos < len(flat) {
			// 只有层级为负数的节点会停在这里
			pos++
		}
	}
	return roots
}

// collectChildren 从 pos 开始收集 level+1 层的子节点，返回下一个未消费的位置
func collectChildren(flat []collector.FlatNode, level, pos int) ([]collector.DiscussionNode, int) {
	var children []collector.DiscussionNode
	for pos < len(flat) {
		fn := flat[pos]
		if fn.Level <= level {
			break
		}
		if fn.Level != level+1 {
			pos++
			continue
		}

		node := fn.Node
		node.IndentLevel = fn.Level
		node.Children, pos = collectChildren(flat, fn.Level, pos+1)
		children = append(children, node)
	}
	return children, pos
}

// Walk 先序遍历，depth 从 0 开始
func Walk(roots []collector.DiscussionNode, fn func(node collector.DiscussionNode, depth int)) {
	var visit func(nodes []collector.DiscussionNode, depth int)
	visit = func(nodes []collector.DiscussionNode, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			visit(n.Children, depth+1)
		}
	}
	visit(roots, 0)
}

// CountNodes 统计整棵树的节点数
func CountNodes(roots []collector.DiscussionNode) int {
	total := 0
	Walk(roots, func(collector.DiscussionNode, int) { total++ })
	return total
}
