package collector

import "time"

const (
	// BaseURL Hacker News 站点根地址
	BaseURL = "https://news.ycombinator.com"

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	defaultRequestTimeout = 60 * time.Second
	maxResponseBytes      = 8 << 20 // 8MB，评论很多的帖子页面也够用
)

// ListingItem 列表页上的一条排名条目
type ListingItem struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	TargetURL     string `json:"targetUrl"`     // 为空表示站内帖子（Ask HN 等）
	DisplayDomain string `json:"displayDomain"` // 为空表示站内链接
	Author        string `json:"author"`
	Score         int    `json:"score"`
	RelativeAge   string `json:"relativeAge"`
	CommentCount  int    `json:"commentCount"`
	OriginalIndex int    `json:"originalIndex"` // 在本页中的 0 基排名
}

// DiscussionNode 评论树中的一个节点
type DiscussionNode struct {
	ID          string `json:"id"`
	Author      string `json:"author"`
	BodyHTML    string `json:"bodyHtml"` // 原始 HTML，不做清洗
	RelativeAge string `json:"relativeAge"`
	IndentLevel int    `json:"indentLevel"`

	Children []DiscussionNode `json:"children"`
}

// FlatNode 评论页解析出的扁平节点，Level 为页面声明的缩进层级
type FlatNode struct {
	Level int
	Node  DiscussionNode
}

// Cursor newest 页“More”链接携带的续页参数
type Cursor struct {
	NextID string `json:"next"`
	Count  string `json:"n"`
}
