package processor

import (
	"regexp"
	"strings"

	"github.com/LJTian/hnreader/internal/collector"
	"github.com/PuerkitoBio/goquery"
)

var (
	itemLinkRe   = regexp.MustCompile(`<a\s+href="item\?id=\d+"[^>]*>([^<]+)</a>`)
	paragraphRe  = regexp.MustCompile(`(?i)<p\s*/?>`)
	lineBreakRe  = regexp.MustCompile(`(?i)<br\s*/?>`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// CleanText 把评论的原始 HTML 转成纯文本，供终端 / API 的 text 模式展示。
// 解析阶段保留原始 HTML，这里在展示时按需调用
func CleanText(bodyHTML string) string {
	if strings.TrimSpace(bodyHTML) == "" {
		return ""
	}

	// 站内绝对链接先转成相对链接，再统一展开
	s := strings.ReplaceAll(bodyHTML, `<a href="https://news.ycombinator.com/`, `<a href="`)
	s = itemLinkRe.ReplaceAllString(s, "$1")
	s = paragraphRe.ReplaceAllString(s, "\n\n")
	s = lineBreakRe.ReplaceAllString(s, "\n")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	text := doc.Text()
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// PlainTree 返回正文替换为纯文本的评论树副本
func PlainTree(nodes []collector.DiscussionNode) []collector.DiscussionNode {
	out := make([]collector.DiscussionNode, len(nodes))
	for i, n := range nodes {
		n.BodyHTML = CleanText(n.BodyHTML)
		n.Children = PlainTree(n.Children)
		out[i] = n
	}
	return out
}
