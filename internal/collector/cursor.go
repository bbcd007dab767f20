package collector

import (
	"html"
	"net/url"
	"strings"
)

const (
	moreLinkMarker = `class="morelink"`
	hrefPrefix     = `href="`
)

// ExtractCursor 从 newest 页中取出“More”链接的 next / n 参数。
// newest 没有页码分页，翻页只能带上服务端上一页给出的游标。
// 找不到链接或缺任一参数时返回 false
func ExtractCursor(markup string) (Cursor, bool) {
	pos := strings.Index(markup, moreLinkMarker)
	if pos < 0 {
		return Cursor{}, false
	}

	start := strings.LastIndex(markup[:pos], hrefPrefix)
	if start < 0 {
		return Cursor{}, false
	}
	start += len(hrefPrefix)
	end := strings.IndexByte(markup[start:], '"')
	if end < 0 {
		return Cursor{}, false
	}

	// 属性值里的 & 会被写成 &amp;
	href := html.UnescapeString(markup[start : start+end])
	u, err := url.Parse(href)
	if err != nil {
		return Cursor{}, false
	}

	q := u.Query()
	next, n := q.Get("next"), q.Get("n")
	if next == "" || n == "" {
		return Cursor{}, false
	}
	return Cursor{NextID: next, Count: n}, true
}
