package collector

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
)

const indentAttr = "indent"

// ThreadSelectors 评论页各字段的选择器
type ThreadSelectors struct {
	Row    string // 评论行，id 属性即评论 id
	Indent string // 缩进元素，indent 属性为层级
	Author string
	Age    string
	Link   string
	Body   string
}

var DefaultThreadSelectors = ThreadSelectors{
	Row:    "tr.comtr",
	Indent: ".ind",
	Author: ".hnuser",
	Age:    ".age",
	Link:   "a",
	Body:   ".commtext",
}

// ThreadParser 把评论页解析为带层级的扁平列表
type ThreadParser struct {
	selectors ThreadSelectors
}

func NewThreadParser(sel ThreadSelectors) *ThreadParser {
	return &ThreadParser{selectors: sel}
}

type threadMatchers struct {
	row, indent, author, age, link, body goquery.Matcher
}

func (s ThreadSelectors) compile() (*threadMatchers, error) {
	var m threadMatchers
	err := compileSelectors(
		selectorSpec{&m.row, s.Row},
		selectorSpec{&m.indent, s.Indent},
		selectorSpec{&m.author, s.Author},
		selectorSpec{&m.age, s.Age},
		selectorSpec{&m.link, s.Link},
		selectorSpec{&m.body, s.Body},
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Parse 按文档顺序返回评论，同一个 id 只保留第一次出现的那条。
// 正文保留原始 HTML，清洗交给展示层按需处理
func (p *ThreadParser) Parse(markup string) ([]FlatNode, error) {
	m, err := p.selectors.compile()
	if err != nil {
		return nil, fmt.Errorf("thread: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("thread: parse document: %w", err)
	}

	rows := doc.FindMatcher(m.row)
	out := make([]FlatNode, 0, rows.Length())
	seen := make(map[string]struct{}, rows.Length())
	dup := 0

	rows.Each(func(_ int, row *goquery.Selection) {
		id := strings.TrimSpace(row.AttrOr("id", ""))
		if _, ok := seen[id]; ok {
			dup++
			return
		}
		seen[id] = struct{}{}

		level := indentLevel(row.FindMatcher(m.indent).First())
		body, err := row.FindMatcher(m.body).First().Html()
		if err != nil {
			body = ""
		}

		out = append(out, FlatNode{
			Level: level,
			Node: DiscussionNode{
				ID:          id,
				Author:      strings.TrimSpace(row.FindMatcher(m.author).First().Text()),
				BodyHTML:    body,
				RelativeAge: relativeAge(row.FindMatcher(m.age).First(), m.link),
				IndentLevel: level,
			},
		})
	})

	if dup > 0 {
		log.WithFields(log.Fields{"unique": len(out), "duplicates": dup}).Debug("dropped duplicate comment rows")
	}
	return out, nil
}

// indentLevel 缺失或无法解析时按顶层处理
func indentLevel(ind *goquery.Selection) int {
	v, ok := ind.Attr(indentAttr)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
