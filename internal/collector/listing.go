package collector

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
)

// ListingSelectors 列表页各字段的选择器。页面结构调整时只需要改这里
type ListingSelectors struct {
	Row     string // 条目行
	Title   string // 标题链接，取第一个
	Domain  string // 外链域名，可缺省
	Subtext string // 元数据行，与条目行是兄弟节点，按序号对应
	Score   string
	Author  string
	Age     string
	Link    string
}

var DefaultListingSelectors = ListingSelectors{
	Row:     "tr.athing",
	Title:   ".titleline > a",
	Domain:  ".sitestr",
	Subtext: ".subtext",
	Score:   ".score",
	Author:  ".hnuser",
	Age:     ".age",
	Link:    "a",
}

// ListingParser 从列表页 HTML 中解析出按排名排序的条目
type ListingParser struct {
	selectors ListingSelectors
}

func NewListingParser(sel ListingSelectors) *ListingParser {
	return &ListingParser{selectors: sel}
}

type listingMatchers struct {
	row, title, domain, subtext, score, author, age, link goquery.Matcher
}

func (s ListingSelectors) compile() (*listingMatchers, error) {
	var m listingMatchers
	err := compileSelectors(
		selectorSpec{&m.row, s.Row},
		selectorSpec{&m.title, s.Title},
		selectorSpec{&m.domain, s.Domain},
		selectorSpec{&m.subtext, s.Subtext},
		selectorSpec{&m.score, s.Score},
		selectorSpec{&m.author, s.Author},
		selectorSpec{&m.age, s.Age},
		selectorSpec{&m.link, s.Link},
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Parse 单个字段解析失败只会退回默认值，不影响整页；只有选择器非法才返回错误
func (p *ListingParser) Parse(markup string) ([]ListingItem, error) {
	m, err := p.selectors.compile()
	if err != nil {
		return nil, fmt.Errorf("listing: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("listing: parse document: %w", err)
	}

	// 元数据行不在条目行内部，而是紧随其后的兄弟行，只能按出现顺序对应
	subtexts := doc.FindMatcher(m.subtext)
	rows := doc.FindMatcher(m.row)
	items := make([]ListingItem, 0, rows.Length())

	rows.Each(func(i int, row *goquery.Selection) {
		id := strings.TrimSpace(row.AttrOr("id", ""))
		if id == "" {
			log.WithField("rank", i).Debug("skip listing row without id")
			return
		}

		titleLink := row.FindMatcher(m.title).First()
		item := ListingItem{
			ID:            id,
			Title:         strings.TrimSpace(titleLink.Text()),
			TargetURL:     targetURL(titleLink.AttrOr("href", "")),
			DisplayDomain: strings.TrimSpace(row.FindMatcher(m.domain).First().Text()),
			OriginalIndex: i,
		}

		if i < subtexts.Length() {
			meta := subtexts.Eq(i)
			item.Score = leadingInt(meta.FindMatcher(m.score).First().Text())
			item.Author = strings.TrimSpace(meta.FindMatcher(m.author).First().Text())
			item.RelativeAge = relativeAge(meta.FindMatcher(m.age).First(), m.link)
			item.CommentCount = commentCount(meta.FindMatcher(m.link).NotMatcher(m.author))
		}

		items = append(items, item)
	})

	return items, nil
}

// targetURL 站内帖子的标题链接指向 item?id=，统一记为空
func targetURL(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "item?id=") {
		return ""
	}
	return href
}

var commentCountRe = regexp.MustCompile(`(\d+)(?:&nbsp;|\s|\x{00A0})+comments`)

// commentCount 找到第一个像评论数的链接再解析；作者链接已由调用方排除
func commentCount(links *goquery.Selection) int {
	count := 0
	links.EachWithBreak(func(_ int, a *goquery.Selection) bool {
		label, err := a.Html()
		if err != nil {
			return true
		}
		if !strings.Contains(label, "comment") && !strings.Contains(label, "discuss") {
			return true
		}
		count = parseCommentLabel(label)
		return false
	})
	return count
}

// parseCommentLabel 解析 "29&nbsp;comments" / "29 comments" / "discuss" 之类的文案
func parseCommentLabel(label string) int {
	if strings.Contains(label, "discuss") {
		return 0
	}
	if m := commentCountRe.FindStringSubmatch(label); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	// 旧版页面："1 comment"
	return leadingInt(label)
}
