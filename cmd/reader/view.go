package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/LJTian/hnreader/internal/collector"
	"github.com/LJTian/hnreader/internal/ingest"
	"github.com/LJTian/hnreader/internal/processor"
)

type mode int

const (
	modeListing mode = iota
	modeThread
)

// state 由交互循环独占
type state struct {
	mode mode

	tab      ingest.Tab
	page     int
	items    []collector.ListingItem
	viewed   map[string]bool
	favorite map[string]bool

	threadID    string
	threadTitle string
	latestFirst bool
	roots       []collector.DiscussionNode

	loadingListing bool
	loadingThread  bool
	status         string
}

func newState(tab ingest.Tab) *state {
	return &state{
		tab:      tab,
		page:     1,
		viewed:   map[string]bool{},
		favorite: map[string]bool{},
	}
}

type commandKind int

const (
	cmdUnknown commandKind = iota
	cmdQuit
	cmdTab
	cmdMore
	cmdRefresh
	cmdOpen
	cmdBack
	cmdLatest
	cmdFavorite
	cmdTTL
	cmdHelp
)

type command struct {
	kind commandKind
	arg  string
	n    int
}

// parseCommand 解析一行输入；数字参数为 1 基的列表序号
func parseCommand(line string) command {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return command{kind: cmdUnknown}
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	n, _ := strconv.Atoi(arg)

	switch strings.ToLower(fields[0]) {
	case "q", "quit":
		return command{kind: cmdQuit}
	case "t", "tab":
		return command{kind: cmdTab, arg: arg}
	case "m", "more":
		return command{kind: cmdMore}
	case "r", "refresh":
		return command{kind: cmdRefresh}
	case "o", "open":
		return command{kind: cmdOpen, n: n}
	case "b", "back":
		return command{kind: cmdBack}
	case "l", "latest":
		return command{kind: cmdLatest}
	case "f", "fav":
		return command{kind: cmdFavorite, n: n}
	case "ttl":
		return command{kind: cmdTTL, n: n, arg: arg}
	case "h", "help", "?":
		return command{kind: cmdHelp}
	}
	// 直接输入序号等同于 open
	if v, err := strconv.Atoi(fields[0]); err == nil {
		return command{kind: cmdOpen, n: v}
	}
	return command{kind: cmdUnknown, arg: fields[0]}
}

const helpText = `commands:
  t <tab>     switch tab (hot/new/show/ask/jobs/best)
  m           load more
  r           refresh
  <n> | o <n> open comments of item n
  l           toggle latest-first comments
  f <n>       add item n to favorites
  b           back to listing
  ttl <sec>   set cache ttl
  q           quit`

// render 只读 state，输出整屏文本
func render(s *state) string {
	var b strings.Builder
	switch s.mode {
	case modeThread:
		renderThread(&b, s)
	default:
		renderListing(&b, s)
	}
	if s.status != "" {
		fmt.Fprintf(&b, "\n-- %s\n", s.status)
	}
	return b.String()
}

func renderListing(b *strings.Builder, s *state) {
	fmt.Fprintf(b, "[%s] page %d", s.tab, s.page)
	if s.loadingListing {
		b.WriteString(" (loading...)")
	}
	b.WriteString("\n\n")

	if len(s.items) == 0 && !s.loadingListing {
		b.WriteString("  no items\n")
	}
	for i, it := range s.items {
		marks := ""
		if s.favorite[it.ID] {
			marks += " *"
		}
		if s.viewed[it.ID] {
			marks += " (viewed)"
		}
		fmt.Fprintf(b, "%3d. %s", i+1, it.Title)
		if it.DisplayDomain != "" {
			fmt.Fprintf(b, " (%s)", it.DisplayDomain)
		}
		fmt.Fprintf(b, "%s\n", marks)
		fmt.Fprintf(b, "     %d points by %s %s | %d comments\n", it.Score, orDash(it.Author), it.RelativeAge, it.CommentCount)
	}
}

func renderThread(b *strings.Builder, s *state) {
	order := "top"
	if s.latestFirst {
		order = "latest"
	}
	fmt.Fprintf(b, "%s [%s, %d comments]", orDash(s.threadTitle), order, processor.CountNodes(s.roots))
	if s.loadingThread {
		b.WriteString(" (loading...)")
	}
	b.WriteString("\n\n")

	processor.Walk(s.roots, func(n collector.DiscussionNode, depth int) {
		indent := strings.Repeat("  ", depth)
		fmt.Fprintf(b, "%s%s %s\n", indent, orDash(n.Author), n.RelativeAge)
		for _, line := range strings.Split(processor.CleanText(n.BodyHTML), "\n") {
			fmt.Fprintf(b, "%s  %s\n", indent, line)
		}
		b.WriteString("\n")
	})
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
