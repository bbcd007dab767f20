package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/LJTian/hnreader/internal/collector"
	"github.com/LJTian/hnreader/internal/config"
	"github.com/LJTian/hnreader/internal/ingest"
	"github.com/LJTian/hnreader/internal/scheduler"
	"github.com/LJTian/hnreader/internal/storage"
	log "github.com/sirupsen/logrus"
)

const (
	settingLastTab = "last_tab"
	tickInterval   = 100 * time.Millisecond
)

// localStore 收藏、浏览记录与设置；打开失败时为 nil，阅读功能不受影响
type localStore interface {
	GetSetting(key string) (string, bool, error)
	SaveSetting(key, value string) error
	IsViewed(id string) (bool, error)
	MarkViewed(id string) error
	IsFavorite(id string) (bool, error)
	AddFavorite(item collector.ListingItem, extra map[string]any) error
	SaveStoryDetails(items []collector.ListingItem) error
}

type app struct {
	svc   *ingest.Service
	d     *scheduler.Dispatcher
	store localStore
	st    *state
	out   io.Writer
}

func main() {
	cfg := config.Load()
	// 交互界面只输出警告以上的日志
	config.ConfigureLogging(cfg.LogLevel)
	if cfg.LogLevel == "info" {
		log.SetLevel(log.WarnLevel)
	}

	fetcher := collector.NewCollyFetcher(
		collector.WithUserAgent(cfg.UserAgent),
		collector.WithTimeout(cfg.HTTPTimeout),
	)
	svc := ingest.New(fetcher, ingest.Options{BaseURL: cfg.BaseURL, TTL: cfg.CacheTTL, Now: config.Now})

	var store localStore
	if s, err := storage.NewStore(cfg.DBDSN, cfg.RedisAddr); err != nil {
		log.WithError(err).Warn("open local store failed, favorites and history disabled")
	} else {
		defer s.Close()
		s.SetClock(config.Now)
		store = s
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx, svc, store, os.Stdout)
	a.run(ctx, os.Stdin)
}

func newApp(ctx context.Context, svc *ingest.Service, store localStore, out io.Writer) *app {
	tab := ingest.TabHot
	if store != nil {
		if v, ok, err := store.GetSetting(settingLastTab); err == nil && ok {
			if t, valid := ingest.ParseTab(v); valid {
				tab = t
			}
		}
	}
	return &app{
		svc:   svc,
		d:     scheduler.NewDispatcher(ctx, svc),
		store: store,
		st:    newState(tab),
		out:   out,
	}
}

// run 读取输入的 goroutine 只负责把行送进 channel，状态只在本循环里修改
func (a *app) run(ctx context.Context, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	a.requestListing(1, false)
	a.draw()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || a.handle(parseCommand(line)) {
				return
			}
			a.draw()
		case <-ticker.C:
			if results := a.d.Poll(); len(results) > 0 {
				a.apply(results)
				a.draw()
			}
		}
	}
}

func (a *app) draw() {
	fmt.Fprint(a.out, "\033[H\033[2J", render(a.st), "> ")
}

func (a *app) requestListing(page int, force bool) {
	if a.d.RequestListing(a.st.tab, page, force) {
		a.st.loadingListing = true
		a.st.status = ""
	} else {
		a.st.status = "still loading, try again shortly"
	}
}

// handle 返回 true 表示退出
func (a *app) handle(cmd command) bool {
	st := a.st
	switch cmd.kind {
	case cmdQuit:
		return true

	case cmdTab:
		tab, ok := ingest.ParseTab(cmd.arg)
		if !ok {
			st.status = fmt.Sprintf("unknown tab %q", cmd.arg)
			return false
		}
		// 切换分类后旧请求的结果不再需要
		a.d.Abandon(scheduler.KindListing)
		st.mode, st.tab, st.page, st.items = modeListing, tab, 1, nil
		a.requestListing(1, false)
		a.saveSetting(settingLastTab, string(tab))

	case cmdMore:
		if st.mode == modeListing {
			a.requestListing(st.page+1, false)
		}

	case cmdRefresh:
		if st.mode == modeThread {
			a.requestThread(true)
		} else {
			a.d.Abandon(scheduler.KindListing)
			a.requestListing(1, true)
		}

	case cmdOpen:
		item, ok := a.itemAt(cmd.n)
		if !ok {
			st.status = "no such item"
			return false
		}
		st.mode, st.threadID, st.threadTitle, st.roots = modeThread, item.ID, item.Title, nil
		a.markViewed(item)
		a.d.Abandon(scheduler.KindThread)
		a.requestThread(false)

	case cmdLatest:
		st.latestFirst = !st.latestFirst
		if st.mode == modeThread {
			a.d.Abandon(scheduler.KindThread)
			a.requestThread(false)
		}

	case cmdBack:
		a.d.Abandon(scheduler.KindThread)
		st.mode, st.loadingThread = modeListing, false

	case cmdFavorite:
		item, ok := a.itemAt(cmd.n)
		if !ok {
			st.status = "no such item"
			return false
		}
		a.addFavorite(item, cmd.n)

	case cmdTTL:
		if cmd.n <= 0 {
			st.status = "ttl must be a positive number of seconds"
			return false
		}
		a.svc.SetTTL(time.Duration(cmd.n) * time.Second)
		st.status = "cache ttl set to " + strconv.Itoa(cmd.n) + "s"

	case cmdHelp:
		st.status = helpText

	default:
		st.status = "unknown command, type h for help"
	}
	return false
}

func (a *app) requestThread(force bool) {
	if a.d.RequestThread(a.st.threadID, force, a.st.latestFirst) {
		a.st.loadingThread = true
	}
}

func (a *app) itemAt(n int) (collector.ListingItem, bool) {
	if n < 1 || n > len(a.st.items) {
		return collector.ListingItem{}, false
	}
	return a.st.items[n-1], true
}

// apply 把后台结果合并进 state
func (a *app) apply(results []scheduler.Result) {
	st := a.st
	for _, r := range results {
		switch r.Kind {
		case scheduler.KindListing:
			st.loadingListing = false
			if r.Tab != st.tab {
				continue
			}
			if len(r.Items) == 0 {
				st.status = "nothing loaded"
				continue
			}
			if r.Page > 1 {
				st.items = append(st.items, r.Items...)
			} else {
				st.items = r.Items
			}
			st.page = r.Page
			a.annotate(r.Items)
		case scheduler.KindThread:
			st.loadingThread = false
			if r.ThreadID == st.threadID {
				st.roots = r.Nodes
			}
		}
	}
}

func (a *app) annotate(items []collector.ListingItem) {
	if a.store == nil {
		return
	}
	for _, it := range items {
		if v, err := a.store.IsViewed(it.ID); err == nil {
			a.st.viewed[it.ID] = v
		}
		if f, err := a.store.IsFavorite(it.ID); err == nil {
			a.st.favorite[it.ID] = f
		}
	}
}

func (a *app) markViewed(item collector.ListingItem) {
	a.st.viewed[item.ID] = true
	if a.store == nil {
		return
	}
	if err := a.store.MarkViewed(item.ID); err != nil {
		log.WithError(err).Warn("mark viewed failed")
	}
	if err := a.store.SaveStoryDetails([]collector.ListingItem{item}); err != nil {
		log.WithError(err).Warn("save story details failed")
	}
}

func (a *app) addFavorite(item collector.ListingItem, rank int) {
	if a.store == nil {
		a.st.status = "favorites unavailable"
		return
	}
	if err := a.store.AddFavorite(item, map[string]any{"tab": string(a.st.tab), "rank": rank}); err != nil {
		log.WithError(err).Warn("add favorite failed")
		a.st.status = "add favorite failed"
		return
	}
	a.st.favorite[item.ID] = true
	a.st.status = "added to favorites: " + item.Title
}

func (a *app) saveSetting(key, value string) {
	if a.store == nil {
		return
	}
	if err := a.store.SaveSetting(key, value); err != nil {
		log.WithError(err).Warn("save setting failed")
	}
}
