package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/LJTian/hnreader/internal/collector"
	"github.com/LJTian/hnreader/internal/config"
	"github.com/LJTian/hnreader/internal/ingest"
	"github.com/LJTian/hnreader/internal/processor"
	"github.com/LJTian/hnreader/internal/storage"
	log "github.com/sirupsen/logrus"
)

// 只执行一次抓取并把结果以 JSON 输出到 stdout，适合手动排查解析问题
func main() {
	tabName := flag.String("tab", "hot", "listing tab: hot/new/show/ask/jobs/best")
	page := flag.Int("page", 1, "listing page, 1-based")
	thread := flag.String("thread", "", "item id; when set, dump its comment tree instead of a listing")
	latest := flag.Bool("latest", false, "try the latest-comments endpoint first")
	text := flag.Bool("text", false, "convert comment bodies to plain text")
	save := flag.Bool("save", false, "save listing titles to the local store")
	flag.Parse()

	cfg := config.Load()
	config.ConfigureLogging(cfg.LogLevel)

	fetcher := collector.NewCollyFetcher(
		collector.WithUserAgent(cfg.UserAgent),
		collector.WithTimeout(cfg.HTTPTimeout),
	)
	svc := ingest.New(fetcher, ingest.Options{BaseURL: cfg.BaseURL, TTL: cfg.CacheTTL, Now: config.Now})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var out any
	if *thread != "" {
		roots := svc.FetchThread(ctx, *thread, true, *latest)
		log.WithFields(log.Fields{"thread": *thread, "comments": processor.CountNodes(roots)}).Info("fetched thread")
		if *text {
			roots = processor.PlainTree(roots)
		}
		out = roots
	} else {
		tab, ok := ingest.ParseTab(*tabName)
		if !ok {
			log.Fatalf("unknown tab %q", *tabName)
		}
		items := svc.FetchListing(ctx, tab, *page, true)
		log.WithFields(log.Fields{"tab": tab, "page": *page, "count": len(items)}).Info("fetched listing")
		if *save {
			saveDetails(cfg, items)
		}
		out = items
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode output failed: %v", err)
	}
}

func saveDetails(cfg *config.Config, items []collector.ListingItem) {
	store, err := storage.NewStore(cfg.DBDSN, cfg.RedisAddr)
	if err != nil {
		log.WithError(err).Warn("open store failed, skip saving")
		return
	}
	defer store.Close()
	store.SetClock(config.Now)
	if err := store.SaveStoryDetails(items); err != nil {
		log.WithError(err).Warn("save story details failed")
	}
}
