// Package ingest 是展示层唯一调用的入口：决定读缓存还是抓取，抓取后解析并回写缓存。
package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LJTian/hnreader/internal/cache"
	"github.com/LJTian/hnreader/internal/collector"
	"github.com/LJTian/hnreader/internal/processor"
	log "github.com/sirupsen/logrus"
)

// Tab 列表页分类
type Tab string

const (
	TabHot  Tab = "hot"
	TabNew  Tab = "new"
	TabShow Tab = "show"
	TabAsk  Tab = "ask"
	TabJobs Tab = "jobs"
	TabBest Tab = "best"
)

var tabPaths = map[Tab]string{
	TabHot:  "/",
	TabNew:  "/newest",
	TabShow: "/show",
	TabAsk:  "/ask",
	TabJobs: "/jobs",
	TabBest: "/best",
}

// Tabs 按界面上的顺序列出所有分类
var Tabs = []Tab{TabHot, TabNew, TabShow, TabAsk, TabJobs, TabBest}

// ParseTab 未知分类返回 false
func ParseTab(s string) (Tab, bool) {
	t := Tab(strings.ToLower(strings.TrimSpace(s)))
	_, ok := tabPaths[t]
	return t, ok
}

const (
	DefaultTTL = 300 * time.Second
	pageSize   = 30
)

// Options 构造 Service 的可选参数，零值使用默认配置
type Options struct {
	BaseURL string
	TTL     time.Duration
	Cache   *cache.Cache
	// Now 未传 Cache 时作为新建缓存的时钟
	Now     func() time.Time

	ListingSelectors *collector.ListingSelectors
	ThreadSelectors  *collector.ThreadSelectors
}

// Service 可以被多个后台 goroutine 同时调用
type Service struct {
	fetcher collector.Fetcher
	listing *collector.ListingParser
	thread  *collector.ThreadParser
	cache   *cache.Cache
	baseURL string
	ttl     atomic.Int64

	cursorMu sync.Mutex
	cursor   *collector.Cursor
}

func New(fetcher collector.Fetcher, opts Options) *Service {
	s := &Service{
		fetcher: fetcher,
		listing: collector.NewListingParser(collector.DefaultListingSelectors),
		thread:  collector.NewThreadParser(collector.DefaultThreadSelectors),
		cache:   opts.Cache,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
	if s.cache == nil {
		if opts.Now != nil {
			s.cache = cache.NewWithClock(opts.Now)
		} else {
			s.cache = cache.New()
		}
	}
	if s.baseURL == "" {
		s.baseURL = collector.BaseURL
	}
	if opts.ListingSelectors != nil {
		s.listing = collector.NewListingParser(*opts.ListingSelectors)
	}
	if opts.ThreadSelectors != nil {
		s.thread = collector.NewThreadParser(*opts.ThreadSelectors)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.SetTTL(ttl)
	return s
}

// SetTTL 由展示层设置缓存有效期
func (s *Service) SetTTL(d time.Duration) {
	s.ttl.Store(int64(d))
}

func (s *Service) TTL() time.Duration {
	return time.Duration(s.ttl.Load())
}

func (s *Service) Cache() *cache.Cache {
	return s.cache
}

// Cursor 最近一次 newest 页给出的续页参数
func (s *Service) Cursor() (collector.Cursor, bool) {
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()
	if s.cursor == nil {
		return collector.Cursor{}, false
	}
	return *s.cursor, true
}

func (s *Service) setCursor(c collector.Cursor) {
	s.cursorMu.Lock()
	s.cursor = &c
	s.cursorMu.Unlock()
}

// FetchListing 只有 (hot, 第 1 页) 走缓存；forceRefresh 跳过读缓存，但抓取成功后仍会回写。
// 抓取或解析失败时返回空列表
func (s *Service) FetchListing(ctx context.Context, tab Tab, page int, forceRefresh bool) []collector.ListingItem {
	if page < 1 {
		page = 1
	}
	cacheable := tab == TabHot && page == 1
	fields := log.Fields{"tab": tab, "page": page, "force": forceRefresh}

	if cacheable && !forceRefresh {
		if items, ok := s.cache.ReadListing(s.TTL()); ok {
			log.WithFields(fields).Debug("listing cache hit")
			return items
		}
	}

	items, err := s.loadListing(ctx, tab, page)
	if err != nil {
		log.WithError(err).WithFields(fields).Warn("fetch listing failed")
		return []collector.ListingItem{}
	}

	if cacheable {
		s.cache.WriteListing(items)
		log.WithFields(fields).WithField("count", len(items)).Info("updated listing cache")
	}
	return items
}

func (s *Service) loadListing(ctx context.Context, tab Tab, page int) ([]collector.ListingItem, error) {
	markup, err := s.fetcher.Get(ctx, s.listingURL(tab, page))
	if err != nil {
		return nil, err
	}

	if tab == TabNew {
		if c, ok := collector.ExtractCursor(markup); ok {
			s.setCursor(c)
		}
	}

	return s.listing.Parse(markup)
}

// listingURL newest 没有页码参数，翻页时带上最近的 next/n 游标，没有游标时退回 n=1+(page-1)*30
func (s *Service) listingURL(tab Tab, page int) string {
	path, ok := tabPaths[tab]
	if !ok {
		path = tabPaths[TabHot]
	}
	base := s.baseURL + path
	if page <= 1 {
		return base
	}

	if tab != TabNew {
		return fmt.Sprintf("%s?p=%d", base, page)
	}
	if c, ok := s.Cursor(); ok {
		return fmt.Sprintf("%s?next=%s&n=%s", base, url.QueryEscape(c.NextID), url.QueryEscape(c.Count))
	}
	return fmt.Sprintf("%s?n=%d", base, 1+(page-1)*pageSize)
}

// FetchThread 返回评论树的顶层节点。
// latestFirst 先请求 /latest 接口，得到 0 条评论（老帖或已删除）时退回标准接口；
// 这种排序的结果不读也不写缓存，避免与标准排序的快照混在一起
func (s *Service) FetchThread(ctx context.Context, threadID string, forceRefresh, latestFirst bool) []collector.DiscussionNode {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return []collector.DiscussionNode{}
	}
	fields := log.Fields{"thread": threadID, "force": forceRefresh, "latest": latestFirst}
	useCache := !latestFirst

	if useCache && !forceRefresh {
		if nodes, ok := s.cache.ReadThread(threadID, s.TTL()); ok {
			log.WithFields(fields).Debug("thread cache hit")
			return nodes
		}
	}

	flat, err := s.loadThread(ctx, threadID, latestFirst)
	if err != nil {
		log.WithError(err).WithFields(fields).Warn("fetch thread failed")
		return []collector.DiscussionNode{}
	}

	roots := processor.BuildTree(flat)
	if useCache {
		s.cache.WriteThread(threadID, roots)
	}
	log.WithFields(fields).WithFields(log.Fields{"comments": len(flat), "roots": len(roots)}).Info("loaded thread")
	return roots
}

func (s *Service) loadThread(ctx context.Context, threadID string, latestFirst bool) ([]collector.FlatNode, error) {
	q := url.QueryEscape(threadID)
	if latestFirst {
		flat, err := s.fetchFlat(ctx, s.baseURL+"/latest?id="+q)
		if err != nil {
			return nil, err
		}
		if len(flat) > 0 {
			return flat, nil
		}
		log.WithField("thread", threadID).Info("no comments from latest endpoint, falling back to standard endpoint")
	}
	return s.fetchFlat(ctx, s.baseURL+"/item?id="+q)
}

func (s *Service) fetchFlat(ctx context.Context, u string) ([]collector.FlatNode, error) {
	markup, err := s.fetcher.Get(ctx, u)
	if err != nil {
		return nil, err
	}
	return s.thread.Parse(markup)
}
