// Package cache 保存最近一次热门列表首页和各帖子评论树的快照，按 TTL 判断是否有效。
//
// 所有状态由一把互斥锁保护，锁只在单次读写期间持有，不会跨网络请求。
// 读操作使用 TryLock：锁被占用时直接当作未命中，由调用方去抓取最新数据，
// 这可能在竞争时产生重复抓取，但不会破坏状态。
package cache

import (
	"slices"
	"sync"
	"time"

	"github.com/LJTian/hnreader/internal/collector"
)

type entry[T any] struct {
	payload   T
	fetchedAt time.Time
}

func (e entry[T]) valid(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.fetchedAt) < ttl
}

// Cache 进程内只创建一次，由 ingest.Service 持有并在各后台任务间共享
type Cache struct {
	mu  sync.Mutex
	now func() time.Time

	listing *entry[[]collector.ListingItem]
	// 没有淘汰策略，只适合交互式的短会话；需要时通过 SweepThreads 清理过期条目
	threads map[string]entry[[]collector.DiscussionNode]
}

func New() *Cache {
	return NewWithClock(time.Now)
}

// NewWithClock 便于测试注入时钟
func NewWithClock(now func() time.Time) *Cache {
	return &Cache{
		now:     now,
		threads: make(map[string]entry[[]collector.DiscussionNode]),
	}
}

// ReadListing 快照存在且未过期时返回副本
func (c *Cache) ReadListing(ttl time.Duration) ([]collector.ListingItem, bool) {
	if !c.mu.TryLock() {
		return nil, false
	}
	defer c.mu.Unlock()

	// 空列表视为没有快照
	if c.listing == nil || len(c.listing.payload) == 0 || !c.listing.valid(c.now(), ttl) {
		return nil, false
	}
	return slices.Clone(c.listing.payload), true
}

// WriteListing 覆盖唯一的列表快照并重置时间戳
func (c *Cache) WriteListing(items []collector.ListingItem) {
	snapshot := &entry[[]collector.ListingItem]{payload: slices.Clone(items)}

	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot.fetchedAt = c.now()
	c.listing = snapshot
}

func (c *Cache) ReadThread(threadID string, ttl time.Duration) ([]collector.DiscussionNode, bool) {
	if !c.mu.TryLock() {
		return nil, false
	}
	defer c.mu.Unlock()

	e, ok := c.threads[threadID]
	if !ok || !e.valid(c.now(), ttl) {
		return nil, false
	}
	return slices.Clone(e.payload), true
}

func (c *Cache) WriteThread(threadID string, nodes []collector.DiscussionNode) {
	payload := slices.Clone(nodes)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.threads[threadID] = entry[[]collector.DiscussionNode]{payload: payload, fetchedAt: c.now()}
}

// SweepThreads 删除已过期的评论快照，返回删除数量
func (c *Cache) SweepThreads(ttl time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for id, e := range c.threads {
		if !e.valid(now, ttl) {
			delete(c.threads, id)
			removed++
		}
	}
	return removed
}

// Stats 缓存概况
type Stats struct {
	ListingItems int           `json:"listingItems"`
	ListingAge   time.Duration `json:"listingAge"`
	Threads      int           `json:"threads"`
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Threads: len(c.threads)}
	if c.listing != nil {
		s.ListingItems = len(c.listing.payload)
		s.ListingAge = c.now().Sub(c.listing.fetchedAt)
	}
	return s
}
