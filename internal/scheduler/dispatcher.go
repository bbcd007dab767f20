package scheduler

import (
	"context"

	"github.com/LJTian/hnreader/internal/collector"
	"github.com/LJTian/hnreader/internal/ingest"
	log "github.com/sirupsen/logrus"
)

// Kind 后台请求的类别，每类同时最多一个有效请求
type Kind int

const (
	KindListing Kind = iota
	KindThread
	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindListing:
		return "listing"
	case KindThread:
		return "thread"
	default:
		return "unknown"
	}
}

// Source 由 ingest.Service 实现
type Source interface {
	FetchListing(ctx context.Context, tab ingest.Tab, page int, forceRefresh bool) []collector.ListingItem
	FetchThread(ctx context.Context, threadID string, forceRefresh, latestFirst bool) []collector.DiscussionNode
}

// Result 一个后台单元的产出
type Result struct {
	Kind  Kind
	Epoch uint64

	Tab   ingest.Tab
	Page  int
	Items []collector.ListingItem

	ThreadID string
	Nodes    []collector.DiscussionNode
}

type unit struct {
	kind  Kind
	epoch uint64
	done  chan Result
}

// Dispatcher 归交互循环独占，不加锁，只能在同一个 goroutine 里调用。
// 每次请求启动一个 goroutine，结果通过各自容量为 1 的 channel 交回，Poll 非阻塞地收取。
// 已派出的单元不会被取消；Abandon 之后它的结果按 epoch 丢弃。
type Dispatcher struct {
	ctx context.Context
	src Source

	loading [kindCount]bool
	epoch   [kindCount]uint64
	units   []*unit
}

func NewDispatcher(ctx context.Context, src Source) *Dispatcher {
	return &Dispatcher{ctx: ctx, src: src}
}

// RequestListing 同类请求未完成时直接忽略并返回 false，不排队
func (d *Dispatcher) RequestListing(tab ingest.Tab, page int, forceRefresh bool) bool {
	return d.dispatch(KindListing, func(ctx context.Context, r *Result) {
		r.Tab, r.Page = tab, page
		r.Items = d.src.FetchListing(ctx, tab, page, forceRefresh)
	})
}

func (d *Dispatcher) RequestThread(threadID string, forceRefresh, latestFirst bool) bool {
	return d.dispatch(KindThread, func(ctx context.Context, r *Result) {
		r.ThreadID = threadID
		r.Nodes = d.src.FetchThread(ctx, threadID, forceRefresh, latestFirst)
	})
}

func (d *Dispatcher) dispatch(kind Kind, run func(context.Context, *Result)) bool {
	if d.loading[kind] {
		log.WithField("kind", kind).Debug("request suppressed, one already in flight")
		return false
	}
	d.loading[kind] = true
	d.epoch[kind]++

	u := &unit{kind: kind, epoch: d.epoch[kind], done: make(chan Result, 1)}
	d.units = append(d.units, u)

	ctx := d.ctx
	go func() {
		r := Result{Kind: u.kind, Epoch: u.epoch}
		run(ctx, &r)
		u.done <- r
	}()
	return true
}

// Poll 收取已完成的结果，不阻塞；过期 epoch 的结果直接丢弃
func (d *Dispatcher) Poll() []Result {
	var out []Result
	pending := d.units[:0]
	for _, u := range d.units {
		select {
		case r := <-u.done:
			if r.Epoch != d.epoch[r.Kind] {
				log.WithFields(log.Fields{"kind": r.Kind, "epoch": r.Epoch, "latest": d.epoch[r.Kind]}).Debug("discard stale result")
				continue
			}
			d.loading[r.Kind] = false
			out = append(out, r)
		default:
			pending = append(pending, u)
		}
	}
	clear(d.units[len(pending):])
	d.units = pending
	return out
}

// Abandon 放弃当前同类请求：已派出的单元继续跑完，但结果不再交付，同时允许立即发起新请求
func (d *Dispatcher) Abandon(kind Kind) {
	d.epoch[kind]++
	d.loading[kind] = false
}

func (d *Dispatcher) Loading(kind Kind) bool {
	return d.loading[kind]
}

// Pending 仍在运行（含已放弃）的单元数
func (d *Dispatcher) Pending() int {
	return len(d.units)
}
