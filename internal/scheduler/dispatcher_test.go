package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/LJTian/hnreader/internal/collector"
	"github.com/LJTian/hnreader/internal/ingest"
)

// gatedSource 每个请求都阻塞在自己的闸门上，直到测试放行
type gatedSource struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
}

func newGatedSource() *gatedSource {
	return &gatedSource{gates: map[string]chan struct{}{}}
}

func (g *gatedSource) gate(key string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[key]
	if !ok {
		ch = make(chan struct{})
		g.gates[key] = ch
	}
	return ch
}

func (g *gatedSource) release(key string) {
	close(g.gate(key))
}

func (g *gatedSource) FetchListing(_ context.Context, tab ingest.Tab, page int, _ bool) []collector.ListingItem {
	<-g.gate(string(tab))
	return []collector.ListingItem{{ID: string(tab), OriginalIndex: page}}
}

func (g *gatedSource) FetchThread(_ context.Context, id string, _, _ bool) []collector.DiscussionNode {
	<-g.gate(id)
	return []collector.DiscussionNode{{ID: "c-" + id}}
}

// drain 轮询直到所有单元结束
func drain(t *testing.T, d *Dispatcher) []Result {
	t.Helper()
	var out []Result
	deadline := time.Now().Add(5 * time.Second)
	for d.Pending() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("units did not finish, pending=%d", d.Pending())
		}
		out = append(out, d.Poll()...)
		time.Sleep(time.Millisecond)
	}
	return out
}

func TestDispatcherDeliversResult(t *testing.T) {
	src := newGatedSource()
	d := NewDispatcher(context.Background(), src)

	if !d.RequestListing(ingest.TabHot, 1, false) {
		t.Fatalf("first request should be dispatched")
	}
	if !d.Loading(KindListing) || d.Loading(KindThread) {
		t.Fatalf("loading flags wrong after dispatch")
	}
	if got := d.Poll(); len(got) != 0 {
		t.Fatalf("Poll should not block or deliver before completion, got %+v", got)
	}

	src.release(string(ingest.TabHot))
	results := drain(t, d)
	if len(results) != 1 {
		t.Fatalf("results = %+v", results)
	}
	r := results[0]
	if r.Kind != KindListing || r.Tab != ingest.TabHot || r.Page != 1 || len(r.Items) != 1 {
		t.Fatalf("result = %+v", r)
	}
	if d.Loading(KindListing) {
		t.Fatalf("loading flag should clear after delivery")
	}
}

func TestDispatcherSuppressesSameKind(t *testing.T) {
	src := newGatedSource()
	d := NewDispatcher(context.Background(), src)

	if !d.RequestThread("1", false, false) {
		t.Fatalf("first thread request should dispatch")
	}
	if d.RequestThread("2", false, false) {
		t.Fatalf("second thread request should be suppressed while one is in flight")
	}
	// 不同类别互不影响
	if !d.RequestListing(ingest.TabNew, 1, false) {
		t.Fatalf("listing request should not be blocked by a thread request")
	}
	if d.Pending() != 2 {
		t.Fatalf("Pending = %d, want 2", d.Pending())
	}

	src.release("1")
	src.release(string(ingest.TabNew))
	results := drain(t, d)
	if len(results) != 2 {
		t.Fatalf("results = %+v", results)
	}
	for _, r := range results {
		if r.Kind == KindThread && r.ThreadID != "1" {
			t.Fatalf("suppressed request must not run, got %+v", r)
		}
	}
}

func TestDispatcherDiscardsAbandonedResult(t *testing.T) {
	src := newGatedSource()
	d := NewDispatcher(context.Background(), src)

	d.RequestThread("old", false, false)
	d.Abandon(KindThread)
	if d.Loading(KindThread) {
		t.Fatalf("Abandon should clear the loading flag")
	}
	if !d.RequestThread("new", false, false) {
		t.Fatalf("request after Abandon should dispatch")
	}

	// 旧请求先完成，也不能覆盖新请求
	src.release("old")
	src.release("new")
	results := drain(t, d)
	if len(results) != 1 || results[0].ThreadID != "new" || results[0].Nodes[0].ID != "c-new" {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Epoch != 3 {
		t.Fatalf("epoch = %d, want 3", results[0].Epoch)
	}
}

func TestDispatcherAbandonWithoutReplacement(t *testing.T) {
	src := newGatedSource()
	d := NewDispatcher(context.Background(), src)

	d.RequestListing(ingest.TabAsk, 2, true)
	d.Abandon(KindListing)
	src.release(string(ingest.TabAsk))

	if results := drain(t, d); len(results) != 0 {
		t.Fatalf("abandoned result should be dropped, got %+v", results)
	}
	if d.Loading(KindListing) {
		t.Fatalf("loading flag should stay clear")
	}
}

func TestKindString(t *testing.T) {
	if KindListing.String() != "listing" || KindThread.String() != "thread" || Kind(9).String() != "unknown" {
		t.Fatalf("unexpected Kind names")
	}
}
