package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LJTian/hnreader/internal/collector"
	"github.com/LJTian/hnreader/internal/ingest"
)

const hotPage = `<table>
<tr class="athing" id="1"><td><span class="titleline"><a href="https://a.test">A</a></span></td></tr>
<tr><td class="subtext"><span class="score">5 points</span></td></tr>
<tr class="athing" id="2"><td><span class="titleline"><a href="https://b.test">B</a></span></td></tr>
<tr><td class="subtext"><span class="score">7 points</span></td></tr>
</table>`

type staticFetcher struct {
	body  string
	err   error
	calls atomic.Int32
}

func (f *staticFetcher) Get(context.Context, string) (string, error) {
	f.calls.Add(1)
	return f.body, f.err
}

type recordingSaver struct {
	saved [][]collector.ListingItem
	err   error
}

func (r *recordingSaver) SaveStoryDetails(items []collector.ListingItem) error {
	r.saved = append(r.saved, items)
	return r.err
}

func TestRunOnceWarmsCacheAndSavesDetails(t *testing.T) {
	f := &staticFetcher{body: hotPage}
	svc := ingest.New(f, ingest.Options{BaseURL: "https://hn.test", TTL: time.Hour})
	saver := &recordingSaver{}

	s, err := New(svc, saver, "*/5 * * * *", "")
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	s.RunOnce()

	items, ok := svc.Cache().ReadListing(time.Hour)
	if !ok || len(items) != 2 {
		t.Fatalf("cache after warm = %+v, %v", items, ok)
	}
	if len(saver.saved) != 1 || saver.saved[0][1].Title != "B" {
		t.Fatalf("saved = %+v", saver.saved)
	}

	// 预热总是强制刷新
	s.RunOnce()
	if f.calls.Load() != 2 {
		t.Fatalf("warm should bypass the cache, fetches = %d", f.calls.Load())
	}
}

func TestRunOnceSkipsEmptyAndSaveErrors(t *testing.T) {
	f := &staticFetcher{err: errors.New("boom")}
	svc := ingest.New(f, ingest.Options{BaseURL: "https://hn.test"})
	saver := &recordingSaver{}

	s, err := New(svc, saver, "", "")
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	s.RunOnce()
	if len(saver.saved) != 0 {
		t.Fatalf("failed fetch should not reach the store")
	}

	f.err, f.body = nil, hotPage
	saver.err = errors.New("db down")
	s.RunOnce()
	if len(saver.saved) != 1 {
		t.Fatalf("saver should be called once, got %d", len(saver.saved))
	}
}

func TestRunOnceWithoutStore(t *testing.T) {
	svc := ingest.New(&staticFetcher{body: hotPage}, ingest.Options{BaseURL: "https://hn.test"})
	s, err := New(svc, nil, "", "")
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	s.RunOnce()
	if _, ok := svc.Cache().ReadListing(time.Hour); !ok {
		t.Fatalf("cache should be warmed without a store")
	}
}

func TestSweepRemovesExpiredThreads(t *testing.T) {
	svc := ingest.New(&staticFetcher{}, ingest.Options{BaseURL: "https://hn.test", TTL: time.Nanosecond})
	svc.Cache().WriteThread("1", nil)
	svc.Cache().WriteThread("2", nil)
	time.Sleep(time.Millisecond)

	s, err := New(svc, nil, "", "@every 1h")
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if removed := s.Sweep(); removed != 2 {
		t.Fatalf("Sweep removed %d, want 2", removed)
	}
}

func TestNewRejectsBadSpec(t *testing.T) {
	svc := ingest.New(&staticFetcher{}, ingest.Options{})
	if _, err := New(svc, nil, "not a cron spec", ""); err == nil {
		t.Fatalf("expected error for invalid warm spec")
	}
	if _, err := New(svc, nil, "", "61 * * * *"); err == nil {
		t.Fatalf("expected error for invalid sweep spec")
	}
}

func TestStartStop(t *testing.T) {
	svc := ingest.New(&staticFetcher{body: hotPage}, ingest.Options{BaseURL: "https://hn.test"})
	s, err := New(svc, nil, "@every 1h", "")
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	s.startupDelay = time.Millisecond
	s.Start()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := svc.Cache().ReadListing(time.Hour); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("delayed first run did not warm the cache")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
}
