package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/LJTian/hnreader/internal/collector"
)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "nested", "favorites.db"), "")
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })
	return s, &now
}

func TestIsPostgresDSN(t *testing.T) {
	cases := map[string]bool{
		"postgres://u:p@localhost:5432/hn":      true,
		"postgresql://localhost/hn":             true,
		"host=localhost user=hn dbname=hn":      true,
		"~/.hn_reader/favorites.db":             false,
		"/var/lib/hnreader/favorites.db":        false,
		"file:test.db?cache=shared&mode=memory": false,
	}
	for dsn, want := range cases {
		if got := isPostgresDSN(dsn); got != want {
			t.Fatalf("isPostgresDSN(%q) = %v, want %v", dsn, got, want)
		}
	}
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/reader")
	got, err := expandHome("~/.hn_reader/favorites.db")
	if err != nil {
		t.Fatalf("expandHome error: %v", err)
	}
	if got != "/home/reader/.hn_reader/favorites.db" {
		t.Fatalf("expandHome = %q", got)
	}
	if got, _ := expandHome("relative.db"); got != "relative.db" {
		t.Fatalf("plain path should be unchanged, got %q", got)
	}
}

func TestFavoritesLifecycle(t *testing.T) {
	s, now := newTestStore(t)

	first := collector.ListingItem{ID: "1", Title: "First", TargetURL: "https://a.test", DisplayDomain: "a.test", Author: "pg", Score: 10, CommentCount: 3}
	if err := s.AddFavorite(first, map[string]any{"tab": "hot", "rank": 1}); err != nil {
		t.Fatalf("AddFavorite error: %v", err)
	}
	*now = now.Add(time.Minute)
	if err := s.AddFavorite(collector.ListingItem{ID: "2", Title: "Second"}, nil); err != nil {
		t.Fatalf("AddFavorite error: %v", err)
	}

	if ok, err := s.IsFavorite("1"); err != nil || !ok {
		t.Fatalf("IsFavorite(1) = %v, %v", ok, err)
	}
	if ok, _ := s.IsFavorite("404"); ok {
		t.Fatalf("IsFavorite(404) should be false")
	}

	done, err := s.ToggleFavoriteDone("2")
	if err != nil || !done {
		t.Fatalf("ToggleFavoriteDone(2) = %v, %v", done, err)
	}
	if _, err := s.ToggleFavoriteDone("404"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("toggle unknown favorite err = %v, want ErrNotFound", err)
	}

	// 未完成在前，同组按收藏时间倒序
	list, err := s.ListFavorites()
	if err != nil {
		t.Fatalf("ListFavorites error: %v", err)
	}
	if len(list) != 2 || list[0].ID != "1" || list[1].ID != "2" || !list[1].Done {
		t.Fatalf("ListFavorites = %+v", list)
	}
	if list[0].By != "pg" || list[0].Score != 10 || list[0].Extra["tab"] != "hot" {
		t.Fatalf("favorite fields not persisted: %+v", list[0])
	}

	n, err := s.ClearDoneFavorites()
	if err != nil || n != 1 {
		t.Fatalf("ClearDoneFavorites = %d, %v", n, err)
	}

	// 重新收藏会重置完成状态
	if _, err := s.ToggleFavoriteDone("1"); err != nil {
		t.Fatalf("toggle error: %v", err)
	}
	if err := s.AddFavorite(first, nil); err != nil {
		t.Fatalf("re-add error: %v", err)
	}
	list, _ = s.ListFavorites()
	if len(list) != 1 || list[0].Done {
		t.Fatalf("re-added favorite should not be done: %+v", list)
	}

	if err := s.RemoveFavorite("1"); err != nil {
		t.Fatalf("RemoveFavorite error: %v", err)
	}
	if ok, _ := s.IsFavorite("1"); ok {
		t.Fatalf("favorite should be removed")
	}
}

func TestViewedStories(t *testing.T) {
	s, now := newTestStore(t)

	if ok, err := s.IsViewed("1"); err != nil || ok {
		t.Fatalf("IsViewed before mark = %v, %v", ok, err)
	}

	if err := s.MarkViewed("1"); err != nil {
		t.Fatalf("MarkViewed error: %v", err)
	}
	*now = now.Add(time.Hour)
	if err := s.MarkViewed("2"); err != nil {
		t.Fatalf("MarkViewed error: %v", err)
	}
	// 再次浏览只更新时间
	*now = now.Add(time.Hour)
	if err := s.MarkViewed("1"); err != nil {
		t.Fatalf("MarkViewed again error: %v", err)
	}

	if ok, _ := s.IsViewed("2"); !ok {
		t.Fatalf("IsViewed(2) should be true")
	}
	ids, err := s.ViewedIDs()
	if err != nil || len(ids) != 2 {
		t.Fatalf("ViewedIDs = %v, %v", ids, err)
	}

	if err := s.SaveStoryDetails([]collector.ListingItem{{ID: "2", Title: "Two"}, {ID: ""}}); err != nil {
		t.Fatalf("SaveStoryDetails error: %v", err)
	}
	list, err := s.ViewedStories()
	if err != nil {
		t.Fatalf("ViewedStories error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ViewedStories = %+v", list)
	}
	if list[0].ID != "1" || list[0].Title != "Unknown Title" {
		t.Fatalf("most recent entry = %+v", list[0])
	}
	if list[1].ID != "2" || list[1].Title != "Two" {
		t.Fatalf("second entry = %+v", list[1])
	}
}

func TestSaveStoryDetailsOverwrites(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.SaveStoryDetails(nil); err != nil {
		t.Fatalf("empty batch error: %v", err)
	}
	_ = s.SaveStoryDetails([]collector.ListingItem{{ID: "9", Title: "old"}})
	_ = s.SaveStoryDetails([]collector.ListingItem{{ID: "9", Title: "new", TargetURL: "https://n.test"}})

	var d StoryDetail
	if err := s.DB.First(&d, "id = ?", "9").Error; err != nil {
		t.Fatalf("load detail error: %v", err)
	}
	if d.Title != "new" || d.URL != "https://n.test" {
		t.Fatalf("detail = %+v", d)
	}
}

func TestSettings(t *testing.T) {
	s, _ := newTestStore(t)

	if v, ok, err := s.GetSetting("last_tab"); err != nil || ok || v != "" {
		t.Fatalf("missing setting = %q, %v, %v", v, ok, err)
	}
	if err := s.SaveSetting("last_tab", "ask"); err != nil {
		t.Fatalf("SaveSetting error: %v", err)
	}
	if err := s.SaveSetting("last_tab", "show"); err != nil {
		t.Fatalf("SaveSetting overwrite error: %v", err)
	}
	if v, ok, err := s.GetSetting("last_tab"); err != nil || !ok || v != "show" {
		t.Fatalf("GetSetting = %q, %v, %v", v, ok, err)
	}
}

func TestUnreachableRedisFallsBackToDB(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "favorites.db"), "127.0.0.1:1")
	if err != nil {
		t.Fatalf("NewStore should tolerate an unreachable redis: %v", err)
	}
	defer s.Close()

	if err := s.MarkViewed("7"); err != nil {
		t.Fatalf("MarkViewed error: %v", err)
	}
	if ok, err := s.IsViewed("7"); err != nil || !ok {
		t.Fatalf("IsViewed should fall back to the database: %v, %v", ok, err)
	}
}
