package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_SaveAndGetFeed(t *testing.T) {
	store := setupTestStore(t)

	feed := &Feed{
		ID:              "feed-1",
		URL:             "http://example.org/feed.xml",
		Title:           "Test Feed",
		Enabled:         true,
		RefreshInterval: 30 * time.Minute,
		ETag:            "\"abc123\"",
		AddedAt:         time.Now(),
	}

	if err := store.SaveFeed(feed); err != nil {
		t.Fatalf("failed to save feed: %v", err)
	}

	got, err := store.GetFeed("feed-1")
	if err != nil {
		t.Fatalf("failed to get feed: %v", err)
	}

	if got.URL != feed.URL {
		t.Errorf("expected URL %s, got %s", feed.URL, got.URL)
	}
	if got.ETag != feed.ETag {
		t.Errorf("expected ETag %s, got %s", feed.ETag, got.ETag)
	}
	if !got.Enabled {
		t.Error("expected feed to be enabled")
	}
	if got.RefreshInterval != 30*time.Minute {
		t.Errorf("expected 30m interval, got %v", got.RefreshInterval)
	}
}

func TestStore_GetFeed_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetFeed("missing")
	if !errors.Is(err, ErrFeedNotFound) {
		t.Errorf("expected ErrFeedNotFound, got %v", err)
	}
}

func TestStore_GetAllFeeds_SubscriptionOrder(t *testing.T) {
	store := setupTestStore(t)

	base := time.Now()
	feeds := []*Feed{
		{ID: "newest", URL: "http://c.example.org", AddedAt: base.Add(2 * time.Hour)},
		{ID: "oldest", URL: "http://a.example.org", AddedAt: base},
		{ID: "middle", URL: "http://b.example.org", AddedAt: base.Add(time.Hour)},
	}
	for _, f := range feeds {
		if err := store.SaveFeed(f); err != nil {
			t.Fatalf("failed to save feed: %v", err)
		}
	}

	all, err := store.GetAllFeeds()
	if err != nil {
		t.Fatalf("failed to get feeds: %v", err)
	}

	want := []string{"oldest", "middle", "newest"}
	if len(all) != len(want) {
		t.Fatalf("expected %d feeds, got %d", len(want), len(all))
	}
	for i, id := range want {
		if all[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, all[i].ID)
		}
	}
}

func TestStore_RecordSuccessAndFailure(t *testing.T) {
	store := setupTestStore(t)

	if err := store.SaveFeed(&Feed{ID: "f1", URL: "http://example.org"}); err != nil {
		t.Fatal(err)
	}

	if err := store.RecordFailure("f1", "connection refused"); err != nil {
		t.Fatalf("recording failure: %v", err)
	}
	if err := store.RecordFailure("f1", "connection refused"); err != nil {
		t.Fatalf("recording failure: %v", err)
	}

	f, err := store.GetFeed("f1")
	if err != nil {
		t.Fatal(err)
	}
	if f.FailureCount != 2 {
		t.Errorf("expected failure count 2, got %d", f.FailureCount)
	}
	if f.LastError != "connection refused" {
		t.Errorf("expected last error recorded, got %q", f.LastError)
	}

	if err := store.RecordSuccess("f1", "\"etag\"", "Mon, 02 Jan 2006 15:04:05 GMT"); err != nil {
		t.Fatalf("recording success: %v", err)
	}

	f, err = store.GetFeed("f1")
	if err != nil {
		t.Fatal(err)
	}
	if f.FailureCount != 0 {
		t.Errorf("expected failure count reset, got %d", f.FailureCount)
	}
	if f.LastError != "" {
		t.Errorf("expected last error cleared, got %q", f.LastError)
	}
	if f.ETag != "\"etag\"" {
		t.Errorf("expected etag stored, got %q", f.ETag)
	}
	if time.Since(f.LastRefreshed) > time.Second {
		t.Error("LastRefreshed not updated")
	}
}

func TestStore_UpdateFeedInfo_PreservesRename(t *testing.T) {
	store := setupTestStore(t)

	if err := store.SaveFeed(&Feed{ID: "f1", URL: "http://example.org"}); err != nil {
		t.Fatal(err)
	}

	// First refresh fills in the fetched title.
	if err := store.UpdateFeedInfo("f1", "Fetched Title", "desc"); err != nil {
		t.Fatal(err)
	}
	f, _ := store.GetFeed("f1")
	if f.Title != "Fetched Title" {
		t.Errorf("expected fetched title, got %q", f.Title)
	}

	// A user rename must survive later refreshes.
	if err := store.RenameFeed("f1", "My Name"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateFeedInfo("f1", "Fetched Again", ""); err != nil {
		t.Fatal(err)
	}
	f, _ = store.GetFeed("f1")
	if f.Title != "My Name" {
		t.Errorf("expected renamed title preserved, got %q", f.Title)
	}
}

func seedArticles(t *testing.T, store *Store, feedID string, n int) {
	t.Helper()
	articles := make([]*Article, n)
	for i := 0; i < n; i++ {
		articles[i] = &Article{
			Key:         fmt.Sprintf("key-%d", i),
			FeedID:      feedID,
			Title:       fmt.Sprintf("Article %d", i),
			ContentHash: fmt.Sprintf("hash-%d", i),
			Published:   time.Now().Add(time.Duration(-i) * time.Hour),
		}
	}
	if _, err := store.MergeArticles(context.Background(), feedID, articles); err != nil {
		t.Fatalf("seeding articles: %v", err)
	}
}

func TestStore_GetArticles_OrderAndLimit(t *testing.T) {
	store := setupTestStore(t)
	seedArticles(t, store, "f1", 10)

	articles, err := store.GetArticles("f1", 0)
	if err != nil {
		t.Fatalf("getting articles: %v", err)
	}
	if len(articles) != 10 {
		t.Fatalf("expected 10 articles, got %d", len(articles))
	}
	for i := 1; i < len(articles); i++ {
		if articles[i].Published.After(articles[i-1].Published) {
			t.Errorf("articles not sorted newest first at position %d", i)
		}
	}

	limited, err := store.GetArticles("f1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 3 {
		t.Errorf("expected 3 articles with limit, got %d", len(limited))
	}
}

func TestStore_MarkReadAndStarred(t *testing.T) {
	store := setupTestStore(t)
	seedArticles(t, store, "f1", 1)

	if err := store.MarkRead("f1", "key-0", true); err != nil {
		t.Fatalf("marking read: %v", err)
	}
	if err := store.MarkStarred("f1", "key-0", true); err != nil {
		t.Fatalf("marking starred: %v", err)
	}

	a, err := store.GetArticle("f1", "key-0")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Read || !a.Starred {
		t.Errorf("expected read and starred, got read=%v starred=%v", a.Read, a.Starred)
	}

	if err := store.MarkRead("f1", "missing", true); !errors.Is(err, ErrArticleNotFound) {
		t.Errorf("expected ErrArticleNotFound, got %v", err)
	}
}

func TestStore_MarkAllRead(t *testing.T) {
	store := setupTestStore(t)
	seedArticles(t, store, "f1", 5)
	seedArticles(t, store, "f2", 2)

	if err := store.MarkAllRead("f1"); err != nil {
		t.Fatalf("marking all read: %v", err)
	}

	counts, err := store.UnreadCounts()
	if err != nil {
		t.Fatal(err)
	}
	if counts["f1"] != 0 {
		t.Errorf("expected 0 unread for f1, got %d", counts["f1"])
	}
	if counts["f2"] != 2 {
		t.Errorf("expected 2 unread for f2, got %d", counts["f2"])
	}
}

func TestStore_DeleteFeed_Purge(t *testing.T) {
	store := setupTestStore(t)

	if err := store.SaveFeed(&Feed{ID: "f1", URL: "http://example.org"}); err != nil {
		t.Fatal(err)
	}
	seedArticles(t, store, "f1", 3)

	if err := store.DeleteFeed("f1", DeletePurge); err != nil {
		t.Fatalf("deleting feed: %v", err)
	}

	if _, err := store.GetFeed("f1"); !errors.Is(err, ErrFeedNotFound) {
		t.Errorf("expected feed gone, got %v", err)
	}
	articles, err := store.GetArticles("f1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 0 {
		t.Errorf("expected no articles after purge, got %d", len(articles))
	}
	orphans, err := store.OrphanedArticles(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(orphans) != 0 {
		t.Errorf("expected no orphans after purge, got %d", len(orphans))
	}
}

func TestStore_DeleteFeed_Orphan(t *testing.T) {
	store := setupTestStore(t)

	if err := store.SaveFeed(&Feed{ID: "f1", URL: "http://example.org"}); err != nil {
		t.Fatal(err)
	}
	seedArticles(t, store, "f1", 3)

	if err := store.DeleteFeed("f1", DeleteOrphan); err != nil {
		t.Fatalf("deleting feed: %v", err)
	}

	if _, err := store.GetFeed("f1"); !errors.Is(err, ErrFeedNotFound) {
		t.Errorf("expected feed gone, got %v", err)
	}
	articles, err := store.GetArticles("f1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 0 {
		t.Errorf("expected feed bucket gone, got %d articles", len(articles))
	}

	orphans, err := store.OrphanedArticles(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(orphans) != 3 {
		t.Fatalf("expected 3 orphaned articles, got %d", len(orphans))
	}
	for _, o := range orphans {
		if o.FeedID != "" {
			t.Errorf("expected orphan FeedID cleared, got %q", o.FeedID)
		}
	}
}
