package tui

import (
	"testing"

	"github.com/jmlarsen/skim/internal/feed"
	"github.com/jmlarsen/skim/internal/storage"
)

func testFeed(title, lastError string) *storage.Feed {
	return &storage.Feed{ID: "f1", URL: "http://example.org", Title: title, LastError: lastError}
}

func TestMsgRefreshFinished(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		added   int
		updated int
		want    string
	}{
		{"with counts", "Example", 3, 1, "Example: 3 new, 1 updated"},
		{"up to date", "Example", 0, 0, "Example: up to date"},
		{"untitled feed", "", 2, 0, "feed: 2 new, 0 updated"},
		{"whitespace title", "  ", 0, 0, "feed: up to date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MsgRefreshFinished(tt.title, tt.added, tt.updated); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMsgRefreshFailed(t *testing.T) {
	got := MsgRefreshFailed("Broken", feed.KindTimeout)
	if got != "Broken: timeout" {
		t.Errorf("got %q", got)
	}
}

func TestMsgResultsCount(t *testing.T) {
	if got := MsgResultsCount(1); got != "1 result" {
		t.Errorf("got %q", got)
	}
	if got := MsgResultsCount(7); got != "7 results" {
		t.Errorf("got %q", got)
	}
}

func TestFeedItemDisplay(t *testing.T) {
	item := feedItem{feed: testFeed("Example Blog", ""), unread: 0}
	if item.Title() != "Example Blog" {
		t.Errorf("unexpected title %q", item.Title())
	}
	if item.Description() != "never refreshed" {
		t.Errorf("unexpected description %q", item.Description())
	}

	failing := feedItem{feed: testFeed("Broken", "http status error: HTTP 500")}
	if failing.Description() == "never refreshed" {
		t.Error("failing feed should surface its error")
	}
}
