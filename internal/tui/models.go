package tui

import (
	"fmt"

	"github.com/jmlarsen/skim/internal/feed"
	"github.com/jmlarsen/skim/internal/storage"
)

type View int

const (
	ViewFeeds View = iota
	ViewArticles
	ViewReader
	ViewAddFeed
	ViewDeleteConfirm
	ViewRenameFeed
	ViewSearch
)

// feedItem adapts a stored feed for the bubbles list.
type feedItem struct {
	feed   *storage.Feed
	unread int
}

func (i feedItem) Title() string {
	title := i.feed.Title
	if title == "" {
		title = i.feed.URL
	}
	if i.unread > 0 {
		return fmt.Sprintf("%s %s", title, UnreadBadgeStyle.Render(fmt.Sprintf("(%d)", i.unread)))
	}
	return title
}

func (i feedItem) Description() string {
	if i.feed.LastError != "" {
		return StatusErrorStyle.Render("! " + i.feed.LastError)
	}
	if i.feed.LastRefreshed.IsZero() {
		return "never refreshed"
	}
	return "refreshed " + i.feed.LastRefreshed.Format("Jan 2 15:04")
}

func (i feedItem) FilterValue() string { return i.feed.Title + " " + i.feed.URL }

type articleItem struct {
	article *storage.Article
}

func (i articleItem) Title() string {
	title := i.article.Title
	if i.article.Starred {
		title = "★ " + title
	}
	if i.article.Read {
		return title
	}
	return UnreadBadgeStyle.Render("● ") + title
}

func (i articleItem) Description() string {
	if i.article.Published.IsZero() {
		return "undated"
	}
	return i.article.Published.Format("Jan 2, 2006")
}

func (i articleItem) FilterValue() string { return i.article.Title }

type searchResultItem struct {
	result *feedSearchResult
}

// feedSearchResult pairs a search hit with its resolved feed title.
type feedSearchResult struct {
	FeedID    string
	Key       string
	Title     string
	Summary   string
	FeedTitle string
}

func (i searchResultItem) Title() string       { return i.result.Title }
func (i searchResultItem) Description() string { return i.result.FeedTitle }
func (i searchResultItem) FilterValue() string { return i.result.Title }

// Messages flowing back into Update from commands.
type (
	feedsLoadedMsg struct {
		feeds  []*storage.Feed
		unread map[string]int
	}
	articlesLoadedMsg struct{ articles []*storage.Article }
	articleRenderedMsg struct{ content string }
	subscribedMsg      struct {
		feed *storage.Feed
		err  error
	}
	unsubscribedMsg struct {
		feedID string
		err    error
	}
	searchDoneMsg struct {
		results []*feedSearchResult
		err     error
	}
	refreshEventsMsg struct{ events []feed.Event }
	errorMsg          struct{ err error }
)
