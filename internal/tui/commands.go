package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jmlarsen/skim/internal/debuglog"
	"github.com/jmlarsen/skim/internal/feed"
	"github.com/jmlarsen/skim/internal/storage"
)

// eventPollInterval paces how often the UI drains coordinator events.
const eventPollInterval = 250 * time.Millisecond

func (a *App) loadFeeds() tea.Cmd {
	return func() tea.Msg {
		feeds, err := a.store.GetAllFeeds()
		if err != nil {
			return errorMsg{err: err}
		}
		unread, err := a.store.UnreadCounts()
		if err != nil {
			return errorMsg{err: err}
		}
		return feedsLoadedMsg{feeds: feeds, unread: unread}
	}
}

func (a *App) loadArticles(feedID string) tea.Cmd {
	return func() tea.Msg {
		articles, err := a.store.GetArticles(feedID, 100)
		if err != nil {
			return errorMsg{err: err}
		}
		return articlesLoadedMsg{articles: articles}
	}
}

func (a *App) renderArticle(article *storage.Article) tea.Cmd {
	return func() tea.Msg {
		var b strings.Builder
		b.WriteString(fmt.Sprintf("# %s\n\n", article.Title))
		if !article.Published.IsZero() {
			b.WriteString(fmt.Sprintf("*Published: %s*\n\n", article.Published.Format(time.RFC1123)))
		}
		if article.URL != "" {
			b.WriteString(fmt.Sprintf("[Read Online](%s)\n\n", article.URL))
		}
		b.WriteString("---\n\n")
		if article.Content != "" {
			b.WriteString(article.Content)
		} else {
			b.WriteString(article.Summary)
		}

		r, err := a.getRenderer()
		if err != nil {
			return articleRenderedMsg{content: "Error initializing renderer: " + err.Error()}
		}
		rendered, err := r.Render(b.String())
		if err != nil {
			return articleRenderedMsg{content: "Failed to render article: " + err.Error()}
		}

		if err := a.store.MarkRead(article.FeedID, article.Key, true); err != nil {
			debuglog.Feed(article.FeedID).Errorf("marking article read: %v", err)
		}

		return articleRenderedMsg{content: rendered}
	}
}

func (a *App) subscribe(url string) tea.Cmd {
	return func() tea.Msg {
		f, err := a.coordinator.Subscribe(strings.TrimSpace(url))
		return subscribedMsg{feed: f, err: err}
	}
}

func (a *App) unsubscribe(feedID string) tea.Cmd {
	return func() tea.Msg {
		err := a.coordinator.Unsubscribe(feedID)
		return unsubscribedMsg{feedID: feedID, err: err}
	}
}

func (a *App) runSearch(query string) tea.Cmd {
	return func() tea.Msg {
		if a.searchEngine == nil {
			return searchDoneMsg{}
		}
		hits, err := a.searchEngine.Search(query, 50)
		if err != nil {
			return searchDoneMsg{err: err}
		}

		titles := map[string]string{}
		results := make([]*feedSearchResult, 0, len(hits))
		for _, h := range hits {
			ft, ok := titles[h.FeedID]
			if !ok {
				if f, err := a.store.GetFeed(h.FeedID); err == nil {
					ft = f.Title
				}
				titles[h.FeedID] = ft
			}
			results = append(results, &feedSearchResult{
				FeedID:    h.FeedID,
				Key:       h.Key,
				Title:     h.Title,
				Summary:   h.Summary,
				FeedTitle: ft,
			})
		}
		return searchDoneMsg{results: results}
	}
}

// pollEvents drains everything the coordinator has buffered since the
// last tick. TryNext never blocks, so a quiet coordinator costs one
// empty message per tick and nothing more.
func (a *App) pollEvents() tea.Cmd {
	return tea.Tick(eventPollInterval, func(time.Time) tea.Msg {
		events := a.coordinator.Events()
		var drained []feed.Event
		for {
			ev, ok := events.TryNext()
			if !ok {
				break
			}
			drained = append(drained, ev)
		}
		return refreshEventsMsg{events: drained}
	})
}
