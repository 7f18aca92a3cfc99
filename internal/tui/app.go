// Package tui is the terminal frontend. It never talks to the network
// itself: refreshes go through the coordinator, and results come back
// by polling its event channel between frames.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jmlarsen/skim/internal/config"
	"github.com/jmlarsen/skim/internal/feed"
	"github.com/jmlarsen/skim/internal/search"
	"github.com/jmlarsen/skim/internal/storage"
)

type App struct {
	config      *config.Config
	store       *storage.Store
	coordinator *feed.Coordinator
	searchEngine *search.Engine

	feedList    list.Model
	articleList list.Model
	searchList  list.Model
	viewport    viewport.Model
	textInput   textinput.Model
	searchInput textinput.Model

	view           View
	feeds          []*storage.Feed
	articles       []*storage.Article
	currentFeed    *storage.Feed
	currentArticle *storage.Article
	feedToDelete   *storage.Feed
	status         string
	statusStyle    lipgloss.Style
	width          int
	height         int

	glamourRenderer *glamour.TermRenderer
	rendererWidth   int
}

func NewApp(store *storage.Store, coordinator *feed.Coordinator, engine *search.Engine, cfg *config.Config) *App {
	feedList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	feedList.Title = "› feeds"
	feedList.SetShowStatusBar(false)
	feedList.SetFilteringEnabled(true)

	articleList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	articleList.Title = "› articles"
	articleList.SetShowStatusBar(false)
	articleList.SetFilteringEnabled(true)

	searchList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	searchList.Title = "› search results"
	searchList.SetShowStatusBar(false)
	searchList.SetFilteringEnabled(false)

	ti := textinput.New()
	ti.Placeholder = "Enter feed URL..."

	si := textinput.New()
	si.Placeholder = "Search articles..."

	return &App{
		config:       cfg,
		store:        store,
		coordinator:  coordinator,
		searchEngine: engine,
		feedList:     feedList,
		articleList:  articleList,
		searchList:   searchList,
		viewport:     viewport.New(0, 0),
		textInput:    ti,
		searchInput:  si,
		view:         ViewFeeds,
		statusStyle:  StatusInfoStyle,
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.loadFeeds(),
		a.pollEvents(),
		tea.EnterAltScreen,
	)
}

func (a *App) getRenderer() (*glamour.TermRenderer, error) {
	wrap := (a.width * 9) / 10
	if wrap > 120 {
		wrap = 120
	}
	if wrap < 40 {
		wrap = 40
	}

	if a.glamourRenderer == nil || abs(a.rendererWidth-wrap) > 10 {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			return nil, err
		}
		a.glamourRenderer = r
		a.rendererWidth = wrap
	}
	return a.glamourRenderer, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.feedList.SetSize(msg.Width, msg.Height-3)
		a.articleList.SetSize(msg.Width, msg.Height-3)
		a.searchList.SetSize(msg.Width, msg.Height-6)
		a.viewport.Width = msg.Width
		a.viewport.Height = msg.Height - 3

	case tea.KeyMsg:
		return a.handleKey(msg)

	case feedsLoadedMsg:
		a.feeds = msg.feeds
		items := make([]list.Item, len(msg.feeds))
		for i, f := range msg.feeds {
			items[i] = feedItem{feed: f, unread: msg.unread[f.ID]}
		}
		a.feedList.SetItems(items)

	case articlesLoadedMsg:
		if a.view == ViewArticles {
			a.articles = msg.articles
			items := make([]list.Item, len(msg.articles))
			for i, art := range msg.articles {
				items[i] = articleItem{article: art}
			}
			a.articleList.SetItems(items)
		}

	case articleRenderedMsg:
		a.viewport.SetContent(msg.content)
		a.viewport.GotoTop()
		a.view = ViewReader

	case subscribedMsg:
		if msg.err != nil {
			a.setStatus(msg.err.Error(), StatusErrorStyle)
		} else {
			a.setStatus(MsgSubscribed(msg.feed.URL), StatusSuccessStyle)
			a.view = ViewFeeds
			cmds = append(cmds, a.loadFeeds())
		}

	case unsubscribedMsg:
		if msg.err != nil {
			a.setStatus(msg.err.Error(), StatusErrorStyle)
		} else {
			a.setStatus(MsgFeedRemoved, StatusSuccessStyle)
		}
		a.feedToDelete = nil
		a.view = ViewFeeds
		cmds = append(cmds, a.loadFeeds())

	case searchDoneMsg:
		if msg.err != nil {
			a.setStatus(msg.err.Error(), StatusErrorStyle)
			break
		}
		items := make([]list.Item, len(msg.results))
		for i, r := range msg.results {
			items[i] = searchResultItem{result: r}
		}
		a.searchList.SetItems(items)
		if len(msg.results) == 0 {
			a.setStatus(MsgNoResults, StatusInfoStyle)
		} else {
			a.setStatus(MsgResultsCount(len(msg.results)), StatusInfoStyle)
		}

	case refreshEventsMsg:
		if cmd := a.applyEvents(msg.events); cmd != nil {
			cmds = append(cmds, cmd)
		}
		cmds = append(cmds, a.pollEvents())

	case errorMsg:
		a.setStatus(msg.err.Error(), StatusErrorStyle)
	}

	var cmd tea.Cmd
	switch a.view {
	case ViewFeeds:
		a.feedList, cmd = a.feedList.Update(msg)
	case ViewArticles:
		a.articleList, cmd = a.articleList.Update(msg)
	case ViewSearch:
		a.searchList, cmd = a.searchList.Update(msg)
		a.searchInput, _ = a.searchInput.Update(msg)
	case ViewReader:
		a.viewport, cmd = a.viewport.Update(msg)
	case ViewAddFeed, ViewRenameFeed:
		a.textInput, cmd = a.textInput.Update(msg)
	}
	cmds = append(cmds, cmd)

	return a, tea.Batch(cmds...)
}

// applyEvents folds drained coordinator events into the status line and
// decides whether the lists need reloading.
func (a *App) applyEvents(events []feed.Event) tea.Cmd {
	reload := false
	for _, ev := range events {
		switch ev.Kind {
		case feed.EventRefreshStarted:
			a.setStatus(MsgRefreshing, StatusInfoStyle)
		case feed.EventRefreshFinished:
			a.setStatus(MsgRefreshFinished(ev.FeedTitle, ev.New, ev.Updated), StatusSuccessStyle)
			if ev.New > 0 || ev.Updated > 0 {
				reload = true
			}
		case feed.EventRefreshFailed:
			a.setStatus(MsgRefreshFailed(ev.FeedTitle, ev.ErrKind), StatusErrorStyle)
			reload = true
		case feed.EventBatchProgress:
			if ev.Completed < ev.Total {
				a.setStatus(MsgBatchProgress(ev.Completed, ev.Total), StatusInfoStyle)
			}
		case feed.EventFeedRemoved:
			reload = true
		}
	}

	if !reload {
		return nil
	}
	cmds := []tea.Cmd{a.loadFeeds()}
	if a.view == ViewArticles && a.currentFeed != nil {
		cmds = append(cmds, a.loadArticles(a.currentFeed.ID))
	}
	return tea.Batch(cmds...)
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Text entry views consume everything except confirm/cancel.
	switch a.view {
	case ViewAddFeed:
		switch msg.String() {
		case "enter":
			url := a.textInput.Value()
			a.textInput.Reset()
			a.setStatus(MsgAddingFeed, StatusInfoStyle)
			return a, a.subscribe(url)
		case "esc":
			a.textInput.Reset()
			a.view = ViewFeeds
			return a, nil
		}
		var cmd tea.Cmd
		a.textInput, cmd = a.textInput.Update(msg)
		return a, cmd

	case ViewRenameFeed:
		switch msg.String() {
		case "enter":
			name := a.textInput.Value()
			a.textInput.Reset()
			a.view = ViewFeeds
			if a.currentFeed == nil || name == "" {
				return a, nil
			}
			id := a.currentFeed.ID
			return a, func() tea.Msg {
				if err := a.store.RenameFeed(id, name); err != nil {
					return errorMsg{err: err}
				}
				return feedsLoadedMsg{}
			}
		case "esc":
			a.textInput.Reset()
			a.view = ViewFeeds
			return a, nil
		}
		var cmd tea.Cmd
		a.textInput, cmd = a.textInput.Update(msg)
		return a, cmd

	case ViewDeleteConfirm:
		switch msg.String() {
		case "y", "Y":
			if a.feedToDelete == nil {
				a.view = ViewFeeds
				return a, nil
			}
			a.setStatus(MsgDeleting, StatusInfoStyle)
			return a, a.unsubscribe(a.feedToDelete.ID)
		default:
			a.feedToDelete = nil
			a.view = ViewFeeds
			return a, nil
		}

	case ViewSearch:
		switch msg.String() {
		case "enter":
			if a.searchInput.Focused() {
				a.searchInput.Blur()
				return a, a.runSearch(a.searchInput.Value())
			}
			if item, ok := a.searchList.SelectedItem().(searchResultItem); ok {
				return a, a.openSearchResult(item.result)
			}
			return a, nil
		case "esc":
			a.searchInput.Reset()
			a.searchList.SetItems(nil)
			a.view = ViewFeeds
			return a, nil
		case "/":
			a.searchInput.Focus()
			return a, nil
		}
		var cmd tea.Cmd
		if a.searchInput.Focused() {
			a.searchInput, cmd = a.searchInput.Update(msg)
		} else {
			a.searchList, cmd = a.searchList.Update(msg)
		}
		return a, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		if a.view == ViewFeeds {
			return a, tea.Quit
		}
		a.view = ViewFeeds
		return a, nil

	case "esc":
		switch a.view {
		case ViewReader:
			a.view = ViewArticles
			if a.currentFeed != nil {
				return a, a.loadArticles(a.currentFeed.ID)
			}
		case ViewArticles:
			a.view = ViewFeeds
			return a, a.loadFeeds()
		}
		return a, nil

	case "enter":
		switch a.view {
		case ViewFeeds:
			if item, ok := a.feedList.SelectedItem().(feedItem); ok {
				a.currentFeed = item.feed
				a.view = ViewArticles
				return a, a.loadArticles(item.feed.ID)
			}
		case ViewArticles:
			if item, ok := a.articleList.SelectedItem().(articleItem); ok {
				a.currentArticle = item.article
				return a, a.renderArticle(item.article)
			}
		}
		return a, nil

	case "a":
		if a.view == ViewFeeds {
			a.view = ViewAddFeed
			a.textInput.Focus()
			return a, textinput.Blink
		}

	case "d":
		if a.view == ViewFeeds {
			if item, ok := a.feedList.SelectedItem().(feedItem); ok {
				a.feedToDelete = item.feed
				a.view = ViewDeleteConfirm
			}
			return a, nil
		}

	case "n":
		if a.view == ViewFeeds {
			if item, ok := a.feedList.SelectedItem().(feedItem); ok {
				a.currentFeed = item.feed
				a.view = ViewRenameFeed
				a.textInput.SetValue(item.feed.Title)
				a.textInput.Focus()
				return a, textinput.Blink
			}
		}

	case "r":
		switch a.view {
		case ViewFeeds:
			if item, ok := a.feedList.SelectedItem().(feedItem); ok {
				a.setStatus(MsgRefreshing, StatusInfoStyle)
				a.coordinator.RefreshFeed(item.feed.ID, feed.ReasonManual)
			}
		case ViewArticles:
			if a.currentFeed != nil {
				a.setStatus(MsgRefreshing, StatusInfoStyle)
				a.coordinator.RefreshFeed(a.currentFeed.ID, feed.ReasonManual)
			}
		}
		return a, nil

	case "R":
		if a.view == ViewFeeds {
			a.setStatus(MsgRefreshing, StatusInfoStyle)
			a.coordinator.RefreshAll(feed.ReasonManual)
		}
		return a, nil

	case "s":
		if a.view == ViewArticles && a.currentFeed != nil {
			if item, ok := a.articleList.SelectedItem().(articleItem); ok {
				art := item.article
				return a, func() tea.Msg {
					if err := a.store.MarkStarred(art.FeedID, art.Key, !art.Starred); err != nil {
						return errorMsg{err: err}
					}
					articles, err := a.store.GetArticles(art.FeedID, 100)
					if err != nil {
						return errorMsg{err: err}
					}
					return articlesLoadedMsg{articles: articles}
				}
			}
		}

	case "m":
		if a.view == ViewArticles && a.currentFeed != nil {
			id := a.currentFeed.ID
			return a, func() tea.Msg {
				if err := a.store.MarkAllRead(id); err != nil {
					return errorMsg{err: err}
				}
				articles, err := a.store.GetArticles(id, 100)
				if err != nil {
					return errorMsg{err: err}
				}
				return articlesLoadedMsg{articles: articles}
			}
		}

	case "/":
		if a.view == ViewFeeds {
			a.view = ViewSearch
			a.searchInput.Focus()
			return a, textinput.Blink
		}
	}

	// Everything else goes to the focused component.
	var cmd tea.Cmd
	switch a.view {
	case ViewFeeds:
		a.feedList, cmd = a.feedList.Update(msg)
	case ViewArticles:
		a.articleList, cmd = a.articleList.Update(msg)
	case ViewReader:
		a.viewport, cmd = a.viewport.Update(msg)
	}
	return a, cmd
}

func (a *App) openSearchResult(r *feedSearchResult) tea.Cmd {
	return func() tea.Msg {
		article, err := a.store.GetArticle(r.FeedID, r.Key)
		if err != nil {
			return errorMsg{err: err}
		}
		return articlesLoadedMsg{articles: []*storage.Article{article}}
	}
}

func (a *App) setStatus(text string, style lipgloss.Style) {
	a.status = text
	a.statusStyle = style
}

func (a *App) View() string {
	var body string
	switch a.view {
	case ViewFeeds:
		if len(a.feeds) == 0 {
			body = lipgloss.Place(a.width, a.height-2, lipgloss.Center, lipgloss.Center, WelcomeMessage())
		} else {
			body = a.feedList.View()
		}
	case ViewArticles:
		body = a.articleList.View()
	case ViewReader:
		body = a.viewport.View()
	case ViewAddFeed:
		body = lipgloss.JoinVertical(lipgloss.Left,
			HeaderStyle.Render("Add feed"),
			"",
			a.textInput.View(),
			"",
			HelpStyle.Render("enter: subscribe • esc: cancel"),
		)
	case ViewRenameFeed:
		body = lipgloss.JoinVertical(lipgloss.Left,
			HeaderStyle.Render("Rename feed"),
			"",
			a.textInput.View(),
			"",
			HelpStyle.Render("enter: rename • esc: cancel"),
		)
	case ViewDeleteConfirm:
		title := ""
		if a.feedToDelete != nil {
			title = a.feedToDelete.Title
			if title == "" {
				title = a.feedToDelete.URL
			}
		}
		body = lipgloss.Place(a.width, a.height-2, lipgloss.Center, lipgloss.Center,
			fmt.Sprintf("Remove '%s'?\n\n%s", title, HelpStyle.Render("y: remove • any other key: cancel")))
	case ViewSearch:
		body = lipgloss.JoinVertical(lipgloss.Left,
			a.searchInput.View(),
			"",
			a.searchList.View(),
		)
	}

	statusLine := StatusBarStyle.Render(a.statusStyle.Render(a.status))
	return lipgloss.JoinVertical(lipgloss.Left, body, statusLine)
}
