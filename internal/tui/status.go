package tui

import (
	"fmt"
	"strings"

	"github.com/jmlarsen/skim/internal/feed"
)

// Canonical short status messages used across the app.
const (
	MsgRefreshing  = "Refreshing…"
	MsgAddingFeed  = "Adding feed…"
	MsgDeleting    = "Deleting…"
	MsgRenaming    = "Renaming…"
	MsgNoResults   = "No results"
	MsgFeedRemoved = "Feed removed"
)

func MsgSubscribed(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "feed"
	}
	return fmt.Sprintf("Subscribed to '%s'", title)
}

func MsgRefreshFinished(title string, added, updated int) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "feed"
	}
	if added == 0 && updated == 0 {
		return fmt.Sprintf("%s: up to date", title)
	}
	return fmt.Sprintf("%s: %d new, %d updated", title, added, updated)
}

func MsgRefreshFailed(title string, kind feed.ErrorKind) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "feed"
	}
	return fmt.Sprintf("%s: %s", title, kind)
}

func MsgBatchProgress(completed, total int) string {
	return fmt.Sprintf("Refreshing %d/%d…", completed, total)
}

func MsgResultsCount(n int) string {
	if n == 1 {
		return "1 result"
	}
	return fmt.Sprintf("%d results", n)
}
