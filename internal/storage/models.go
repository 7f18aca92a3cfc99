package storage

import (
	"time"
)

// Feed is one subscription. ID is the sha256 of the normalized URL so the
// same source can never be subscribed twice.
type Feed struct {
	ID              string        `json:"id"`
	URL             string        `json:"url"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Enabled         bool          `json:"enabled"`
	RefreshInterval time.Duration `json:"refresh_interval"`
	LastRefreshed   time.Time     `json:"last_refreshed"`
	LastError       string        `json:"last_error"`
	FailureCount    int           `json:"failure_count"`
	ETag            string        `json:"etag"`
	LastModified    string        `json:"last_modified"`
	AddedAt         time.Time     `json:"added_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Article is one normalized feed entry. Key is the identity key used for
// dedup: the upstream GUID when the feed provides one, otherwise a hash of
// link, title and published time. Keys are unique within a feed.
//
// A zero Published means the feed did not carry a usable timestamp; it is
// never defaulted to the fetch time.
type Article struct {
	Key         string    `json:"key"`
	FeedID      string    `json:"feed_id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Summary     string    `json:"summary"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	Published   time.Time `json:"published"`
	Read        bool      `json:"read"`
	Starred     bool      `json:"starred"`
	AddedAt     time.Time `json:"added_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MergeStats summarizes one feed refresh against the archive.
type MergeStats struct {
	New       int
	Updated   int
	Unchanged int
	Skipped   int
}

// DeletePolicy decides the fate of a feed's articles on unsubscribe.
type DeletePolicy string

const (
	// DeletePurge removes the feed's articles together with the feed.
	DeletePurge DeletePolicy = "purge"
	// DeleteOrphan keeps the articles in a separate archive bucket.
	DeleteOrphan DeletePolicy = "orphan"
)
