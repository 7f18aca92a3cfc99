package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	feedsBucket    = []byte("feeds")
	articlesBucket = []byte("articles")
	orphansBucket  = []byte("orphans")
)

var (
	ErrFeedNotFound    = errors.New("feed not found")
	ErrArticleNotFound = errors.New("article not found")
)

// Store is the single durable owner of feeds and articles. Articles live
// in one nested bucket per feed, keyed by identity key, so a refresh for
// one feed never touches another feed's rows.
type Store struct {
	db *bolt.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{feedsBucket, articlesBucket, orphansBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveFeed(feed *Feed) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(feedsBucket)
		data, err := json.Marshal(feed)
		if err != nil {
			return err
		}
		return b.Put([]byte(feed.ID), data)
	})
}

func (s *Store) GetFeed(id string) (*Feed, error) {
	var feed Feed
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(feedsBucket)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrFeedNotFound
		}
		return json.Unmarshal(data, &feed)
	})
	if err != nil {
		return nil, err
	}
	return &feed, nil
}

// GetAllFeeds returns every feed in subscription order (oldest first).
func (s *Store) GetAllFeeds() ([]*Feed, error) {
	var feeds []*Feed
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(feedsBucket)
		return b.ForEach(func(_ []byte, v []byte) error {
			var feed Feed
			if err := json.Unmarshal(v, &feed); err != nil {
				return err
			}
			feeds = append(feeds, &feed)
			return nil
		})
	})
	sort.Slice(feeds, func(i, j int) bool {
		if feeds[i].AddedAt.Equal(feeds[j].AddedAt) {
			return feeds[i].URL < feeds[j].URL
		}
		return feeds[i].AddedAt.Before(feeds[j].AddedAt)
	})
	return feeds, err
}

// RecordSuccess stamps a successful refresh: clears the error state and
// stores the caching headers for the next conditional GET.
func (s *Store) RecordSuccess(feedID, etag, lastModified string) error {
	return s.updateFeed(feedID, func(f *Feed) {
		f.LastRefreshed = time.Now()
		f.LastError = ""
		f.FailureCount = 0
		if etag != "" {
			f.ETag = etag
		}
		if lastModified != "" {
			f.LastModified = lastModified
		}
		f.UpdatedAt = time.Now()
	})
}

// RecordFailure stores the feed's last error and bumps the consecutive
// failure count. Failed feeds stay subscribed and keep being scheduled.
func (s *Store) RecordFailure(feedID, message string) error {
	return s.updateFeed(feedID, func(f *Feed) {
		f.LastError = message
		f.FailureCount++
		f.UpdatedAt = time.Now()
	})
}

// RenameFeed sets the display title.
func (s *Store) RenameFeed(feedID, title string) error {
	return s.updateFeed(feedID, func(f *Feed) {
		f.Title = title
		f.UpdatedAt = time.Now()
	})
}

// UpdateFeedInfo fills in channel metadata from a fetched document.
// A fetched title only applies while the feed has no title yet, so a
// user rename is never overwritten by a refresh.
func (s *Store) UpdateFeedInfo(feedID, title, description string) error {
	return s.updateFeed(feedID, func(f *Feed) {
		if f.Title == "" && title != "" {
			f.Title = title
		}
		if description != "" {
			f.Description = description
		}
	})
}

// SetFeedEnabled toggles scheduled refreshing for one feed.
func (s *Store) SetFeedEnabled(feedID string, enabled bool) error {
	return s.updateFeed(feedID, func(f *Feed) {
		f.Enabled = enabled
		f.UpdatedAt = time.Now()
	})
}

func (s *Store) updateFeed(feedID string, mutate func(*Feed)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(feedsBucket)
		data := b.Get([]byte(feedID))
		if data == nil {
			return ErrFeedNotFound
		}
		var feed Feed
		if err := json.Unmarshal(data, &feed); err != nil {
			return err
		}
		mutate(&feed)
		data, err := json.Marshal(&feed)
		if err != nil {
			return err
		}
		return b.Put([]byte(feedID), data)
	})
}

// GetArticles returns one feed's articles, newest published first.
// Articles without a published time sort last. limit <= 0 means all.
func (s *Store) GetArticles(feedID string, limit int) ([]*Article, error) {
	var articles []*Article
	err := s.db.View(func(tx *bolt.Tx) error {
		fb := tx.Bucket(articlesBucket).Bucket([]byte(feedID))
		if fb == nil {
			return nil
		}
		return fb.ForEach(func(_ []byte, v []byte) error {
			var article Article
			if err := json.Unmarshal(v, &article); err != nil {
				return err
			}
			articles = append(articles, &article)
			return nil
		})
	})
	sort.Slice(articles, func(i, j int) bool {
		if articles[i].Published.Equal(articles[j].Published) {
			return articles[i].AddedAt.After(articles[j].AddedAt)
		}
		return articles[i].Published.After(articles[j].Published)
	})
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}
	return articles, err
}

// GetArticle looks up a single article by feed and identity key.
func (s *Store) GetArticle(feedID, key string) (*Article, error) {
	var article Article
	err := s.db.View(func(tx *bolt.Tx) error {
		fb := tx.Bucket(articlesBucket).Bucket([]byte(feedID))
		if fb == nil {
			return ErrArticleNotFound
		}
		data := fb.Get([]byte(key))
		if data == nil {
			return ErrArticleNotFound
		}
		return json.Unmarshal(data, &article)
	})
	if err != nil {
		return nil, err
	}
	return &article, nil
}

// UnreadCounts returns the number of unread articles per feed.
func (s *Store) UnreadCounts() (map[string]int, error) {
	counts := make(map[string]int)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(articlesBucket)
		return b.ForEachBucket(func(feedID []byte) error {
			fb := b.Bucket(feedID)
			return fb.ForEach(func(_ []byte, v []byte) error {
				var article Article
				if err := json.Unmarshal(v, &article); err != nil {
					return err
				}
				if !article.Read {
					counts[string(feedID)]++
				}
				return nil
			})
		})
	})
	return counts, err
}

func (s *Store) MarkRead(feedID, key string, read bool) error {
	return s.updateArticle(feedID, key, func(a *Article) {
		a.Read = read
	})
}

func (s *Store) MarkStarred(feedID, key string, starred bool) error {
	return s.updateArticle(feedID, key, func(a *Article) {
		a.Starred = starred
	})
}

// MarkAllRead flags every article of a feed as read.
func (s *Store) MarkAllRead(feedID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		fb := tx.Bucket(articlesBucket).Bucket([]byte(feedID))
		if fb == nil {
			return nil
		}
		c := fb.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var article Article
			if err := json.Unmarshal(v, &article); err != nil {
				return err
			}
			if article.Read {
				continue
			}
			article.Read = true
			data, err := json.Marshal(&article)
			if err != nil {
				return err
			}
			if err := fb.Put(k, data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) updateArticle(feedID, key string, mutate func(*Article)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		fb := tx.Bucket(articlesBucket).Bucket([]byte(feedID))
		if fb == nil {
			return ErrArticleNotFound
		}
		data := fb.Get([]byte(key))
		if data == nil {
			return ErrArticleNotFound
		}
		var article Article
		if err := json.Unmarshal(data, &article); err != nil {
			return err
		}
		mutate(&article)
		data, err := json.Marshal(&article)
		if err != nil {
			return err
		}
		return fb.Put([]byte(key), data)
	})
}

// DeleteFeed unsubscribes a feed. The policy decides whether its articles
// are removed with it or moved to the orphan archive. Both happen in the
// same transaction as the feed row removal.
func (s *Store) DeleteFeed(feedID string, policy DeletePolicy) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(feedsBucket).Delete([]byte(feedID)); err != nil {
			return err
		}

		b := tx.Bucket(articlesBucket)
		fb := b.Bucket([]byte(feedID))
		if fb == nil {
			return nil
		}

		if policy == DeleteOrphan {
			orphans := tx.Bucket(orphansBucket)
			err := fb.ForEach(func(k, v []byte) error {
				var article Article
				if err := json.Unmarshal(v, &article); err != nil {
					return err
				}
				article.FeedID = ""
				data, err := json.Marshal(&article)
				if err != nil {
					return err
				}
				return orphans.Put([]byte(feedID+"/"+string(k)), data)
			})
			if err != nil {
				return err
			}
		}

		return b.DeleteBucket([]byte(feedID))
	})
}

// OrphanedArticles returns articles kept from unsubscribed feeds,
// newest published first. limit <= 0 means all.
func (s *Store) OrphanedArticles(limit int) ([]*Article, error) {
	var articles []*Article
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(orphansBucket).ForEach(func(_ []byte, v []byte) error {
			var article Article
			if err := json.Unmarshal(v, &article); err != nil {
				return err
			}
			articles = append(articles, &article)
			return nil
		})
	})
	sort.Slice(articles, func(i, j int) bool {
		return articles[i].Published.After(articles[j].Published)
	})
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}
	return articles, err
}
