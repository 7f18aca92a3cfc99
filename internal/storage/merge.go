package storage

import (
	"context"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

// MergeArticles reconciles one refresh's worth of normalized items with
// the archive. Every item is classified against the stored article with
// the same identity key:
//
//   - no stored row            -> New, inserted
//   - stored hash differs      -> Updated, mutable fields overwritten
//   - stored hash matches      -> Unchanged, no write
//
// Updated never touches user state: Read, Starred and AddedAt survive.
//
// The whole merge runs in a single write transaction. The context is
// checked between items; cancellation rolls the transaction back, so a
// cancelled refresh commits nothing and never leaves a torn item.
func (s *Store) MergeArticles(ctx context.Context, feedID string, incoming []*Article) (MergeStats, error) {
	var stats MergeStats

	err := s.db.Update(func(tx *bolt.Tx) error {
		fb, err := tx.Bucket(articlesBucket).CreateBucketIfNotExists([]byte(feedID))
		if err != nil {
			return err
		}

		now := time.Now()
		for _, item := range incoming {
			if err := ctx.Err(); err != nil {
				return err
			}
			if item.Key == "" {
				stats.Skipped++
				continue
			}

			stored := fb.Get([]byte(item.Key))
			if stored == nil {
				fresh := *item
				fresh.FeedID = feedID
				fresh.AddedAt = now
				fresh.UpdatedAt = now
				data, err := json.Marshal(&fresh)
				if err != nil {
					return err
				}
				if err := fb.Put([]byte(fresh.Key), data); err != nil {
					return err
				}
				stats.New++
				continue
			}

			var existing Article
			if err := json.Unmarshal(stored, &existing); err != nil {
				return err
			}

			if existing.ContentHash == item.ContentHash {
				stats.Unchanged++
				continue
			}

			existing.Title = item.Title
			existing.URL = item.URL
			existing.Summary = item.Summary
			existing.Content = item.Content
			existing.ContentHash = item.ContentHash
			existing.Published = item.Published
			existing.UpdatedAt = now

			data, err := json.Marshal(&existing)
			if err != nil {
				return err
			}
			if err := fb.Put([]byte(existing.Key), data); err != nil {
				return err
			}
			stats.Updated++
		}
		return nil
	})

	if err != nil {
		return MergeStats{}, err
	}
	return stats, nil
}
