// Package search maintains a bleve full-text index over the article
// archive. Indexing happens after a merge commits; the index is derived
// data and can always be rebuilt from the store.
package search

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/jmlarsen/skim/internal/debuglog"
	"github.com/jmlarsen/skim/internal/storage"
)

// Result is one search hit, resolved back to its article identity.
type Result struct {
	FeedID  string
	Key     string
	Title   string
	Summary string
	URL     string
	Score   float64
}

type Engine struct {
	idx bleve.Index
}

// Open opens or creates the index at indexPath.
func Open(indexPath string) (*Engine, error) {
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return nil, err
	}

	idx, err := bleve.Open(indexPath)
	if err != nil {
		idx, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, err
		}
	}

	return &Engine{idx: idx}, nil
}

func (e *Engine) Close() error {
	return e.idx.Close()
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Store = true

	summary := bleve.NewTextFieldMapping()
	summary.Store = true

	content := bleve.NewTextFieldMapping()
	content.Store = false

	stored := bleve.NewTextFieldMapping()
	stored.Store = true
	stored.Index = false

	dm.AddFieldMappingsAt("title", title)
	dm.AddFieldMappingsAt("summary", summary)
	dm.AddFieldMappingsAt("content", content)
	dm.AddFieldMappingsAt("url", stored)
	dm.AddFieldMappingsAt("feed_id", stored)
	dm.AddFieldMappingsAt("key", stored)

	im.DefaultMapping = dm
	return im
}

// IndexArticles adds or reindexes the merged articles of one feed.
// Implements the coordinator's Indexer hook.
func (e *Engine) IndexArticles(feed *storage.Feed, articles []*storage.Article) {
	batch := e.idx.NewBatch()
	for _, a := range articles {
		_ = batch.Index(docID(a.FeedID, a.Key), map[string]any{
			"feed_id": a.FeedID,
			"key":     a.Key,
			"title":   a.Title,
			"summary": a.Summary,
			"content": a.Content,
			"url":     a.URL,
		})
	}
	if err := e.idx.Batch(batch); err != nil {
		debuglog.Errorf("indexing %d articles: %v", len(articles), err)
	}
}

// RemoveFeed deletes every indexed document belonging to a feed.
func (e *Engine) RemoveFeed(feedID string) {
	tq := bleve.NewTermQuery(feedID)
	tq.SetField("feed_id")

	const page = 1000
	for {
		req := bleve.NewSearchRequestOptions(tq, page, 0, false)
		res, err := e.idx.Search(req)
		if err != nil || len(res.Hits) == 0 {
			return
		}
		for _, h := range res.Hits {
			_ = e.idx.Delete(h.ID)
		}
		if len(res.Hits) < page {
			return
		}
	}
}

// Search runs a boosted disjunction of per-term match and prefix
// queries over title, summary and content.
func (e *Engine) Search(query string, limit int) ([]*Result, error) {
	terms := strings.Fields(strings.TrimSpace(query))
	if len(terms) == 0 {
		return nil, nil
	}

	var qs []bleveQuery.Query
	for _, term := range terms {
		qt := bleve.NewMatchQuery(term)
		qt.SetField("title")
		qt.SetBoost(4.0)
		qs = append(qs, qt)

		qtp := bleve.NewPrefixQuery(strings.ToLower(term))
		qtp.SetField("title")
		qtp.SetBoost(3.0)
		qs = append(qs, qtp)

		qsm := bleve.NewMatchQuery(term)
		qsm.SetField("summary")
		qsm.SetBoost(2.0)
		qs = append(qs, qsm)

		qc := bleve.NewMatchQuery(term)
		qc.SetField("content")
		qc.SetBoost(1.0)
		qs = append(qs, qc)
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(qs...), limit, 0, false)
	req.Fields = []string{"feed_id", "key", "title", "summary", "url"}

	res, err := e.idx.Search(req)
	if err != nil {
		return nil, err
	}

	out := make([]*Result, 0, len(res.Hits))
	for _, h := range res.Hits {
		r := &Result{Score: h.Score}
		if v, ok := h.Fields["feed_id"].(string); ok {
			r.FeedID = v
		}
		if v, ok := h.Fields["key"].(string); ok {
			r.Key = v
		}
		if v, ok := h.Fields["title"].(string); ok {
			r.Title = v
		}
		if v, ok := h.Fields["summary"].(string); ok {
			r.Summary = v
		}
		if v, ok := h.Fields["url"].(string); ok {
			r.URL = v
		}
		out = append(out, r)
	}
	return out, nil
}

func docID(feedID, key string) string {
	return feedID + "/" + key
}
