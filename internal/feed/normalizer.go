package feed

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/jmlarsen/skim/internal/debuglog"
	"github.com/jmlarsen/skim/internal/storage"
)

// Document is the normalized form of one fetched feed: channel-level
// metadata plus its items in document order.
type Document struct {
	Title       string
	Description string
	Articles    []*storage.Article
	// Skipped counts items that were individually malformed and left
	// out without failing the feed.
	Skipped int
}

// Normalizer turns raw RSS/Atom/JSON-Feed bytes into storage articles.
// Format detection and parsing are gofeed's job; this layer derives the
// identity key, sanitizes HTML, and hashes content for the merge engine.
type Normalizer struct {
	parser  *gofeed.Parser
	content *bluemonday.Policy
	text    *bluemonday.Policy
}

func NewNormalizer() *Normalizer {
	return &Normalizer{
		parser:  gofeed.NewParser(),
		content: bluemonday.UGCPolicy(),
		text:    bluemonday.StrictPolicy(),
	}
}

// Normalize parses one feed document. An unparseable envelope fails with
// a parse error; a malformed individual item is skipped with a warning.
func (n *Normalizer) Normalize(data []byte, feedID string) (*Document, error) {
	parsed, err := n.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, refreshErr(KindParse, fmt.Errorf("parsing feed: %w", err))
	}

	doc := &Document{
		Title:       strings.TrimSpace(parsed.Title),
		Description: strings.TrimSpace(parsed.Description),
	}

	log := debuglog.Feed(feedID)
	for _, item := range parsed.Items {
		if item == nil || isMalformed(item) {
			log.Warnf("skipping malformed item (no guid, link or title)")
			doc.Skipped++
			continue
		}

		article := &storage.Article{
			Key:     identityKey(item),
			FeedID:  feedID,
			Title:   n.text.Sanitize(strings.TrimSpace(item.Title)),
			URL:     strings.TrimSpace(item.Link),
			Summary: n.text.Sanitize(item.Description),
			Content: n.content.Sanitize(itemContent(item)),
		}

		// An absent timestamp stays zero. Defaulting it to "now" would
		// make every refresh look like it delivered fresh items.
		if item.PublishedParsed != nil {
			article.Published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			article.Published = *item.UpdatedParsed
		}

		article.ContentHash = contentHash(article)
		doc.Articles = append(doc.Articles, article)
	}

	return doc, nil
}

// isMalformed reports whether an item carries nothing that could
// identify or display it.
func isMalformed(item *gofeed.Item) bool {
	return strings.TrimSpace(item.GUID) == "" &&
		strings.TrimSpace(item.Link) == "" &&
		strings.TrimSpace(item.Title) == ""
}

// identityKey prefers the feed's own item identifier; without one it
// derives a stable key from link, title and published time.
func identityKey(item *gofeed.Item) string {
	if guid := strings.TrimSpace(item.GUID); guid != "" {
		return guid
	}

	var published int64
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.Unix()
	}

	h := sha256.New()
	h.Write([]byte(item.Link))
	h.Write([]byte{0})
	h.Write([]byte(item.Title))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(published, 10)))
	return fmt.Sprintf("%x", h.Sum(nil))
}

func itemContent(item *gofeed.Item) string {
	if item.Content != "" {
		return item.Content
	}
	return item.Description
}

// contentHash fingerprints the mutable fields the merge engine compares.
func contentHash(a *storage.Article) string {
	h := sha256.New()
	h.Write([]byte(a.Title))
	h.Write([]byte{0})
	h.Write([]byte(a.Content))
	h.Write([]byte{0})
	h.Write([]byte(a.Published.UTC().Format("2006-01-02T15:04:05Z")))
	return fmt.Sprintf("%x", h.Sum(nil))
}
