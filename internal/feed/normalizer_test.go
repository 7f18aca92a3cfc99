package feed

import (
	"strings"
	"testing"
	"time"
)

func TestNormalize_RSS(t *testing.T) {
	data := []byte(`<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>  Example Blog </title>
<description>Posts about things</description>
<item>
  <title>First Post</title>
  <link>http://example.org/first</link>
  <guid>post-1</guid>
  <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
  <description>A short summary</description>
</item>
</channel></rss>`)

	doc, err := NewNormalizer().Normalize(data, "f1")
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}

	if doc.Title != "Example Blog" {
		t.Errorf("expected trimmed channel title, got %q", doc.Title)
	}
	if len(doc.Articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(doc.Articles))
	}

	a := doc.Articles[0]
	if a.Key != "post-1" {
		t.Errorf("guid must win as identity key, got %q", a.Key)
	}
	if a.Title != "First Post" {
		t.Errorf("unexpected title %q", a.Title)
	}
	if a.URL != "http://example.org/first" {
		t.Errorf("unexpected url %q", a.URL)
	}
	if a.Published.IsZero() {
		t.Error("published time not parsed")
	}
	if a.ContentHash == "" {
		t.Error("content hash not computed")
	}
}

func TestNormalize_Atom(t *testing.T) {
	data := []byte(`<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
<title>Atom Feed</title>
<entry>
  <title>Entry One</title>
  <id>urn:uuid:entry-1</id>
  <link href="http://example.org/e1"/>
  <updated>2024-05-01T10:00:00Z</updated>
</entry>
</feed>`)

	doc, err := NewNormalizer().Normalize(data, "f1")
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if len(doc.Articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(doc.Articles))
	}
	if doc.Articles[0].Key != "urn:uuid:entry-1" {
		t.Errorf("expected atom id as key, got %q", doc.Articles[0].Key)
	}
	// No published element: updated fills in.
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if !doc.Articles[0].Published.Equal(want) {
		t.Errorf("expected updated time %v, got %v", want, doc.Articles[0].Published)
	}
}

func TestNormalize_JSONFeed(t *testing.T) {
	data := []byte(`{
  "version": "https://jsonfeed.org/version/1.1",
  "title": "JSON Feed",
  "items": [
    {"id": "item-1", "title": "JSON Post", "url": "http://example.org/j1", "content_html": "<p>Body</p>"}
  ]
}`)

	doc, err := NewNormalizer().Normalize(data, "f1")
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if len(doc.Articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(doc.Articles))
	}
	if doc.Articles[0].Key != "item-1" {
		t.Errorf("expected json feed id as key, got %q", doc.Articles[0].Key)
	}
}

func TestNormalize_UnparseableEnvelope(t *testing.T) {
	_, err := NewNormalizer().Normalize([]byte("this is not a feed"), "f1")
	if KindOf(err) != KindParse {
		t.Errorf("expected KindParse, got %v (%v)", KindOf(err), err)
	}
}

func TestNormalize_SkipsMalformedItems(t *testing.T) {
	data := []byte(`<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Mixed</title>
<item><title>Good One</title><guid>g1</guid></item>
<item><description>nothing identifying here</description></item>
<item><title>Good Two</title><guid>g2</guid></item>
</channel></rss>`)

	doc, err := NewNormalizer().Normalize(data, "f1")
	if err != nil {
		t.Fatalf("one bad item must not fail the feed: %v", err)
	}
	if len(doc.Articles) != 2 {
		t.Errorf("expected 2 articles, got %d", len(doc.Articles))
	}
	if doc.Skipped != 1 {
		t.Errorf("expected 1 skipped item, got %d", doc.Skipped)
	}
}

func TestNormalize_MissingTimestampStaysZero(t *testing.T) {
	data := []byte(`<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>No Dates</title>
<item><title>Undated</title><guid>u1</guid></item>
</channel></rss>`)

	doc, err := NewNormalizer().Normalize(data, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if !doc.Articles[0].Published.IsZero() {
		t.Errorf("absent timestamp must stay zero, got %v", doc.Articles[0].Published)
	}
}

func TestNormalize_IdentityKeyWithoutGUID(t *testing.T) {
	data := []byte(`<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>No GUIDs</title>
<item><title>Keyless</title><link>http://example.org/k</link></item>
</channel></rss>`)

	n := NewNormalizer()
	doc1, err := n.Normalize(data, "f1")
	if err != nil {
		t.Fatal(err)
	}
	doc2, err := n.Normalize(data, "f1")
	if err != nil {
		t.Fatal(err)
	}

	if doc1.Articles[0].Key == "" {
		t.Fatal("derived key must not be empty")
	}
	if doc1.Articles[0].Key != doc2.Articles[0].Key {
		t.Error("derived identity key must be stable across parses")
	}
}

func TestNormalize_SanitizesHTML(t *testing.T) {
	data := []byte(`<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Sanitize</title>
<item>
  <title>Post &lt;script&gt;alert(1)&lt;/script&gt;</title>
  <guid>s1</guid>
  <description>&lt;p&gt;ok&lt;/p&gt;&lt;script&gt;alert(2)&lt;/script&gt;</description>
</item>
</channel></rss>`)

	doc, err := NewNormalizer().Normalize(data, "f1")
	if err != nil {
		t.Fatal(err)
	}

	a := doc.Articles[0]
	if strings.Contains(a.Title, "<script>") {
		t.Errorf("script survived title sanitization: %q", a.Title)
	}
	if strings.Contains(a.Content, "<script>") {
		t.Errorf("script survived content sanitization: %q", a.Content)
	}
	if strings.Contains(a.Summary, "<") {
		t.Errorf("summary must be plain text, got %q", a.Summary)
	}
}

func TestNormalize_HashChangesWithContent(t *testing.T) {
	mk := func(body string) []byte {
		return []byte(`<?xml version="1.0"?>
<rss version="2.0"><channel><title>H</title>
<item><title>Same Title</title><guid>h1</guid><description>` + body + `</description></item>
</channel></rss>`)
	}

	n := NewNormalizer()
	d1, err := n.Normalize(mk("first body"), "f1")
	if err != nil {
		t.Fatal(err)
	}
	d2, err := n.Normalize(mk("second body"), "f1")
	if err != nil {
		t.Fatal(err)
	}
	d3, err := n.Normalize(mk("first body"), "f1")
	if err != nil {
		t.Fatal(err)
	}

	if d1.Articles[0].ContentHash == d2.Articles[0].ContentHash {
		t.Error("different content must hash differently")
	}
	if d1.Articles[0].ContentHash != d3.Articles[0].ContentHash {
		t.Error("identical content must hash identically")
	}
}
