// Package opml imports and exports subscription lists as OPML documents.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

// OPML is the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline is a single outline element: a feed when xmlUrl is set,
// otherwise a folder that may nest further outlines.
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// Subscription is one flattened feed entry from an imported document.
type Subscription struct {
	Title string
	URL   string
}

// Parse reads an OPML document and flattens its outline tree into the
// subscriptions it contains, in document order. Traversal is iterative
// with an explicit stack, so arbitrarily deep nesting in a hostile
// document cannot exhaust the call stack.
func Parse(r io.Reader) ([]Subscription, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding opml: %w", err)
	}

	var subs []Subscription

	// Stack of outline slices still to visit; pushing children before
	// continuing keeps document order.
	stack := [][]Outline{doc.Body.Outlines}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if len(top) == 0 {
			stack = stack[:len(stack)-1]
			continue
		}
		outline := top[0]
		stack[len(stack)-1] = top[1:]

		if url := strings.TrimSpace(outline.XMLURL); url != "" {
			title := outline.Title
			if title == "" {
				title = outline.Text
			}
			subs = append(subs, Subscription{Title: title, URL: url})
		}
		if len(outline.Outlines) > 0 {
			stack = append(stack, outline.Outlines)
		}
	}

	return subs, nil
}

// Export renders the given subscriptions as an OPML 2.0 document.
func Export(title string, subs []Subscription) ([]byte, error) {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: time.Now().Format(time.RFC1123Z),
		},
	}

	for _, s := range subs {
		doc.Body.Outlines = append(doc.Body.Outlines, Outline{
			Text:   s.Title,
			Title:  s.Title,
			Type:   "rss",
			XMLURL: s.URL,
		})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
