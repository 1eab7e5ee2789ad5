// Package document wraps parsed HTML pages and the fragments selected from them.
package document

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is a parsed page. It keeps the markup it was parsed from so the
// snapshot store can persist exactly what was fetched.
type Document struct {
	url    string
	source string
	doc    *goquery.Document
}

// Parse builds a Document from raw markup.
func Parse(url, markup string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse document %s: %w", url, err)
	}
	return &Document{url: url, source: markup, doc: doc}, nil
}

// URL returns the URL the document was fetched from.
func (d *Document) URL() string {
	if d == nil {
		return ""
	}
	return d.url
}

// Source returns the markup the document was parsed from.
func (d *Document) Source() string {
	if d == nil {
		return ""
	}
	return d.source
}

// Root returns a fragment holding the document node.
func (d *Document) Root() Fragment {
	if d == nil || d.doc == nil {
		return Absent()
	}
	return Nodes(d.doc.Selection)
}
