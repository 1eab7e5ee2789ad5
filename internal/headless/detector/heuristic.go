// Package detector decides when a page fetched over plain HTTP has to be
// fetched again with a headless browser.
package detector

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/pagewatch/internal/fetcher"
)

// mountPoints are the containers single-page apps render into.
const mountPoints = `#__next, #root, #app, [data-reactroot], [ng-app], [data-v-app]`

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	// MinBodyBytes is the size under which a script-heavy page is assumed to
	// be an app shell.
	MinBodyBytes int
}

// NewHeuristic creates a new detector.
func NewHeuristic(minBodyBytes int) *Heuristic {
	if minBodyBytes <= 0 {
		minBodyBytes = 2048
	}
	return &Heuristic{MinBodyBytes: minBodyBytes}
}

// NeedsRendering reports whether resp looks like it relies on scripts for
// its content: an empty body, an empty app mount point, or a small page
// mostly made of script.
func (h *Heuristic) NeedsRendering(resp fetcher.Response) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return false
	}
	empty := false
	doc.Find(mountPoints).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		empty = strings.TrimSpace(s.Text()) == ""
		return !empty
	})
	if empty {
		return true
	}
	return len(resp.Body) < h.MinBodyBytes && scriptShare(doc, len(resp.Body)) >= 25
}

// scriptShare is the percentage of the body taken by script elements.
func scriptShare(doc *goquery.Document, total int) int {
	covered := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if html, err := goquery.OuterHtml(s); err == nil {
			covered += len(html)
		}
	})
	if total == 0 {
		return 0
	}
	return min(covered*100/total, 100)
}

// Promoter fetches over a plain transport and refetches with a rendering one
// when the heuristic says the page needs it.
type Promoter struct {
	plain     fetcher.Fetcher
	rendered  fetcher.Fetcher
	heuristic *Heuristic
	onPromote func(url string)
}

// NewPromoter builds a Promoter. onPromote may be nil.
func NewPromoter(plain, rendered fetcher.Fetcher, h *Heuristic, onPromote func(url string)) *Promoter {
	if h == nil {
		h = NewHeuristic(0)
	}
	return &Promoter{plain: plain, rendered: rendered, heuristic: h, onPromote: onPromote}
}

// Fetch implements fetcher.Fetcher.
func (p *Promoter) Fetch(ctx context.Context, url string) (fetcher.Response, error) {
	resp, err := p.plain.Fetch(ctx, url)
	if err != nil || !p.heuristic.NeedsRendering(resp) {
		return resp, err
	}
	if p.onPromote != nil {
		p.onPromote(url)
	}
	return p.rendered.Fetch(ctx, url)
}
