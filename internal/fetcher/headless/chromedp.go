// Package headless fetches pages through headless Chrome so that watched
// fragments can be selected from the rendered DOM.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/pagewatch/internal/fetcher"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultWaitSelector      = "body"
)

// Config controls the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	Headers           http.Header
	NavigationTimeout time.Duration
	// WaitSelector is the CSS selector that must be ready before the DOM is
	// captured. Point it at the watched region when that region is filled in
	// by scripts after load.
	WaitSelector string
	// Settle is an extra pause after WaitSelector is ready.
	Settle time.Duration
}

// Fetcher renders pages in tabs of one shared browser.
type Fetcher struct {
	cfg         Config
	tabs        chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp starts a browser allocator. No browser process is launched
// until the first Fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.Settle < 0 {
		return nil, fmt.Errorf("settle delay must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.WaitSelector == "" {
		cfg.WaitSelector = defaultWaitSelector
	}
	f := &Fetcher{cfg: cfg}
	if cfg.MaxParallel > 0 {
		f.tabs = make(chan struct{}, cfg.MaxParallel)
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	f.allocator, f.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return f, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch opens url in a fresh tab, waits for the configured selector and
// returns the serialized DOM. The body is always UTF-8.
func (f *Fetcher) Fetch(ctx context.Context, url string) (fetcher.Response, error) {
	if err := f.openTab(ctx); err != nil {
		return fetcher.Response{}, err
	}
	defer f.closeTab()

	tab, cancelTab := chromedp.NewContext(f.allocator)
	defer cancelTab()
	tab, cancel := context.WithTimeout(tab, f.cfg.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var status documentStatus
	chromedp.ListenTarget(tab, status.observe)

	start := time.Now()
	var markup, location string
	if err := chromedp.Run(tab, f.render(url, &markup, &location)...); err != nil {
		return fetcher.Response{}, fmt.Errorf("render %s: %w", url, err)
	}
	code := status.code()
	if err := fetcher.CheckStatus(url, code); err != nil {
		return fetcher.Response{}, err
	}
	if location == "" {
		location = url
	}
	return fetcher.Response{
		URL:        location,
		StatusCode: code,
		Headers:    http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:       []byte(markup),
		Duration:   time.Since(start),
	}, nil
}

// render lists the browser steps of one fetch.
func (f *Fetcher) render(url string, markup, location *string) []chromedp.Action {
	steps := []chromedp.Action{
		chromedp.ActionFunc(f.prepareTab),
		chromedp.Navigate(url),
		chromedp.WaitReady(f.cfg.WaitSelector, chromedp.ByQuery),
	}
	if f.cfg.Settle > 0 {
		steps = append(steps, chromedp.Sleep(f.cfg.Settle))
	}
	return append(steps,
		chromedp.Location(location),
		chromedp.OuterHTML("html", markup, chromedp.ByQuery),
	)
}

func (f *Fetcher) prepareTab(ctx context.Context) error {
	if err := network.Enable().Do(ctx); err != nil {
		return fmt.Errorf("enable network domain: %w", err)
	}
	if f.cfg.UserAgent != "" {
		if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
	}
	if extra := extraHeaders(f.cfg.Headers); len(extra) > 0 {
		if err := network.SetExtraHTTPHeaders(extra).Do(ctx); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
	}
	return nil
}

func (f *Fetcher) openTab(ctx context.Context) error {
	if f.tabs == nil {
		return nil
	}
	select {
	case f.tabs <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for a browser tab: %w", ctx.Err())
	}
}

func (f *Fetcher) closeTab() {
	if f.tabs != nil {
		<-f.tabs
	}
}

// documentStatus records the HTTP status of the first document response,
// which is the page itself; iframes load later. Script, image and XHR
// responses are ignored.
type documentStatus struct {
	first atomic.Int64
}

func (s *documentStatus) observe(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	s.first.CompareAndSwap(0, resp.Response.Status)
}

// code is the observed status, or 200 when the browser served the page
// without a network response.
func (s *documentStatus) code() int {
	if c := s.first.Load(); c != 0 {
		return int(c)
	}
	return http.StatusOK
}

// extraHeaders joins repeated values with ", " as one header line each.
func extraHeaders(h http.Header) network.Headers {
	out := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		out[key] = strings.Join(values, ", ")
	}
	return out
}
