// Package collyfetcher implements fetcher.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/pagewatch/internal/fetcher"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Headers       http.Header
}

// Fetcher implements fetcher.Fetcher using a fresh Colly collector per request
// over a shared, pooled transport.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Fetcher{
		cfg:       cfg,
		transport: newHTTPTransport(),
	}
}

// Fetch executes a single HTTP GET using Colly.
func (f *Fetcher) Fetch(ctx context.Context, url string) (fetcher.Response, error) {
	var (
		result   fetcher.Response
		fetchErr error
	)
	collector := f.buildCollector(ctx)
	f.configureCollectorHooks(collector, time.Now(), &result, &fetchErr)

	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return fetcher.Response{}, err
	}
	if err := fetcher.CheckStatus(url, result.StatusCode); err != nil {
		return fetcher.Response{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	collector := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
	)
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(&contextTransport{base: f.transport, ctx: ctx})
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *fetcher.Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = fetcher.Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    utf8Headers(r.Headers.Clone()),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 && r.Request != nil {
			*fetchErr = &fetcher.StatusError{URL: r.Request.URL.String(), StatusCode: r.StatusCode}
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

// utf8Headers relabels a declared charset as utf-8. Colly transcodes bodies
// that declare another charset, so the original label no longer applies.
func utf8Headers(h http.Header) http.Header {
	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return h
	}
	if _, ok := params["charset"]; !ok {
		return h
	}
	params["charset"] = "utf-8"
	h.Set("Content-Type", mime.FormatMediaType(mediaType, params))
	return h
}

func (f *Fetcher) copyHeaders(r *colly.Request) {
	if f.cfg.Headers == nil {
		return
	}
	for key, values := range f.cfg.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

// contextTransport binds outgoing requests to the context of the fetch that
// issued them so cancelling the fetch aborts the connection.
type contextTransport struct {
	base http.RoundTripper
	ctx  context.Context
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("context transport received nil request")
	}
	resp, err := t.base.RoundTrip(req.WithContext(t.ctx))
	if err != nil {
		return nil, fmt.Errorf("roundtrip %s: %w", req.URL, err)
	}
	return resp, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
