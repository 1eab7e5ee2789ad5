package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/fetcher"
)

func TestFetchReturnsBody(t *testing.T) {
	t.Parallel()

	seen := make(chan http.Header, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Clone()
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<h1>hi</h1>")
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "pagewatch-test", Headers: http.Header{"X-Trace": {"yes"}}})
	resp, err := f.Fetch(context.Background(), srv.URL+"/x")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<h1>hi</h1>", string(resp.Body))
	assert.Equal(t, "text/html", resp.Headers.Get("Content-Type"))
	assert.Equal(t, srv.URL+"/x", resp.URL)
	headers := <-seen
	assert.Equal(t, "pagewatch-test", headers.Get("User-Agent"))
	assert.Equal(t, "yes", headers.Get("X-Trace"))

	// The same fetcher can revisit a URL within one process.
	_, err = f.Fetch(context.Background(), srv.URL+"/x")
	require.NoError(t, err)
}

func TestFetchTranscodesDeclaredCharset(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("<h1>caf\xe9</h1>"))
	}))
	t.Cleanup(srv.Close)

	resp, err := New(Config{}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<h1>café</h1>", string(resp.Body))
	assert.Equal(t, "text/html; charset=utf-8", resp.Headers.Get("Content-Type"))
}

func TestUTF8Headers(t *testing.T) {
	t.Parallel()

	assert.Nil(t, utf8Headers(nil))
	plain := http.Header{"Content-Type": {"text/html"}}
	assert.Equal(t, "text/html", utf8Headers(plain).Get("Content-Type"))
	declared := http.Header{"Content-Type": {"text/html; charset=Shift_JIS"}}
	assert.Equal(t, "text/html; charset=utf-8", utf8Headers(declared).Get("Content-Type"))
}

func TestFetchNonSuccessStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{}).Fetch(context.Background(), srv.URL)
	var status *fetcher.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusGone, status.StatusCode)
}

func TestFetchHonoursCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(Config{Timeout: time.Minute}).Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchRespectsRobots(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /private")
			return
		}
		fmt.Fprint(w, "ok")
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{RespectRobots: true}).Fetch(context.Background(), srv.URL+"/private")
	require.ErrorIs(t, err, colly.ErrRobotsTxtBlocked)

	_, err = New(Config{RespectRobots: false}).Fetch(context.Background(), srv.URL+"/private")
	require.NoError(t, err)
}

func TestBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", RespectRobots: true, Timeout: time.Second})
	collector := f.buildCollector(context.Background())
	if collector.UserAgent != "coverage-agent" {
		t.Fatalf("expected user agent override, got %q", collector.UserAgent)
	}
	if collector.IgnoreRobotsTxt {
		t.Fatal("expected robots txt to be respected")
	}
	if !collector.AllowURLRevisit {
		t.Fatal("expected revisits to be allowed")
	}
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{Headers: http.Header{"X-Trace": {"yes"}}})
	var result fetcher.Response
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, time.Unix(0, 0), &result, &fetchErr)
	if hooks.onRequest == nil || hooks.onResponse == nil || hooks.onError == nil {
		t.Fatal("expected hooks to be registered")
	}

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	if collyReq.Headers.Get("X-Trace") != "yes" {
		t.Fatalf("expected header propagation, got %+v", collyReq.Headers)
	}

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	if result.StatusCode != http.StatusCreated || string(result.Body) != "body" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Headers.Get("X-Resp") != "ok" {
		t.Fatalf("expected headers copied, got %+v", result.Headers)
	}

	hooks.onError(nil, errors.New("boom"))
	if fetchErr == nil || fetchErr.Error() != "boom" {
		t.Fatalf("expected fetchErr set, got %v", fetchErr)
	}

	hooks.onError(&colly.Response{
		StatusCode: http.StatusNotFound,
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/missing")},
	}, errors.New("Not Found"))
	var status *fetcher.StatusError
	if !errors.As(fetchErr, &status) || status.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status error, got %v", fetchErr)
	}
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(collyReq)
	if len(*collyReq.Headers) != 0 {
		t.Fatalf("expected no headers to be copied, got %+v", *collyReq.Headers)
	}
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
