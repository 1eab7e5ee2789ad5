// Package fetcher issues one concurrent request per watched URL and delivers
// the results in completion order.
package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Fetcher retrieves a single page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Response, error)
}

// Response is a successfully fetched page.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// CheckStatus returns a *StatusError unless code is 2xx.
func CheckStatus(url string, code int) error {
	if code < 200 || code > 299 {
		return &StatusError{URL: url, StatusCode: code}
	}
	return nil
}

// Result is the outcome of fetching one URL. URL is the URL that was
// requested, independent of any redirects.
type Result struct {
	URL      string
	Response Response
	Err      error
}

// Stream delivers exactly one Result per URL in arrival order.
type Stream struct {
	results chan Result
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

// Start launches one fetch per URL. The returned stream must be closed.
func Start(ctx context.Context, f Fetcher, urls []string) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		results: make(chan Result, len(urls)),
		cancel:  cancel,
	}
	s.wg.Add(len(urls))
	for _, url := range urls {
		go func(url string) {
			defer s.wg.Done()
			resp, err := f.Fetch(ctx, url)
			s.results <- Result{URL: url, Response: resp, Err: err}
		}(url)
	}
	go func() {
		s.wg.Wait()
		close(s.results)
	}()
	return s
}

// Results is closed once every fetch has reported.
func (s *Stream) Results() <-chan Result {
	return s.results
}

// Close cancels outstanding requests and waits for their workers to exit. It
// is safe to call more than once, before or after the results are drained.
func (s *Stream) Close() {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}
