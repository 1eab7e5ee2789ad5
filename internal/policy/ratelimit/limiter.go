// Package ratelimit paces requests per host with token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/pagewatch/internal/fetcher"
)

// Limiter manages one token bucket per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	onDelay  func(host string, d time.Duration)
}

// Config holds rate limiter configuration. A non-positive RPS disables
// pacing.
type Config struct {
	RPS   float64
	Burst int
	// OnDelay, when set, is told how long a request waited for its token.
	OnDelay func(host string, d time.Duration)
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
		onDelay:  cfg.OnDelay,
	}
}

// Enabled reports whether the limiter paces anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.rate != rate.Inf
}

// Wait blocks until rawURL's host has a token or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Immediate grants are not delays.
	if d := time.Since(start); d > time.Millisecond && l.onDelay != nil {
		l.onDelay(host, d)
	}
	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}

// Fetcher paces an underlying fetcher per host.
type Fetcher struct {
	next    fetcher.Fetcher
	limiter *Limiter
}

// Wrap returns next paced by l. A disabled limiter returns next unchanged.
func Wrap(next fetcher.Fetcher, l *Limiter) fetcher.Fetcher {
	if !l.Enabled() {
		return next
	}
	return &Fetcher{next: next, limiter: l}
}

// Fetch waits for a token for url's host, then fetches.
func (f *Fetcher) Fetch(ctx context.Context, url string) (fetcher.Response, error) {
	if err := f.limiter.Wait(ctx, url); err != nil {
		return fetcher.Response{}, err
	}
	return f.next.Fetch(ctx, url)
}
