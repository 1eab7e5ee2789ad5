// Package metrics records run statistics as Prometheus collectors and exports
// them when the run finishes.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Recorder owns a private registry so that one run's numbers never mix with
// another's. A nil *Recorder discards every observation.
type Recorder struct {
	registry *prometheus.Registry

	fetchesTotal         *prometheus.CounterVec
	fetchedBytesTotal    *prometheus.CounterVec
	changesTotal         *prometheus.CounterVec
	selectionErrorsTotal *prometheus.CounterVec
	actionsTotal         *prometheus.CounterVec
	promotionsTotal      *prometheus.CounterVec
	rateLimitDelay       *prometheus.HistogramVec
	runDurationSeconds   prometheus.Gauge
}

// New registers the pagewatch collectors on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		fetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_fetches_total",
				Help: "Total number of page fetches, labeled by site and status.",
			},
			[]string{"site", "status"},
		),
		fetchedBytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_fetched_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		),
		changesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_changes_total",
				Help: "Total number of watched fragments that changed, labeled by site.",
			},
			[]string{"site"},
		),
		selectionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_selection_errors_total",
				Help: "Total number of select chains that failed, labeled by site.",
			},
			[]string{"site"},
		),
		actionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_actions_total",
				Help: "Total number of actions run, labeled by action and status.",
			},
			[]string{"action", "status"},
		),
		promotionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_headless_promotions_total",
				Help: "Total number of pages refetched with the headless browser, labeled by site.",
			},
			[]string{"site"},
		),
		rateLimitDelay: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagewatch_rate_limit_delay_seconds",
				Help:    "Time requests waited for a per-host rate limit token.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"site"},
		),
		runDurationSeconds: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagewatch_run_duration_seconds",
				Help: "Wall-clock duration of the last run.",
			},
		),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveFetch counts one fetch of rawURL.
func (r *Recorder) ObserveFetch(rawURL, status string, bytesFetched int) {
	if r == nil {
		return
	}
	site := SanitizeSite(rawURL)
	r.fetchesTotal.WithLabelValues(site, status).Inc()
	if bytesFetched > 0 {
		r.fetchedBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveChange counts a changed fragment on rawURL.
func (r *Recorder) ObserveChange(rawURL string) {
	if r == nil {
		return
	}
	r.changesTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveSelectionError counts a failed select chain on rawURL.
func (r *Recorder) ObserveSelectionError(rawURL string) {
	if r == nil {
		return
	}
	r.selectionErrorsTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveAction counts one action run.
func (r *Recorder) ObserveAction(action, status string) {
	if r == nil {
		return
	}
	r.actionsTotal.WithLabelValues(action, status).Inc()
}

// ObservePromotion counts a page refetched headlessly.
func (r *Recorder) ObservePromotion(rawURL string) {
	if r == nil {
		return
	}
	r.promotionsTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveRateLimitDelay records how long a request to host waited for a token.
func (r *Recorder) ObserveRateLimitDelay(host string, d time.Duration) {
	if r == nil {
		return
	}
	r.rateLimitDelay.WithLabelValues(SanitizeSite(host)).Observe(d.Seconds())
}

// ObserveRunDuration records how long the run took.
func (r *Recorder) ObserveRunDuration(d time.Duration) {
	if r == nil {
		return
	}
	r.runDurationSeconds.Set(d.Seconds())
}

// ExportConfig selects where metrics go at the end of a run. Empty fields
// disable the corresponding exporter.
type ExportConfig struct {
	TextfilePath string
	PushGateway  string
	JobName      string
}

// Export writes the node-exporter textfile and pushes to the Pushgateway, as
// configured. Both are attempted; their errors are joined.
func (r *Recorder) Export(ctx context.Context, cfg ExportConfig) error {
	if r == nil {
		return nil
	}
	var errs []error
	if cfg.TextfilePath != "" {
		if err := prometheus.WriteToTextfile(cfg.TextfilePath, r.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics textfile: %w", err))
		}
	}
	if cfg.PushGateway != "" {
		job := cfg.JobName
		if job == "" {
			job = "pagewatch"
		}
		if err := push.New(cfg.PushGateway, job).Gatherer(r.registry).PushContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("push metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}
