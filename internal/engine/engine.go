// Package engine correlates fetched pages with their previous snapshots and
// dispatches filter-gated actions for every watched fragment that changed.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/document"
	"github.com/JakeFAU/pagewatch/internal/fetcher"
	"github.com/JakeFAU/pagewatch/internal/hash/sha256"
	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/pipeline"
	"github.com/JakeFAU/pagewatch/internal/registry"
)

// Snapshots is the baseline the engine reads and updates.
type Snapshots interface {
	Get(url string) (*document.Document, bool)
	Set(url string, doc *document.Document)
}

// Recorder receives run statistics.
type Recorder interface {
	ObserveFetch(url, status string, bytesFetched int)
	ObserveChange(url string)
	ObserveSelectionError(url string)
	ObserveAction(action, status string)
}

// Report summarises one run.
type Report struct {
	Pages           int
	FetchFailures   int
	Targets         int
	SelectionErrors int
	Changes         int
	ActionsFired    int
	ActionErrors    int
}

// Fields renders the report for structured logging.
func (r Report) Fields() []zap.Field {
	return []zap.Field{
		zap.Int("pages", r.Pages),
		zap.Int("fetch_failures", r.FetchFailures),
		zap.Int("targets", r.Targets),
		zap.Int("selection_errors", r.SelectionErrors),
		zap.Int("changes", r.Changes),
		zap.Int("actions_fired", r.ActionsFired),
		zap.Int("action_errors", r.ActionErrors),
	}
}

// Engine is the single consumer of fetch results. It is the only writer of
// the snapshot store during a run.
type Engine struct {
	store    Snapshots
	logger   *zap.Logger
	recorder Recorder
}

// New creates an Engine. A nil logger or recorder discards output.
func New(store Snapshots, logger *zap.Logger, recorder Recorder) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = (*metrics.Recorder)(nil)
	}
	return &Engine{store: store, logger: logger, recorder: recorder}
}

// Run waits for pipeline resolution, then processes results in arrival order
// until the channel closes. A resolution error is returned before any result
// is looked at.
func (e *Engine) Run(ctx context.Context, future *pipeline.Future, results <-chan fetcher.Result) (Report, error) {
	pipelines, err := future.Wait(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("resolve pipelines: %w", err)
	}
	var report Report
	for {
		select {
		case <-ctx.Done():
			return report, fmt.Errorf("run interrupted: %w", ctx.Err())
		case res, ok := <-results:
			if !ok {
				return report, nil
			}
			e.process(ctx, pipelines, res, &report)
		}
	}
}

func (e *Engine) process(ctx context.Context, pipelines *pipeline.Pipelines, res fetcher.Result, report *Report) {
	report.Pages++
	logger := e.logger.With(zap.String("url", res.URL))

	if res.Err != nil {
		report.FetchFailures++
		e.recorder.ObserveFetch(res.URL, metrics.StatusError, 0)
		logger.Warn("fetch failed", zap.Error(res.Err))
		return
	}
	e.recorder.ObserveFetch(res.URL, metrics.StatusOK, len(res.Response.Body))

	body := document.Decode(res.Response.Body, res.Response.Headers.Get("Content-Type"))
	doc, err := document.Parse(res.URL, body)
	if err != nil {
		report.FetchFailures++
		logger.Warn("unparsable response", zap.Error(err))
		return
	}
	logger.Debug("page fetched",
		zap.Int("status", res.Response.StatusCode),
		zap.Int("bytes", len(res.Response.Body)),
		zap.Duration("duration", res.Response.Duration),
	)

	previous, _ := e.store.Get(res.URL)
	for _, target := range pipelines.Targets(res.URL) {
		e.evaluate(ctx, logger, target, doc, previous, report)
	}
	e.store.Set(res.URL, doc)
}

func (e *Engine) evaluate(
	ctx context.Context,
	logger *zap.Logger,
	target pipeline.Target,
	current, previous *document.Document,
	report *Report,
) {
	report.Targets++
	logger = logger.With(zap.Int("target", target.Index))

	now, err := target.Select(current)
	if err != nil {
		report.SelectionErrors++
		e.recorder.ObserveSelectionError(target.URL)
		logger.Warn("selection failed", zap.Error(err))
		return
	}
	before, err := target.Select(previous)
	if err != nil {
		logger.Debug("previous selection failed, treating as absent", zap.Error(err))
		before = document.Absent()
	}
	if now.Equal(before) {
		return
	}

	report.Changes++
	e.recorder.ObserveChange(target.URL)
	logger.Info("watched fragment changed",
		zap.Stringer("previous", before.Kind()),
		zap.Stringer("current", now.Kind()),
		zap.String("previous_digest", sha256.Fingerprint(before)),
		zap.String("digest", sha256.Fingerprint(now)),
	)

	ctx = registry.WithURL(ctx, target.URL)
	for i, pair := range target.Pairs {
		pairLogger := logger.With(zap.Int("pair", i))
		accepted, err := pair.Accepts(now)
		if err != nil {
			pairLogger.Warn("filter failed", zap.Error(err))
			continue
		}
		if !accepted {
			continue
		}
		for _, result := range pair.Fire(ctx, now) {
			report.ActionsFired++
			if result.Err != nil {
				report.ActionErrors++
				e.recorder.ObserveAction(result.Name, metrics.StatusError)
				pairLogger.Warn("action failed", zap.String("action", result.Name), zap.Error(result.Err))
				continue
			}
			e.recorder.ObserveAction(result.Name, metrics.StatusOK)
		}
	}
}
