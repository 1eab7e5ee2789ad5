// Package app wires settings, storage, transports, registries and the engine
// into a single watch run.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/config"
	"github.com/JakeFAU/pagewatch/internal/engine"
	"github.com/JakeFAU/pagewatch/internal/fetcher"
	collyfetcher "github.com/JakeFAU/pagewatch/internal/fetcher/colly"
	"github.com/JakeFAU/pagewatch/internal/fetcher/headless"
	"github.com/JakeFAU/pagewatch/internal/headless/detector"
	"github.com/JakeFAU/pagewatch/internal/id/uuid"
	"github.com/JakeFAU/pagewatch/internal/logging"
	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/pipeline"
	"github.com/JakeFAU/pagewatch/internal/policy/ratelimit"
	"github.com/JakeFAU/pagewatch/internal/publisher/pubsub"
	"github.com/JakeFAU/pagewatch/internal/registry"
	"github.com/JakeFAU/pagewatch/internal/rules"
	"github.com/JakeFAU/pagewatch/internal/snapshot"
	"github.com/JakeFAU/pagewatch/internal/telemetry"
)

// App holds the long-lived collaborators shared by the commands.
type App struct {
	settings config.Config
	logger   *zap.Logger
	out      io.Writer
	fetcher  fetcher.Fetcher
	now      func() time.Time
	tracer   *sdktrace.TracerProvider
}

// Option customises an App.
type Option func(*App)

// WithOutput sets where print actions write. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithFetcher replaces the transport built from settings.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithClock sets the time source used for notification timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithTracerProvider hands the App a tracer provider to flush on Close.
func WithTracerProvider(tp *sdktrace.TracerProvider) Option {
	return func(a *App) { a.tracer = tp }
}

// New creates an App. A nil logger discards output.
func New(settings config.Config, logger *zap.Logger, opts ...Option) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{settings: settings, logger: logger, out: os.Stdout, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Settings returns the runtime settings the App was built with.
func (a *App) Settings() config.Config {
	return a.settings
}

// Logger returns the base logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Close flushes traces and the logger.
func (a *App) Close(ctx context.Context) {
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("failed to shut down tracer provider", zap.Error(err))
		}
	}
	// Syncing stderr fails on some platforms; there is nothing left to report it to.
	_ = a.logger.Sync()
}

// Run performs one watch run: the watch config at configPath is checked
// before any storage or network access, previous snapshots are loaded from
// location, every URL is fetched and evaluated, and the updated snapshots
// are saved.
func (a *App) Run(ctx context.Context, configPath, location string) (report engine.Report, err error) {
	started := time.Now()
	runID := uuid.New().MustNewID()
	logger := logging.ForRun(a.logger, runID)

	ctx, span := telemetry.StartRun(ctx, runID)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "run failed")
		}
		span.End()
	}()

	cfg, err := rules.Load(configPath)
	if err != nil {
		return engine.Report{}, fmt.Errorf("load watch config: %w", err)
	}
	logger.Info("watch config loaded", zap.String("path", configPath), zap.Int("urls", cfg.Len()))

	backend, err := Open(ctx, location, a.settings)
	if err != nil {
		return engine.Report{}, fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if cerr := backend.Close(); cerr != nil {
			logger.Warn("failed to close storage", zap.Error(cerr))
		}
	}()
	store, err := snapshot.Load(ctx, backend, logger)
	if err != nil {
		return engine.Report{}, err
	}
	logger.Info("snapshots loaded", zap.String("backend", backend.Kind), zap.Int("documents", store.Len()))

	deps := registry.Deps{Out: a.out, Logger: logger, RunID: runID, Now: a.now}
	if topic := a.settings.PubSub.TopicName; topic != "" {
		pub, err := pubsub.New(ctx, a.settings.PubSub.ProjectID)
		if err != nil {
			return engine.Report{}, err
		}
		defer func() {
			if cerr := pub.Close(); cerr != nil {
				logger.Warn("failed to close publisher", zap.Error(cerr))
			}
		}()
		deps.Publisher = pub
		deps.Topic = topic
	}
	future := pipeline.Start(cfg, registry.Default(deps))

	recorder := metrics.New()
	f, release, err := a.transport(recorder)
	if err != nil {
		return engine.Report{}, err
	}
	defer release()

	stream := fetcher.Start(ctx, f, cfg.URLs())
	defer stream.Close()

	report, err = engine.New(store, logger, recorder).Run(ctx, future, stream.Results())
	if err != nil {
		return report, err
	}
	if err := store.Save(ctx); err != nil {
		return report, err
	}

	recorder.ObserveRunDuration(time.Since(started))
	if err := recorder.Export(ctx, metrics.ExportConfig{
		TextfilePath: a.settings.Metrics.TextfilePath,
		PushGateway:  a.settings.Metrics.PushGateway,
		JobName:      a.settings.Metrics.JobName,
	}); err != nil {
		logger.Warn("failed to export metrics", zap.Error(err))
	}

	logger.Info("run complete", report.Fields()...)
	return report, nil
}

// Validate checks and resolves the watch config at configPath against the
// default registry without touching storage or the network. The returned
// error is rules.ValidationErrors or the joined resolution errors.
func (a *App) Validate(configPath string) (*pipeline.Pipelines, error) {
	cfg, err := rules.Load(configPath)
	if err != nil {
		return nil, err
	}
	deps := registry.Deps{Out: io.Discard, Logger: a.logger}
	if topic := a.settings.PubSub.TopicName; topic != "" {
		// An unconnected publisher registers the action without dialing.
		deps.Publisher = pubsub.NewWithClient(nil)
		deps.Topic = topic
	}
	return pipeline.Build(cfg, registry.Default(deps))
}

// transport builds the fetcher from settings: colly, chromedp, or colly with
// promotion to chromedp, paced per host when configured.
func (a *App) transport(recorder *metrics.Recorder) (fetcher.Fetcher, func(), error) {
	limiter := ratelimit.New(ratelimit.Config{
		RPS:     a.settings.HTTP.PerHostRPS,
		Burst:   a.settings.HTTP.PerHostBurst,
		OnDelay: recorder.ObserveRateLimitDelay,
	})
	if a.fetcher != nil {
		return ratelimit.Wrap(a.fetcher, limiter), func() {}, nil
	}

	plain := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.settings.HTTP.UserAgent,
		RespectRobots: a.settings.HTTP.RespectRobots,
		Timeout:       a.settings.HTTP.Timeout(),
		Headers:       a.settings.HTTP.Header(),
	})
	if !a.settings.Headless.Enabled {
		return ratelimit.Wrap(plain, limiter), func() {}, nil
	}

	rendered, err := headless.NewChromedp(headless.Config{
		MaxParallel:       a.settings.Headless.MaxParallel,
		UserAgent:         a.settings.HTTP.UserAgent,
		Headers:           a.settings.HTTP.Header(),
		NavigationTimeout: a.settings.Headless.NavTimeout(),
		WaitSelector:      a.settings.Headless.WaitSelector,
		Settle:            a.settings.Headless.Settle(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init headless fetcher: %w", err)
	}
	var f fetcher.Fetcher = rendered
	if a.settings.Headless.AutoPromote {
		f = detector.NewPromoter(plain, rendered,
			detector.NewHeuristic(a.settings.Headless.MinBodyBytes),
			recorder.ObservePromotion,
		)
	}
	return ratelimit.Wrap(f, limiter), rendered.Close, nil
}
