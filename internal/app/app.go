// Package app holds the long-lived services of one CLI invocation and runs the
// harvest and verify workflows on top of them.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/public-page-audit/internal/api"
	"github.com/JakeFAU/public-page-audit/internal/audit"
	"github.com/JakeFAU/public-page-audit/internal/config"
	collyfetcher "github.com/JakeFAU/public-page-audit/internal/fetcher/colly"
	"github.com/JakeFAU/public-page-audit/internal/metrics"
	"github.com/JakeFAU/public-page-audit/internal/progress"
	"github.com/JakeFAU/public-page-audit/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/public-page-audit/internal/publisher/pubsub"
	"github.com/JakeFAU/public-page-audit/internal/storage"
)

// Notifier publishes run summaries and releases its client on Close.
type Notifier interface {
	audit.Publisher
	Close() error
}

// StoreOpener resolves a report location to a blob store.
type StoreOpener func(ctx context.Context, loc storage.Location) (audit.BlobStore, func() error, error)

// App holds the services shared by the harvest and verify workflows: the
// progress hub and its sinks, the optional status server, and the optional
// notifier.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	hub       *progress.Hub
	snapshots *sinks.SnapshotSink
	status    *api.Server
	notifier  Notifier
	openStore StoreOpener
	fetcher   func(timeout time.Duration) audit.Fetcher
	registry  prometheus.Registerer
}

// Option customizes an App.
type Option func(*App)

// WithNotifier replaces the Pub/Sub notifier built from notify.*.
func WithNotifier(n Notifier) Option {
	return func(a *App) {
		a.notifier = n
	}
}

// WithStoreOpener replaces storage.Open.
func WithStoreOpener(fn StoreOpener) Option {
	return func(a *App) {
		if fn != nil {
			a.openStore = fn
		}
	}
}

// WithRegisterer registers progress metrics somewhere other than the default
// registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) {
		if reg != nil {
			a.registry = reg
		}
	}
}

// New builds the shared services. Call Close when the command finishes.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:       cfg,
		logger:    logger,
		openStore: storage.Open,
		registry:  prometheus.DefaultRegisterer,
	}
	a.fetcher = func(timeout time.Duration) audit.Fetcher {
		return collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Site.UserAgent,
			RespectRobots: cfg.Site.RespectRobots,
			Timeout:       timeout,
		})
	}
	for _, opt := range opts {
		opt(a)
	}

	metrics.Init()
	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return nil, fmt.Errorf("init progress metrics: %w", err)
	}
	a.snapshots = sinks.NewSnapshotSink()
	a.hub = progress.NewHub(
		progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
		a.snapshots,
	)

	if cfg.Metrics.ListenAddr != "" {
		a.status = api.NewServer(a.snapshots, logger.Named("api"))
		if _, err := a.status.Start(cfg.Metrics.ListenAddr); err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	if a.notifier == nil && cfg.Notify.Topic != "" {
		logger.Info("connecting to pubsub", zap.String("project", cfg.Notify.ProjectID), zap.String("topic", cfg.Notify.Topic))
		n, err := gcppublisher.Dial(ctx, cfg.Notify.ProjectID, logger.Named("pubsub"))
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.notifier = n
	}
	return a, nil
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Runs returns the progress snapshots recorded so far.
func (a *App) Runs() []sinks.RunSnapshot {
	return a.snapshots.Runs()
}

// Close drains the progress hub, stops the status server, and releases the
// notifier. Failures are logged; shutdown always runs to completion.
func (a *App) Close(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		if dropped := a.hub.Dropped(); dropped > 0 {
			a.logger.Warn("progress events dropped", zap.Int64("count", dropped))
		}
	}
	if a.status != nil {
		if err := a.status.Shutdown(ctx); err != nil {
			a.logger.Warn("status server shutdown failed", zap.Error(err))
		}
	}
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.logger.Warn("notifier close failed", zap.Error(err))
		}
	}
}

// notify publishes payload when a topic is configured. Notification failures
// never fail the run.
func (a *App) notify(ctx context.Context, payload any) {
	if a.notifier == nil || a.cfg.Notify.Topic == "" {
		return
	}
	id, err := a.notifier.Publish(ctx, a.cfg.Notify.Topic, payload)
	if err != nil {
		a.logger.Warn("run notification failed", zap.String("topic", a.cfg.Notify.Topic), zap.Error(err))
		return
	}
	a.logger.Info("run notification published", zap.String("topic", a.cfg.Notify.Topic), zap.String("message_id", id))
}

func (a *App) open(ctx context.Context, raw string) (audit.BlobStore, storage.Location, func(), error) {
	loc, err := storage.ParseLocation(raw)
	if err != nil {
		return nil, storage.Location{}, nil, err
	}
	store, closeFn, err := a.openStore(ctx, loc)
	if err != nil {
		return nil, storage.Location{}, nil, err
	}
	release := func() {
		if err := closeFn(); err != nil {
			a.logger.Warn("storage client close failed", zap.String("location", loc.String()), zap.Error(err))
		}
	}
	return store, loc, release, nil
}
