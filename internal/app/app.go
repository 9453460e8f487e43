// Package app assembles the service from configuration: storage, the crawl
// pipeline, and the HTTP server. Commands construct an App and pick the
// pieces they need.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lexharvest/lexharvest/internal/api"
	"github.com/lexharvest/lexharvest/internal/archive"
	"github.com/lexharvest/lexharvest/internal/clock"
	"github.com/lexharvest/lexharvest/internal/config"
	"github.com/lexharvest/lexharvest/internal/crawler"
	"github.com/lexharvest/lexharvest/internal/embedding"
	"github.com/lexharvest/lexharvest/internal/extractor"
	"github.com/lexharvest/lexharvest/internal/id"
	"github.com/lexharvest/lexharvest/internal/logging"
	"github.com/lexharvest/lexharvest/internal/normalize"
	"github.com/lexharvest/lexharvest/internal/pipeline"
	"github.com/lexharvest/lexharvest/internal/publisher"
	"github.com/lexharvest/lexharvest/internal/scheduler"
	"github.com/lexharvest/lexharvest/internal/storage"
	"github.com/lexharvest/lexharvest/internal/storage/memory"
	"github.com/lexharvest/lexharvest/internal/storage/postgres"
	"github.com/lexharvest/lexharvest/internal/summarizer"
)

// App holds the wired service components.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Store     storage.Store
	Service   *pipeline.Service
	Server    *api.Server
	Scheduler *scheduler.Scheduler

	archiver archive.Provider
	events   publisher.Provider
}

// New loads configuration and wires every component. With no db.dsn the
// in-memory store is used, which suits one-shot CLI runs.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	sum, err := newSummarizer(cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	archiver, err := archive.New(ctx, cfg.Archive, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init archive: %w", err)
	}

	events, err := publisher.New(ctx, cfg.Publisher, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init publisher: %w", err)
	}

	fetcher := crawler.NewFetcher(cfg.Fetcher, logger)
	crawl := crawler.New(fetcher, extractor.New(logger), cfg.Crawler, logger)

	clk := clock.NewSystem()
	embedder := embedding.New()
	engine := pipeline.NewEngine(store, normalize.New(logger), embedder, sum, clk, cfg.Pipeline, logger)
	tracker := pipeline.NewTracker(store, engine, id.NewGenerator(), clk, events, logger)
	service := pipeline.NewService(crawl, tracker, archiver, logger)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Service:   service,
		Server:    api.NewServer(store, service, embedder, logger),
		Scheduler: scheduler.New(service, cfg.Scheduler, logger),
		archiver:  archiver,
		events:    events,
	}, nil
}

func newStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Store, error) {
	if cfg.DB.DSN == "" {
		logger.Info("no database configured, using in-memory store")
		return memory.New(), nil
	}
	store, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxConns),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func newSummarizer(cfg config.Config, logger *zap.Logger) (summarizer.Summarizer, error) {
	if cfg.Summary.APIKey == "" {
		logger.Info("no summary model configured, using excerpt summaries")
		return summarizer.Fallback{}, nil
	}
	sum, err := summarizer.New(cfg.Summary, logger)
	if err != nil {
		return nil, fmt.Errorf("init summarizer: %w", err)
	}
	return sum, nil
}

// Close releases every resource the App owns.
func (a *App) Close() {
	if err := a.events.Close(); err != nil {
		a.Logger.Warn("close publisher", zap.Error(err))
	}
	if err := a.archiver.Close(); err != nil {
		a.Logger.Warn("close archiver", zap.Error(err))
	}
	a.Store.Close()
	_ = a.Logger.Sync()
}
