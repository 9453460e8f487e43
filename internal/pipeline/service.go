package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/lexharvest/lexharvest/internal/crawler"
)

// Archiver persists raw fetched HTML for later reprocessing. Archive failures
// are non-fatal.
type Archiver interface {
	Archive(ctx context.Context, url string, html []byte) error
}

// Service is the caller-facing entry point: it crawls the configured sources
// and feeds the results through the session tracker. The CLI, API and
// scheduler all invoke the pipeline through it.
type Service struct {
	crawler  *crawler.Crawler
	tracker  *Tracker
	archiver Archiver
	logger   *zap.Logger
}

// NewService builds a Service. archiver may be nil.
func NewService(c *crawler.Crawler, tracker *Tracker, archiver Archiver, logger *zap.Logger) *Service {
	return &Service{
		crawler:  c,
		tracker:  tracker,
		archiver: archiver,
		logger:   logger,
	}
}

// Run crawls every configured source and processes the batch under one
// session.
func (s *Service) Run(ctx context.Context) (BatchResult, error) {
	items := s.crawler.CrawlAll(ctx)
	s.archiveRaw(ctx, items)
	return s.tracker.ProcessBatch(ctx, items)
}

// RunURL crawls a single page and processes it as a one-item batch. A failed
// fetch is reported to the caller rather than swallowed.
func (s *Service) RunURL(ctx context.Context, url string) (BatchResult, error) {
	item, err := s.crawler.CrawlURL(ctx, url)
	if err != nil {
		return BatchResult{}, err
	}
	item.Source = "manual"
	items := []crawler.RawItem{*item}
	s.archiveRaw(ctx, items)
	return s.tracker.ProcessBatch(ctx, items)
}

// ProcessBatch exposes direct batch processing for pre-fetched items.
func (s *Service) ProcessBatch(ctx context.Context, items []crawler.RawItem) (BatchResult, error) {
	return s.tracker.ProcessBatch(ctx, items)
}

func (s *Service) archiveRaw(ctx context.Context, items []crawler.RawItem) {
	if s.archiver == nil {
		return
	}
	for _, item := range items {
		if item.HTML == "" {
			continue
		}
		if err := s.archiver.Archive(ctx, item.URL, []byte(item.HTML)); err != nil {
			s.logger.Warn("raw archive failed",
				zap.String("url", item.URL),
				zap.Error(err),
			)
		}
	}
}
