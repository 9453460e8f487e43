package api

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// crawlRunner supervises at most one background crawl at a time. The crawl is
// a cancellable task; its outcome is observable through session status
// polling rather than through the trigger request.
type crawlRunner struct {
	mu       sync.Mutex
	pipeline Pipeline
	logger   *zap.Logger
	cancel   context.CancelFunc
	running  bool
}

func newCrawlRunner(p Pipeline, logger *zap.Logger) *crawlRunner {
	return &crawlRunner{pipeline: p, logger: logger}
}

// Start launches a crawl unless one is already running. Returns false when
// the trigger was rejected.
func (c *crawlRunner) Start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running = true

	go func() {
		defer func() {
			c.mu.Lock()
			c.running = false
			c.cancel = nil
			c.mu.Unlock()
			cancel()
		}()

		result, err := c.pipeline.Run(ctx)
		if err != nil {
			c.logger.Error("background crawl failed", zap.Error(err))
			return
		}
		c.logger.Info("background crawl finished",
			zap.String("session_id", result.SessionID),
			zap.Int("total", result.Stats.Total),
			zap.Int("inserted", result.Stats.Inserted),
			zap.Int("updated", result.Stats.Updated),
			zap.Int("skipped", result.Stats.Skipped),
			zap.Int("errors", result.Stats.Errors),
		)
	}()
	return true
}

// Cancel aborts the running crawl, if any.
func (c *crawlRunner) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.cancel == nil {
		return false
	}
	c.cancel()
	return true
}

// Running reports whether a crawl is in flight.
func (c *crawlRunner) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
