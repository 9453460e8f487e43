// Package scheduler triggers one full crawl per day at a configured local
// time.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lexharvest/lexharvest/internal/config"
	"github.com/lexharvest/lexharvest/internal/pipeline"
)

// Runner is the crawl entry point the scheduler invokes.
type Runner interface {
	Run(ctx context.Context) (pipeline.BatchResult, error)
}

// Scheduler sleeps until the next configured wall-clock time, runs the
// pipeline, and repeats until its context is canceled.
type Scheduler struct {
	runner Runner
	cfg    config.SchedulerConfig
	logger *zap.Logger

	// now is overridable in tests.
	now func() time.Time
}

// New builds a Scheduler.
func New(runner Runner, cfg config.SchedulerConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// nextRun returns the next occurrence of the configured hour and minute
// strictly after now.
func (s *Scheduler) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.Hour, s.cfg.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start blocks until ctx is canceled, triggering a crawl at each scheduled
// time. A failed run is logged and the schedule continues.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info("scheduler disabled")
		return
	}

	for {
		next := s.nextRun(s.now())
		wait := next.Sub(s.now())
		s.logger.Info("next scheduled crawl",
			zap.Time("at", next),
			zap.Duration("in", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return
		case <-timer.C:
		}

		result, err := s.runner.Run(ctx)
		if err != nil {
			s.logger.Error("scheduled crawl failed", zap.Error(err))
			continue
		}
		s.logger.Info("scheduled crawl completed",
			zap.String("session_id", result.SessionID),
			zap.Int("total", result.Stats.Total),
		)
	}
}
