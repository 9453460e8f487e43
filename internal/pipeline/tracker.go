package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lexharvest/lexharvest/internal/clock"
	"github.com/lexharvest/lexharvest/internal/crawler"
	"github.com/lexharvest/lexharvest/internal/id"
	"github.com/lexharvest/lexharvest/internal/metrics"
	"github.com/lexharvest/lexharvest/internal/storage"
)

// EventPublisher is notified when a session completes. Publish failures are
// logged and ignored; bookkeeping never depends on the event bus.
type EventPublisher interface {
	PublishSessionCompleted(ctx context.Context, session storage.CrawlSession) error
}

// BatchResult is the outcome of one processed batch.
type BatchResult struct {
	SessionID string             `json:"session_id"`
	Stats     storage.BatchStats `json:"stats"`
}

// Tracker owns the crawl session lifecycle. It is the sole writer of audit
// entries and session rows.
type Tracker struct {
	store     storage.Store
	engine    *Engine
	ids       *id.Generator
	clock     clock.Clock
	publisher EventPublisher
	logger    *zap.Logger
}

// NewTracker builds a Tracker. publisher may be nil.
func NewTracker(
	store storage.Store,
	engine *Engine,
	ids *id.Generator,
	clk clock.Clock,
	publisher EventPublisher,
	logger *zap.Logger,
) *Tracker {
	return &Tracker{
		store:     store,
		engine:    engine,
		ids:       ids,
		clock:     clk,
		publisher: publisher,
		logger:    logger,
	}
}

// ProcessBatch runs every item through the engine under one session. Per-item
// failures are recorded and counted, never raised; the returned stats always
// satisfy inserted+updated+skipped+errors == total. Only the inability to
// create the session itself is a batch-level error. Cancellation is honored
// between items; already-processed items keep their outcomes.
func (t *Tracker) ProcessBatch(ctx context.Context, items []crawler.RawItem) (BatchResult, error) {
	sessionID := t.ids.NewSessionID()
	startedAt := t.clock.Now()
	session := &storage.CrawlSession{
		SessionID: sessionID,
		Status:    storage.SessionRunning,
		StartedAt: startedAt,
	}
	if err := t.store.CreateSession(ctx, session); err != nil {
		return BatchResult{}, fmt.Errorf("create session %s: %w", sessionID, err)
	}
	t.logger.Info("session started",
		zap.String("session_id", sessionID),
		zap.Int("items", len(items)),
	)

	var stats storage.BatchStats
	for _, item := range items {
		if ctx.Err() != nil {
			t.logger.Warn("batch canceled",
				zap.String("session_id", sessionID),
				zap.Int("processed", stats.Total),
			)
			break
		}

		result := t.engine.ProcessItem(ctx, item)
		t.record(ctx, sessionID, item, result, &stats)
	}

	// The session row is finalized even when the batch was canceled midway.
	completedAt := t.clock.Now()
	if err := t.store.CompleteSession(context.WithoutCancel(ctx), sessionID, stats, completedAt); err != nil {
		t.logger.Error("session completion write failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
	metrics.ObserveSession(completedAt.Sub(startedAt))
	t.logger.Info("session completed",
		zap.String("session_id", sessionID),
		zap.Int("total", stats.Total),
		zap.Int("inserted", stats.Inserted),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors),
	)

	t.publish(ctx, storage.CrawlSession{
		SessionID:   sessionID,
		Status:      storage.SessionCompleted,
		StartedAt:   startedAt,
		CompletedAt: &completedAt,
		Stats:       stats,
	})

	return BatchResult{SessionID: sessionID, Stats: stats}, nil
}

// record writes the audit entry for one decision and bumps the matching
// counter. An audit write failure is logged; the counter still reflects the
// engine's outcome.
func (t *Tracker) record(ctx context.Context, sessionID string, item crawler.RawItem, result Result, stats *storage.BatchStats) {
	stats.Total++
	switch result.Action {
	case storage.ActionInsert:
		stats.Inserted++
	case storage.ActionUpdate:
		stats.Updated++
	case storage.ActionSkip:
		stats.Skipped++
	default:
		stats.Errors++
	}

	entry := &storage.AuditEntry{
		SessionID:  sessionID,
		Action:     result.Action,
		DocumentID: result.DocumentID,
		URL:        item.URL,
		Source:     item.Source,
		Status:     result.Status,
		Message:    result.Message,
		Details:    result.Details,
		Timestamp:  t.clock.Now(),
	}
	if err := t.store.AppendAudit(ctx, entry); err != nil {
		t.logger.Error("audit write failed",
			zap.String("session_id", sessionID),
			zap.String("url", item.URL),
			zap.Error(err),
		)
	}
}

func (t *Tracker) publish(ctx context.Context, session storage.CrawlSession) {
	if t.publisher == nil {
		return
	}
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := t.publisher.PublishSessionCompleted(publishCtx, session); err != nil {
		t.logger.Warn("session event publish failed",
			zap.String("session_id", session.SessionID),
			zap.Error(err),
		)
	}
}
