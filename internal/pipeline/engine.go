// Package pipeline implements the dedup/upsert decision engine and the
// session tracker that wraps it. The engine classifies each incoming item as
// INSERT, UPDATE, SKIP or ERROR against the existing corpus; the tracker owns
// session lifecycle, audit entries and outcome counters.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/lexharvest/lexharvest/internal/clock"
	"github.com/lexharvest/lexharvest/internal/config"
	"github.com/lexharvest/lexharvest/internal/crawler"
	"github.com/lexharvest/lexharvest/internal/embedding"
	"github.com/lexharvest/lexharvest/internal/metrics"
	"github.com/lexharvest/lexharvest/internal/normalize"
	"github.com/lexharvest/lexharvest/internal/storage"
	"github.com/lexharvest/lexharvest/internal/summarizer"
)

// Decision is the engine's classification of one item.
type Decision struct {
	Action storage.Action
	Reason string

	// Target is the matched document for UPDATE and fingerprint-equal SKIP
	// decisions.
	Target *storage.Document
	// OverwriteURL marks a similar-match UPDATE, where the matched document's
	// URL is replaced by the new item's URL.
	OverwriteURL bool
	// Similarity is the best similarity found by the corpus scan, when one
	// ran.
	Similarity float64
	// Err carries the cause of an ERROR decision.
	Err error
}

// Result is the applied outcome of one item, ready for audit.
type Result struct {
	Action     storage.Action
	Status     storage.Status
	Message    string
	DocumentID *int64
	Details    map[string]any
}

// Engine owns the decision logic and the resulting document mutations.
// Decide and apply run under one mutex so concurrent near-duplicate items
// cannot race the corpus scan and insert twice.
type Engine struct {
	mu sync.Mutex

	store      storage.Store
	normalizer *normalize.Normalizer
	embedder   *embedding.Embedder
	summarizer summarizer.Summarizer
	clock      clock.Clock
	cfg        config.PipelineConfig
	logger     *zap.Logger
}

// NewEngine builds an Engine.
func NewEngine(
	store storage.Store,
	normalizer *normalize.Normalizer,
	embedder *embedding.Embedder,
	sum summarizer.Summarizer,
	clk clock.Clock,
	cfg config.PipelineConfig,
	logger *zap.Logger,
) *Engine {
	metrics.Init()
	return &Engine{
		store:      store,
		normalizer: normalizer,
		embedder:   embedder,
		summarizer: sum,
		clock:      clk,
		cfg:        cfg,
		logger:     logger,
	}
}

// ProcessItem normalizes, embeds, decides and applies one raw item. Failures
// are returned as an ERROR result, never as a panic or an aborted batch.
func (e *Engine) ProcessItem(ctx context.Context, item crawler.RawItem) Result {
	raw := item.Content
	if raw == "" {
		raw = item.HTML
	}

	norm := e.normalizer.Process(raw, item.URL)
	if item.Title != "" && norm.Title == "" {
		norm.Title = item.Title
	}
	vector := e.embedder.Embed(norm.Content)

	e.mu.Lock()
	defer e.mu.Unlock()

	decision := e.decide(ctx, norm, vector, item.URL)
	result := e.apply(ctx, decision, norm, vector, item)
	metrics.ObserveDecision(string(result.Action))
	return result
}

// decide classifies the normalized item against the corpus. Order matters:
// short content, then exact URL match, then the similarity scan.
func (e *Engine) decide(ctx context.Context, norm normalize.Result, vector []float64, url string) Decision {
	if utf8.RuneCountInString(norm.Content) < e.cfg.MinContentLength {
		return Decision{Action: storage.ActionSkip, Reason: "content too short"}
	}

	existing, err := e.store.DocumentByURL(ctx, url)
	switch {
	case err == nil:
		if existing.Fingerprint == norm.Fingerprint {
			return Decision{Action: storage.ActionSkip, Reason: "unchanged", Target: existing}
		}
		return Decision{Action: storage.ActionUpdate, Reason: "content changed", Target: existing}
	case !errors.Is(err, storage.ErrNotFound):
		return Decision{Action: storage.ActionError, Reason: "url lookup failed", Err: err}
	}

	best, similarity, err := e.mostSimilar(ctx, vector)
	if err != nil {
		return Decision{Action: storage.ActionError, Reason: "similarity scan failed", Err: err}
	}
	if best != nil && similarity >= e.cfg.SimilarityThreshold {
		if best.Fingerprint == norm.Fingerprint {
			return Decision{
				Action:     storage.ActionSkip,
				Reason:     "semantic duplicate, content identical",
				Target:     best,
				Similarity: similarity,
			}
		}
		return Decision{
			Action:       storage.ActionUpdate,
			Reason:       "semantic duplicate, content changed",
			Target:       best,
			OverwriteURL: true,
			Similarity:   similarity,
		}
	}
	return Decision{Action: storage.ActionInsert, Similarity: similarity}
}

// mostSimilar scans the whole corpus and returns the document with the
// highest similarity to the vector. The corpus is id-ordered, so ties keep
// the earliest-created document.
func (e *Engine) mostSimilar(ctx context.Context, vector []float64) (*storage.Document, float64, error) {
	docs, err := e.store.Documents(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("scan corpus: %w", err)
	}
	metrics.ObserveSimilarityScan(len(docs))

	var best *storage.Document
	bestSim := -1.0
	for i := range docs {
		sim := embedding.Similarity(vector, docs[i].Embedding)
		if sim > bestSim {
			best = &docs[i]
			bestSim = sim
		}
	}
	if best == nil {
		return nil, 0, nil
	}
	return best, bestSim, nil
}

// apply performs the storage mutation for a decision. The write is the last
// step, so a failed item leaves no partial state.
func (e *Engine) apply(ctx context.Context, d Decision, norm normalize.Result, vector []float64, item crawler.RawItem) Result {
	switch d.Action {
	case storage.ActionSkip:
		result := Result{
			Action:  storage.ActionSkip,
			Status:  storage.StatusSkipped,
			Message: d.Reason,
		}
		if d.Target != nil {
			id := d.Target.ID
			result.DocumentID = &id
		}
		if d.Similarity > 0 {
			result.Details = map[string]any{"similarity": d.Similarity}
		}
		return result

	case storage.ActionError:
		e.logger.Error("pipeline item failed",
			zap.String("url", item.URL),
			zap.String("reason", d.Reason),
			zap.Error(d.Err),
		)
		return Result{
			Action:  storage.ActionError,
			Status:  storage.StatusError,
			Message: fmt.Sprintf("%s: %v", d.Reason, d.Err),
		}

	case storage.ActionUpdate:
		return e.applyUpdate(ctx, d, norm, vector, item)

	default:
		return e.applyInsert(ctx, norm, vector, item)
	}
}

func (e *Engine) applyInsert(ctx context.Context, norm normalize.Result, vector []float64, item crawler.RawItem) Result {
	now := e.clock.Now()
	doc := &storage.Document{
		Title:           norm.Title,
		Content:         norm.Content,
		Summary:         e.summarizer.Summarize(ctx, norm.Title, norm.Content),
		URL:             item.URL,
		Source:          item.Source,
		Category:        norm.Category,
		PublicationDate: norm.PublicationDate,
		Language:        norm.Language,
		Fingerprint:     norm.Fingerprint,
		Embedding:       vector,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.store.InsertDocument(ctx, doc); err != nil {
		e.logger.Error("insert failed", zap.String("url", item.URL), zap.Error(err))
		return Result{
			Action:  storage.ActionError,
			Status:  storage.StatusError,
			Message: fmt.Sprintf("insert failed: %v", err),
		}
	}

	e.logger.Info("document inserted",
		zap.Int64("id", doc.ID),
		zap.String("url", doc.URL),
		zap.String("category", string(doc.Category)),
	)
	id := doc.ID
	return Result{
		Action:     storage.ActionInsert,
		Status:     storage.StatusSuccess,
		Message:    "new document",
		DocumentID: &id,
		Details:    map[string]any{"version": doc.Version},
	}
}

func (e *Engine) applyUpdate(ctx context.Context, d Decision, norm normalize.Result, vector []float64, item crawler.RawItem) Result {
	doc := *d.Target
	doc.Title = norm.Title
	doc.Content = norm.Content
	doc.Summary = e.summarizer.Summarize(ctx, norm.Title, norm.Content)
	doc.Category = norm.Category
	doc.PublicationDate = norm.PublicationDate
	doc.Language = norm.Language
	doc.Fingerprint = norm.Fingerprint
	doc.Embedding = vector
	doc.Version++
	doc.UpdatedAt = e.clock.Now()
	if d.OverwriteURL {
		// The new page supersedes the matched record; the old URL is
		// discarded.
		doc.URL = item.URL
		doc.Source = item.Source
	}

	if err := e.store.UpdateDocument(ctx, &doc); err != nil {
		e.logger.Error("update failed", zap.String("url", item.URL), zap.Error(err))
		return Result{
			Action:  storage.ActionError,
			Status:  storage.StatusError,
			Message: fmt.Sprintf("update failed: %v", err),
		}
	}

	e.logger.Info("document updated",
		zap.Int64("id", doc.ID),
		zap.String("url", doc.URL),
		zap.Int("version", doc.Version),
	)
	id := doc.ID
	details := map[string]any{"version": doc.Version}
	if d.OverwriteURL {
		details["similarity"] = d.Similarity
		details["previous_url"] = d.Target.URL
	}
	return Result{
		Action:     storage.ActionUpdate,
		Status:     storage.StatusSuccess,
		Message:    d.Reason,
		DocumentID: &id,
		Details:    details,
	}
}
