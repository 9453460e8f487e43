// Package api exposes the HTTP query interface over the persisted corpus and
// the crawl trigger endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lexharvest/lexharvest/internal/embedding"
	"github.com/lexharvest/lexharvest/internal/metrics"
	"github.com/lexharvest/lexharvest/internal/pipeline"
	"github.com/lexharvest/lexharvest/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// defaultSearchLimit and minSearchSimilarity bound search responses;
	// matches at or below the floor are noise, not results.
	defaultSearchLimit  = 10
	minSearchSimilarity = 0.3
)

// Pipeline is the crawl entry point the server triggers.
type Pipeline interface {
	Run(ctx context.Context) (pipeline.BatchResult, error)
	RunURL(ctx context.Context, url string) (pipeline.BatchResult, error)
}

// Server wires HTTP handlers to the store and the pipeline.
type Server struct {
	router   chi.Router
	store    storage.Store
	pipeline Pipeline
	embedder *embedding.Embedder
	runner   *crawlRunner
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(store storage.Store, p Pipeline, embedder *embedding.Embedder, logger *zap.Logger) *Server {
	metrics.Init()
	s := &Server{
		store:    store,
		pipeline: p,
		embedder: embedder,
		runner:   newCrawlRunner(p, logger),
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.getStats)
		r.Route("/laws", func(r chi.Router) {
			r.Get("/", s.listLaws)
			r.Post("/search", s.searchLaws)
			r.Get("/{id}", s.getLaw)
		})
		r.Get("/logs", s.listLogs)
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.listSessions)
			r.Get("/{session_id}", s.getSession)
		})
		r.Route("/crawl", func(r chi.Router) {
			r.Post("/start", s.startCrawl)
			r.Post("/cancel", s.cancelCrawl)
			r.Post("/url", s.crawlURL)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.CountDocuments(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	total, err := s.store.CountDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "count documents failed")
		return
	}
	byCategory, err := s.store.CountsByCategory(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "category counts failed")
		return
	}
	sessions, err := s.store.Sessions(r.Context(), 1)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session lookup failed")
		return
	}

	payload := map[string]any{
		"total_documents": total,
		"by_category":     byCategory,
		"crawl_running":   s.runner.Running(),
	}
	if len(sessions) > 0 {
		payload["last_session"] = sessions[0]
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) listLaws(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	category := storage.Category(r.URL.Query().Get("category"))

	docs, total, err := s.store.ListDocuments(r.Context(), category, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list documents failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"laws":   docSummaries(docs),
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) getLaw(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	doc, err := s.store.DocumentByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "document lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// searchLaws ranks the corpus by embedding similarity to the query text.
// Matches below the relevance floor are dropped.
func (s *Server) searchLaws(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		writeError(w, http.StatusBadRequest, "missing query")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	docs, err := s.store.Documents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "corpus scan failed")
		return
	}

	queryVec := s.embedder.Embed(req.Query)
	type scored struct {
		Doc        docSummary `json:"law"`
		Similarity float64    `json:"similarity"`
	}
	results := make([]scored, 0, len(docs))
	for i := range docs {
		sim := embedding.Similarity(queryVec, docs[i].Embedding)
		if sim <= minSearchSimilarity {
			continue
		}
		results = append(results, scored{Doc: summarizeDoc(docs[i]), Similarity: sim})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": req.Query, "results": results})
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	sessionID := r.URL.Query().Get("session")

	entries, err := s.store.AuditEntries(r.Context(), sessionID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":   entries,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	limit, _ := pagination(r)
	sessions, err := s.store.Sessions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	session, err := s.store.SessionByID(r.Context(), sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) startCrawl(w http.ResponseWriter, _ *http.Request) {
	if !s.runner.Start() {
		writeError(w, http.StatusConflict, "a crawl is already running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
		"hint":   "poll /api/sessions for completion",
	})
}

func (s *Server) cancelCrawl(w http.ResponseWriter, _ *http.Request) {
	if !s.runner.Cancel() {
		writeError(w, http.StatusConflict, "no crawl is running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceling"})
}

func (s *Server) crawlURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "missing url")
		return
	}
	result, err := s.pipeline.RunURL(r.Context(), req.URL)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// docSummary is the list representation of a document, without the full
// content body.
type docSummary struct {
	ID              int64            `json:"id"`
	Title           string           `json:"title"`
	Summary         string           `json:"summary,omitempty"`
	URL             string           `json:"url"`
	Source          string           `json:"source"`
	Category        storage.Category `json:"category"`
	PublicationDate string           `json:"publication_date,omitempty"`
	Language        string           `json:"language"`
	Version         int              `json:"version"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func summarizeDoc(doc storage.Document) docSummary {
	return docSummary{
		ID:              doc.ID,
		Title:           doc.Title,
		Summary:         doc.Summary,
		URL:             doc.URL,
		Source:          doc.Source,
		Category:        doc.Category,
		PublicationDate: doc.PublicationDate,
		Language:        doc.Language,
		Version:         doc.Version,
		UpdatedAt:       doc.UpdatedAt,
	}
}

func docSummaries(docs []storage.Document) []docSummary {
	out := make([]docSummary, len(docs))
	for i := range docs {
		out[i] = summarizeDoc(docs[i])
	}
	return out
}

func pagination(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
