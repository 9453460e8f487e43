// Package memory provides an in-memory Store for development and testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lexharvest/lexharvest/internal/storage"
)

// Store implements storage.Store with maps guarded by a RWMutex.
type Store struct {
	mu        sync.RWMutex
	nextDocID int64
	nextAudID int64
	nextSesID int64
	docs      map[int64]storage.Document
	audits    []storage.AuditEntry
	sessions  map[string]storage.CrawlSession
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		docs:     make(map[int64]storage.Document),
		sessions: make(map[string]storage.CrawlSession),
	}
}

// DocumentByURL looks a document up by URL.
func (s *Store) DocumentByURL(_ context.Context, url string) (*storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.docs {
		if doc.URL == url {
			return cloneDoc(doc), nil
		}
	}
	return nil, storage.ErrNotFound
}

// DocumentByID looks a document up by surrogate id.
func (s *Store) DocumentByID(_ context.Context, id int64) (*storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneDoc(doc), nil
}

// Documents returns the full corpus ordered by id ascending.
func (s *Store) Documents(_ context.Context) ([]storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, *cloneDoc(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListDocuments pages documents newest-updated first.
func (s *Store) ListDocuments(
	_ context.Context,
	category storage.Category,
	limit, offset int,
) ([]storage.Document, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []storage.Document
	for _, doc := range s.docs {
		if category != "" && doc.Category != category {
			continue
		}
		matched = append(matched, *cloneDoc(doc))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// InsertDocument assigns an id and stores the document.
func (s *Store) InsertDocument(_ context.Context, doc *storage.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.docs {
		if existing.URL == doc.URL {
			return fmt.Errorf("document url %q already exists", doc.URL)
		}
	}
	s.nextDocID++
	doc.ID = s.nextDocID
	s.docs[doc.ID] = *cloneDoc(*doc)
	return nil
}

// UpdateDocument overwrites the row identified by doc.ID.
func (s *Store) UpdateDocument(_ context.Context, doc *storage.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; !ok {
		return storage.ErrNotFound
	}
	s.docs[doc.ID] = *cloneDoc(*doc)
	return nil
}

// CountDocuments returns the corpus size.
func (s *Store) CountDocuments(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// CountsByCategory returns per-category counts.
func (s *Store) CountsByCategory(_ context.Context) (map[storage.Category]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[storage.Category]int)
	for _, doc := range s.docs {
		out[doc.Category]++
	}
	return out, nil
}

// AppendAudit appends one audit row.
func (s *Store) AppendAudit(_ context.Context, entry *storage.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAudID++
	entry.ID = s.nextAudID
	s.audits = append(s.audits, *entry)
	return nil
}

// AuditEntries pages audit rows newest first.
func (s *Store) AuditEntries(
	_ context.Context,
	sessionID string,
	limit, offset int,
) ([]storage.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []storage.AuditEntry
	for i := len(s.audits) - 1; i >= 0; i-- {
		if sessionID != "" && s.audits[i].SessionID != sessionID {
			continue
		}
		matched = append(matched, s.audits[i])
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

// CreateSession stores a new running session.
func (s *Store) CreateSession(_ context.Context, session *storage.CrawlSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.SessionID]; exists {
		return fmt.Errorf("session %q already exists", session.SessionID)
	}
	s.nextSesID++
	session.ID = s.nextSesID
	s.sessions[session.SessionID] = *session
	return nil
}

// CompleteSession finalizes a session with its stats.
func (s *Store) CompleteSession(
	_ context.Context,
	sessionID string,
	stats storage.BatchStats,
	completedAt time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return storage.ErrNotFound
	}
	session.Status = storage.SessionCompleted
	session.Stats = stats
	session.CompletedAt = &completedAt
	s.sessions[sessionID] = session
	return nil
}

// SessionByID returns one session.
func (s *Store) SessionByID(_ context.Context, sessionID string) (*storage.CrawlSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := session
	return &out, nil
}

// Sessions returns the most recent sessions, newest first.
func (s *Store) Sessions(_ context.Context, limit int) ([]storage.CrawlSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.CrawlSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() {}

func cloneDoc(doc storage.Document) *storage.Document {
	out := doc
	out.Embedding = append([]float64(nil), doc.Embedding...)
	return &out
}
