// Package storage defines the persisted record types and the Store interface
// the ingestion pipeline and the query API share. By using an interface we
// decouple the pipeline from a specific database implementation, allowing the
// in-memory store in tests and Postgres in production.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("storage: not found")

// Category classifies a legal document by its kind.
type Category string

// Category values, in dedup-independent declaration order.
const (
	CategoryAct          Category = "Act"
	CategoryRule         Category = "Rule"
	CategoryNotification Category = "Notification"
	CategoryAmendment    Category = "Amendment"
	CategoryCircular     Category = "Circular"
	CategoryOrder        Category = "Order"
	CategoryUnknown      Category = "Unknown"
)

// Document is one persisted legal record. URL is the unique natural key.
// Fingerprint and Embedding are always recomputed together from the same
// normalized content.
type Document struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Content         string    `json:"content"`
	Summary         string    `json:"summary,omitempty"`
	URL             string    `json:"url"`
	Source          string    `json:"source"`
	Category        Category  `json:"category"`
	PublicationDate string    `json:"publication_date,omitempty"` // best-effort, unparsed
	Language        string    `json:"language"`
	Fingerprint     string    `json:"-"`
	Embedding       []float64 `json:"-"`
	Version         int       `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Action is the upsert decision recorded per processed item.
type Action string

// Audit actions.
const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionSkip   Action = "SKIP"
	ActionError  Action = "ERROR"
)

// Status is the per-item outcome recorded alongside the action.
type Status string

// Audit statuses.
const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// AuditEntry is an immutable, append-only record of one decision. DocumentID
// is a weak reference; the referenced document may be absent (e.g. on error).
type AuditEntry struct {
	ID         int64          `json:"id"`
	SessionID  string         `json:"session_id"`
	Action     Action         `json:"action"`
	DocumentID *int64         `json:"document_id,omitempty"`
	URL        string         `json:"url"`
	Source     string         `json:"source"`
	Status     Status         `json:"status"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// SessionStatus tracks the crawl session lifecycle.
type SessionStatus string

// Session states. A session is finalized exactly once and never reopened.
const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
)

// BatchStats are the aggregate outcome counters of one session.
type BatchStats struct {
	Total    int `json:"total"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

// CrawlSession is one invocation of the batch pipeline.
type CrawlSession struct {
	ID          int64         `json:"id"`
	SessionID   string        `json:"session_id"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Stats       BatchStats    `json:"stats"`
}

// Store is the persistence contract shared by the pipeline and the query API.
type Store interface {
	// DocumentByURL looks a document up by its unique URL. Returns
	// ErrNotFound when no document has that URL.
	DocumentByURL(ctx context.Context, url string) (*Document, error)
	// DocumentByID returns one document or ErrNotFound.
	DocumentByID(ctx context.Context, id int64) (*Document, error)
	// Documents returns the full corpus ordered by id ascending. The dedup
	// engine's similarity scan depends on this ordering for deterministic
	// tie-breaking.
	Documents(ctx context.Context) ([]Document, error)
	// ListDocuments pages documents ordered by updated_at descending,
	// optionally filtered by category, and returns the total match count.
	ListDocuments(ctx context.Context, category Category, limit, offset int) ([]Document, int, error)
	// InsertDocument persists a new document and assigns its ID.
	InsertDocument(ctx context.Context, doc *Document) error
	// UpdateDocument overwrites the row identified by doc.ID.
	UpdateDocument(ctx context.Context, doc *Document) error
	// CountDocuments returns the corpus size.
	CountDocuments(ctx context.Context) (int, error)
	// CountsByCategory returns per-category document counts.
	CountsByCategory(ctx context.Context) (map[Category]int, error)

	// AppendAudit appends one immutable audit row.
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	// AuditEntries pages audit rows newest first, optionally filtered by
	// session id.
	AuditEntries(ctx context.Context, sessionID string, limit, offset int) ([]AuditEntry, error)

	// CreateSession persists a new running session.
	CreateSession(ctx context.Context, session *CrawlSession) error
	// CompleteSession finalizes a session with its stats. Called exactly
	// once per session.
	CompleteSession(ctx context.Context, sessionID string, stats BatchStats, completedAt time.Time) error
	// SessionByID returns one session or ErrNotFound.
	SessionByID(ctx context.Context, sessionID string) (*CrawlSession, error)
	// Sessions returns the most recent sessions, newest first.
	Sessions(ctx context.Context, limit int) ([]CrawlSession, error)

	// Close releases underlying resources.
	Close()
}
