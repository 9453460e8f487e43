// Package postgres provides the Postgres-backed Store implementation.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexharvest/lexharvest/internal/storage"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// querier is the subset of pgxpool.Pool the store needs; pgxmock implements
// it for tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements storage.Store on top of Postgres.
type Store struct {
	pool querier
}

// New creates a Store connected via a pgx pool.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool querier) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates the three tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			summary TEXT,
			url TEXT NOT NULL UNIQUE,
			source TEXT,
			category TEXT,
			publication_date TEXT,
			language TEXT,
			fingerprint TEXT NOT NULL,
			embedding JSONB NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			action TEXT NOT NULL,
			document_id BIGINT,
			url TEXT,
			source TEXT,
			status TEXT NOT NULL,
			message TEXT,
			details JSONB,
			ts TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS crawl_sessions (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			total INTEGER NOT NULL DEFAULT 0,
			inserted INTEGER NOT NULL DEFAULT 0,
			updated INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			errors INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

const documentColumns = `id, title, content, summary, url, source, category,
	publication_date, language, fingerprint, embedding, version, created_at, updated_at`

// DocumentByURL looks a document up by its unique URL.
func (s *Store) DocumentByURL(ctx context.Context, url string) (*storage.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE url = $1`
	return s.scanOneDocument(s.pool.QueryRow(ctx, query, url))
}

// DocumentByID returns one document by surrogate id.
func (s *Store) DocumentByID(ctx context.Context, id int64) (*storage.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return s.scanOneDocument(s.pool.QueryRow(ctx, query, id))
}

// Documents returns the full corpus ordered by id ascending.
func (s *Store) Documents(ctx context.Context) ([]storage.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents ORDER BY id ASC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// ListDocuments pages documents newest-updated first with an optional
// category filter.
func (s *Store) ListDocuments(
	ctx context.Context,
	category storage.Category,
	limit, offset int,
) ([]storage.Document, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM documents WHERE ($1 = '' OR category = $1)`
	if err := s.pool.QueryRow(ctx, countQuery, string(category)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}
	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE ($1 = '' OR category = $1)
		ORDER BY updated_at DESC LIMIT $2 OFFSET $3`
	rows, err := s.pool.Query(ctx, query, string(category), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// InsertDocument persists a new document and assigns its ID.
func (s *Store) InsertDocument(ctx context.Context, doc *storage.Document) error {
	embedding, err := json.Marshal(doc.Embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	query := `INSERT INTO documents
		(title, content, summary, url, source, category, publication_date,
		 language, fingerprint, embedding, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id`
	err = s.pool.QueryRow(ctx, query,
		doc.Title, doc.Content, doc.Summary, doc.URL, doc.Source,
		string(doc.Category), doc.PublicationDate, doc.Language,
		doc.Fingerprint, embedding, doc.Version, doc.CreatedAt, doc.UpdatedAt,
	).Scan(&doc.ID)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// UpdateDocument overwrites the row identified by doc.ID.
func (s *Store) UpdateDocument(ctx context.Context, doc *storage.Document) error {
	embedding, err := json.Marshal(doc.Embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	query := `UPDATE documents SET
		title = $1, content = $2, summary = $3, url = $4, source = $5,
		category = $6, publication_date = $7, language = $8,
		fingerprint = $9, embedding = $10, version = $11, updated_at = $12
		WHERE id = $13`
	tag, err := s.pool.Exec(ctx, query,
		doc.Title, doc.Content, doc.Summary, doc.URL, doc.Source,
		string(doc.Category), doc.PublicationDate, doc.Language,
		doc.Fingerprint, embedding, doc.Version, doc.UpdatedAt, doc.ID,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CountDocuments returns the corpus size.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// CountsByCategory returns per-category document counts.
func (s *Store) CountsByCategory(ctx context.Context) (map[storage.Category]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT category, COUNT(*) FROM documents GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("count by category: %w", err)
	}
	defer rows.Close()
	out := make(map[storage.Category]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		out[storage.Category(category)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category counts: %w", err)
	}
	return out, nil
}

// AppendAudit appends one immutable audit row.
func (s *Store) AppendAudit(ctx context.Context, entry *storage.AuditEntry) error {
	var details []byte
	if entry.Details != nil {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
	}
	query := `INSERT INTO audit_logs
		(session_id, action, document_id, url, source, status, message, details, ts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id`
	err := s.pool.QueryRow(ctx, query,
		entry.SessionID, string(entry.Action), entry.DocumentID, entry.URL,
		entry.Source, string(entry.Status), entry.Message, details, entry.Timestamp,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// AuditEntries pages audit rows newest first with an optional session filter.
func (s *Store) AuditEntries(
	ctx context.Context,
	sessionID string,
	limit, offset int,
) ([]storage.AuditEntry, error) {
	query := `SELECT id, session_id, action, document_id, url, source, status, message, details, ts
		FROM audit_logs
		WHERE ($1 = '' OR session_id = $1)
		ORDER BY ts DESC, id DESC LIMIT $2 OFFSET $3`
	rows, err := s.pool.Query(ctx, query, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()
	var out []storage.AuditEntry
	for rows.Next() {
		var entry storage.AuditEntry
		var action, status string
		var details []byte
		if err := rows.Scan(&entry.ID, &entry.SessionID, &action, &entry.DocumentID,
			&entry.URL, &entry.Source, &status, &entry.Message, &details, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Action = storage.Action(action)
		entry.Status = storage.Status(status)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

// CreateSession persists a new running session.
func (s *Store) CreateSession(ctx context.Context, session *storage.CrawlSession) error {
	query := `INSERT INTO crawl_sessions (session_id, status, started_at)
		VALUES ($1, $2, $3) RETURNING id`
	err := s.pool.QueryRow(ctx, query,
		session.SessionID, string(session.Status), session.StartedAt,
	).Scan(&session.ID)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// CompleteSession finalizes a session with its stats.
func (s *Store) CompleteSession(
	ctx context.Context,
	sessionID string,
	stats storage.BatchStats,
	completedAt time.Time,
) error {
	query := `UPDATE crawl_sessions SET
		status = $1, completed_at = $2, total = $3, inserted = $4,
		updated = $5, skipped = $6, errors = $7
		WHERE session_id = $8`
	tag, err := s.pool.Exec(ctx, query,
		string(storage.SessionCompleted), completedAt, stats.Total,
		stats.Inserted, stats.Updated, stats.Skipped, stats.Errors, sessionID,
	)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SessionByID returns one session by its token.
func (s *Store) SessionByID(ctx context.Context, sessionID string) (*storage.CrawlSession, error) {
	query := sessionSelect + ` WHERE session_id = $1`
	row := s.pool.QueryRow(ctx, query, sessionID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

// Sessions returns the most recent sessions, newest first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]storage.CrawlSession, error) {
	query := sessionSelect + ` ORDER BY started_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []storage.CrawlSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const sessionSelect = `SELECT id, session_id, status, started_at, completed_at,
	total, inserted, updated, skipped, errors FROM crawl_sessions`

func (s *Store) scanOneDocument(row pgx.Row) (*storage.Document, error) {
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func scanDocument(row pgx.Row) (*storage.Document, error) {
	var doc storage.Document
	var category string
	var embedding []byte
	err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.Summary, &doc.URL,
		&doc.Source, &category, &doc.PublicationDate, &doc.Language,
		&doc.Fingerprint, &embedding, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Category = storage.Category(category)
	if len(embedding) > 0 {
		if err := json.Unmarshal(embedding, &doc.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}
	return &doc, nil
}

func scanDocuments(rows pgx.Rows) ([]storage.Document, error) {
	var out []storage.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func scanSession(row pgx.Row) (*storage.CrawlSession, error) {
	var session storage.CrawlSession
	var status string
	err := row.Scan(&session.ID, &session.SessionID, &status, &session.StartedAt,
		&session.CompletedAt, &session.Stats.Total, &session.Stats.Inserted,
		&session.Stats.Updated, &session.Stats.Skipped, &session.Stats.Errors)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	session.Status = storage.SessionStatus(status)
	return &session, nil
}
