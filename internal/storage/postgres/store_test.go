package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/lexharvest/lexharvest/internal/storage"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return mock, store
}

func TestInsertDocument_AssignsID(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	doc := &storage.Document{
		Title:       "Minimum Wages Act",
		Content:     "content",
		Summary:     "summary",
		URL:         "https://labour.gov.in/acts/minimum-wages",
		Source:      "Ministry of Labour - Acts",
		Category:    storage.CategoryAct,
		Language:    "en",
		Fingerprint: "f1",
		Embedding:   []float64{0.6, 0.8},
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	mock.ExpectQuery(`INSERT INTO documents`).
		WithArgs(doc.Title, doc.Content, doc.Summary, doc.URL, doc.Source,
			"Act", doc.PublicationDate, doc.Language, doc.Fingerprint,
			[]byte(`[0.6,0.8]`), doc.Version, doc.CreatedAt, doc.UpdatedAt).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	require.NoError(t, store.InsertDocument(context.Background(), doc))
	require.Equal(t, int64(7), doc.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentByURL_NotFound(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM documents WHERE url`).
		WithArgs("https://labour.gov.in/missing").
		WillReturnRows(pgxmock.NewRows(documentColumnNames()))

	_, err := store.DocumentByURL(context.Background(), "https://labour.gov.in/missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocuments_ScansEmbedding(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	rows := pgxmock.NewRows(documentColumnNames()).
		AddRow(int64(1), "Title A", "content a", "", "https://a.example", "src",
			"Rule", "", "en", "fa", []byte(`[1,0]`), 1, now, now).
		AddRow(int64(2), "Title B", "content b", "", "https://b.example", "src",
			"Act", "", "en", "fb", []byte(`[0,1]`), 2, now, now)

	mock.ExpectQuery(`SELECT (.+) FROM documents ORDER BY id ASC`).
		WillReturnRows(rows)

	docs, err := store.Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, []float64{1, 0}, docs[0].Embedding)
	require.Equal(t, storage.CategoryAct, docs[1].Category)
	require.Equal(t, 2, docs[1].Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDocument_MissingRow(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	doc := &storage.Document{
		ID:          42,
		Title:       "gone",
		Content:     "x",
		URL:         "https://gone.example",
		Category:    storage.CategoryUnknown,
		Fingerprint: "f",
		Embedding:   []float64{1},
		Version:     2,
		UpdatedAt:   now,
	}

	mock.ExpectExec(`UPDATE documents SET`).
		WithArgs(doc.Title, doc.Content, doc.Summary, doc.URL, doc.Source,
			"Unknown", doc.PublicationDate, doc.Language, doc.Fingerprint,
			[]byte(`[1]`), doc.Version, doc.UpdatedAt, doc.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateDocument(context.Background(), doc)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	started := time.Unix(1700000000, 0).UTC()

	session := &storage.CrawlSession{
		SessionID: "ab12cd34",
		Status:    storage.SessionRunning,
		StartedAt: started,
	}
	mock.ExpectQuery(`INSERT INTO crawl_sessions`).
		WithArgs("ab12cd34", "running", started).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	require.NoError(t, store.CreateSession(context.Background(), session))
	require.Equal(t, int64(3), session.ID)

	stats := storage.BatchStats{Total: 2, Inserted: 1, Skipped: 1}
	completed := started.Add(time.Minute)
	mock.ExpectExec(`UPDATE crawl_sessions SET`).
		WithArgs("completed", completed, 2, 1, 0, 1, 0, "ab12cd34").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.CompleteSession(context.Background(), "ab12cd34", stats, completed))

	mock.ExpectQuery(`SELECT (.+) FROM crawl_sessions WHERE session_id`).
		WithArgs("ab12cd34").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "session_id", "status", "started_at", "completed_at",
			"total", "inserted", "updated", "skipped", "errors",
		}).AddRow(int64(3), "ab12cd34", "completed", started, &completed, 2, 1, 0, 1, 0))

	got, err := store.SessionByID(context.Background(), "ab12cd34")
	require.NoError(t, err)
	require.Equal(t, storage.SessionCompleted, got.Status)
	require.Equal(t, stats, got.Stats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendAudit_MarshalsDetails(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	ts := time.Unix(1700000000, 0).UTC()
	docID := int64(5)

	entry := &storage.AuditEntry{
		SessionID:  "ab12cd34",
		Action:     storage.ActionUpdate,
		DocumentID: &docID,
		URL:        "https://labour.gov.in/rules/wage-rules",
		Source:     "Ministry of Labour - Rules",
		Status:     storage.StatusSuccess,
		Message:    "updated existing document (version 2)",
		Details:    map[string]any{"version": 2},
		Timestamp:  ts,
	}

	mock.ExpectQuery(`INSERT INTO audit_logs`).
		WithArgs(entry.SessionID, "UPDATE", &docID, entry.URL, entry.Source,
			"success", entry.Message, []byte(`{"version":2}`), ts).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(9)))

	require.NoError(t, store.AppendAudit(context.Background(), entry))
	require.Equal(t, int64(9), entry.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func documentColumnNames() []string {
	return []string{
		"id", "title", "content", "summary", "url", "source", "category",
		"publication_date", "language", "fingerprint", "embedding",
		"version", "created_at", "updated_at",
	}
}
