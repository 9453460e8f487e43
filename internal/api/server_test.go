package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lexharvest/lexharvest/internal/embedding"
	"github.com/lexharvest/lexharvest/internal/pipeline"
	"github.com/lexharvest/lexharvest/internal/storage"
	"github.com/lexharvest/lexharvest/internal/storage/memory"
)

// fakePipeline blocks until released so tests can observe the running state.
type fakePipeline struct {
	mu       sync.Mutex
	runErr   error
	urlErr   error
	result   pipeline.BatchResult
	started  chan struct{}
	release  chan struct{}
	runCalls int
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{
		result:  pipeline.BatchResult{SessionID: "ab12cd34", Stats: storage.BatchStats{Total: 1, Inserted: 1}},
		started: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
}

func (f *fakePipeline) Run(ctx context.Context) (pipeline.BatchResult, error) {
	f.mu.Lock()
	f.runCalls++
	f.mu.Unlock()
	f.started <- struct{}{}
	select {
	case <-ctx.Done():
		return pipeline.BatchResult{}, ctx.Err()
	case <-f.release:
	}
	if f.runErr != nil {
		return pipeline.BatchResult{}, f.runErr
	}
	return f.result, nil
}

func (f *fakePipeline) RunURL(_ context.Context, _ string) (pipeline.BatchResult, error) {
	if f.urlErr != nil {
		return pipeline.BatchResult{}, f.urlErr
	}
	return f.result, nil
}

func seedDocument(t *testing.T, store storage.Store, url, title, content string, category storage.Category) *storage.Document {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	doc := &storage.Document{
		Title:     title,
		Content:   content,
		URL:       url,
		Source:    "central-acts",
		Category:  category,
		Language:  "en",
		Embedding: embedding.New().Embed(content),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.InsertDocument(context.Background(), doc))
	return doc
}

func newTestServer(t *testing.T, store storage.Store, p Pipeline) *httptest.Server {
	t.Helper()
	srv := NewServer(store, p, embedding.New(), zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, memory.New(), newFakePipeline())
	var body map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", &body))
	require.Equal(t, "ok", body["status"])
}

func TestListLaws_FiltersAndPages(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seedDocument(t, store, "https://labour.gov.in/a", "Minimum Wages Act", "wage fixation provisions", storage.CategoryAct)
	seedDocument(t, store, "https://labour.gov.in/b", "Overtime Notification", "overtime rate revision", storage.CategoryNotification)
	ts := newTestServer(t, store, newFakePipeline())

	var body struct {
		Laws  []docSummary `json:"laws"`
		Total int          `json:"total"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/laws?category=Act", &body))
	require.Equal(t, 1, body.Total)
	require.Len(t, body.Laws, 1)
	require.Equal(t, "Minimum Wages Act", body.Laws[0].Title)

	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/laws", &body))
	require.Equal(t, 2, body.Total)
}

func TestGetLaw(t *testing.T) {
	t.Parallel()

	store := memory.New()
	doc := seedDocument(t, store, "https://labour.gov.in/a", "Minimum Wages Act", "wage fixation provisions", storage.CategoryAct)
	ts := newTestServer(t, store, newFakePipeline())

	var got storage.Document
	require.Equal(t, http.StatusOK, getJSON(t, fmt.Sprintf("%s/api/laws/%d", ts.URL, doc.ID), &got))
	require.Equal(t, doc.Title, got.Title)
	require.Equal(t, doc.Content, got.Content)

	require.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/laws/9999", nil))
	require.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/laws/abc", nil))
}

func TestSearchLaws_RanksBySimilarity(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seedDocument(t, store, "https://labour.gov.in/a", "Minimum Wages Act",
		"minimum wages fixation for scheduled employments with overtime rates", storage.CategoryAct)
	seedDocument(t, store, "https://labour.gov.in/b", "Maternity Benefit Act",
		"maternity leave entitlement creche facility pregnancy protection", storage.CategoryAct)
	ts := newTestServer(t, store, newFakePipeline())

	var body struct {
		Results []struct {
			Law        docSummary `json:"law"`
			Similarity float64    `json:"similarity"`
		} `json:"results"`
	}
	status := postJSON(t, ts.URL+"/api/laws/search", `{"query":"minimum wages overtime"}`, &body)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, body.Results)
	require.Equal(t, "Minimum Wages Act", body.Results[0].Law.Title)
	for i := range body.Results {
		require.Greater(t, body.Results[i].Similarity, 0.3)
		if i > 0 {
			require.GreaterOrEqual(t, body.Results[i-1].Similarity, body.Results[i].Similarity)
		}
	}

	require.Equal(t, http.StatusBadRequest, postJSON(t, ts.URL+"/api/laws/search", `{}`, nil))
}

func TestSearchLaws_DropsLowSimilarityMatches(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seedDocument(t, store, "https://labour.gov.in/a", "Mines Act",
		"underground mine ventilation shaft safety lamps colliery inspection", storage.CategoryAct)
	ts := newTestServer(t, store, newFakePipeline())

	var body struct {
		Results []json.RawMessage `json:"results"`
	}
	status := postJSON(t, ts.URL+"/api/laws/search", `{"query":"completely unrelated gardening almanac horoscope"}`, &body)
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, body.Results)
}

func TestListLogsAndSessions(t *testing.T) {
	t.Parallel()

	store := memory.New()
	now := time.Now().UTC()
	session := &storage.CrawlSession{SessionID: "ab12cd34", Status: storage.SessionRunning, StartedAt: now}
	require.NoError(t, store.CreateSession(context.Background(), session))
	require.NoError(t, store.AppendAudit(context.Background(), &storage.AuditEntry{
		SessionID: "ab12cd34",
		Action:    storage.ActionInsert,
		URL:       "https://labour.gov.in/a",
		Source:    "central-acts",
		Status:    storage.StatusSuccess,
		Message:   "new document",
		Timestamp: now,
	}))
	require.NoError(t, store.CompleteSession(context.Background(), "ab12cd34", storage.BatchStats{Total: 1, Inserted: 1}, now))

	ts := newTestServer(t, store, newFakePipeline())

	var logs struct {
		Logs []storage.AuditEntry `json:"logs"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/logs?session=ab12cd34", &logs))
	require.Len(t, logs.Logs, 1)
	require.Equal(t, storage.ActionInsert, logs.Logs[0].Action)

	var sessions struct {
		Sessions []storage.CrawlSession `json:"sessions"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/sessions", &sessions))
	require.Len(t, sessions.Sessions, 1)
	require.Equal(t, storage.SessionCompleted, sessions.Sessions[0].Status)

	var got storage.CrawlSession
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/sessions/ab12cd34", &got))
	require.Equal(t, "ab12cd34", got.SessionID)
	require.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/sessions/nope", nil))
}

func TestStartCrawl_RejectsConcurrentRuns(t *testing.T) {
	t.Parallel()

	fake := newFakePipeline()
	ts := newTestServer(t, memory.New(), fake)

	resp, err := http.Post(ts.URL+"/api/crawl/start", "application/json", nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	<-fake.started

	resp, err = http.Post(ts.URL+"/api/crawl/start", "application/json", nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	close(fake.release)
	require.Eventually(t, func() bool {
		var stats map[string]any
		getJSON(t, ts.URL+"/api/stats", &stats)
		return stats["crawl_running"] == false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCancelCrawl(t *testing.T) {
	t.Parallel()

	fake := newFakePipeline()
	ts := newTestServer(t, memory.New(), fake)

	resp, err := http.Post(ts.URL+"/api/crawl/cancel", "application/json", nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusConflict, resp.StatusCode, "nothing to cancel yet")

	resp, err = http.Post(ts.URL+"/api/crawl/start", "application/json", nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	<-fake.started

	resp, err = http.Post(ts.URL+"/api/crawl/cancel", "application/json", nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCrawlURL(t *testing.T) {
	t.Parallel()

	fake := newFakePipeline()
	ts := newTestServer(t, memory.New(), fake)

	resp, err := http.Post(ts.URL+"/api/crawl/url", "application/json",
		strings.NewReader(`{"url":"https://labour.gov.in/acts/minimum-wages-act"}`))
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result pipeline.BatchResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Equal(t, "ab12cd34", result.SessionID)
	require.Equal(t, 1, result.Stats.Inserted)
}

func TestCrawlURL_Failure(t *testing.T) {
	t.Parallel()

	fake := newFakePipeline()
	fake.urlErr = errors.New("fetch failed")
	ts := newTestServer(t, memory.New(), fake)

	resp, err := http.Post(ts.URL+"/api/crawl/url", "application/json",
		strings.NewReader(`{"url":"https://labour.gov.in/missing"}`))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/crawl/url", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
