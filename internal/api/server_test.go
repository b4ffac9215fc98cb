package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lioriz/arch-scraper/internal/controller"
	"github.com/lioriz/arch-scraper/internal/metrics"
	"github.com/lioriz/arch-scraper/internal/scraper"
	"github.com/lioriz/arch-scraper/internal/sources"
	"github.com/lioriz/arch-scraper/internal/storage/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type fakeSession struct {
	block chan struct{}
}

func (s *fakeSession) Render(ctx context.Context, _ string) (string, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "<html></html>", nil
}

func (s *fakeSession) Close() {}

type fakeRenderer struct {
	session *fakeSession
}

func (r *fakeRenderer) NewSession(context.Context) (scraper.RenderSession, error) {
	return r.session, nil
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(context.Context, string, scraper.Source) ([]scraper.ArchitectureRecord, error) {
	return []scraper.ArchitectureRecord{{Name: "X", Type: scraper.RecordTypePattern}}, nil
}

type brokenStore struct{}

func (brokenStore) InsertBatch(context.Context, scraper.Batch) error { return errors.New("down") }
func (brokenStore) ListBatches(context.Context) ([]scraper.Batch, error) {
	return nil, errors.New("down")
}
func (brokenStore) GetLatest(context.Context) (scraper.Batch, error) {
	return scraper.Batch{}, errors.New("down")
}
func (brokenStore) GetByID(context.Context, string) (scraper.Batch, error) {
	return scraper.Batch{}, errors.New("down")
}
func (brokenStore) GetPatterns(context.Context, string) ([]scraper.ArchitectureRecord, error) {
	return nil, errors.New("down")
}
func (brokenStore) Ping(context.Context) error { return errors.New("down") }

func testRegistry(t *testing.T) *sources.Registry {
	t.Helper()
	return sources.NewRegistry(filepath.Join(t.TempDir(), "sources.json"), nil)
}

func newTestServer(t *testing.T, store scraper.BatchStore, block chan struct{}) *Server {
	t.Helper()
	registry := testRegistry(t)
	c := controller.New(
		registry,
		&fakeRenderer{session: &fakeSession{block: block}},
		fakeExtractor{},
		store,
		nil, nil, nil,
		fixedClock{now: time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)},
		controller.Config{},
		nil,
	)
	return NewServer(store, registry, c, nil)
}

func doRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func seedBatch(t *testing.T, store scraper.BatchStore, id string, createdAt time.Time) {
	t.Helper()
	b := scraper.Batch{
		BatchID:   id,
		CreatedAt: createdAt,
		Metadata: scraper.BatchMetadata{
			BatchID:       id,
			Timestamp:     createdAt.Format(time.RFC3339),
			TotalPatterns: 1,
			Sources:       []string{"AWS Architecture Center"},
		},
		Architectures: []scraper.ArchitectureRecord{{Name: "Rec", Type: scraper.RecordTypePattern}},
	}
	require.NoError(t, store.InsertBatch(context.Background(), b))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, memory.NewBatchStore(), nil)
	rec := doRequest(s, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "healthy", body["status"])
	require.Equal(t, "connected", body["database"])
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealthUnhealthy(t *testing.T) {
	s := newTestServer(t, brokenStore{}, nil)
	rec := doRequest(s, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "unhealthy", body["status"])
	require.Equal(t, "disconnected", body["database"])
}

func TestGetSources(t *testing.T) {
	s := newTestServer(t, memory.NewBatchStore(), nil)
	rec := doRequest(s, http.MethodGet, "/sources", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var srcs []scraper.Source
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &srcs))
	require.Len(t, srcs, 2)
}

func TestListBatchesEmpty(t *testing.T) {
	s := newTestServer(t, memory.NewBatchStore(), nil)
	rec := doRequest(s, http.MethodGet, "/architectures", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestListBatchesDegradesOnStoreError(t *testing.T) {
	s := newTestServer(t, brokenStore{}, nil)
	rec := doRequest(s, http.MethodGet, "/architectures", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestListBatchesOrdering(t *testing.T) {
	store := memory.NewBatchStore()
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	seedBatch(t, store, "20260824_120000", base)
	seedBatch(t, store, "20260824_130000", base.Add(time.Hour))

	s := newTestServer(t, store, nil)
	rec := doRequest(s, http.MethodGet, "/architectures", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var batches []scraper.Batch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batches))
	require.Len(t, batches, 2)
	require.Equal(t, "20260824_130000", batches[0].BatchID)
}

func TestGetLatestNotFound(t *testing.T) {
	s := newTestServer(t, memory.NewBatchStore(), nil)
	rec := doRequest(s, http.MethodGet, "/architectures/latest", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetLatest(t *testing.T) {
	store := memory.NewBatchStore()
	seedBatch(t, store, "20260824_120000", time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))

	s := newTestServer(t, store, nil)
	rec := doRequest(s, http.MethodGet, "/architectures/latest", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var b scraper.Batch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	require.Equal(t, "20260824_120000", b.BatchID)
}

func TestGetBatchByID(t *testing.T) {
	store := memory.NewBatchStore()
	seedBatch(t, store, "20260824_120000", time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))

	s := newTestServer(t, store, nil)

	rec := doRequest(s, http.MethodGet, "/architectures/20260824_120000", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/architectures/20990101_000000", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPatterns(t *testing.T) {
	store := memory.NewBatchStore()
	seedBatch(t, store, "20260824_120000", time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))

	s := newTestServer(t, store, nil)

	rec := doRequest(s, http.MethodGet, "/architectures/20260824_120000/patterns", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []scraper.ArchitectureRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	require.Equal(t, "Rec", records[0].Name)

	rec = doRequest(s, http.MethodGet, "/architectures/20990101_000000/patterns", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerScrape(t *testing.T) {
	s := newTestServer(t, memory.NewBatchStore(), nil)

	rec := doRequest(s, http.MethodPost, "/scrape", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var st scraper.RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, scraper.RunPhaseInProgress, st.Phase)
}

func TestTriggerScrapeConflict(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	s := newTestServer(t, memory.NewBatchStore(), block)

	rec := doRequest(s, http.MethodPost, "/scrape", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(s, http.MethodPost, "/scrape", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body["error"], "in progress")
}

func TestTriggerScrapeBadJSON(t *testing.T) {
	s := newTestServer(t, memory.NewBatchStore(), nil)
	rec := doRequest(s, http.MethodPost, "/scrape", []byte("{broken"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScrapeStatusIdle(t *testing.T) {
	s := newTestServer(t, memory.NewBatchStore(), nil)
	rec := doRequest(s, http.MethodGet, "/scrape/status", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var st scraper.RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, scraper.RunPhaseIdle, st.Phase)
	require.Equal(t, "No scraping has been performed yet", st.Message)
}
