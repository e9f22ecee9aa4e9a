package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentia-hq/evidentia/internal/core/database"
	"github.com/evidentia-hq/evidentia/internal/core/source"
	"github.com/evidentia-hq/evidentia/internal/models"
	"github.com/evidentia-hq/evidentia/internal/services"
)

type stubSubmitter struct {
	job      *models.SyncJob
	err      error
	gotCase  int64
	gotForce bool
}

func (s *stubSubmitter) Submit(_ context.Context, caseID int64, force bool) (*models.SyncJob, error) {
	s.gotCase = caseID
	s.gotForce = force
	return s.job, s.err
}

type stubCases struct {
	err error
}

func (s *stubCases) GetCase(_ context.Context, caseID int64) (*models.Case, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Case{CaseID: caseID, CaseName: "Acme breach"}, nil
}

// stubStore implements database.Store with function hooks for the methods
// the handlers touch.
type stubStore struct {
	getJob   func(id string) (*models.SyncJob, error)
	listJobs func(caseID *int64, status string, limit int) ([]models.SyncJob, error)
	pingErr  error
}

func (s *stubStore) CreateSyncJob(context.Context, *models.SyncJob) error { return nil }
func (s *stubStore) UpdateSyncJob(context.Context, *models.SyncJob) error { return nil }
func (s *stubStore) GetSyncJob(_ context.Context, id string) (*models.SyncJob, error) {
	return s.getJob(id)
}
func (s *stubStore) ListSyncJobs(_ context.Context, caseID *int64, status string, limit int) ([]models.SyncJob, error) {
	return s.listJobs(caseID, status, limit)
}
func (s *stubStore) FailStaleJobs(context.Context, time.Duration) (int64, error) { return 0, nil }
func (s *stubStore) FindDocumentByHash(context.Context, string) (*models.Document, error) {
	return nil, database.ErrNotFound
}
func (s *stubStore) SaveDocumentWithChunks(context.Context, *models.Document, []models.Chunk) error {
	return nil
}
func (s *stubStore) Ping(context.Context) error { return s.pingErr }
func (s *stubStore) Close() error               { return nil }

func newRouter(h *SyncHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/api/v1/sync/case/{caseID}", h.TriggerSync)
	r.Get("/api/v1/sync/status/{jobID}", h.GetStatus)
	r.Get("/api/v1/sync/jobs", h.ListJobs)
	return r
}

func TestTriggerSyncAccepted(t *testing.T) {
	sub := &stubSubmitter{job: &models.SyncJob{ID: "job-1", CaseID: 7}}
	h := NewSyncHandler(sub, &stubCases{}, &stubStore{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/case/7",
		strings.NewReader(`{"force_reindex":true}`))
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, "job-1", body["job_id"])
	assert.Equal(t, float64(7), body["case_id"])
	assert.Equal(t, int64(7), sub.gotCase)
	assert.True(t, sub.gotForce)
}

func TestTriggerSyncEmptyBody(t *testing.T) {
	sub := &stubSubmitter{job: &models.SyncJob{ID: "job-1", CaseID: 7}}
	h := NewSyncHandler(sub, &stubCases{}, &stubStore{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/case/7", nil)
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.False(t, sub.gotForce)
}

func TestTriggerSyncInvalidCaseID(t *testing.T) {
	h := NewSyncHandler(&stubSubmitter{}, &stubCases{}, &stubStore{}, nil)

	for _, path := range []string{"/api/v1/sync/case/abc", "/api/v1/sync/case/-3"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		newRouter(h).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestTriggerSyncUnknownCase(t *testing.T) {
	h := NewSyncHandler(&stubSubmitter{}, &stubCases{err: source.ErrNotFound}, &stubStore{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/case/99", nil)
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "case 99 not found")
}

func TestTriggerSyncUpstreamDown(t *testing.T) {
	h := NewSyncHandler(&stubSubmitter{}, &stubCases{err: errors.New("connection refused")}, &stubStore{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/case/7", nil)
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestTriggerSyncQueueFull(t *testing.T) {
	h := NewSyncHandler(&stubSubmitter{err: services.ErrQueueFull}, &stubCases{}, &stubStore{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/case/7", nil)
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGetStatus(t *testing.T) {
	store := &stubStore{getJob: func(id string) (*models.SyncJob, error) {
		if id != "job-1" {
			return nil, database.ErrNotFound
		}
		return &models.SyncJob{ID: "job-1", Status: models.JobStatusRunning, DocumentsSynced: 3}, nil
	}}
	h := NewSyncHandler(&stubSubmitter{}, &stubCases{}, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/status/job-1", nil)
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var job models.SyncJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, models.JobStatusRunning, job.Status)
	assert.Equal(t, 3, job.DocumentsSynced)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sync/status/nope", nil)
	rec = httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobsDefaultsAndClamping(t *testing.T) {
	var gotLimit int
	var gotCase *int64
	var gotStatus string
	store := &stubStore{listJobs: func(caseID *int64, status string, limit int) ([]models.SyncJob, error) {
		gotCase, gotStatus, gotLimit = caseID, status, limit
		return nil, nil
	}}
	h := NewSyncHandler(&stubSubmitter{}, &stubCases{}, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/jobs", nil)
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, gotLimit)
	assert.Nil(t, gotCase)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sync/jobs?case_id=7&status=completed&limit=500", nil)
	rec = httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, gotLimit)
	require.NotNil(t, gotCase)
	assert.Equal(t, int64(7), *gotCase)
	assert.Equal(t, "completed", gotStatus)

	// Empty result still serializes as an array.
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["total"])
	assert.NotNil(t, body["jobs"])
}

func TestListJobsInvalidFilters(t *testing.T) {
	h := NewSyncHandler(&stubSubmitter{}, &stubCases{}, &stubStore{}, nil)

	for _, path := range []string{"/api/v1/sync/jobs?case_id=abc", "/api/v1/sync/jobs?limit=ten"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		newRouter(h).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

type stubHealthSource struct{ ok bool }

func (s stubHealthSource) HealthCheck(context.Context) bool { return s.ok }

type stubEmbedState struct{ ready bool }

func (s stubEmbedState) Ready() bool { return s.ready }

func TestHealthOK(t *testing.T) {
	h := NewHealthHandler(&stubStore{}, stubHealthSource{ok: true}, stubEmbedState{ready: true}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHealthDatabaseDown(t *testing.T) {
	h := NewHealthHandler(&stubStore{pingErr: errors.New("dial refused")}, stubHealthSource{ok: true}, stubEmbedState{ready: true}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unavailable")
}

func TestHealthSourceUnreachableStillHealthy(t *testing.T) {
	h := NewHealthHandler(&stubStore{}, stubHealthSource{ok: false}, stubEmbedState{ready: true}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "unreachable")
}

func TestHealthEmbedderLazyUninitialized(t *testing.T) {
	h := NewHealthHandler(&stubStore{}, stubHealthSource{ok: true}, stubEmbedState{ready: false}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	// Lazy init means a fresh process reports uninitialized but healthy.
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	services := body["services"].(map[string]any)
	assert.Equal(t, "uninitialized", services["embeddings"])
	assert.Equal(t, "healthy", body["status"])
}

func TestRootBanner(t *testing.T) {
	h := NewHealthHandler(&stubStore{}, stubHealthSource{ok: true}, stubEmbedState{ready: true}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.Root(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Evidentia")
}
