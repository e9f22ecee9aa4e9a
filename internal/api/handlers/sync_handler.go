package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/evidentia-hq/evidentia/internal/core/database"
	"github.com/evidentia-hq/evidentia/internal/core/source"
	"github.com/evidentia-hq/evidentia/internal/models"
	"github.com/evidentia-hq/evidentia/internal/services"
)

// Submitter accepts a sync job for background processing.
type Submitter interface {
	Submit(ctx context.Context, caseID int64, forceReindex bool) (*models.SyncJob, error)
}

// CaseChecker verifies a case exists upstream before a job is accepted.
type CaseChecker interface {
	GetCase(ctx context.Context, caseID int64) (*models.Case, error)
}

type SyncHandler struct {
	worker Submitter
	source CaseChecker
	store  database.Store
	log    *zap.Logger
}

func NewSyncHandler(worker Submitter, src CaseChecker, store database.Store, logger *zap.Logger) *SyncHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncHandler{worker: worker, source: src, store: store, log: logger}
}

type triggerRequest struct {
	ForceReindex bool `json:"force_reindex"`
}

// TriggerSync verifies the case upstream, queues a job and returns 202 with
// the job id. Processing happens in the background; clients poll the status
// endpoint.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	caseID, err := strconv.ParseInt(chi.URLParam(r, "caseID"), 10, 64)
	if err != nil || caseID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid case id")
		return
	}

	// Body is optional; a missing or empty body means no force reindex.
	var req triggerRequest
	if derr := json.NewDecoder(r.Body).Decode(&req); derr != nil && !errors.Is(derr, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.source.GetCase(r.Context(), caseID); err != nil {
		if errors.Is(err, source.ErrNotFound) {
			respondError(w, http.StatusNotFound, fmt.Sprintf("case %d not found", caseID))
			return
		}
		h.log.Error("case lookup failed", zap.Int64("case_id", caseID), zap.Error(err))
		respondError(w, http.StatusBadGateway, "case management API unavailable")
		return
	}

	job, err := h.worker.Submit(r.Context(), caseID, req.ForceReindex)
	if err != nil {
		if errors.Is(err, services.ErrQueueFull) {
			respondError(w, http.StatusTooManyRequests, "sync queue is full, try again later")
			return
		}
		h.log.Error("job submit failed", zap.Int64("case_id", caseID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "could not create sync job")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"job_id":  job.ID,
		"case_id": caseID,
		"message": "sync started in background",
	})
}

// GetStatus returns one job snapshot.
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := h.store.GetSyncJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "sync job not found")
			return
		}
		h.log.Error("job lookup failed", zap.String("job_id", jobID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "could not load sync job")
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// ListJobs returns recent jobs, newest first, optionally filtered by
// case_id and status. limit defaults to 50 and is clamped to [1,100].
func (h *SyncHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var caseID *int64
	if raw := q.Get("case_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid case_id filter")
			return
		}
		caseID = &id
	}

	limit := 50
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	jobs, err := h.store.ListSyncJobs(r.Context(), caseID, q.Get("status"), limit)
	if err != nil {
		h.log.Error("job list failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "could not list sync jobs")
		return
	}
	if jobs == nil {
		jobs = []models.SyncJob{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"total": len(jobs),
	})
}
