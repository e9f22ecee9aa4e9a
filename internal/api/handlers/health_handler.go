package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

const serviceVersion = "1.0.0"

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SourceChecker reports whether the upstream case API answers.
type SourceChecker interface {
	HealthCheck(ctx context.Context) bool
}

// EmbedState reports whether the embedding encoder has been initialized.
type EmbedState interface {
	Ready() bool
}

type HealthHandler struct {
	db       Pinger
	source   SourceChecker
	embedder EmbedState
	log      *zap.Logger
}

func NewHealthHandler(db Pinger, src SourceChecker, embedder EmbedState, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{db: db, source: src, embedder: embedder, log: logger}
}

// Health reports component status. The database is load-bearing, so a
// failed ping makes the whole check 503; the upstream source check is
// informational only.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	dbStatus := "ok"
	if err := h.db.Ping(r.Context()); err != nil {
		h.log.Warn("database ping failed", zap.Error(err))
		dbStatus = "unavailable"
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	sourceStatus := "ok"
	if !h.source.HealthCheck(r.Context()) {
		sourceStatus = "unreachable"
	}

	// The encoder loads lazily on the first embed, so "uninitialized" is a
	// normal state right after startup, not a failure.
	embedStatus := "ok"
	if !h.embedder.Ready() {
		embedStatus = "uninitialized"
	}

	respondJSON(w, code, map[string]any{
		"status": status,
		"services": map[string]string{
			"database":   dbStatus,
			"source":     sourceStatus,
			"embeddings": embedStatus,
		},
	})
}

// Root serves the service banner.
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"service": "Evidentia Sync Gateway",
		"version": serviceVersion,
		"health":  "/health",
	})
}
