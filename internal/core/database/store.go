package database

import (
	"context"
	"errors"
	"time"

	"github.com/evidentia-hq/evidentia/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("database: not found")

// Store is the persistence surface for sync jobs, documents and chunks.
type Store interface {
	CreateSyncJob(ctx context.Context, job *models.SyncJob) error
	UpdateSyncJob(ctx context.Context, job *models.SyncJob) error
	GetSyncJob(ctx context.Context, id string) (*models.SyncJob, error)
	ListSyncJobs(ctx context.Context, caseID *int64, status string, limit int) ([]models.SyncJob, error)

	// FailStaleJobs marks pending and running jobs older than olderThan as
	// failed and reports how many rows were touched.
	FailStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error)

	FindDocumentByHash(ctx context.Context, hash string) (*models.Document, error)

	// SaveDocumentWithChunks writes the document and its chunks in one
	// transaction. An existing document with the same content hash is
	// replaced, its old chunks removed with it.
	SaveDocumentWithChunks(ctx context.Context, doc *models.Document, chunks []models.Chunk) error

	Ping(ctx context.Context) error
	Close() error
}
