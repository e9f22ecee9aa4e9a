package models

import (
	"time"
)

// Job statuses. A job is created pending, moves to running when the pipeline
// picks it up, and ends in exactly one of the three terminal states.
const (
	JobStatusPending             = "pending"
	JobStatusRunning             = "running"
	JobStatusCompleted           = "completed"
	JobStatusCompletedWithErrors = "completed_with_errors"
	JobStatusFailed              = "failed"
)

// TerminalStatus reports whether a job status is final.
func TerminalStatus(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusCompletedWithErrors, JobStatusFailed:
		return true
	}
	return false
}

// SyncJob is one record per sync invocation for a case.
type SyncJob struct {
	ID              string         `db:"id" json:"job_id"`
	CaseID          int64          `db:"case_id" json:"case_id"`
	Status          string         `db:"status" json:"status"`
	StartedAt       *time.Time     `db:"started_at" json:"started_at"`
	CompletedAt     *time.Time     `db:"completed_at" json:"completed_at"`
	DocumentsSynced int            `db:"documents_synced" json:"documents_synced"`
	ChunksCreated   int            `db:"chunks_created" json:"chunks_created"`
	ErrorMessage    string         `db:"error_message" json:"error_message,omitempty"`
	Metadata        map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// Document is one record per distinct ingested evidence file. The content
// hash is the sole deduplication key and is unique across the whole corpus.
type Document struct {
	ID           string         `db:"id" json:"id"`
	CaseID       int64          `db:"case_id" json:"case_id"`
	DocumentName string         `db:"document_name" json:"document_name"`
	DocumentType string         `db:"document_type" json:"document_type"`
	FileSize     int64          `db:"file_size" json:"file_size"`
	ContentHash  string         `db:"content_hash" json:"content_hash"`
	StoragePath  *string        `db:"storage_path" json:"storage_path,omitempty"`
	Metadata     map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// Chunk is one token window of a document's extracted text, with its
// embedding vector. Indices are dense and zero-based within a document.
type Chunk struct {
	ID         string         `db:"id" json:"id"`
	DocumentID string         `db:"document_id" json:"document_id"`
	CaseID     int64          `db:"case_id" json:"case_id"`
	ChunkIndex int            `db:"chunk_index" json:"chunk_index"`
	Content    string         `db:"content" json:"content"`
	Embedding  []float32      `db:"embedding" json:"-"` // pgvector column
	TokenCount int            `db:"token_count" json:"token_count"`
	Metadata   map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// Case is the upstream case record as returned by the case-management API.
type Case struct {
	CaseID          int64  `json:"case_id"`
	CaseName        string `json:"case_name"`
	CaseDescription string `json:"case_description"`
	ClientName      string `json:"client_name"`
}

// Evidence is one file attached to an upstream case.
type Evidence struct {
	ID              int64  `json:"id"`
	Filename        string `json:"filename"`
	FileSize        int64  `json:"file_size"`
	FileDescription string `json:"file_description"`
}
