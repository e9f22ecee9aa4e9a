package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/evidentia-hq/evidentia/internal/models"
)

// PgStore implements Store on PostgreSQL with the pgvector extension.
type PgStore struct {
	db  *sql.DB
	log *zap.Logger
}

func NewPgStore(ctx context.Context, databaseURL string, logger *zap.Logger) (*PgStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgStore{db: db, log: logger}, nil
}

func (s *PgStore) CreateSyncJob(ctx context.Context, job *models.SyncJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	meta, err := marshalMeta(job.Metadata)
	if err != nil {
		return err
	}

	const q = `INSERT INTO sync_jobs
		(id, case_id, status, started_at, completed_at, documents_synced, chunks_created, error_message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`
	err = s.db.QueryRowContext(ctx, q,
		job.ID, job.CaseID, job.Status, job.StartedAt, job.CompletedAt,
		job.DocumentsSynced, job.ChunksCreated, job.ErrorMessage, meta,
	).Scan(&job.CreatedAt)
	if err != nil {
		return fmt.Errorf("database: create sync job: %w", err)
	}
	return nil
}

func (s *PgStore) UpdateSyncJob(ctx context.Context, job *models.SyncJob) error {
	meta, err := marshalMeta(job.Metadata)
	if err != nil {
		return err
	}

	const q = `UPDATE sync_jobs SET
		status = $2, started_at = $3, completed_at = $4,
		documents_synced = $5, chunks_created = $6, error_message = $7, metadata = $8
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q,
		job.ID, job.Status, job.StartedAt, job.CompletedAt,
		job.DocumentsSynced, job.ChunksCreated, job.ErrorMessage, meta)
	if err != nil {
		return fmt.Errorf("database: update sync job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgStore) GetSyncJob(ctx context.Context, id string) (*models.SyncJob, error) {
	const q = `SELECT id, case_id, status, started_at, completed_at,
		documents_synced, chunks_created, error_message, metadata, created_at
		FROM sync_jobs WHERE id = $1`
	job, err := scanSyncJob(s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database: get sync job: %w", err)
	}
	return job, nil
}

func (s *PgStore) ListSyncJobs(ctx context.Context, caseID *int64, status string, limit int) ([]models.SyncJob, error) {
	q := `SELECT id, case_id, status, started_at, completed_at,
		documents_synced, chunks_created, error_message, metadata, created_at
		FROM sync_jobs`
	var (
		where []string
		args  []any
	)
	if caseID != nil {
		args = append(args, *caseID)
		where = append(where, "case_id = $"+strconv.Itoa(len(args)))
	}
	if status != "" {
		args = append(args, status)
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	for i, cond := range where {
		if i == 0 {
			q += " WHERE " + cond
		} else {
			q += " AND " + cond
		}
	}
	args = append(args, limit)
	q += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("database: list sync jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.SyncJob
	for rows.Next() {
		job, err := scanSyncJob(rows)
		if err != nil {
			return nil, fmt.Errorf("database: list sync jobs: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *PgStore) FailStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	const q = `UPDATE sync_jobs SET
		status = $1, completed_at = now(),
		error_message = 'job abandoned: no worker completed it'
		WHERE status IN ($2, $3) AND created_at < $4`
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, q,
		models.JobStatusFailed, models.JobStatusPending, models.JobStatusRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("database: fail stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *PgStore) FindDocumentByHash(ctx context.Context, hash string) (*models.Document, error) {
	const q = `SELECT id, case_id, document_name, document_type, file_size,
		content_hash, storage_path, metadata, created_at
		FROM documents WHERE content_hash = $1`

	var (
		doc  models.Document
		meta []byte
	)
	err := s.db.QueryRowContext(ctx, q, hash).Scan(
		&doc.ID, &doc.CaseID, &doc.DocumentName, &doc.DocumentType, &doc.FileSize,
		&doc.ContentHash, &doc.StoragePath, &meta, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database: find document: %w", err)
	}
	if err := unmarshalMeta(meta, &doc.Metadata); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *PgStore) SaveDocumentWithChunks(ctx context.Context, doc *models.Document, chunks []models.Chunk) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	docMeta, err := marshalMeta(doc.Metadata)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("database: begin tx: %w", err)
	}
	defer tx.Rollback()

	// Replace any previous version of this content; chunks cascade.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE content_hash = $1`, doc.ContentHash); err != nil {
		return fmt.Errorf("database: delete prior document: %w", err)
	}

	const insertDoc = `INSERT INTO documents
		(id, case_id, document_name, document_type, file_size, content_hash, storage_path, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`
	err = tx.QueryRowContext(ctx, insertDoc,
		doc.ID, doc.CaseID, doc.DocumentName, doc.DocumentType, doc.FileSize,
		doc.ContentHash, doc.StoragePath, docMeta,
	).Scan(&doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("database: insert document: %w", err)
	}

	const insertChunk = `INSERT INTO chunks
		(id, document_id, case_id, chunk_index, content, embedding, token_count, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for i := range chunks {
		ch := &chunks[i]
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		ch.DocumentID = doc.ID
		chunkMeta, err := marshalMeta(ch.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insertChunk,
			ch.ID, ch.DocumentID, ch.CaseID, ch.ChunkIndex, ch.Content,
			pgvector.NewVector(ch.Embedding), ch.TokenCount, chunkMeta); err != nil {
			return fmt.Errorf("database: insert chunk %d: %w", ch.ChunkIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("database: commit: %w", err)
	}
	return nil
}

func (s *PgStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PgStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncJob(row rowScanner) (*models.SyncJob, error) {
	var (
		job  models.SyncJob
		meta []byte
	)
	err := row.Scan(&job.ID, &job.CaseID, &job.Status, &job.StartedAt, &job.CompletedAt,
		&job.DocumentsSynced, &job.ChunksCreated, &job.ErrorMessage, &meta, &job.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalMeta(meta, &job.Metadata); err != nil {
		return nil, err
	}
	return &job, nil
}

func marshalMeta(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("database: marshal metadata: %w", err)
	}
	return b, nil
}

func unmarshalMeta(raw []byte, dst *map[string]any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("database: unmarshal metadata: %w", err)
	}
	return nil
}
