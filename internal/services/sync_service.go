package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/evidentia-hq/evidentia/internal/core/chunker"
	"github.com/evidentia-hq/evidentia/internal/core/database"
	"github.com/evidentia-hq/evidentia/internal/core/objectstore"
	"github.com/evidentia-hq/evidentia/internal/core/source"
	"github.com/evidentia-hq/evidentia/internal/models"
)

// SourceClient is the remote case-management surface the syncer consumes.
type SourceClient interface {
	GetCase(ctx context.Context, caseID int64) (*models.Case, error)
	ListEvidence(ctx context.Context, caseID int64) ([]models.Evidence, error)
	DownloadEvidence(ctx context.Context, evidenceID, caseID int64) ([]byte, error)
	HealthCheck(ctx context.Context) bool
}

// TextExtractor converts raw evidence bytes to plain text.
type TextExtractor interface {
	Extract(filename string, content []byte) (string, error)
}

// Splitter cuts text into token windows.
type Splitter interface {
	Split(text string) []chunker.Chunk
}

// Embedder turns chunk texts into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// itemOutcome is the result of processing one evidence item. Exactly one
// of the skip/fail markers is meaningful; a synced item carries its chunk
// count.
type itemOutcome struct {
	synced  bool
	skipped bool
	chunks  int
	failure string // "<filename>: <message>" when non-empty
}

// Syncer runs the evidence pipeline for one case per call: list, download,
// dedup by content hash, extract, chunk, embed, store. Items are processed
// strictly in listing order and each successfully stored item is committed
// before the next begins.
type Syncer struct {
	store    database.Store
	source   SourceClient
	extract  TextExtractor
	splitter Splitter
	embedder Embedder
	archiver objectstore.Archiver // optional
	log      *zap.Logger
}

func NewSyncer(store database.Store, src SourceClient, ex TextExtractor, sp Splitter, em Embedder, archiver objectstore.Archiver, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		store:    store,
		source:   src,
		extract:  ex,
		splitter: sp,
		embedder: em,
		archiver: archiver,
		log:      logger,
	}
}

// Sync runs the whole pipeline for job. The job row must already exist;
// Sync moves it to running, then to a terminal status. Per-item failures
// are accumulated into error_message and never abort the run; failures
// outside the item loop (and upstream auth rejection) mark the job failed
// and are returned to the caller.
func (s *Syncer) Sync(ctx context.Context, job *models.SyncJob, forceReindex bool) error {
	log := s.log.With(zap.String("job_id", job.ID), zap.Int64("case_id", job.CaseID))

	now := time.Now()
	job.Status = models.JobStatusRunning
	job.StartedAt = &now
	if job.Metadata == nil {
		job.Metadata = map[string]any{}
	}
	job.Metadata["force_reindex"] = forceReindex
	if err := s.store.UpdateSyncJob(ctx, job); err != nil {
		return fmt.Errorf("persist running status: %w", err)
	}

	cs, err := s.source.GetCase(ctx, job.CaseID)
	if err != nil {
		return s.fail(ctx, job, log, err)
	}
	job.Metadata["case_name"] = cs.CaseName

	evidences, err := s.source.ListEvidence(ctx, job.CaseID)
	if err != nil {
		return s.fail(ctx, job, log, err)
	}

	log.Info("sync started", zap.Int("evidence_count", len(evidences)), zap.Bool("force_reindex", forceReindex))

	var failures []string
	for _, ev := range evidences {
		out, err := s.processItem(ctx, job, ev, forceReindex, log)
		if err != nil {
			// Only job-fatal conditions escape the per-item guard.
			return s.fail(ctx, job, log, err)
		}
		if out.failure != "" {
			failures = append(failures, out.failure)
		}
		if out.synced {
			job.DocumentsSynced++
			job.ChunksCreated += out.chunks
		}
		// Checkpoint counters so status polls see live progress.
		if err := s.store.UpdateSyncJob(ctx, job); err != nil {
			return s.fail(ctx, job, log, fmt.Errorf("checkpoint job: %w", err))
		}
	}

	if len(failures) == 0 {
		job.Status = models.JobStatusCompleted
	} else {
		job.Status = models.JobStatusCompletedWithErrors
		job.ErrorMessage = strings.Join(failures, "\n")
	}
	done := time.Now()
	job.CompletedAt = &done
	if err := s.store.UpdateSyncJob(ctx, job); err != nil {
		return fmt.Errorf("persist terminal status: %w", err)
	}

	log.Info("sync finished",
		zap.String("status", job.Status),
		zap.Int("documents_synced", job.DocumentsSynced),
		zap.Int("chunks_created", job.ChunksCreated),
		zap.Int("item_errors", len(failures)))
	return nil
}

// processItem runs steps download → dedup → extract → chunk → embed → store
// for one evidence item. A non-nil error means the whole job must fail;
// recoverable problems come back as out.failure instead.
func (s *Syncer) processItem(ctx context.Context, job *models.SyncJob, ev models.Evidence, forceReindex bool, log *zap.Logger) (itemOutcome, error) {
	content, err := s.source.DownloadEvidence(ctx, ev.ID, job.CaseID)
	if err != nil {
		if errors.Is(err, source.ErrAuthFailed) {
			return itemOutcome{}, fmt.Errorf("download %s: %w", evidenceName(ev), err)
		}
		return itemFailed(ev, err), nil
	}

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	if !forceReindex {
		if _, err := s.store.FindDocumentByHash(ctx, hash); err == nil {
			log.Debug("duplicate content skipped", zap.String("filename", evidenceName(ev)))
			return itemOutcome{skipped: true}, nil
		} else if !errors.Is(err, database.ErrNotFound) {
			return itemFailed(ev, err), nil
		}
	}

	text, err := s.extract.Extract(ev.Filename, content)
	if err != nil {
		return itemFailed(ev, err), nil
	}
	if strings.TrimSpace(text) == "" {
		return itemFailed(ev, errors.New("no text content")), nil
	}

	chunks := s.splitter.Split(text)
	if len(chunks) == 0 {
		return itemFailed(ev, errors.New("no chunks produced")), nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return itemFailed(ev, err), nil
	}
	if len(vectors) != len(chunks) {
		return itemFailed(ev, fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(chunks))), nil
	}

	// Archive first so the stored document can carry its object location.
	// Archival failure is never fatal; the path just stays unset.
	var storagePath *string
	if s.archiver != nil {
		key := fmt.Sprintf("cases/%d/%s/%s", job.CaseID, hash[:12], evidenceName(ev))
		if loc, aerr := s.archiver.Put(ctx, key, content); aerr != nil {
			log.Warn("evidence archival failed", zap.String("filename", evidenceName(ev)), zap.Error(aerr))
		} else {
			storagePath = &loc
		}
	}

	doc := &models.Document{
		CaseID:       job.CaseID,
		DocumentName: evidenceName(ev),
		DocumentType: strings.TrimPrefix(strings.ToLower(filenameExt(ev.Filename)), "."),
		FileSize:     int64(len(content)),
		ContentHash:  hash,
		StoragePath:  storagePath,
		Metadata: map[string]any{
			"evidence_id": ev.ID,
			"description": ev.FileDescription,
		},
	}
	rows := make([]models.Chunk, len(chunks))
	for i, ch := range chunks {
		rows[i] = models.Chunk{
			CaseID:     job.CaseID,
			ChunkIndex: ch.Index,
			Content:    ch.Text,
			Embedding:  vectors[i],
			TokenCount: ch.TokenCount,
			Metadata: map[string]any{
				"start_token":  ch.StartToken,
				"end_token":    ch.EndToken,
				"total_tokens": ch.TotalTokens,
			},
		}
	}
	if err := s.store.SaveDocumentWithChunks(ctx, doc, rows); err != nil {
		return itemFailed(ev, err), nil
	}

	log.Info("evidence synced",
		zap.String("filename", evidenceName(ev)),
		zap.Int("chunks", len(chunks)))
	return itemOutcome{synced: true, chunks: len(chunks)}, nil
}

// fail persists the failed status and hands the cause back to the caller.
func (s *Syncer) fail(ctx context.Context, job *models.SyncJob, log *zap.Logger, cause error) error {
	job.Status = models.JobStatusFailed
	job.ErrorMessage = cause.Error()
	done := time.Now()
	job.CompletedAt = &done
	if err := s.store.UpdateSyncJob(ctx, job); err != nil {
		log.Error("could not persist failed status", zap.Error(err))
	}
	log.Error("sync failed", zap.Error(cause))
	return cause
}

// GetJob fetches one job snapshot.
func (s *Syncer) GetJob(ctx context.Context, id string) (*models.SyncJob, error) {
	return s.store.GetSyncJob(ctx, id)
}

// ListJobs lists recent jobs, optionally filtered by case and status.
func (s *Syncer) ListJobs(ctx context.Context, caseID *int64, status string, limit int) ([]models.SyncJob, error) {
	return s.store.ListSyncJobs(ctx, caseID, status, limit)
}

func itemFailed(ev models.Evidence, err error) itemOutcome {
	return itemOutcome{failure: fmt.Sprintf("%s: %s", evidenceName(ev), err.Error())}
}

// evidenceName falls back to a synthetic name when the upstream record has
// no filename, keeping error strings and document names readable.
func evidenceName(ev models.Evidence) string {
	if ev.Filename == "" {
		return fmt.Sprintf("evidence_%d", ev.ID)
	}
	return ev.Filename
}

func filenameExt(name string) string {
	return filepath.Ext(name)
}
