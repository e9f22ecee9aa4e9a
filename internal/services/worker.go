package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/evidentia-hq/evidentia/internal/core/database"
	"github.com/evidentia-hq/evidentia/internal/models"
)

// ErrQueueFull is returned by Submit when the job queue has no room.
var ErrQueueFull = errors.New("services: sync queue full")

// JobRunner executes one sync job to a terminal state.
type JobRunner interface {
	Sync(ctx context.Context, job *models.SyncJob, forceReindex bool) error
}

// RunnerFactory builds a runner for one job. Each job gets its own runner
// so remote-source connections are never shared across jobs.
type RunnerFactory func() (JobRunner, error)

type task struct {
	jobID string
	force bool
}

// Worker owns a bounded queue of sync jobs and a fixed pool of goroutines
// draining it. Submit is the only entry point for new jobs.
type Worker struct {
	store     database.Store
	newRunner RunnerFactory
	queue     chan task
	group     *errgroup.Group
	log       *zap.Logger
}

func NewWorker(store database.Store, factory RunnerFactory, queueSize int, logger *zap.Logger) *Worker {
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		store:     store,
		newRunner: factory,
		queue:     make(chan task, queueSize),
		log:       logger,
	}
}

// Start launches n worker goroutines. They drain the queue until it is
// closed by Stop or ctx is cancelled.
func (w *Worker) Start(ctx context.Context, n int) {
	if n <= 0 {
		n = 2
	}
	w.group = &errgroup.Group{}
	for i := 0; i < n; i++ {
		id := i
		w.group.Go(func() error {
			w.log.Debug("sync worker started", zap.Int("worker", id))
			for {
				select {
				case <-ctx.Done():
					return nil
				case t, ok := <-w.queue:
					if !ok {
						return nil
					}
					w.run(ctx, t)
				}
			}
		})
	}
}

// Submit persists a pending job row and enqueues it. The job row is the
// caller's receipt: its ID can be polled immediately. A full queue marks
// the row failed and reports ErrQueueFull.
func (w *Worker) Submit(ctx context.Context, caseID int64, forceReindex bool) (*models.SyncJob, error) {
	job := &models.SyncJob{
		CaseID: caseID,
		Status: models.JobStatusPending,
		Metadata: map[string]any{
			"force_reindex": forceReindex,
		},
	}
	if err := w.store.CreateSyncJob(ctx, job); err != nil {
		return nil, err
	}

	select {
	case w.queue <- task{jobID: job.ID, force: forceReindex}:
		w.log.Info("sync job queued", zap.String("job_id", job.ID), zap.Int64("case_id", caseID))
		return job, nil
	default:
		job.Status = models.JobStatusFailed
		job.ErrorMessage = "sync queue full"
		now := time.Now()
		job.CompletedAt = &now
		if err := w.store.UpdateSyncJob(ctx, job); err != nil {
			w.log.Error("could not mark overflowed job failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		return nil, ErrQueueFull
	}
}

func (w *Worker) run(ctx context.Context, t task) {
	job, err := w.store.GetSyncJob(ctx, t.jobID)
	if err != nil {
		w.log.Error("queued job not found", zap.String("job_id", t.jobID), zap.Error(err))
		return
	}
	if models.TerminalStatus(job.Status) {
		// Possible after a stale-job sweep raced the queue.
		w.log.Warn("queued job already terminal", zap.String("job_id", t.jobID), zap.String("status", job.Status))
		return
	}

	runner, err := w.newRunner()
	if err != nil {
		w.log.Error("could not build job runner", zap.String("job_id", t.jobID), zap.Error(err))
		job.Status = models.JobStatusFailed
		job.ErrorMessage = err.Error()
		now := time.Now()
		job.CompletedAt = &now
		if uerr := w.store.UpdateSyncJob(ctx, job); uerr != nil {
			w.log.Error("could not persist failed status", zap.String("job_id", t.jobID), zap.Error(uerr))
		}
		return
	}

	// Sync persists the terminal status itself; the returned error is
	// already reflected on the job row.
	if err := runner.Sync(ctx, job, t.force); err != nil {
		w.log.Warn("sync job failed", zap.String("job_id", t.jobID), zap.Error(err))
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (w *Worker) Stop() error {
	close(w.queue)
	if w.group == nil {
		return nil
	}
	return w.group.Wait()
}
