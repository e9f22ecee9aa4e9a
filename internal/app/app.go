package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/evidentia-hq/evidentia/internal/config"
	"github.com/evidentia-hq/evidentia/internal/core/chunker"
	"github.com/evidentia-hq/evidentia/internal/core/database"
	"github.com/evidentia-hq/evidentia/internal/core/embed"
	"github.com/evidentia-hq/evidentia/internal/core/extract"
	"github.com/evidentia-hq/evidentia/internal/core/objectstore"
	"github.com/evidentia-hq/evidentia/internal/core/source"
	"github.com/evidentia-hq/evidentia/internal/logging"
	"github.com/evidentia-hq/evidentia/internal/services"
)

// App holds every long-lived component of the service.
type App struct {
	Log    *zap.Logger
	Store  *database.PgStore
	Worker *services.Worker
	Server *Server

	embedder *embed.Generator
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	store, err := database.NewPgStore(startCtx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Bootstrap(startCtx); err != nil {
		store.Close()
		return nil, err
	}

	// Jobs left behind by a previous process would otherwise look running
	// forever.
	if n, err := store.FailStaleJobs(startCtx, cfg.StaleJobAge); err != nil {
		logger.Warn("stale job sweep failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("failed stale sync jobs", zap.Int64("count", n))
	}

	codec, err := chunker.NewCodec()
	if err != nil {
		store.Close()
		return nil, err
	}
	splitter, err := chunker.New(codec, cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		store.Close()
		return nil, err
	}

	embedder := embed.NewGenerator(func(ctx context.Context) (embed.Encoder, error) {
		return embed.NewGeminiEncoder(ctx, cfg.EmbedAPIKey, cfg.EmbedModel)
	}, cfg.EmbedDim, cfg.EmbedBatch, logger)

	extractor := extract.New(logger)

	var archiver objectstore.Archiver
	if cfg.ArchiveEnabled {
		s3, err := objectstore.NewS3Client(startCtx, cfg.AwsRegion, cfg.AwsAccessKey, cfg.AwsSecretKey, cfg.BucketName, logger)
		if err != nil {
			store.Close()
			return nil, err
		}
		archiver = s3
		logger.Info("evidence archival enabled", zap.String("bucket", cfg.BucketName))
	}

	sourceCfg := source.Config{
		BaseURL:         cfg.SourceURL,
		APIKey:          cfg.SourceAPIKey,
		Timeout:         cfg.SourceTimeout,
		DownloadTimeout: cfg.SourceDownloadLimit,
		RatePerSec:      cfg.SourceRatePerSec,
	}

	// Every job gets its own source client so connection state is never
	// shared between concurrent case syncs.
	worker := services.NewWorker(store, func() (services.JobRunner, error) {
		src := source.NewClient(sourceCfg, logger)
		return services.NewSyncer(store, src, extractor, splitter, embedder, archiver, logger), nil
	}, cfg.SyncQueueSize, logger)
	worker.Start(ctx, cfg.SyncWorkers)

	apiSource := source.NewClient(sourceCfg, logger)
	server := NewServer(cfg, worker, apiSource, store, embedder, logger)

	return &App{
		Log:      logger,
		Store:    store,
		Worker:   worker,
		Server:   server,
		embedder: embedder,
	}, nil
}

// Close drains the worker, then releases the embedder and the database.
func (a *App) Close() {
	if a.Worker != nil {
		if err := a.Worker.Stop(); err != nil {
			a.Log.Warn("worker shutdown", zap.Error(err))
		}
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
	_ = a.Log.Sync()
}
