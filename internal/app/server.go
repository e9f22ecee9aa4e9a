package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/evidentia-hq/evidentia/internal/api/handlers"
	"github.com/evidentia-hq/evidentia/internal/config"
	"github.com/evidentia-hq/evidentia/internal/core/database"
	"github.com/evidentia-hq/evidentia/internal/core/embed"
	"github.com/evidentia-hq/evidentia/internal/core/source"
	"github.com/evidentia-hq/evidentia/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, worker *services.Worker, src *source.Client, store database.Store, embedder *embed.Generator, logger *zap.Logger) *Server {
	syncHandler := handlers.NewSyncHandler(worker, src, store, logger)
	healthHandler := handlers.NewHealthHandler(store, src, embedder, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/", healthHandler.Root)
	r.Get("/health", healthHandler.Health)

	r.Route("/api/v1/sync", func(api chi.Router) {
		api.Post("/case/{caseID}", syncHandler.TriggerSync)
		api.Get("/status/{jobID}", syncHandler.GetStatus)
		api.Get("/jobs", syncHandler.ListJobs)
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, log: logger}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
