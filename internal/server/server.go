// Package server exposes the environment registry over HTTP: a thin JSON
// router that analyzes submitted cells and delegates everything else to
// the runners.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dataflock/dataflock/internal/config"
	"github.com/dataflock/dataflock/internal/observability"
	"github.com/dataflock/dataflock/pkg/analysis"
	"github.com/dataflock/dataflock/pkg/kernel"
	"github.com/dataflock/dataflock/pkg/runner"
)

// Server routes HTTP requests onto an environment registry.
type Server struct {
	registry *runner.Registry
	metrics  *observability.Metrics
	log      *slog.Logger
	cfg      config.ServerConfig
}

// New builds a server around the given registry.
func New(registry *runner.Registry, metrics *observability.Metrics, log *slog.Logger, cfg config.ServerConfig) *Server {
	return &Server{
		registry: registry,
		metrics:  metrics,
		log:      log,
		cfg:      cfg,
	}
}

// Handler returns the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleListEnvironments)
	mux.HandleFunc("POST /{$}", s.handleCreateEnvironment)
	mux.HandleFunc("DELETE /{env}", s.handleDeleteEnvironment)

	mux.HandleFunc("GET /{env}/cells", s.handleListCells)
	mux.HandleFunc("POST /{env}/cells", s.handleCreateCell)
	mux.HandleFunc("GET /{env}/cells/{id}", s.handleGetCell)
	mux.HandleFunc("POST /{env}/cells/{id}", s.handleUpdateCell)
	mux.HandleFunc("DELETE /{env}/cells/{id}", s.handleDeleteCell)
	mux.HandleFunc("POST /{env}/cells/{id}/run", s.handleRunCell)

	mux.HandleFunc("GET /{env}/variables/{name}", s.handleGetVariable)

	mux.Handle("GET /healthz", observability.HealthHandler())
	mux.Handle("GET /readyz", observability.ReadyHandler(s.registry.Ready))
	mux.Handle("GET /metrics", s.metrics.Handler())

	return s.logging(mux)
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.log.Info("server started", "addr", s.cfg.Addr)

	select {
	case err := <-errCh:
		return err

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		shutdownErr := httpServer.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			return shutdownErr
		}

		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	}
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter

	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: responseWriter, status: http.StatusOK}

		next.ServeHTTP(rec, request)

		s.log.Debug("request",
			"method", request.Method,
			"path", request.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// statusFor maps core errors onto HTTP statuses. Unknown errors are
// internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, runner.ErrUnknownEnvironment),
		errors.Is(err, runner.ErrUnknownCell),
		errors.Is(err, kernel.ErrNameNotFound):
		return http.StatusNotFound

	case errors.Is(err, runner.ErrDuplicateEnvironment),
		errors.Is(err, runner.ErrDuplicateName):
		return http.StatusConflict

	case errors.Is(err, runner.ErrLoop),
		errors.Is(err, analysis.ErrSyntax):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}
