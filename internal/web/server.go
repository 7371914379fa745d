package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/intake-dedup/internal/config"
	"github.com/intake-dedup/internal/dedup"
	"github.com/intake-dedup/internal/reference"
	"github.com/intake-dedup/internal/web/handlers"
	"github.com/intake-dedup/internal/web/middleware"
)

// Options wires the collaborators of a server. Store and DB may be nil to
// serve dedup requests without persistence.
type Options struct {
	Config   *config.Config
	Table    *reference.Table
	Pipeline *dedup.Pipeline
	Store    handlers.RunStore
	DB       handlers.Pinger
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

// Server represents the web server
type Server struct {
	opts       Options
	logger     zerolog.Logger
	httpServer *http.Server
	router     *mux.Router
}

// NewServer creates a new web server instance
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil || opts.Table == nil || opts.Pipeline == nil {
		return nil, errors.New("web: config, reference table and pipeline are required")
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	server := &Server{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "web").Logger(),
	}

	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         opts.Config.Addr(),
		Handler:      server.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	dedupHandler := &handlers.DedupHandler{
		Pipeline: s.opts.Pipeline,
		Store:    s.opts.Store,
		Logger:   s.logger,
	}
	healthHandler := &handlers.HealthHandler{
		Table: s.opts.Table,
		DB:    s.opts.DB,
	}

	s.router.HandleFunc("/api/health", healthHandler.Health).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})).Methods("GET")

	// API routes behind the key check
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/dedup", dedupHandler.Dedup).Methods("POST")
	api.HandleFunc("/runs/{id}", dedupHandler.GetRun).Methods("GET")
	api.Use(middleware.Authentication(s.opts.Config.APIKey))

	s.router.Use(middleware.RequestLogging(s.logger))
}

// Handler exposes the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down gracefully
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("starting server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info().Msg("server stopped")
	return nil
}
