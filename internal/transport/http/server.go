package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"marketviz/internal/config"
	"marketviz/internal/middleware"
	"marketviz/internal/pipeline"
)

// Server is the diagnostics HTTP listener
type Server struct {
	srv    *http.Server
	cfg    config.DiagnosticsConfig
	logger *slog.Logger
}

// NewServer builds the diagnostics listener. metricsHandler is the
// Prometheus exporter handler; nil disables the /metrics route.
func NewServer(cfg config.DiagnosticsConfig, registry *pipeline.Registry, metricsHandler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "diagnostics"))

	return &Server{
		srv: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      buildRouter(cfg, registry, metricsHandler, logger),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		cfg:    cfg,
		logger: logger,
	}
}

func buildRouter(cfg config.DiagnosticsConfig, registry *pipeline.Registry, metricsHandler http.Handler, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))

	health := NewHealthHandler(logger)
	runs := NewRunsHandler(registry, logger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.ReadTimeout, logger))
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/healthz", health.HealthCheck)
		r.Get("/version", health.Version)
		r.Get("/runs", runs.List)
		r.Get("/runs/{id}", runs.Get)
	})

	// Outside the JSON group: the exporter sets its own content type.
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	return r
}

// Handler exposes the router, primarily for tests
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves until the listener fails or Shutdown is called.
// http.ErrServerClosed is mapped to nil.
func (s *Server) Start() error {
	s.logger.Info("diagnostics listener starting", slog.String("addr", s.cfg.ListenAddr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("diagnostics listener stopping")
	return s.srv.Shutdown(ctx)
}
