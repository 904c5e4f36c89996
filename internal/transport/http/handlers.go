package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"marketviz/internal/pipeline"
	"marketviz/pkg/contracts"
)

// HealthHandler serves liveness and version endpoints
type HealthHandler struct {
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		started: time.Now(),
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(h.started).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Version handles GET /version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, contracts.GetVersionInfo())
}

// RunsHandler exposes the in-memory run registry
type RunsHandler struct {
	registry *pipeline.Registry
	logger   *slog.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(registry *pipeline.Registry, logger *slog.Logger) *RunsHandler {
	return &RunsHandler{
		registry: registry,
		logger:   logger.With(slog.String("handler", "runs")),
	}
}

// List handles GET /runs
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	runs := h.registry.List()
	render.JSON(w, r, map[string]any{
		"count": len(runs),
		"runs":  runs,
	})
}

// Get handles GET /runs/{id}
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, ok := h.registry.Get(id)
	if !ok {
		h.logger.DebugContext(r.Context(), "run not found", slog.String("run_id", id))
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]any{
			"type":   "/errors/run-not-found",
			"title":  "Run Not Found",
			"status": http.StatusNotFound,
			"detail": "no run with id " + id,
		})
		return
	}
	render.JSON(w, r, info)
}
