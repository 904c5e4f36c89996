package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"marketviz/internal/exporter"
	"marketviz/internal/infrastructure"
)

// Runner executes registered pipeline runs and exports their outputs. It is
// the entry point shared by the one-shot binary, the refresh daemon's cron
// jobs and the diagnostics listener's run registry.
type Runner struct {
	pipeline *Pipeline
	exporter *exporter.Exporter
	registry *Registry
	metrics  *infrastructure.PipelineMetrics
	logger   *slog.Logger
}

// NewRunner creates a runner; exporter may be nil when callers consume the
// RunResult directly instead of files
func NewRunner(p *Pipeline, exp *exporter.Exporter, registry *Registry, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Runner{
		pipeline: p,
		exporter: exp,
		registry: registry,
		metrics:  metrics,
		logger:   infrastructure.WithComponent(logger, "runner"),
	}
}

// Registry exposes the run registry for the diagnostics listener
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Execute runs the pipeline once, tracks it in the registry, and exports
// the outputs. A panic inside the run is recovered and recorded as a failed
// run rather than taking the process down.
func (r *Runner) Execute(ctx context.Context, trigger string, params Params) (result *RunResult, err error) {
	if params.RunID == "" {
		params.RunID = uuid.New().String()
	}
	r.registry.Begin(params.RunID, trigger, string(params.Period), len(params.Universe))

	started := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pipeline run panicked: %v", rec)
			r.logger.ErrorContext(ctx, "recovered pipeline panic",
				slog.String("run_id", params.RunID),
				slog.Any("panic", rec))
		}
		succeeded := 0
		if result != nil {
			succeeded = result.SymbolsSucceeded
		}
		infrastructure.RecordRunMetrics(ctx, r.metrics, trigger, time.Since(started), succeeded, err)
		if err != nil {
			infrastructure.WithError(r.logger, err).ErrorContext(ctx, "pipeline run failed",
				slog.String("run_id", params.RunID),
				slog.String("trigger", trigger))
			r.registry.Fail(params.RunID, err)
		} else {
			r.registry.Complete(params.RunID, result)
		}
	}()

	result, err = r.pipeline.Run(ctx, params)
	if err != nil {
		return result, err
	}

	if r.exporter != nil {
		if exportErr := r.export(result); exportErr != nil {
			err = exportErr
			return result, err
		}
	}
	return result, nil
}

// export writes every output dataset; the run report goes last so it
// reflects a fully written export set
func (r *Runner) export(result *RunResult) error {
	if err := r.exporter.WriteProcessed(result.Processed); err != nil {
		return fmt.Errorf("export processed dataset: %w", err)
	}
	if err := r.exporter.WriteAnimation(result.Animation); err != nil {
		return fmt.Errorf("export animation dataset: %w", err)
	}
	if err := r.exporter.WriteSectorSummary(result.Sectors); err != nil {
		return fmt.Errorf("export sector summary: %w", err)
	}
	if err := r.exporter.WriteRunReport(result); err != nil {
		return fmt.Errorf("export run report: %w", err)
	}
	return nil
}
