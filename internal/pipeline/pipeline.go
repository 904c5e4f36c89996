package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"marketviz/internal/analytics"
	"marketviz/internal/config"
	"marketviz/internal/dataprocessing"
	apperrors "marketviz/internal/errors"
	"marketviz/internal/fetch"
	"marketviz/internal/infrastructure"
	"marketviz/pkg/contracts/domain"
)

// Params describes one pipeline run
type Params struct {
	Universe []domain.Symbol
	Start    time.Time
	End      time.Time
	Period   domain.PeriodCode
	UseCache bool
	Baseline time.Time // zero = series start

	// RunID overrides the generated identifier, letting callers register
	// the run before it starts. Empty means generate one.
	RunID string
}

// RunResult is the pipeline's complete output: the two tabular datasets,
// the sector summary and the error report, plus run metadata
type RunResult struct {
	RunID            string                   `json:"run_id"`
	StartedAt        time.Time                `json:"started_at"`
	Duration         time.Duration            `json:"duration"`
	Period           domain.PeriodCode        `json:"period"`
	Start            time.Time                `json:"start"`
	End              time.Time                `json:"end"`
	SymbolsRequested int                      `json:"symbols_requested"`
	SymbolsSucceeded int                      `json:"symbols_succeeded"`
	DroppedRecords   int                      `json:"dropped_records"`
	Processed        []domain.ProcessedRecord `json:"-"`
	Animation        domain.AnimationSet      `json:"-"`
	Sectors          []domain.SectorSummary   `json:"-"`
	DataIssues       apperrors.ErrorList      `json:"-"`
	Report           domain.ErrorReport       `json:"report"`
}

// Pipeline wires fetch → clean/metrics → {resample, sectors}. Per-symbol
// failures are collected into the error report; the run fails wholesale
// only when the surviving symbol set is empty after fetch and cleaning.
type Pipeline struct {
	orchestrator *fetch.Orchestrator
	cleaner      *dataprocessing.Cleaner
	resampler    *dataprocessing.Resampler
	sectors      *dataprocessing.SectorAggregator
	volWindow    int
	metrics      *infrastructure.PipelineMetrics
	logger       *slog.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithVolatilityWindow overrides the calculator's trailing window
func WithVolatilityWindow(days int) Option {
	return func(p *Pipeline) { p.volWindow = days }
}

// WithCleaner overrides the default cleaner
func WithCleaner(cleaner *dataprocessing.Cleaner) Option {
	return func(p *Pipeline) { p.cleaner = cleaner }
}

// WithResampler overrides the default resampler
func WithResampler(resampler *dataprocessing.Resampler) Option {
	return func(p *Pipeline) { p.resampler = resampler }
}

// WithMetrics records pipeline instrumentation
func WithMetrics(metrics *infrastructure.PipelineMetrics) Option {
	return func(p *Pipeline) { p.metrics = metrics }
}

// WithLogger sets the pipeline's logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// New creates a pipeline around the fetch orchestrator
func New(orchestrator *fetch.Orchestrator, opts ...Option) *Pipeline {
	p := &Pipeline{
		orchestrator: orchestrator,
		cleaner:      dataprocessing.NewCleaner(),
		resampler:    dataprocessing.NewResampler(),
		volWindow:    config.DefaultVolatilityWindow,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.sectors = dataprocessing.NewSectorAggregator(p.logger)
	p.logger = infrastructure.WithComponent(p.logger, "pipeline")
	return p
}

// Run executes one complete pipeline pass. The fetch stage is a barrier:
// processing starts only once every symbol resolved or the caller's context
// fired, at which point only resolved symbols proceed.
func (p *Pipeline) Run(ctx context.Context, params Params) (*RunResult, error) {
	if len(params.Universe) == 0 {
		return nil, fmt.Errorf("pipeline run needs a non-empty universe")
	}
	if !params.Period.Valid() {
		return nil, fmt.Errorf("invalid period code %q", params.Period)
	}

	runID := params.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	result := &RunResult{
		RunID:            runID,
		StartedAt:        time.Now(),
		Period:           params.Period,
		Start:            params.Start,
		End:              params.End,
		SymbolsRequested: len(params.Universe),
	}

	ctx = infrastructure.WithRunID(ctx, result.RunID)
	tracer := otel.Tracer(infrastructure.MeterName)
	ctx, span := tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run_id", result.RunID),
		attribute.String("period", string(params.Period)),
		attribute.Int("symbols", len(params.Universe)),
	))
	defer span.End()

	p.logger.InfoContext(ctx, "pipeline run starting",
		slog.Int("symbols", len(params.Universe)),
		slog.String("period", string(params.Period)),
		slog.Bool("use_cache", params.UseCache))

	// Stage 1: fetch.
	fetched, err := p.runFetchStage(ctx, params, result)
	if err != nil {
		result.Duration = time.Since(result.StartedAt)
		return result, err
	}

	// Stage 2: clean and compute metrics per symbol.
	p.runProcessStage(ctx, params, fetched, result)
	if len(result.Processed) == 0 {
		result.Duration = time.Since(result.StartedAt)
		infrastructure.RecordError(ctx, apperrors.ErrNoSymbolsSucceeded)
		return result, fmt.Errorf("after cleaning: %w", apperrors.ErrNoSymbolsSucceeded)
	}
	result.SymbolsSucceeded = result.SymbolsRequested - len(result.Report.Symbols())

	// Stage 3: aggregate.
	if err := p.runAggregateStage(ctx, params, result); err != nil {
		result.Duration = time.Since(result.StartedAt)
		return result, err
	}

	result.Duration = time.Since(result.StartedAt)
	p.logger.InfoContext(ctx, "pipeline run complete",
		slog.Int("succeeded", result.SymbolsSucceeded),
		slog.Int("failed", len(result.Report.Failures)),
		slog.Int("dropped_records", result.DroppedRecords),
		slog.Int("processed_records", len(result.Processed)),
		slog.Int("frames", len(result.Animation.Frames)),
		slog.Duration("duration", result.Duration))

	return result, nil
}

func (p *Pipeline) runFetchStage(ctx context.Context, params Params, result *RunResult) (*fetch.Result, error) {
	tracer := otel.Tracer(infrastructure.MeterName)
	ctx, span := tracer.Start(ctx, "pipeline.fetch")
	defer span.End()

	started := time.Now()
	tickers := make([]string, 0, len(params.Universe))
	for _, s := range params.Universe {
		tickers = append(tickers, s.Ticker)
	}

	fetched, err := p.orchestrator.Fetch(ctx, fetch.Request{
		Symbols:  tickers,
		Start:    params.Start,
		End:      params.End,
		UseCache: params.UseCache,
	})
	infrastructure.RecordStageMetrics(ctx, p.metrics, "fetch", time.Since(started), err == nil)

	if fetched != nil {
		for _, failure := range fetched.Failures {
			result.Report.Add(failure)
		}
	}
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return nil, fmt.Errorf("fetch stage: %w", err)
	}
	return fetched, nil
}

func (p *Pipeline) runProcessStage(ctx context.Context, params Params, fetched *fetch.Result, result *RunResult) {
	tracer := otel.Tracer(infrastructure.MeterName)
	ctx, span := tracer.Start(ctx, "pipeline.process")
	defer span.End()

	started := time.Now()
	calculator := analytics.NewCalculator(
		analytics.WithVolatilityWindow(p.volWindow),
		analytics.WithBaseline(params.Baseline),
		analytics.WithCalculatorLogger(p.logger),
	)

	// Universe order keeps the processed dataset and report deterministic
	// regardless of fetch arrival order.
	for _, symbol := range params.Universe {
		series, ok := fetched.Series[symbol.Ticker]
		if !ok {
			continue // already in the report as a fetch failure
		}

		cleaned, dropped := p.cleaner.Clean(ctx, symbol.Ticker, series)
		for _, d := range dropped {
			result.DataIssues.Add(d)
			p.logger.WarnContext(ctx, "dropped invalid record",
				slog.String("symbol", symbol.Ticker),
				slog.String("reason", d.Message))
		}

		if len(cleaned) == 0 {
			result.Report.Add(domain.SymbolFailure{
				Symbol:    symbol.Ticker,
				Stage:     domain.StageProcess,
				Reason:    "no valid records survived cleaning",
				Retryable: false,
			})
			infrastructure.RecordSymbolFailure(ctx, p.metrics, string(domain.StageProcess), string(apperrors.TypeDataValidation))
			continue
		}

		records, err := calculator.Compute(ctx, symbol, cleaned)
		if err != nil {
			result.Report.Add(domain.SymbolFailure{
				Symbol:    symbol.Ticker,
				Stage:     domain.StageProcess,
				Reason:    err.Error(),
				Retryable: false,
			})
			infrastructure.RecordSymbolFailure(ctx, p.metrics, string(domain.StageProcess), string(apperrors.TypeDataValidation))
			continue
		}
		result.Processed = append(result.Processed, records...)
	}

	if result.DataIssues.HasErrors() {
		result.DroppedRecords = len(result.DataIssues.ByType(apperrors.TypeDataValidation))
	}
	infrastructure.RecordStageMetrics(ctx, p.metrics, "process", time.Since(started), len(result.Processed) > 0)
}

func (p *Pipeline) runAggregateStage(ctx context.Context, params Params, result *RunResult) error {
	tracer := otel.Tracer(infrastructure.MeterName)
	ctx, span := tracer.Start(ctx, "pipeline.aggregate")
	defer span.End()

	started := time.Now()
	animation, err := p.resampler.Resample(ctx, result.Processed, params.Period)
	if err != nil {
		infrastructure.RecordStageMetrics(ctx, p.metrics, "aggregate", time.Since(started), false)
		return fmt.Errorf("aggregate stage: %w", err)
	}
	result.Animation = animation
	result.Sectors = p.sectors.Summarize(ctx, result.Processed)

	infrastructure.RecordStageMetrics(ctx, p.metrics, "aggregate", time.Since(started), true)
	return nil
}
