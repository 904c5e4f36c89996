// Package app wires configuration into the pipeline's component graph.
// Both binaries build their stack through it: cmd/pipeline for one-shot
// runs and cmd/refreshd for the scheduled daemon.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"marketviz/internal/cache"
	"marketviz/internal/config"
	"marketviz/internal/exporter"
	"marketviz/internal/fetch"
	"marketviz/internal/infrastructure"
	"marketviz/internal/pipeline"
	"marketviz/internal/universe"
	"marketviz/pkg/contracts/domain"
)

// Application is the assembled component graph
type Application struct {
	Config    *config.Config
	Paths     *config.Paths
	Logger    *slog.Logger
	Providers *infrastructure.OTelProviders
	Metrics   *infrastructure.PipelineMetrics
	Store     *cache.Store
	Exporter  *exporter.Exporter
	Runner    *pipeline.Runner
	Universe  []domain.Symbol
}

// Options tweaks application assembly
type Options struct {
	// MaxStocks caps the universe size; zero uses the configured limit
	MaxStocks int
	// DisableTracing suppresses the stdout trace exporter, used by the
	// one-shot binary to keep its output parseable
	DisableTracing bool
}

// New assembles the application from configuration
func New(cfg *config.Config, opts Options) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	paths, err := cfg.ResolvePaths()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	otelCfg := infrastructure.DefaultOTelConfig()
	if opts.DisableTracing {
		otelCfg.EnableTracing = false
	}
	providers, err := infrastructure.InitializeOTel(otelCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	var metrics *infrastructure.PipelineMetrics
	if providers.Meter != nil {
		metrics, err = infrastructure.CreatePipelineMetrics(providers.Meter)
		if err != nil {
			logger.Warn("pipeline metrics unavailable", slog.String("error", err.Error()))
		}
	}

	maxStocks := opts.MaxStocks
	if maxStocks <= 0 {
		maxStocks = cfg.Fetch.MaxStocks
	}
	symbols, err := universe.Load(paths.UniverseFile, maxStocks)
	if err != nil {
		return nil, fmt.Errorf("failed to load universe from %s: %w", paths.UniverseFile, err)
	}
	caps, err := universe.LoadMarketCaps(paths.MarketCapsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load market caps: %w", err)
	}

	store, err := cache.NewStore(paths.CacheDir, cfg.Cache.TTL(), cache.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open series cache: %w", err)
	}

	client := fetch.NewChartClient(cfg.Fetch, logger)
	breaker := fetch.NewCircuitBreaker(cfg.Fetch.Breaker.FailureThreshold, cfg.Fetch.Breaker.RecoveryTimeout)
	orchestrator := fetch.NewOrchestrator(client, store, fetch.RetryConfigFrom(cfg.Fetch), cfg.Fetch.Concurrency,
		fetch.WithCapProvider(caps),
		fetch.WithBreaker(breaker),
		fetch.WithMetrics(metrics),
		fetch.WithOrchestratorLogger(logger))

	pipe := pipeline.New(orchestrator,
		pipeline.WithVolatilityWindow(cfg.Processing.VolatilityWindow),
		pipeline.WithMetrics(metrics),
		pipeline.WithLogger(logger))

	exp := exporter.New(paths, logger)
	runner := pipeline.NewRunner(pipe, exp, pipeline.NewRegistry(), metrics, logger)

	logger.Info("application assembled",
		slog.Int("universe", len(symbols)),
		slog.String("cache_dir", paths.CacheDir),
		slog.String("exports_dir", paths.ExportsDir))

	return &Application{
		Config:    cfg,
		Paths:     paths,
		Logger:    logger,
		Providers: providers,
		Metrics:   metrics,
		Store:     store,
		Exporter:  exp,
		Runner:    runner,
		Universe:  symbols,
	}, nil
}

// RunParams builds pipeline parameters from the configured processing
// settings and an explicit date range
func (a *Application) RunParams(start, end time.Time) (pipeline.Params, error) {
	period, err := domain.ParsePeriodCode(a.Config.Processing.Period)
	if err != nil {
		return pipeline.Params{}, err
	}
	baseline, err := a.Config.BaselineTime()
	if err != nil {
		return pipeline.Params{}, err
	}
	return pipeline.Params{
		Universe: a.Universe,
		Start:    start,
		End:      end,
		Period:   period,
		UseCache: a.Config.Cache.Enabled,
		Baseline: baseline,
	}, nil
}

// Shutdown flushes telemetry
func (a *Application) Shutdown(ctx context.Context) error {
	if a.Providers != nil {
		return a.Providers.Shutdown(ctx)
	}
	return nil
}
