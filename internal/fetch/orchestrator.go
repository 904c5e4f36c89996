package fetch

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"marketviz/internal/cache"
	apperrors "marketviz/internal/errors"
	"marketviz/internal/infrastructure"
	"marketviz/pkg/contracts/domain"
)

// SeriesCache is the slice of the cache store the orchestrator needs
type SeriesCache interface {
	Get(ctx context.Context, key cache.Key) ([]domain.PricePoint, bool, error)
	Put(ctx context.Context, key cache.Key, points []domain.PricePoint) error
}

// Orchestrator fetches the requested symbols through a bounded worker pool.
// Per-symbol failures are classified and collected; they never interrupt
// other symbols. The only observable side effect is the cache write-back.
type Orchestrator struct {
	source      Source
	store       SeriesCache
	caps        CapProvider
	breaker     *CircuitBreaker
	retry       RetryConfig
	concurrency int
	logger      *slog.Logger
	metrics     *infrastructure.PipelineMetrics
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithCapProvider merges per-symbol market caps into fetched series
func WithCapProvider(caps CapProvider) OrchestratorOption {
	return func(o *Orchestrator) { o.caps = caps }
}

// WithBreaker guards source calls with a circuit breaker
func WithBreaker(breaker *CircuitBreaker) OrchestratorOption {
	return func(o *Orchestrator) { o.breaker = breaker }
}

// WithMetrics records fetch and cache instrumentation
func WithMetrics(metrics *infrastructure.PipelineMetrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = metrics }
}

// WithOrchestratorLogger sets the orchestrator's logger
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

// NewOrchestrator creates a fetch orchestrator. The concurrency bound exists
// to respect the upstream rate limit, not CPU parallelism.
func NewOrchestrator(source Source, store SeriesCache, retry RetryConfig, concurrency int, opts ...OrchestratorOption) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	o := &Orchestrator{
		source:      source,
		store:       store,
		retry:       retry,
		concurrency: concurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = infrastructure.WithComponent(o.logger, "fetch_orchestrator")
	return o
}

// symbolOutcome is one symbol's resolution, recorded by position so the
// failure list keeps the request's symbol order regardless of arrival order
type symbolOutcome struct {
	series  []domain.PricePoint
	failure *domain.SymbolFailure
}

// Fetch resolves every requested symbol: fresh cache entry, or source call
// with retry/backoff. It returns only after all symbols resolved or the
// context fired; symbols cut off by cancellation are reported as failures
// while already-resolved series are kept. The returned error is non-nil
// only when zero symbols succeeded.
func (o *Orchestrator) Fetch(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	o.logger.InfoContext(ctx, "starting orchestrated fetch",
		slog.Int("symbols", len(req.Symbols)),
		slog.Time("start", req.Start),
		slog.Time("end", req.End),
		slog.Bool("use_cache", req.UseCache),
		slog.Int("concurrency", o.concurrency))

	outcomes := make([]symbolOutcome, len(req.Symbols))

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, symbol := range req.Symbols {
		g.Go(func() error {
			outcomes[i] = o.fetchSymbol(ctx, symbol, req)
			return nil
		})
	}
	// Workers never return errors; the group is the barrier between the
	// fetch stage and processing.
	_ = g.Wait()

	result := &Result{Series: make(map[string][]domain.PricePoint, len(req.Symbols))}
	for i, out := range outcomes {
		switch {
		case out.failure != nil:
			result.Failures = append(result.Failures, *out.failure)
			infrastructure.RecordSymbolFailure(ctx, o.metrics, string(domain.StageFetch), out.failure.Reason)
		case out.series != nil:
			result.Series[req.Symbols[i]] = out.series
		}
	}

	o.logger.InfoContext(ctx, "orchestrated fetch complete",
		slog.Int("succeeded", result.Succeeded()),
		slog.Int("failed", len(result.Failures)))

	if result.Succeeded() == 0 {
		return result, apperrors.ErrNoSymbolsSucceeded
	}
	return result, nil
}

// fetchSymbol resolves one symbol: cache, then guarded source with retry
func (o *Orchestrator) fetchSymbol(ctx context.Context, symbol string, req Request) symbolOutcome {
	key := cache.Key{Symbol: symbol, Start: req.Start, End: req.End, Granularity: "1d"}

	if req.UseCache && o.store != nil {
		points, ok, err := o.store.Get(ctx, key)
		switch {
		case ok:
			// A fresh entry short-circuits the source entirely.
			infrastructure.RecordCacheOperation(ctx, o.metrics, "hit")
			return symbolOutcome{series: o.mergeCap(symbol, points)}
		case err != nil:
			infrastructure.RecordCacheOperation(ctx, o.metrics, "error")
		default:
			infrastructure.RecordCacheOperation(ctx, o.metrics, "miss")
		}
	}

	infrastructure.RecordActiveFetchChange(ctx, o.metrics, 1)
	started := time.Now()
	points, attempts, err := fetchWithRetry(ctx, o.guarded(), o.retry, symbol, req.Start, req.End, o.logger, o.metrics)
	infrastructure.RecordActiveFetchChange(ctx, o.metrics, -1)
	infrastructure.RecordFetchMetrics(ctx, o.metrics, symbol, time.Since(started), err == nil)

	if err != nil {
		failure := classifyFailure(symbol, attempts, err)
		o.logger.WarnContext(ctx, "symbol fetch failed",
			slog.String("symbol", symbol),
			slog.Int("attempts", attempts),
			slog.Bool("retryable", failure.Retryable),
			slog.String("reason", failure.Reason))
		return symbolOutcome{failure: &failure}
	}

	if len(points) == 0 {
		failure := domain.SymbolFailure{
			Symbol:    symbol,
			Stage:     domain.StageFetch,
			Reason:    "source returned an empty series",
			Retryable: false,
			Attempts:  attempts,
		}
		return symbolOutcome{failure: &failure}
	}

	points = o.mergeCap(symbol, points)

	if o.store != nil {
		if putErr := o.store.Put(ctx, key, points); putErr != nil {
			// Write-back failure costs a refetch next run, nothing more.
			o.logger.WarnContext(ctx, "cache write-back failed",
				slog.String("symbol", symbol),
				slog.String("error", putErr.Error()))
		} else {
			infrastructure.RecordCacheOperation(ctx, o.metrics, "write")
		}
	}

	return symbolOutcome{series: points}
}

// guarded wraps the source with the circuit breaker when one is configured
func (o *Orchestrator) guarded() Source {
	if o.breaker == nil {
		return o.source
	}
	return &breakerSource{source: o.source, breaker: o.breaker}
}

// breakerSource consults the breaker around every underlying call
type breakerSource struct {
	source  Source
	breaker *CircuitBreaker
}

func (b *breakerSource) FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error) {
	if err := b.breaker.Allow(symbol); err != nil {
		return nil, err
	}
	points, err := b.source.FetchDaily(ctx, symbol, start, end)
	if err != nil {
		b.breaker.RecordFailure()
		return nil, err
	}
	b.breaker.RecordSuccess()
	return points, nil
}

// mergeCap fills PricePoint.MarketCap from the cap provider where the
// source supplied none
func (o *Orchestrator) mergeCap(symbol string, points []domain.PricePoint) []domain.PricePoint {
	if o.caps == nil {
		return points
	}
	capValue, ok := o.caps.MarketCap(symbol)
	if !ok || capValue <= 0 {
		return points
	}
	for i := range points {
		if points[i].MarketCap == 0 {
			points[i].MarketCap = capValue
		}
	}
	return points
}

// classifyFailure converts a terminal fetch error into a report entry
func classifyFailure(symbol string, attempts int, err error) domain.SymbolFailure {
	failure := domain.SymbolFailure{
		Symbol:   symbol,
		Stage:    domain.StageFetch,
		Reason:   err.Error(),
		Attempts: attempts,
	}
	if pe, ok := apperrors.AsPipelineError(err); ok {
		failure.Reason = pe.Message
		failure.Retryable = pe.Retryable
	}
	return failure
}
