package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	ServiceName    = "marketviz"
	ServiceVersion = "1.2.0"
	MeterName      = "marketviz"
)

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	TraceExporter  string // "stdout", "none"
	MetricExporter string // "prometheus", "none"
	EnableMetrics  bool
	EnableTracing  bool
	SampleRatio    float64
}

// OTelProviders holds the OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// DefaultOTelConfig returns a default OpenTelemetry configuration
func DefaultOTelConfig() *OTelConfig {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	return &OTelConfig{
		ServiceName:    ServiceName,
		ServiceVersion: ServiceVersion,
		Environment:    env,
		TraceExporter:  "stdout",
		MetricExporter: "prometheus",
		EnableMetrics:  true,
		EnableTracing:  env == "development",
		SampleRatio:    1.0,
	}
}

// InitializeOTel initializes OpenTelemetry for the pipeline
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = DefaultOTelConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx := context.Background()

	logger.InfoContext(ctx, "Initializing OpenTelemetry",
		slog.String("service", cfg.ServiceName),
		slog.String("version", cfg.ServiceVersion),
		slog.String("environment", cfg.Environment),
		slog.Bool("tracing_enabled", cfg.EnableTracing),
		slog.Bool("metrics_enabled", cfg.EnableMetrics))

	res, err := createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	providers := &OTelProviders{
		Logger: logger,
	}

	if cfg.EnableTracing {
		if err := initializeTracing(ctx, cfg, res, providers); err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	if cfg.EnableMetrics {
		if err := initializeMetrics(ctx, cfg, res, providers); err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return providers, nil
}

// createResource creates the OpenTelemetry resource
func createResource(cfg *OTelConfig) (*resource.Resource, error) {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("service.instance.id", generateInstanceID()),
	), nil
}

// initializeTracing sets up OpenTelemetry tracing
func initializeTracing(ctx context.Context, cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.TraceExporter {
	case "stdout":
		exporter, err = stdouttrace.New(
			stdouttrace.WithPrettyPrint(),
		)
	case "none":
		return nil
	default:
		return fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}

	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
	)

	providers.TracerProvider = tp
	providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(cfg.ServiceVersion))

	otel.SetTracerProvider(tp)

	providers.Logger.InfoContext(ctx, "Tracing initialized",
		slog.String("exporter", cfg.TraceExporter),
		slog.Float64("sample_ratio", cfg.SampleRatio))

	return nil
}

// initializeMetrics sets up OpenTelemetry metrics
func initializeMetrics(ctx context.Context, cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	switch cfg.MetricExporter {
	case "prometheus":
		exporter, err := prometheus.New()
		if err != nil {
			return fmt.Errorf("failed to create prometheus exporter: %w", err)
		}

		providers.PrometheusHTTP = promhttp.Handler()

		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)

		providers.MeterProvider = mp
		providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))

		otel.SetMeterProvider(mp)

	case "none":
		return nil
	default:
		return fmt.Errorf("unsupported metric exporter: %s", cfg.MetricExporter)
	}

	providers.Logger.InfoContext(ctx, "Metrics initialized",
		slog.String("exporter", cfg.MetricExporter))

	return nil
}

// CreatePipelineMetrics creates the pipeline's application metrics
func CreatePipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	fetchRequestsTotal, err := meter.Int64Counter(
		"fetch_requests_total",
		metric.WithDescription("Total number of upstream fetch requests"),
	)
	if err != nil {
		return nil, err
	}

	fetchRetriesTotal, err := meter.Int64Counter(
		"fetch_retries_total",
		metric.WithDescription("Total number of fetch retry attempts"),
	)
	if err != nil {
		return nil, err
	}

	fetchDuration, err := meter.Float64Histogram(
		"fetch_duration_seconds",
		metric.WithDescription("Upstream fetch duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	activeFetches, err := meter.Int64UpDownCounter(
		"active_fetches",
		metric.WithDescription("Number of in-flight upstream fetches"),
	)
	if err != nil {
		return nil, err
	}

	cacheOperationsTotal, err := meter.Int64Counter(
		"cache_operations_total",
		metric.WithDescription("Total number of cache operations by outcome"),
	)
	if err != nil {
		return nil, err
	}

	symbolFailuresTotal, err := meter.Int64Counter(
		"symbol_failures_total",
		metric.WithDescription("Total number of per-symbol failures by stage"),
	)
	if err != nil {
		return nil, err
	}

	symbolsProcessedTotal, err := meter.Int64Counter(
		"symbols_processed_total",
		metric.WithDescription("Total number of symbols that survived processing"),
	)
	if err != nil {
		return nil, err
	}

	pipelineRunsTotal, err := meter.Int64Counter(
		"pipeline_runs_total",
		metric.WithDescription("Total number of pipeline runs"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"run_duration_seconds",
		metric.WithDescription("Complete pipeline run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	stageDuration, err := meter.Float64Histogram(
		"stage_duration_seconds",
		metric.WithDescription("Pipeline stage duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		FetchRequestsTotal:    fetchRequestsTotal,
		FetchRetriesTotal:     fetchRetriesTotal,
		FetchDuration:         fetchDuration,
		ActiveFetches:         activeFetches,
		CacheOperationsTotal:  cacheOperationsTotal,
		SymbolFailuresTotal:   symbolFailuresTotal,
		SymbolsProcessedTotal: symbolsProcessedTotal,
		PipelineRunsTotal:     pipelineRunsTotal,
		RunDuration:           runDuration,
		StageDuration:         stageDuration,
	}, nil
}

// PipelineMetrics holds all pipeline-specific metrics
type PipelineMetrics struct {
	FetchRequestsTotal    metric.Int64Counter
	FetchRetriesTotal     metric.Int64Counter
	FetchDuration         metric.Float64Histogram
	ActiveFetches         metric.Int64UpDownCounter
	CacheOperationsTotal  metric.Int64Counter
	SymbolFailuresTotal   metric.Int64Counter
	SymbolsProcessedTotal metric.Int64Counter
	PipelineRunsTotal     metric.Int64Counter
	RunDuration           metric.Float64Histogram
	StageDuration         metric.Float64Histogram
}

// Shutdown gracefully shuts down OpenTelemetry providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error

	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}

	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("opentelemetry shutdown errors: %v", errs)
	}

	p.Logger.InfoContext(ctx, "OpenTelemetry shutdown complete")
	return nil
}

// generateInstanceID generates a unique instance identifier
func generateInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}

// TraceIDFromContext extracts trace ID from context for logging correlation
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// RecordError records an error on the current span
func RecordError(ctx context.Context, err error, options ...trace.EventOption) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.RecordError(err, options...)
	span.SetStatus(codes.Error, err.Error())
}

// RecordFetchMetrics records metrics for one upstream fetch attempt
func RecordFetchMetrics(ctx context.Context, metrics *PipelineMetrics, host string, duration time.Duration, success bool) {
	if metrics == nil {
		return
	}

	status := "success"
	if !success {
		status = "failure"
	}
	attrs := []attribute.KeyValue{
		attribute.String("host", host),
		attribute.String("status", status),
	}

	metrics.FetchRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.FetchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRetry records one retry attempt for a symbol
func RecordRetry(ctx context.Context, metrics *PipelineMetrics, symbol string) {
	if metrics == nil {
		return
	}
	metrics.FetchRetriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("symbol", symbol),
	))
}

// RecordCacheOperation records a cache hit, miss, stale read, write or error
func RecordCacheOperation(ctx context.Context, metrics *PipelineMetrics, op string) {
	if metrics == nil {
		return
	}
	metrics.CacheOperationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
	))
}

// RecordSymbolFailure records a per-symbol exclusion by stage and type
func RecordSymbolFailure(ctx context.Context, metrics *PipelineMetrics, stage, errType string) {
	if metrics == nil {
		return
	}
	metrics.SymbolFailuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("type", errType),
	))
}

// RecordStageMetrics records duration and outcome for one pipeline stage
func RecordStageMetrics(ctx context.Context, metrics *PipelineMetrics, stage string, duration time.Duration, success bool) {
	if metrics == nil {
		return
	}

	status := "success"
	if !success {
		status = "failure"
	}
	metrics.StageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status),
	))
}

// RecordRunMetrics records metrics for a complete pipeline run
func RecordRunMetrics(ctx context.Context, metrics *PipelineMetrics, trigger string, duration time.Duration, succeeded int, err error) {
	if metrics == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "failure"
	}
	attrs := []attribute.KeyValue{
		attribute.String("trigger", trigger),
		attribute.String("status", status),
	}

	metrics.PipelineRunsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.RunDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	metrics.SymbolsProcessedTotal.Add(ctx, int64(succeeded), metric.WithAttributes(
		attribute.String("trigger", trigger),
	))

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent("pipeline.metrics_recorded",
			trace.WithAttributes(
				attribute.Bool("success", err == nil),
				attribute.Int("symbols_succeeded", succeeded),
				attribute.Float64("duration_seconds", duration.Seconds()),
			),
		)
	}
}

// RecordActiveFetchChange records changes in the in-flight fetch count
func RecordActiveFetchChange(ctx context.Context, metrics *PipelineMetrics, delta int64) {
	if metrics == nil {
		return
	}
	metrics.ActiveFetches.Add(ctx, delta)
}
