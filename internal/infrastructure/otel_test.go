package infrastructure

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// A single test exercises the prometheus path end to end: the exporter
// registers with the default prometheus registry, so it can only be
// initialized once per process.
func TestInitializeOTelPrometheus(t *testing.T) {
	cfg := DefaultOTelConfig()
	cfg.EnableTracing = false

	providers, err := InitializeOTel(cfg, quietLogger())
	require.NoError(t, err)
	require.NotNil(t, providers)

	assert.Nil(t, providers.TracerProvider)
	require.NotNil(t, providers.MeterProvider)
	require.NotNil(t, providers.Meter)
	require.NotNil(t, providers.PrometheusHTTP)

	metrics, err := CreatePipelineMetrics(providers.Meter)
	require.NoError(t, err)
	assert.NotNil(t, metrics.FetchRequestsTotal)
	assert.NotNil(t, metrics.RunDuration)
	assert.NotNil(t, metrics.StageDuration)

	ctx := context.Background()
	RecordFetchMetrics(ctx, metrics, "host-a", 120*time.Millisecond, true)
	RecordCacheOperation(ctx, metrics, "hit")
	RecordStageMetrics(ctx, metrics, "fetch", time.Second, true)
	RecordRunMetrics(ctx, metrics, "manual", 3*time.Second, 10, nil)

	rec := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	assert.NoError(t, providers.Shutdown(shutdownCtx))
}

func TestInitializeOTelDisabled(t *testing.T) {
	cfg := DefaultOTelConfig()
	cfg.EnableTracing = false
	cfg.EnableMetrics = false

	providers, err := InitializeOTel(cfg, quietLogger())
	require.NoError(t, err)
	assert.Nil(t, providers.MeterProvider)
	assert.Nil(t, providers.PrometheusHTTP)
}

func TestInitializeOTelRejectsUnknownExporter(t *testing.T) {
	cfg := DefaultOTelConfig()
	cfg.EnableTracing = false
	cfg.MetricExporter = "statsd"

	_, err := InitializeOTel(cfg, quietLogger())
	assert.Error(t, err)
}

// Every Record helper must tolerate a nil metrics struct so callers never
// need nil guards.
func TestRecordHelpersNilSafe(t *testing.T) {
	ctx := context.Background()
	RecordFetchMetrics(ctx, nil, "host", time.Second, false)
	RecordRetry(ctx, nil, "AAA")
	RecordCacheOperation(ctx, nil, "miss")
	RecordSymbolFailure(ctx, nil, "fetch", "transient_fetch")
	RecordStageMetrics(ctx, nil, "process", time.Second, true)
	RecordRunMetrics(ctx, nil, "manual", time.Second, 3, nil)
	RecordActiveFetchChange(ctx, nil, 1)
}
