package fetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "marketviz/internal/errors"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow("AAPL"))
		b.RecordFailure()
	}
	assert.Equal(t, BreakerClosed, b.State())

	require.NoError(t, b.Allow("AAPL"))
	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())

	err := b.Allow("AAPL")
	require.Error(t, err)
	pe, ok := apperrors.AsPipelineError(err)
	require.True(t, ok)
	assert.True(t, pe.Retryable, "breaker rejections are transient to callers")
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	assert.Equal(t, BreakerClosed, b.State(), "non-consecutive failures must not open the breaker")
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewCircuitBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	require.Equal(t, BreakerOpen, b.State())
	require.Error(t, b.Allow("AAPL"))

	// After the recovery timeout one probe is admitted.
	now = now.Add(61 * time.Second)
	require.NoError(t, b.Allow("AAPL"))
	assert.Equal(t, BreakerHalfOpen, b.State())

	// A failed probe snaps straight back to open.
	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())

	// A successful probe closes the breaker.
	now = now.Add(61 * time.Second)
	require.NoError(t, b.Allow("AAPL"))
	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
	assert.NoError(t, b.Allow("AAPL"))
}
