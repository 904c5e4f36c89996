package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"marketviz/internal/config"
	apperrors "marketviz/internal/errors"
	"marketviz/internal/infrastructure"
	"marketviz/pkg/contracts/domain"
)

// RetryConfig is an explicit, first-class retry policy: every knob of the
// backoff schedule is a value the caller passes in, not control flow hidden
// inside the source.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultRetryConfig returns the standard policy: 3 attempts with
// exponential backoff from 1s capped at 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  config.DefaultMaxAttempts,
		InitialDelay: config.DefaultInitialDelay,
		MaxDelay:     config.DefaultMaxDelay,
		Multiplier:   config.DefaultBackoffMultiplier,
		Jitter:       true,
	}
}

// RetryConfigFrom builds the policy from the fetch configuration section
func RetryConfigFrom(cfg config.FetchConfig) RetryConfig {
	return RetryConfig{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.InitialDelay,
		MaxDelay:     cfg.MaxDelay,
		Multiplier:   cfg.BackoffMultiplier,
		Jitter:       true,
	}
}

// Delay returns the backoff before the given retry. Attempt 1 is the first
// retry, delayed by InitialDelay; each further retry multiplies the delay up
// to MaxDelay. Jitter spreads concurrent retries by up to 25%.
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	delay := c.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * c.Multiplier)
		if delay >= c.MaxDelay {
			delay = c.MaxDelay
			break
		}
	}
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	if c.Jitter && delay > 0 {
		delay += time.Duration(rand.Int63n(int64(delay) / 4))
	}
	return delay
}

// fetchWithRetry calls the source until it succeeds, a permanent error is
// returned, or the attempt budget is exhausted. Transient failures back off
// between attempts; context cancellation stops retrying immediately. The
// returned attempt count reports how many calls were actually made.
func fetchWithRetry(
	ctx context.Context,
	source Source,
	policy RetryConfig,
	symbol string,
	start, end time.Time,
	logger *slog.Logger,
	metrics *infrastructure.PipelineMetrics,
) ([]domain.PricePoint, int, error) {
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			infrastructure.RecordRetry(ctx, metrics, symbol)
			select {
			case <-ctx.Done():
				return nil, attempt - 1, lastErr
			case <-time.After(policy.Delay(attempt - 1)):
			}
		}

		points, err := source.FetchDaily(ctx, symbol, start, end)
		if err == nil {
			return points, attempt, nil
		}
		lastErr = err

		if !apperrors.IsRetryable(err) {
			return nil, attempt, err
		}

		logger.WarnContext(ctx, "transient fetch failure, will retry",
			slog.String("symbol", symbol),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", policy.MaxAttempts),
			slog.String("error", err.Error()))
	}

	return nil, policy.MaxAttempts, fmt.Errorf("exhausted %d attempts for %s: %w", policy.MaxAttempts, symbol, lastErr)
}
