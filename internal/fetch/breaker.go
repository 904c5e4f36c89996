package fetch

import (
	"sync"
	"time"

	apperrors "marketviz/internal/errors"
)

// BreakerState is the circuit breaker's current position
type BreakerState string

const (
	// BreakerClosed passes calls through and counts consecutive failures
	BreakerClosed BreakerState = "closed"
	// BreakerOpen rejects calls immediately until the recovery timeout
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen lets a probe call through to test recovery
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitBreaker guards the external data source: after a run of
// consecutive failures it stops issuing calls so a struggling upstream is
// not hammered by the whole worker pool. Rejections are classified as
// transient so callers treat them like any other retryable condition.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            BreakerState
	failureThreshold int
	recoveryTimeout  time.Duration
	failures         int
	openedAt         time.Time
	now              func() time.Time
}

// NewCircuitBreaker creates a closed breaker that opens after
// failureThreshold consecutive failures and probes again after
// recoveryTimeout.
func NewCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            BreakerClosed,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed. In the open state it returns a
// transient error until the recovery timeout elapses, at which point one
// probe is admitted in the half-open state.
func (b *CircuitBreaker) Allow(symbol string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) >= b.recoveryTimeout {
			b.state = BreakerHalfOpen
			return nil
		}
		return apperrors.NewTransientFetch(symbol, "circuit breaker open, rejecting call", nil)
	default:
		return nil
	}
}

// RecordSuccess resets the failure count and closes the breaker
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.state = BreakerClosed
}

// RecordFailure counts one failure. A half-open probe failure reopens
// immediately; in the closed state the breaker opens once the run of
// consecutive failures reaches the threshold.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.open()
		return
	}

	b.failures++
	if b.failures >= b.failureThreshold {
		b.open()
	}
}

// State returns the breaker's current position
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) open() {
	b.state = BreakerOpen
	b.openedAt = b.now()
	b.failures = 0
}
