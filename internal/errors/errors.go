package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Type represents the classification of a pipeline error
type Type string

const (
	// TypeTransientFetch covers timeouts, rate limits and upstream 5xx.
	// Retried with backoff up to the configured attempt bound.
	TypeTransientFetch Type = "transient_fetch"

	// TypePermanentFetch covers unknown symbols and malformed responses.
	// Never retried; the symbol is skipped and recorded.
	TypePermanentFetch Type = "permanent_fetch"

	// TypeDataValidation covers malformed records inside an otherwise
	// usable series. The record is dropped, the symbol continues.
	TypeDataValidation Type = "data_validation"

	// TypeCacheRead covers unreadable or unparsable cache entries.
	// Treated as a cache miss, never fatal.
	TypeCacheRead Type = "cache_read"
)

// PipelineError is a classified per-symbol error. All per-symbol errors are
// collected into the run's error report; they never interrupt other symbols.
type PipelineError struct {
	Type      Type
	Symbol    string
	Stage     string
	Message   string
	Cause     error
	Retryable bool
	Attempts  int
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e == nil {
		return "unknown pipeline error"
	}
	msg := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	if e.Symbol != "" {
		msg = fmt.Sprintf("[%s] %s: %s", e.Type, e.Symbol, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewTransientFetch creates a retryable fetch error
func NewTransientFetch(symbol, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:      TypeTransientFetch,
		Symbol:    symbol,
		Stage:     "fetch",
		Message:   message,
		Cause:     cause,
		Retryable: true,
	}
}

// NewPermanentFetch creates a non-retryable fetch error
func NewPermanentFetch(symbol, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:      TypePermanentFetch,
		Symbol:    symbol,
		Stage:     "fetch",
		Message:   message,
		Cause:     cause,
		Retryable: false,
	}
}

// NewDataValidation creates a dropped-record validation error
func NewDataValidation(symbol, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:      TypeDataValidation,
		Symbol:    symbol,
		Stage:     "process",
		Message:   message,
		Cause:     cause,
		Retryable: false,
	}
}

// NewCacheRead creates a cache read error, logically a cache miss
func NewCacheRead(symbol, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:      TypeCacheRead,
		Symbol:    symbol,
		Stage:     "fetch",
		Message:   message,
		Cause:     cause,
		Retryable: false,
	}
}

// IsRetryable reports whether err should be retried with backoff.
// Context cancellation and deadline expiry are never retryable: the caller
// asked the work to stop.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetType returns the classification of err, or "" for unclassified errors
func GetType(err error) Type {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type
	}
	return ""
}

// AsPipelineError extracts a PipelineError from err's chain
func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// ClassifyHTTPStatus converts an upstream HTTP status into a classified
// fetch error. Rate limits, timeouts and server errors are transient;
// every other non-2xx status is permanent.
func ClassifyHTTPStatus(symbol string, status int) *PipelineError {
	switch {
	case status == http.StatusTooManyRequests:
		return NewTransientFetch(symbol, fmt.Sprintf("rate limited (status %d)", status), nil)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return NewTransientFetch(symbol, fmt.Sprintf("upstream timeout (status %d)", status), nil)
	case status >= 500:
		return NewTransientFetch(symbol, fmt.Sprintf("upstream server error (status %d)", status), nil)
	case status == http.StatusNotFound:
		return NewPermanentFetch(symbol, "symbol not found upstream", nil)
	default:
		return NewPermanentFetch(symbol, fmt.Sprintf("upstream rejected request (status %d)", status), nil)
	}
}

// ErrNoSymbolsSucceeded is the only pipeline-level fatal condition: the
// surviving symbol set is empty after fetch and cleaning.
var ErrNoSymbolsSucceeded = errors.New("no symbols succeeded: every symbol failed during fetch or cleaning")

// ErrorList collects classified errors across symbols
type ErrorList struct {
	Errors []*PipelineError
}

// Error implements the error interface
func (l *ErrorList) Error() string {
	switch len(l.Errors) {
	case 0:
		return "no errors"
	case 1:
		return l.Errors[0].Error()
	default:
		return fmt.Sprintf("multiple errors: %d errors occurred", len(l.Errors))
	}
}

// Add appends a classified error to the list
func (l *ErrorList) Add(err *PipelineError) {
	if err != nil {
		l.Errors = append(l.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (l *ErrorList) HasErrors() bool {
	return len(l.Errors) > 0
}

// ByType returns the errors recorded for one classification
func (l *ErrorList) ByType(t Type) []*PipelineError {
	var out []*PipelineError
	for _, e := range l.Errors {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
