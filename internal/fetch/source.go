package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"marketviz/pkg/contracts/domain"
)

// Source retrieves one symbol's raw daily series from the external data
// provider. Implementations must be safe for concurrent use; the
// orchestrator calls FetchDaily from its worker pool.
type Source interface {
	FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error)
}

// CapProvider looks up a symbol's market capitalization. Symbols without a
// figure fall through to the close×volume estimate in the calculator.
type CapProvider interface {
	MarketCap(symbol string) (float64, bool)
}

// Request describes one orchestrated fetch across a set of symbols
type Request struct {
	Symbols  []string  `validate:"required,min=1,dive,required"`
	Start    time.Time `validate:"required"`
	End      time.Time `validate:"required,gtfield=Start"`
	UseCache bool
}

var validate = validator.New()

// Validate reports whether the request is well formed
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid fetch request: %w", err)
	}
	return nil
}

// Result is the orchestrator's output: the series for every symbol that
// succeeded plus an ordered failure list for the rest. Failures are ordered
// by the request's symbol order so reports are deterministic.
type Result struct {
	Series   map[string][]domain.PricePoint
	Failures []domain.SymbolFailure
}

// Succeeded returns the number of symbols with a fetched series
func (r *Result) Succeeded() int {
	return len(r.Series)
}
