package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"marketviz/internal/config"
	"marketviz/pkg/contracts/domain"
)

// Calculator derives the comparable metrics for one symbol's cleaned series:
// period return against a baseline, annualized volatility over a trailing
// window, a 20-day moving average and a market-cap figure. The input series
// must already be cleaned (sorted ascending, unique dates).
type Calculator struct {
	volWindow int
	baseline  time.Time
	logger    *slog.Logger
}

// CalculatorOption configures a Calculator
type CalculatorOption func(*Calculator)

// WithVolatilityWindow overrides the trailing window length in trading days
func WithVolatilityWindow(days int) CalculatorOption {
	return func(c *Calculator) { c.volWindow = days }
}

// WithBaseline sets the return baseline date. The baseline record is the
// first record at or after this date; the zero time selects the series
// start.
func WithBaseline(baseline time.Time) CalculatorOption {
	return func(c *Calculator) { c.baseline = baseline }
}

// WithCalculatorLogger sets the calculator's logger
func WithCalculatorLogger(logger *slog.Logger) CalculatorOption {
	return func(c *Calculator) { c.logger = logger }
}

// NewCalculator creates a metric calculator with the default 20-day window
func NewCalculator(opts ...CalculatorOption) *Calculator {
	c := &Calculator{
		volWindow: config.DefaultVolatilityWindow,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compute turns a cleaned series into immutable ProcessedRecords. A symbol
// with an empty cleaned series is a processing failure, reported by the
// caller distinctly from a fetch failure.
func (c *Calculator) Compute(ctx context.Context, symbol domain.Symbol, points []domain.PricePoint) ([]domain.ProcessedRecord, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("no records survived cleaning for %s", symbol.Ticker)
	}

	baselineIdx := c.baselineIndex(points)
	baselineClose := points[baselineIdx].Close

	logReturns := dailyLogReturns(points)

	records := make([]domain.ProcessedRecord, 0, len(points))
	for i, p := range points {
		record := domain.ProcessedRecord{
			Symbol:   p.Symbol,
			Security: symbol.Security,
			Sector:   symbol.Sector,
			Date:     p.Date,
			Close:    p.Close,
			Filled:   p.Filled,
		}

		// The baseline is its own reference point: its return is 0 by
		// rule, never the outcome of a division.
		if i == baselineIdx {
			record.PeriodReturnPct = 0
		} else {
			record.PeriodReturnPct = (p.Close/baselineClose - 1) * 100
		}

		record.MA20 = trailingMean(points, i, c.volWindow)
		record.Volatility = c.trailingVolatility(logReturns, i)

		if p.MarketCap > 0 {
			record.MarketCap = p.MarketCap
		} else {
			// Last-resort estimate, flagged so consumers can tell
			// exact from approximated figures.
			record.MarketCap = p.Close * float64(p.Volume)
			record.MarketCapIsEstimate = true
		}

		records = append(records, record)
	}

	c.logger.DebugContext(ctx, "computed metrics",
		slog.String("symbol", symbol.Ticker),
		slog.Int("records", len(records)),
		slog.Time("baseline", points[baselineIdx].Date))

	return records, nil
}

// baselineIndex finds the first record at or after the configured baseline
// date, falling back to the series start when every record predates it
func (c *Calculator) baselineIndex(points []domain.PricePoint) int {
	if c.baseline.IsZero() {
		return 0
	}
	for i, p := range points {
		if !p.Date.Before(c.baseline) {
			return i
		}
	}
	return 0
}

// trailingVolatility is the sample standard deviation of the log returns in
// the trailing window ending at record i, annualized by √252 and expressed
// in percent. NaN when the window holds fewer than two returns.
func (c *Calculator) trailingVolatility(logReturns []float64, i int) float64 {
	// logReturns[j] is the return from record j-1 to record j; record 0
	// has none.
	hi := i
	lo := hi - c.volWindow + 1
	if lo < 1 {
		lo = 1
	}
	if hi < lo+1 {
		return math.NaN()
	}

	window := logReturns[lo : hi+1]
	return sampleStdDev(window) * math.Sqrt(config.TradingDaysPerYear) * 100
}

// dailyLogReturns computes ln(close_i / close_{i-1}) for each record.
// Index 0 is unused padding so returns align with record indices.
func dailyLogReturns(points []domain.PricePoint) []float64 {
	returns := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		returns[i] = math.Log(points[i].Close / points[i-1].Close)
	}
	return returns
}

// trailingMean averages the closes in the window ending at record i,
// shrinking at the series head
func trailingMean(points []domain.PricePoint, i, window int) float64 {
	lo := i - window + 1
	if lo < 0 {
		lo = 0
	}
	sum := 0.0
	for j := lo; j <= i; j++ {
		sum += points[j].Close
	}
	return sum / float64(i-lo+1)
}

// sampleStdDev is the n−1 standard deviation of values; caller guarantees
// len(values) >= 2
func sampleStdDev(values []float64) float64 {
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}
