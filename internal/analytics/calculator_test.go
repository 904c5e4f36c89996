package analytics

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketviz/pkg/contracts/domain"
)

var testSymbol = domain.Symbol{Ticker: "AAPL", Security: "Apple Inc.", Sector: "Information Technology"}

func seriesWithCloses(closes []float64) []domain.PricePoint {
	points := make([]domain.PricePoint, 0, len(closes))
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		points = append(points, domain.PricePoint{
			Symbol: "AAPL",
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1_000_000,
		})
	}
	return points
}

func TestComputeBaselineReturnIsExactlyZero(t *testing.T) {
	calc := NewCalculator()
	records, err := calc.Compute(context.Background(), testSymbol, seriesWithCloses([]float64{100, 110, 121}))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Zero(t, records[0].PeriodReturnPct, "baseline return is 0 by rule")
	assert.InDelta(t, 10.0, records[1].PeriodReturnPct, 1e-9)
	assert.InDelta(t, 21.0, records[2].PeriodReturnPct, 1e-9)
}

func TestComputeExplicitBaselineDate(t *testing.T) {
	points := seriesWithCloses([]float64{100, 110, 121, 133.1})
	calc := NewCalculator(WithBaseline(points[2].Date))

	records, err := calc.Compute(context.Background(), testSymbol, points)
	require.NoError(t, err)

	assert.Zero(t, records[2].PeriodReturnPct)
	assert.InDelta(t, 10.0, records[3].PeriodReturnPct, 1e-9)
	// Records before the baseline measure relative to it as well.
	assert.InDelta(t, (100.0/121.0-1)*100, records[0].PeriodReturnPct, 1e-9)
}

func TestComputeBaselineBetweenTradingDaysSnapsForward(t *testing.T) {
	points := seriesWithCloses([]float64{100, 110, 121})
	// A Saturday between the first and second records.
	baseline := points[0].Date.Add(12 * time.Hour)
	calc := NewCalculator(WithBaseline(baseline))

	records, err := calc.Compute(context.Background(), testSymbol, points)
	require.NoError(t, err)
	assert.Zero(t, records[1].PeriodReturnPct, "baseline snaps to the first record at/after the date")
}

func TestComputeVolatilityUndefinedForShortWindow(t *testing.T) {
	calc := NewCalculator()
	records, err := calc.Compute(context.Background(), testSymbol, seriesWithCloses([]float64{100, 101, 103, 102, 104}))
	require.NoError(t, err)

	// The first record has no return, the second only one: both undefined.
	assert.True(t, math.IsNaN(records[0].Volatility))
	assert.True(t, math.IsNaN(records[1].Volatility))
	assert.False(t, records[0].HasVolatility())

	// From the third record on, two returns exist.
	for _, r := range records[2:] {
		require.False(t, math.IsNaN(r.Volatility))
		assert.GreaterOrEqual(t, r.Volatility, 0.0, "volatility is never negative")
	}
}

func TestComputeVolatilityMatchesHandComputation(t *testing.T) {
	closes := []float64{100, 102, 101}
	calc := NewCalculator()
	records, err := calc.Compute(context.Background(), testSymbol, seriesWithCloses(closes))
	require.NoError(t, err)

	r1 := math.Log(102.0 / 100.0)
	r2 := math.Log(101.0 / 102.0)
	mean := (r1 + r2) / 2
	variance := ((r1-mean)*(r1-mean) + (r2-mean)*(r2-mean)) / 1 // ddof=1
	want := math.Sqrt(variance) * math.Sqrt(252) * 100

	assert.InDelta(t, want, records[2].Volatility, 1e-9)
}

func TestComputeFlatSeriesHasZeroVolatility(t *testing.T) {
	calc := NewCalculator()
	records, err := calc.Compute(context.Background(), testSymbol, seriesWithCloses([]float64{50, 50, 50, 50}))
	require.NoError(t, err)

	last := records[len(records)-1]
	assert.Equal(t, 0.0, last.Volatility)
}

func TestComputeMarketCapEstimateFlag(t *testing.T) {
	points := seriesWithCloses([]float64{100, 101})
	points[0].MarketCap = 2.8e12

	calc := NewCalculator()
	records, err := calc.Compute(context.Background(), testSymbol, points)
	require.NoError(t, err)

	assert.Equal(t, 2.8e12, records[0].MarketCap)
	assert.False(t, records[0].MarketCapIsEstimate)

	// No source figure: close × volume, flagged as an estimate.
	assert.Equal(t, 101.0*1_000_000, records[1].MarketCap)
	assert.True(t, records[1].MarketCapIsEstimate)
}

func TestComputeMovingAverage(t *testing.T) {
	calc := NewCalculator(WithVolatilityWindow(3))
	records, err := calc.Compute(context.Background(), testSymbol, seriesWithCloses([]float64{10, 20, 30, 40}))
	require.NoError(t, err)

	assert.InDelta(t, 10.0, records[0].MA20, 1e-9)
	assert.InDelta(t, 15.0, records[1].MA20, 1e-9)
	assert.InDelta(t, 20.0, records[2].MA20, 1e-9)
	assert.InDelta(t, 30.0, records[3].MA20, 1e-9, "window slides once full")
}

func TestComputeEmptySeriesIsError(t *testing.T) {
	calc := NewCalculator()
	_, err := calc.Compute(context.Background(), testSymbol, nil)
	assert.Error(t, err)
}

func TestComputeCarriesSymbolMetadata(t *testing.T) {
	calc := NewCalculator()
	records, err := calc.Compute(context.Background(), testSymbol, seriesWithCloses([]float64{100}))
	require.NoError(t, err)

	assert.Equal(t, "Apple Inc.", records[0].Security)
	assert.Equal(t, "Information Technology", records[0].Sector)
}
