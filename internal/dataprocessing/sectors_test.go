package dataprocessing

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketviz/pkg/contracts/domain"
)

func sectorRecord(symbol, sector string, date time.Time, ret, vol, marketCap float64) domain.ProcessedRecord {
	rec := processed(symbol, date, ret, vol, marketCap)
	rec.Sector = sector
	return rec
}

func TestSummarizeGroupsAtLatestDate(t *testing.T) {
	latest := time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC)
	earlier := time.Date(2024, 3, 27, 0, 0, 0, 0, time.UTC)

	records := []domain.ProcessedRecord{
		sectorRecord("AAPL", "Information Technology", latest, 10, 20, 3e12),
		sectorRecord("MSFT", "Information Technology", latest, 20, 18, 2.9e12),
		sectorRecord("XOM", "Energy", latest, -5, 25, 4e11),
		// Stale records must not leak into the snapshot.
		sectorRecord("AAPL", "Information Technology", earlier, 99, 99, 9e12),
	}

	agg := NewSectorAggregator(nil)
	summaries := agg.Summarize(context.Background(), records)
	require.Len(t, summaries, 2)

	// Sorted by total market cap descending.
	tech := summaries[0]
	assert.Equal(t, "Information Technology", tech.Sector)
	assert.Equal(t, 2, tech.ConstituentCount)
	assert.InDelta(t, 15.0, tech.AvgReturnPct, 1e-9, "unweighted arithmetic mean")
	assert.InDelta(t, 19.0, tech.AvgVolatility, 1e-9)
	assert.InDelta(t, 5.9e12, tech.TotalMarketCap, 1)
	assert.InDelta(t, 5900.0, tech.TotalMarketCapBillions, 1e-6)

	energy := summaries[1]
	assert.Equal(t, "Energy", energy.Sector)
	assert.Equal(t, 1, energy.ConstituentCount)
}

func TestSummarizeOmitsEmptySectors(t *testing.T) {
	latest := time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC)
	records := []domain.ProcessedRecord{
		sectorRecord("AAPL", "Information Technology", latest, 10, 20, 3e12),
		// Utilities exists only at an earlier date.
		sectorRecord("NEE", "Utilities", latest.AddDate(0, 0, -5), 2, 15, 1e11),
	}

	agg := NewSectorAggregator(nil)
	summaries := agg.Summarize(context.Background(), records)
	require.Len(t, summaries, 1)
	assert.Equal(t, "Information Technology", summaries[0].Sector)
}

func TestSummarizeVolatilityNaNHandling(t *testing.T) {
	latest := time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC)
	records := []domain.ProcessedRecord{
		sectorRecord("A", "Energy", latest, 1, math.NaN(), 1e9),
		sectorRecord("B", "Energy", latest, 3, 30, 2e9),
	}

	agg := NewSectorAggregator(nil)
	summaries := agg.Summarize(context.Background(), records)
	require.Len(t, summaries, 1)
	assert.InDelta(t, 30.0, summaries[0].AvgVolatility, 1e-9, "NaN volatilities are excluded from the mean")

	// A sector where no constituent has defined volatility reports NaN.
	onlyNaN := []domain.ProcessedRecord{sectorRecord("A", "Energy", latest, 1, math.NaN(), 1e9)}
	summaries = agg.Summarize(context.Background(), onlyNaN)
	require.Len(t, summaries, 1)
	assert.True(t, math.IsNaN(summaries[0].AvgVolatility))
}

func TestSummarizeEmptyInput(t *testing.T) {
	agg := NewSectorAggregator(nil)
	assert.Nil(t, agg.Summarize(context.Background(), nil))
}
