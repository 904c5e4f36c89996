package dataprocessing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "marketviz/internal/errors"
	"marketviz/pkg/contracts/domain"
)

func point(symbol string, date time.Time, close float64) domain.PricePoint {
	return domain.PricePoint{
		Symbol: symbol,
		Date:   date,
		Open:   close,
		High:   close * 1.02,
		Low:    close * 0.98,
		Close:  close,
		Volume: 100_000,
	}
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestCleanDropsInvalidPoints(t *testing.T) {
	cleaner := NewCleaner()

	bad := point("AAPL", day(3), 100)
	bad.Close = -5 // non-positive close

	inverted := point("AAPL", day(4), 100)
	inverted.High, inverted.Low = inverted.Low, inverted.High

	points := []domain.PricePoint{point("AAPL", day(2), 100), bad, inverted, point("AAPL", day(5), 102)}
	cleaned, dropped := cleaner.Clean(context.Background(), "AAPL", points)

	require.Len(t, dropped, 2)
	for _, d := range dropped {
		assert.Equal(t, apperrors.TypeDataValidation, d.Type)
		assert.Equal(t, "AAPL", d.Symbol)
	}

	// The dropped days leave a 2-weekday hole, which is within the fill
	// tolerance: synthetic carry-forward points replace them.
	require.Len(t, cleaned, 4)
	assert.False(t, cleaned[0].Filled)
	for _, p := range cleaned[1:3] {
		assert.True(t, p.Filled)
		assert.Equal(t, 100.0, p.Close, "filled points repeat the last valid close")
	}
	assert.Equal(t, day(3), cleaned[1].Date)
	assert.Equal(t, day(4), cleaned[2].Date)
	assert.False(t, cleaned[3].Filled)
	assert.Equal(t, 102.0, cleaned[3].Close)
}

func TestCleanDroppedGapBeyondToleranceStaysOpen(t *testing.T) {
	cleaner := NewCleaner(WithMaxFillGap(1))

	bad := point("AAPL", day(3), 100)
	bad.Close = -5
	inverted := point("AAPL", day(4), 100)
	inverted.High, inverted.Low = inverted.Low, inverted.High

	points := []domain.PricePoint{point("AAPL", day(2), 100), bad, inverted, point("AAPL", day(5), 102)}
	cleaned, dropped := cleaner.Clean(context.Background(), "AAPL", points)

	require.Len(t, dropped, 2)
	require.Len(t, cleaned, 2, "a 2-weekday hole exceeds a fill tolerance of 1")
	assert.Equal(t, day(2), cleaned[0].Date)
	assert.Equal(t, day(5), cleaned[1].Date)
}

func TestCleanSortsAndDeduplicates(t *testing.T) {
	cleaner := NewCleaner(WithMaxFillGap(0))

	first := point("AAPL", day(2), 100)
	dup := point("AAPL", day(2), 105) // later-inserted duplicate wins
	later := point("AAPL", day(3), 110)

	cleaned, dropped := cleaner.Clean(context.Background(), "AAPL", []domain.PricePoint{later, first, dup})
	assert.Empty(t, dropped)
	require.Len(t, cleaned, 2)
	assert.Equal(t, day(2), cleaned[0].Date)
	assert.Equal(t, 105.0, cleaned[0].Close)
	assert.Equal(t, day(3), cleaned[1].Date)
}

func TestCleanForwardFillsShortGap(t *testing.T) {
	cleaner := NewCleaner() // tolerance 3 weekdays

	// Monday Jan 8 then Thursday Jan 11: Tuesday and Wednesday missing.
	points := []domain.PricePoint{point("AAPL", day(8), 100), point("AAPL", day(11), 104)}
	cleaned, dropped := cleaner.Clean(context.Background(), "AAPL", points)
	assert.Empty(t, dropped)
	require.Len(t, cleaned, 4)

	for _, filled := range cleaned[1:3] {
		assert.True(t, filled.Filled)
		assert.Equal(t, 100.0, filled.Close, "filled points repeat the last known close")
		assert.Zero(t, filled.Volume)
	}
	assert.Equal(t, day(9), cleaned[1].Date)
	assert.Equal(t, day(10), cleaned[2].Date)
	assert.False(t, cleaned[3].Filled)
}

func TestCleanSkipsWeekendsWhenFilling(t *testing.T) {
	cleaner := NewCleaner()

	// Friday Jan 5 then Monday Jan 8: the weekend is not a gap.
	points := []domain.PricePoint{point("AAPL", day(5), 100), point("AAPL", day(8), 101)}
	cleaned, _ := cleaner.Clean(context.Background(), "AAPL", points)
	assert.Len(t, cleaned, 2, "weekend days are never filled")
}

func TestCleanLeavesLongGapsUnfilled(t *testing.T) {
	cleaner := NewCleaner()

	// Monday Jan 8 then Wednesday Jan 17: six missing weekdays, beyond
	// the tolerance.
	points := []domain.PricePoint{point("AAPL", day(8), 100), point("AAPL", day(17), 104)}
	cleaned, _ := cleaner.Clean(context.Background(), "AAPL", points)
	assert.Len(t, cleaned, 2, "gaps beyond the tolerance stay unfilled")
}

func TestCleanAllInvalidYieldsEmpty(t *testing.T) {
	cleaner := NewCleaner()

	bad := point("XXX", day(2), 100)
	bad.Close = 0

	cleaned, dropped := cleaner.Clean(context.Background(), "XXX", []domain.PricePoint{bad})
	assert.Empty(t, cleaned)
	assert.Len(t, dropped, 1)
}

func TestCleanEmptyInput(t *testing.T) {
	cleaner := NewCleaner()
	cleaned, dropped := cleaner.Clean(context.Background(), "AAPL", nil)
	assert.Empty(t, cleaned)
	assert.Empty(t, dropped)
}
