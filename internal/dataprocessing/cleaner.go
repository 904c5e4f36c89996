package dataprocessing

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"marketviz/internal/config"
	apperrors "marketviz/internal/errors"
	"marketviz/pkg/contracts/domain"
)

// Cleaner normalizes one symbol's raw series before metrics are computed:
// invalid points are dropped (the symbol continues), duplicate dates are
// collapsed last-wins, the series is sorted ascending, and gaps of at most
// MaxFillGapDays missing weekdays are forward-filled from the last known
// point. Longer gaps are left unfilled.
type Cleaner struct {
	maxFillGapDays int
	logger         *slog.Logger
}

// CleanerOption configures a Cleaner
type CleanerOption func(*Cleaner)

// WithMaxFillGap overrides the forward-fill tolerance in weekdays
func WithMaxFillGap(days int) CleanerOption {
	return func(c *Cleaner) { c.maxFillGapDays = days }
}

// WithCleanerLogger sets the cleaner's logger
func WithCleanerLogger(logger *slog.Logger) CleanerOption {
	return func(c *Cleaner) { c.logger = logger }
}

// NewCleaner creates a cleaner with the default 3-day fill tolerance
func NewCleaner(opts ...CleanerOption) *Cleaner {
	c := &Cleaner{
		maxFillGapDays: config.DefaultMaxFillGapDays,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clean returns the normalized series plus one DataValidationError per
// dropped point. Dropped points never abort the symbol; a fully empty
// result is the caller's signal to report a processing failure.
func (c *Cleaner) Clean(ctx context.Context, symbol string, points []domain.PricePoint) ([]domain.PricePoint, []*apperrors.PipelineError) {
	var dropped []*apperrors.PipelineError

	valid := make([]domain.PricePoint, 0, len(points))
	for _, p := range points {
		if err := p.Validate(); err != nil {
			dropped = append(dropped, apperrors.NewDataValidation(symbol, err.Error(), nil))
			continue
		}
		valid = append(valid, p)
	}

	if len(dropped) > 0 {
		c.logger.WarnContext(ctx, "dropped invalid points during cleaning",
			slog.String("symbol", symbol),
			slog.Int("dropped", len(dropped)),
			slog.Int("kept", len(valid)))
	}
	if len(valid) == 0 {
		return nil, dropped
	}

	// Sort ascending; a stable sort keeps insertion order within a date so
	// the later-inserted duplicate wins below.
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Day().Before(valid[j].Day())
	})

	deduped := valid[:0]
	for _, p := range valid {
		p.Date = p.Day()
		if n := len(deduped); n > 0 && deduped[n-1].Date.Equal(p.Date) {
			deduped[n-1] = p
			continue
		}
		deduped = append(deduped, p)
	}

	return c.forwardFill(ctx, symbol, deduped), dropped
}

// forwardFill inserts synthetic points for short runs of missing weekdays.
// A filled point repeats the last known close with zero volume and is
// flagged so downstream consumers can tell it from a traded day.
func (c *Cleaner) forwardFill(ctx context.Context, symbol string, points []domain.PricePoint) []domain.PricePoint {
	if c.maxFillGapDays <= 0 || len(points) < 2 {
		return points
	}

	filled := make([]domain.PricePoint, 0, len(points))
	filledCount := 0

	for i, p := range points {
		if i > 0 {
			gap := weekdaysBetween(points[i-1].Date, p.Date)
			if len(gap) > 0 && len(gap) <= c.maxFillGapDays {
				last := points[i-1]
				for _, day := range gap {
					filled = append(filled, filledPoint(last, day))
					filledCount++
				}
			}
		}
		filled = append(filled, p)
	}

	if filledCount > 0 {
		c.logger.DebugContext(ctx, "forward-filled short gaps",
			slog.String("symbol", symbol),
			slog.Int("filled", filledCount))
	}
	return filled
}

// filledPoint repeats the last known data at the missing day
func filledPoint(last domain.PricePoint, day time.Time) domain.PricePoint {
	return domain.PricePoint{
		Symbol:    last.Symbol,
		Date:      day,
		Open:      last.Close,
		High:      last.Close,
		Low:       last.Close,
		Close:     last.Close,
		Volume:    0,
		MarketCap: last.MarketCap,
		Filled:    true,
	}
}

// weekdaysBetween lists the weekdays strictly between two dates
func weekdaysBetween(from, to time.Time) []time.Time {
	var days []time.Time
	for d := from.AddDate(0, 0, 1); d.Before(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days = append(days, d)
		}
	}
	return days
}
