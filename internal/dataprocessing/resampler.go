package dataprocessing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"marketviz/internal/config"
	"marketviz/pkg/contracts/domain"
)

// Resampler buckets the full processed dataset into contiguous calendar
// periods and selects one representative snapshot per symbol per period.
// Axis bounds are computed over the entire dataset before any frame exists,
// so every frame shares identical scaling and playback never rescales.
type Resampler struct {
	padding float64
	logger  *slog.Logger
}

// ResamplerOption configures a Resampler
type ResamplerOption func(*Resampler)

// WithAxisPadding overrides the fractional padding applied to each axis span
func WithAxisPadding(fraction float64) ResamplerOption {
	return func(r *Resampler) { r.padding = fraction }
}

// WithResamplerLogger sets the resampler's logger
func WithResamplerLogger(logger *slog.Logger) ResamplerOption {
	return func(r *Resampler) { r.logger = logger }
}

// NewResampler creates a resampler with the standard 10% axis padding
func NewResampler(opts ...ResamplerOption) *Resampler {
	r := &Resampler{
		padding: config.AxisPaddingFraction,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resample partitions the dataset's covered date range into calendar
// periods for the code and builds one frame per period. Within a period
// each symbol contributes its most recent record at or before the period
// end; a symbol with no record yet is omitted, never interpolated.
func (r *Resampler) Resample(ctx context.Context, records []domain.ProcessedRecord, period domain.PeriodCode) (domain.AnimationSet, error) {
	if !period.Valid() {
		return domain.AnimationSet{}, fmt.Errorf("invalid period code %q", period)
	}
	if len(records) == 0 {
		return domain.AnimationSet{}, fmt.Errorf("no records to resample")
	}

	set := domain.AnimationSet{
		Period: period,
		Bounds: r.ComputeAxisBounds(records),
	}

	// Group per symbol, preserving insertion order within a date so the
	// later-inserted record wins a same-date tie.
	bySymbol := make(map[string][]domain.ProcessedRecord)
	minDate, maxDate := records[0].Date, records[0].Date
	for _, rec := range records {
		bySymbol[rec.Symbol] = append(bySymbol[rec.Symbol], rec)
		if rec.Date.Before(minDate) {
			minDate = rec.Date
		}
		if rec.Date.After(maxDate) {
			maxDate = rec.Date
		}
	}

	symbols := make([]string, 0, len(bySymbol))
	for symbol, series := range bySymbol {
		sort.SliceStable(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
		bySymbol[symbol] = series
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	// cursor[symbol] is the index of the next unconsumed record; frames
	// advance it monotonically since period ends are increasing.
	cursor := make(map[string]int, len(symbols))

	for start := periodStart(minDate, period); !start.After(maxDate); {
		end := periodEnd(start, period)

		frame := domain.AnimationFrame{
			Label:       periodLabel(start, period),
			PeriodStart: start,
			PeriodEnd:   end,
		}

		for _, symbol := range symbols {
			series := bySymbol[symbol]
			i := cursor[symbol]
			for i < len(series) && !series[i].Date.After(end) {
				i++
			}
			cursor[symbol] = i
			if i == 0 {
				continue // no record up to this period yet
			}
			frame.Snapshots = append(frame.Snapshots, snapshotOf(series[i-1]))
		}

		set.Frames = append(set.Frames, frame)
		start = end.AddDate(0, 0, 1)
	}

	r.logger.InfoContext(ctx, "resampled dataset into frames",
		slog.String("period", string(period)),
		slog.Int("frames", len(set.Frames)),
		slog.Int("symbols", len(symbols)))

	return set, nil
}

// ComputeAxisBounds scans the entire dataset for the min/max of each chart
// axis and pads each side by the configured fraction of the span. NaN
// volatilities are excluded from the volatility axis.
func (r *Resampler) ComputeAxisBounds(records []domain.ProcessedRecord) domain.AxisBounds {
	var bounds domain.AxisBounds
	first := true
	volSeen := false

	for _, rec := range records {
		if first {
			bounds.ReturnMin, bounds.ReturnMax = rec.PeriodReturnPct, rec.PeriodReturnPct
			bounds.MarketCapMin, bounds.MarketCapMax = rec.MarketCap, rec.MarketCap
			first = false
		} else {
			bounds.ReturnMin = math.Min(bounds.ReturnMin, rec.PeriodReturnPct)
			bounds.ReturnMax = math.Max(bounds.ReturnMax, rec.PeriodReturnPct)
			bounds.MarketCapMin = math.Min(bounds.MarketCapMin, rec.MarketCap)
			bounds.MarketCapMax = math.Max(bounds.MarketCapMax, rec.MarketCap)
		}

		if rec.HasVolatility() {
			if !volSeen {
				bounds.VolatilityMin, bounds.VolatilityMax = rec.Volatility, rec.Volatility
				volSeen = true
			} else {
				bounds.VolatilityMin = math.Min(bounds.VolatilityMin, rec.Volatility)
				bounds.VolatilityMax = math.Max(bounds.VolatilityMax, rec.Volatility)
			}
		}
	}

	bounds.ReturnMin, bounds.ReturnMax = pad(bounds.ReturnMin, bounds.ReturnMax, r.padding)
	bounds.VolatilityMin, bounds.VolatilityMax = pad(bounds.VolatilityMin, bounds.VolatilityMax, r.padding)
	bounds.MarketCapMin, bounds.MarketCapMax = pad(bounds.MarketCapMin, bounds.MarketCapMax, r.padding)
	return bounds
}

func pad(lo, hi, fraction float64) (float64, float64) {
	margin := (hi - lo) * fraction
	return lo - margin, hi + margin
}

func snapshotOf(rec domain.ProcessedRecord) domain.FrameSnapshot {
	return domain.FrameSnapshot{
		Symbol:              rec.Symbol,
		Security:            rec.Security,
		Sector:              rec.Sector,
		Date:                rec.Date,
		Close:               rec.Close,
		ReturnPct:           rec.PeriodReturnPct,
		Volatility:          rec.Volatility,
		MarketCap:           rec.MarketCap,
		MarketCapIsEstimate: rec.MarketCapIsEstimate,
	}
}

// periodStart returns the first civil day of the period containing date
func periodStart(date time.Time, period domain.PeriodCode) time.Time {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	switch period {
	case domain.PeriodDaily:
		return day
	case domain.PeriodWeekly:
		// ISO weeks run Monday through Sunday.
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case domain.PeriodMonthly:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	case domain.PeriodQuarterly:
		quarterMonth := time.Month((int(day.Month())-1)/3*3 + 1)
		return time.Date(day.Year(), quarterMonth, 1, 0, 0, 0, 0, time.UTC)
	}
	return day
}

// periodEnd returns the last civil day of the period starting at start
func periodEnd(start time.Time, period domain.PeriodCode) time.Time {
	switch period {
	case domain.PeriodDaily:
		return start
	case domain.PeriodWeekly:
		return start.AddDate(0, 0, 6)
	case domain.PeriodMonthly:
		return start.AddDate(0, 1, 0).AddDate(0, 0, -1)
	case domain.PeriodQuarterly:
		return start.AddDate(0, 3, 0).AddDate(0, 0, -1)
	}
	return start
}

// periodLabel names the period for display and keying
func periodLabel(start time.Time, period domain.PeriodCode) string {
	switch period {
	case domain.PeriodDaily:
		return start.Format("2006-01-02")
	case domain.PeriodWeekly:
		year, week := start.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case domain.PeriodMonthly:
		return start.Format("2006-01")
	case domain.PeriodQuarterly:
		quarter := (int(start.Month())-1)/3 + 1
		return fmt.Sprintf("%dQ%d", start.Year(), quarter)
	}
	return start.Format("2006-01-02")
}
