package domain

import (
	"fmt"
	"time"
)

// PeriodCode selects the calendar bucketing applied by the resampler
type PeriodCode string

const (
	PeriodDaily     PeriodCode = "D"
	PeriodWeekly    PeriodCode = "W"
	PeriodMonthly   PeriodCode = "M"
	PeriodQuarterly PeriodCode = "Q"
)

// ParsePeriodCode converts a user-supplied period string to a PeriodCode
func ParsePeriodCode(s string) (PeriodCode, error) {
	switch PeriodCode(s) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodQuarterly:
		return PeriodCode(s), nil
	}
	return "", fmt.Errorf("invalid period code %q: must be one of D, W, M, Q", s)
}

// Valid reports whether the code is one of the four supported periods
func (p PeriodCode) Valid() bool {
	_, err := ParsePeriodCode(string(p))
	return err == nil
}

// AxisBounds holds the global chart-axis ranges shared by every frame in an
// animation. Bounds are computed over the entire processed dataset before
// any frame is built so playback never rescales.
type AxisBounds struct {
	ReturnMin     float64 `json:"return_min"`
	ReturnMax     float64 `json:"return_max"`
	VolatilityMin float64 `json:"volatility_min"`
	VolatilityMax float64 `json:"volatility_max"`
	MarketCapMin  float64 `json:"market_cap_min"`
	MarketCapMax  float64 `json:"market_cap_max"`
}

// FrameSnapshot is one symbol's representative record inside a frame,
// the most recent trading date at or before the frame's period end.
type FrameSnapshot struct {
	Symbol              string    `json:"symbol" csv:"Symbol"`
	Security            string    `json:"security" csv:"Security"`
	Sector              string    `json:"sector" csv:"Sector"`
	Date                time.Time `json:"date" csv:"Date"`
	Close               float64   `json:"close" csv:"Close"`
	ReturnPct           float64   `json:"return_pct" csv:"ReturnPct"`
	Volatility          float64   `json:"volatility" csv:"Volatility"`
	MarketCap           float64   `json:"market_cap" csv:"MarketCap"`
	MarketCapIsEstimate bool      `json:"market_cap_is_estimate" csv:"MarketCapIsEstimate"`
}

// AnimationFrame is one period bucket: at most one snapshot per symbol
type AnimationFrame struct {
	Label       string          `json:"label"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	Snapshots   []FrameSnapshot `json:"snapshots"`
}

// AnimationSet is the complete animation dataset: ordered frames plus the
// single axis-bounds record they all share
type AnimationSet struct {
	Period PeriodCode       `json:"period"`
	Bounds AxisBounds       `json:"bounds"`
	Frames []AnimationFrame `json:"frames"`
}
