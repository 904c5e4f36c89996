package domain

import (
	"math"
	"time"
)

// ProcessedRecord represents one cleaned, metric-bearing trading day for a
// symbol. Records are immutable once the calculator emits them.
type ProcessedRecord struct {
	Symbol              string    `json:"symbol" csv:"Symbol"`
	Security            string    `json:"security" csv:"Security"`
	Sector              string    `json:"sector" csv:"Sector"`
	Date                time.Time `json:"date" csv:"Date"`
	Close               float64   `json:"close" csv:"Close"`
	MA20                float64   `json:"ma_20" csv:"MA20"`
	PeriodReturnPct     float64   `json:"period_return_pct" csv:"PeriodReturnPct"`
	Volatility          float64   `json:"volatility" csv:"Volatility"`
	MarketCap           float64   `json:"market_cap" csv:"MarketCap"`
	MarketCapIsEstimate bool      `json:"market_cap_is_estimate" csv:"MarketCapIsEstimate"`
	Filled              bool      `json:"filled" csv:"Filled"`
}

// HasVolatility reports whether the volatility window held enough returns.
// Volatility is NaN when fewer than two log returns were available.
func (r ProcessedRecord) HasVolatility() bool {
	return !math.IsNaN(r.Volatility)
}
