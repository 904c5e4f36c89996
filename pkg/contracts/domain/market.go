package domain

import (
	"fmt"
	"time"
)

// Symbol represents one equity in the visualization universe
type Symbol struct {
	Ticker   string  `json:"ticker" validate:"required,min=1,max=10"`
	Security string  `json:"security" validate:"required"`
	Sector   string  `json:"sector" validate:"required"`
	MarketCap float64 `json:"market_cap,omitempty"`
}

// SectorUnknown is assigned when the universe source carries no sector label
const SectorUnknown = "Unknown"

// GICSSectors lists the eleven top-level GICS sector labels
var GICSSectors = []string{
	"Communication Services",
	"Consumer Discretionary",
	"Consumer Staples",
	"Energy",
	"Financials",
	"Health Care",
	"Industrials",
	"Information Technology",
	"Materials",
	"Real Estate",
	"Utilities",
}

// PricePoint represents one trading day of raw market data for a symbol
type PricePoint struct {
	Symbol    string    `json:"symbol" csv:"Symbol" validate:"required"`
	Date      time.Time `json:"date" csv:"Date" validate:"required"`
	Open      float64   `json:"open" csv:"Open" validate:"min=0"`
	High      float64   `json:"high" csv:"High" validate:"min=0"`
	Low       float64   `json:"low" csv:"Low" validate:"min=0"`
	Close     float64   `json:"close" csv:"Close" validate:"min=0"`
	Volume    int64     `json:"volume" csv:"Volume" validate:"min=0"`
	MarketCap float64   `json:"market_cap,omitempty" csv:"MarketCap"`

	// Filled marks a synthetic point created by forward-filling a short
	// gap during cleaning. Raw fetched points never carry it.
	Filled bool `json:"filled,omitempty" csv:"Filled"`
}

// Validate reports the first invariant violated by the point, or nil.
// A violating point is dropped during cleaning, it never aborts the symbol.
func (p PricePoint) Validate() error {
	switch {
	case p.Date.IsZero():
		return fmt.Errorf("missing date")
	case p.Close <= 0:
		return fmt.Errorf("close %.4f is not positive", p.Close)
	case p.High < p.Low:
		return fmt.Errorf("high %.4f below low %.4f", p.High, p.Low)
	case p.Close < p.Low || p.Close > p.High:
		return fmt.Errorf("close %.4f outside range [%.4f, %.4f]", p.Close, p.Low, p.High)
	case p.Volume < 0:
		return fmt.Errorf("negative volume %d", p.Volume)
	}
	return nil
}

// Day returns the point's date truncated to UTC midnight
func (p PricePoint) Day() time.Time {
	return time.Date(p.Date.Year(), p.Date.Month(), p.Date.Day(), 0, 0, 0, 0, time.UTC)
}
