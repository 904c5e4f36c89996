package domain

// SectorSummary aggregates the symbols of one sector at a single snapshot
// date. Sectors with no surviving constituents are omitted from summaries,
// never reported as zero rows.
type SectorSummary struct {
	Sector                 string  `json:"sector" csv:"Sector"`
	ConstituentCount       int     `json:"constituent_count" csv:"ConstituentCount"`
	AvgReturnPct           float64 `json:"avg_return_pct" csv:"AvgReturnPct"`
	AvgVolatility          float64 `json:"avg_volatility" csv:"AvgVolatility"`
	TotalMarketCap         float64 `json:"total_market_cap" csv:"TotalMarketCap"`
	TotalMarketCapBillions float64 `json:"total_market_cap_billions" csv:"TotalMarketCapBillions"`
}
