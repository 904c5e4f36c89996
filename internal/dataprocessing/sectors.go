package dataprocessing

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"marketviz/pkg/contracts/domain"
)

// SectorAggregator rolls processed records up by sector at a single
// snapshot date
type SectorAggregator struct {
	logger *slog.Logger
}

// NewSectorAggregator creates a sector aggregator
func NewSectorAggregator(logger *slog.Logger) *SectorAggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SectorAggregator{logger: logger}
}

// Summarize groups the records at the latest snapshot date by sector and
// computes the unweighted mean return, mean volatility, total market cap
// and constituent count. Sectors with no constituent at the snapshot date
// are omitted, never reported as zero rows.
func (a *SectorAggregator) Summarize(ctx context.Context, records []domain.ProcessedRecord) []domain.SectorSummary {
	if len(records) == 0 {
		return nil
	}
	return a.SummarizeAt(ctx, records, latestDate(records))
}

// SummarizeAt is Summarize restricted to an explicit snapshot date
func (a *SectorAggregator) SummarizeAt(ctx context.Context, records []domain.ProcessedRecord, snapshot time.Time) []domain.SectorSummary {
	type accumulator struct {
		count     int
		returnSum float64
		volSum    float64
		volCount  int
		capSum    float64
	}

	sectors := make(map[string]*accumulator)
	for _, rec := range records {
		if !rec.Date.Equal(snapshot) {
			continue
		}
		acc := sectors[rec.Sector]
		if acc == nil {
			acc = &accumulator{}
			sectors[rec.Sector] = acc
		}
		acc.count++
		acc.returnSum += rec.PeriodReturnPct
		acc.capSum += rec.MarketCap
		if rec.HasVolatility() {
			acc.volSum += rec.Volatility
			acc.volCount++
		}
	}

	summaries := make([]domain.SectorSummary, 0, len(sectors))
	for sector, acc := range sectors {
		avgVol := math.NaN()
		if acc.volCount > 0 {
			avgVol = acc.volSum / float64(acc.volCount)
		}
		summaries = append(summaries, domain.SectorSummary{
			Sector:                 sector,
			ConstituentCount:       acc.count,
			AvgReturnPct:           acc.returnSum / float64(acc.count),
			AvgVolatility:          avgVol,
			TotalMarketCap:         acc.capSum,
			TotalMarketCapBillions: acc.capSum / 1e9,
		})
	}

	// Largest sectors first; ties broken by name for deterministic output.
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].TotalMarketCap != summaries[j].TotalMarketCap {
			return summaries[i].TotalMarketCap > summaries[j].TotalMarketCap
		}
		return summaries[i].Sector < summaries[j].Sector
	})

	a.logger.InfoContext(ctx, "summarized sectors at snapshot",
		slog.Time("snapshot", snapshot),
		slog.Int("sectors", len(summaries)))

	return summaries
}

// latestDate returns the most recent record date in the dataset
func latestDate(records []domain.ProcessedRecord) time.Time {
	latest := records[0].Date
	for _, rec := range records[1:] {
		if rec.Date.After(latest) {
			latest = rec.Date
		}
	}
	return latest
}
