package exporter

import (
	"log/slog"
	"sort"
	"strconv"

	"marketviz/internal/config"
	"marketviz/pkg/contracts/domain"
)

// Exporter writes the pipeline's output datasets to the export directory
type Exporter struct {
	paths  *config.Paths
	csv    *CSVWriter
	logger *slog.Logger
}

// New creates an exporter writing to the resolved path set
func New(paths *config.Paths, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		paths:  paths,
		csv:    NewCSVWriter(logger),
		logger: logger.With(slog.String("component", "exporter")),
	}
}

var processedHeaders = []string{
	"Symbol", "Security", "Sector", "Date", "Close", "MA20",
	"PeriodReturnPct", "Volatility", "MarketCap", "MarketCapIsEstimate", "Filled",
}

// WriteProcessed writes the processed dataset CSV sorted by (symbol, date)
// so repeated runs over the same data produce byte-identical files
func (e *Exporter) WriteProcessed(records []domain.ProcessedRecord) error {
	sorted := make([]domain.ProcessedRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Symbol != sorted[j].Symbol {
			return sorted[i].Symbol < sorted[j].Symbol
		}
		return sorted[i].Date.Before(sorted[j].Date)
	})

	rows := make([][]string, 0, len(sorted))
	for _, r := range sorted {
		rows = append(rows, []string{
			r.Symbol,
			r.Security,
			r.Sector,
			r.Date.Format(config.DateFormat),
			formatFloat(r.Close),
			formatFloat(r.MA20),
			formatFloat(r.PeriodReturnPct),
			formatFloat(r.Volatility),
			formatFloat(r.MarketCap),
			strconv.FormatBool(r.MarketCapIsEstimate),
			strconv.FormatBool(r.Filled),
		})
	}

	return e.csv.WriteCSV(e.paths.ProcessedCSV, WriteOptions{
		Headers:   processedHeaders,
		Records:   rows,
		BOMPrefix: true,
	})
}

var sectorHeaders = []string{
	"Sector", "ConstituentCount", "AvgReturnPct", "AvgVolatility",
	"TotalMarketCap", "TotalMarketCapBillions",
}

// WriteSectorSummary writes the sector roll-up CSV in the aggregator's
// order (total market cap descending)
func (e *Exporter) WriteSectorSummary(summaries []domain.SectorSummary) error {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			s.Sector,
			strconv.Itoa(s.ConstituentCount),
			formatFloat(s.AvgReturnPct),
			formatFloat(s.AvgVolatility),
			formatFloat(s.TotalMarketCap),
			formatFloat(s.TotalMarketCapBillions),
		})
	}

	return e.csv.WriteCSV(e.paths.SectorSummaryCSV, WriteOptions{
		Headers:   sectorHeaders,
		Records:   rows,
		BOMPrefix: true,
	})
}
