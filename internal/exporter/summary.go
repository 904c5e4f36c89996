package exporter

import (
	"sort"
	"time"

	"marketviz/internal/config"
	"marketviz/pkg/contracts/domain"
)

// BuildDailySummary digests a processed dataset into the top n symbols by
// period return at the latest trading date. Each symbol contributes its
// most recent record.
func BuildDailySummary(records []domain.ProcessedRecord, n int, now time.Time) DailySummary {
	if n <= 0 {
		n = config.DefaultTopPerformers
	}

	latest := make(map[string]domain.ProcessedRecord, len(records))
	var snapshot time.Time
	for _, rec := range records {
		cur, ok := latest[rec.Symbol]
		if !ok || rec.Date.After(cur.Date) {
			latest[rec.Symbol] = rec
		}
		if rec.Date.After(snapshot) {
			snapshot = rec.Date
		}
	}

	rows := make([]PerformerRow, 0, len(latest))
	for _, rec := range latest {
		rows = append(rows, PerformerRow{
			Symbol:    rec.Symbol,
			Security:  rec.Security,
			Sector:    rec.Sector,
			ReturnPct: nullableFloat(rec.PeriodReturnPct),
			Close:     nullableFloat(rec.Close),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ReturnPct != rows[j].ReturnPct {
			return rows[i].ReturnPct > rows[j].ReturnPct
		}
		return rows[i].Symbol < rows[j].Symbol
	})
	if len(rows) > n {
		rows = rows[:n]
	}

	summary := DailySummary{
		GeneratedAt: now.UTC(),
		Performers:  rows,
	}
	if !snapshot.IsZero() {
		summary.Snapshot = snapshot.Format(config.DateFormat)
	}
	return summary
}
