package exporter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"marketviz/internal/config"
	"marketviz/pkg/contracts/domain"
)

// animationJSON mirrors domain.AnimationSet with NaN-safe floats, since
// undefined volatility must serialize as null rather than fail marshaling
type animationJSON struct {
	Period string          `json:"period"`
	Bounds axisBoundsJSON  `json:"bounds"`
	Frames []frameJSON     `json:"frames"`
}

type axisBoundsJSON struct {
	ReturnMin     nullableFloat `json:"return_min"`
	ReturnMax     nullableFloat `json:"return_max"`
	VolatilityMin nullableFloat `json:"volatility_min"`
	VolatilityMax nullableFloat `json:"volatility_max"`
	MarketCapMin  nullableFloat `json:"market_cap_min"`
	MarketCapMax  nullableFloat `json:"market_cap_max"`
}

type frameJSON struct {
	Label       string         `json:"label"`
	PeriodStart string         `json:"period_start"`
	PeriodEnd   string         `json:"period_end"`
	Snapshots   []snapshotJSON `json:"snapshots"`
}

type snapshotJSON struct {
	Symbol              string        `json:"symbol"`
	Security            string        `json:"security"`
	Sector              string        `json:"sector"`
	Date                string        `json:"date"`
	Close               nullableFloat `json:"close"`
	ReturnPct           nullableFloat `json:"return_pct"`
	Volatility          nullableFloat `json:"volatility"`
	MarketCap           nullableFloat `json:"market_cap"`
	MarketCapIsEstimate bool          `json:"market_cap_is_estimate"`
}

// WriteAnimation writes the animation dataset: ordered frames plus the
// single global axis-bounds record they all share
func (e *Exporter) WriteAnimation(set domain.AnimationSet) error {
	out := animationJSON{
		Period: string(set.Period),
		Bounds: axisBoundsJSON{
			ReturnMin:     nullableFloat(set.Bounds.ReturnMin),
			ReturnMax:     nullableFloat(set.Bounds.ReturnMax),
			VolatilityMin: nullableFloat(set.Bounds.VolatilityMin),
			VolatilityMax: nullableFloat(set.Bounds.VolatilityMax),
			MarketCapMin:  nullableFloat(set.Bounds.MarketCapMin),
			MarketCapMax:  nullableFloat(set.Bounds.MarketCapMax),
		},
		Frames: make([]frameJSON, 0, len(set.Frames)),
	}

	for _, frame := range set.Frames {
		f := frameJSON{
			Label:       frame.Label,
			PeriodStart: frame.PeriodStart.Format(config.DateFormat),
			PeriodEnd:   frame.PeriodEnd.Format(config.DateFormat),
			Snapshots:   make([]snapshotJSON, 0, len(frame.Snapshots)),
		}
		for _, snap := range frame.Snapshots {
			f.Snapshots = append(f.Snapshots, snapshotJSON{
				Symbol:              snap.Symbol,
				Security:            snap.Security,
				Sector:              snap.Sector,
				Date:                snap.Date.Format(config.DateFormat),
				Close:               nullableFloat(snap.Close),
				ReturnPct:           nullableFloat(snap.ReturnPct),
				Volatility:          nullableFloat(snap.Volatility),
				MarketCap:           nullableFloat(snap.MarketCap),
				MarketCapIsEstimate: snap.MarketCapIsEstimate,
			})
		}
		out.Frames = append(out.Frames, f)
	}

	return e.writeJSON(e.paths.AnimationJSON, out)
}

// WriteRunReport writes the run's metadata and error report
func (e *Exporter) WriteRunReport(report any) error {
	return e.writeJSON(e.paths.RunReportJSON, report)
}

// DailySummary is the scheduled end-of-day digest: the top performers by
// period return at the latest snapshot
type DailySummary struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Snapshot    string         `json:"snapshot"`
	Performers  []PerformerRow `json:"top_performers"`
}

// PerformerRow is one symbol in the daily summary
type PerformerRow struct {
	Symbol    string        `json:"symbol"`
	Security  string        `json:"security"`
	Sector    string        `json:"sector"`
	ReturnPct nullableFloat `json:"return_pct"`
	Close     nullableFloat `json:"close"`
}

// WriteDailySummary writes the scheduled daily digest
func (e *Exporter) WriteDailySummary(summary DailySummary) error {
	return e.writeJSON(e.paths.DailySummaryJSON, summary)
}

// writeJSON writes indented JSON, creating the directory on demand
func (e *Exporter) writeJSON(path string, payload any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	e.logger.Info("Wrote JSON export",
		slog.String("path", path),
		slog.Int("bytes", len(data)))
	return nil
}
