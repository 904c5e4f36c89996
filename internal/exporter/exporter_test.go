package exporter

import (
	"encoding/json"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketviz/internal/config"
	"marketviz/pkg/contracts/domain"
)

func testExporter(t *testing.T) (*Exporter, *config.Paths) {
	t.Helper()
	paths := config.GetPathsFrom(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())
	return New(paths, nil), paths
}

func sampleRecords() []domain.ProcessedRecord {
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	return []domain.ProcessedRecord{
		{Symbol: "MSFT", Security: "Microsoft", Sector: "Information Technology", Date: d, Close: 370.5, MA20: 365, PeriodReturnPct: 1.25, Volatility: 18.5, MarketCap: 2.9e12},
		{Symbol: "AAPL", Security: "Apple Inc.", Sector: "Information Technology", Date: d.AddDate(0, 0, 1), Close: 186, MA20: 184, PeriodReturnPct: 0.5, Volatility: math.NaN(), MarketCap: 186e6, MarketCapIsEstimate: true},
		{Symbol: "AAPL", Security: "Apple Inc.", Sector: "Information Technology", Date: d, Close: 185, MA20: 184, PeriodReturnPct: 0, Volatility: math.NaN(), MarketCap: 185e6, MarketCapIsEstimate: true},
	}
}

func TestWriteProcessedSortedAndStable(t *testing.T) {
	e, paths := testExporter(t)
	require.NoError(t, e.WriteProcessed(sampleRecords()))

	first, err := os.ReadFile(paths.ProcessedCSV)
	require.NoError(t, err)

	content := string(first)
	assert.True(t, strings.HasPrefix(content, "\xef\xbb\xbf"), "processed CSV carries a UTF-8 BOM")

	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(content, "\xef\xbb\xbf")), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(processedHeaders, ","), lines[0])
	// Sorted by symbol then date regardless of input order.
	assert.True(t, strings.HasPrefix(lines[1], "AAPL,Apple Inc.,Information Technology,2024-01-02"))
	assert.True(t, strings.HasPrefix(lines[2], "AAPL,Apple Inc.,Information Technology,2024-01-03"))
	assert.True(t, strings.HasPrefix(lines[3], "MSFT"))

	// NaN volatility renders as an empty cell, not "NaN".
	assert.NotContains(t, content, "NaN")

	// Byte-identical on rewrite.
	require.NoError(t, e.WriteProcessed(sampleRecords()))
	second, err := os.ReadFile(paths.ProcessedCSV)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestWriteSectorSummary(t *testing.T) {
	e, paths := testExporter(t)
	summaries := []domain.SectorSummary{
		{Sector: "Information Technology", ConstituentCount: 2, AvgReturnPct: 12.5, AvgVolatility: 20, TotalMarketCap: 5.9e12, TotalMarketCapBillions: 5900},
		{Sector: "Energy", ConstituentCount: 1, AvgReturnPct: -3, AvgVolatility: math.NaN(), TotalMarketCap: 4e11, TotalMarketCapBillions: 400},
	}
	require.NoError(t, e.WriteSectorSummary(summaries))

	data, err := os.ReadFile(paths.SectorSummaryCSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(string(data), "\xef\xbb\xbf")), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "Information Technology,2,12.5")
	assert.Contains(t, lines[2], "Energy,1,-3,,")
}

func TestWriteAnimationNaNBecomesNull(t *testing.T) {
	e, paths := testExporter(t)

	set := domain.AnimationSet{
		Period: domain.PeriodMonthly,
		Bounds: domain.AxisBounds{ReturnMin: -5, ReturnMax: 25, VolatilityMin: 10, VolatilityMax: 40, MarketCapMin: 1e9, MarketCapMax: 3e12},
		Frames: []domain.AnimationFrame{
			{
				Label:       "2024-01",
				PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				PeriodEnd:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
				Snapshots: []domain.FrameSnapshot{
					{Symbol: "AAPL", Sector: "Information Technology", Date: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), Close: 185, ReturnPct: 2.5, Volatility: math.NaN(), MarketCap: 2.9e12},
				},
			},
		},
	}
	require.NoError(t, e.WriteAnimation(set))

	data, err := os.ReadFile(paths.AnimationJSON)
	require.NoError(t, err)

	var decoded struct {
		Period string `json:"period"`
		Bounds struct {
			ReturnMin float64 `json:"return_min"`
		} `json:"bounds"`
		Frames []struct {
			Label     string `json:"label"`
			Snapshots []struct {
				Symbol     string   `json:"symbol"`
				Volatility *float64 `json:"volatility"`
			} `json:"snapshots"`
		} `json:"frames"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "M", decoded.Period)
	assert.Equal(t, -5.0, decoded.Bounds.ReturnMin)
	require.Len(t, decoded.Frames, 1)
	require.Len(t, decoded.Frames[0].Snapshots, 1)
	assert.Nil(t, decoded.Frames[0].Snapshots[0].Volatility, "NaN volatility serializes as null")
}

func TestWriteDailySummary(t *testing.T) {
	e, paths := testExporter(t)
	summary := DailySummary{
		GeneratedAt: time.Date(2024, 3, 28, 17, 0, 0, 0, time.UTC),
		Snapshot:    "2024-03-28",
		Performers: []PerformerRow{
			{Symbol: "NVDA", Security: "NVIDIA", Sector: "Information Technology", ReturnPct: 80, Close: 900},
		},
	}
	require.NoError(t, e.WriteDailySummary(summary))

	data, err := os.ReadFile(paths.DailySummaryJSON)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"NVDA"`)
	assert.Contains(t, string(data), `"2024-03-28"`)
}
