package universe

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// CapTable is a per-symbol market capitalization lookup, merged into
// fetched series by the orchestrator. Symbols without a figure fall through
// to the close×volume estimate in the calculator.
type CapTable map[string]float64

// MarketCap returns the symbol's capitalization when known
func (t CapTable) MarketCap(symbol string) (float64, bool) {
	v, ok := t[symbol]
	return v, ok
}

// LoadMarketCaps reads a two-column (symbol, market cap) CSV. A missing
// file is not an error: the table is simply empty and every symbol uses
// the estimate path.
func LoadMarketCaps(path string) (CapTable, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		slog.Info("No market caps file, symbols will use estimates", slog.String("path", path))
		return CapTable{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open market caps file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse market caps CSV: %w", err)
	}

	table := make(CapTable, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		symbol := strings.TrimSpace(row[0])
		// Tolerate a header row.
		if i == 0 && strings.EqualFold(symbol, "symbol") {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil || value <= 0 {
			continue
		}
		table[symbol] = value
	}

	slog.Info("Loaded market caps", slog.String("path", path), slog.Int("symbols", len(table)))
	return table, nil
}
