package universe

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"marketviz/pkg/contracts/domain"
)

// Load reads the symbol universe (ticker, display name, sector) from a
// workbook or CSV file, keyed by extension. Sector labels are normalized
// against the GICS set with Unknown as the fallback; maxStocks caps the
// universe deterministically in file order (0 means no cap).
func Load(path string, maxStocks int) ([]domain.Symbol, error) {
	var (
		symbols []domain.Symbol
		err     error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		symbols, err = loadWorkbook(path)
	case ".csv":
		symbols, err = loadCSV(path)
	default:
		return nil, fmt.Errorf("unsupported universe file format: %s", path)
	}
	if err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("universe file %s contains no symbols", path)
	}

	if maxStocks > 0 && len(symbols) > maxStocks {
		symbols = symbols[:maxStocks]
	}

	slog.Info("Loaded symbol universe",
		slog.String("path", path),
		slog.Int("symbols", len(symbols)))
	return symbols, nil
}

// loadWorkbook extracts the universe from the first sheet carrying a
// recognizable header row
func loadWorkbook(path string) ([]domain.Symbol, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open universe workbook: %w", err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) < 2 {
			continue
		}
		cols, ok := headerColumns(rows[0])
		if !ok {
			continue
		}
		return symbolsFromRows(rows[1:], cols)
	}

	return nil, fmt.Errorf("no sheet in %s carries symbol/sector columns", path)
}

// loadCSV extracts the universe from a headered CSV file
func loadCSV(path string) ([]domain.Symbol, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open universe file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse universe CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("universe CSV %s has no data rows", path)
	}

	cols, ok := headerColumns(rows[0])
	if !ok {
		return nil, fmt.Errorf("universe CSV %s lacks symbol/sector columns", path)
	}
	return symbolsFromRows(rows[1:], cols)
}

// columnIndexes locates the universe columns within a header row
type columnIndexes struct {
	symbol   int
	security int
	sector   int
}

func headerColumns(header []string) (columnIndexes, bool) {
	cols := columnIndexes{symbol: -1, security: -1, sector: -1}
	for i, cell := range header {
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case "symbol", "ticker":
			cols.symbol = i
		case "security", "name", "company", "company name":
			cols.security = i
		case "sector", "gics sector":
			cols.sector = i
		}
	}
	return cols, cols.symbol >= 0 && cols.sector >= 0
}

func symbolsFromRows(rows [][]string, cols columnIndexes) ([]domain.Symbol, error) {
	seen := make(map[string]bool)
	symbols := make([]domain.Symbol, 0, len(rows))

	for _, row := range rows {
		ticker := cellAt(row, cols.symbol)
		if ticker == "" || seen[ticker] {
			continue
		}
		seen[ticker] = true

		security := cellAt(row, cols.security)
		if security == "" {
			security = ticker
		}

		symbols = append(symbols, domain.Symbol{
			Ticker:   ticker,
			Security: security,
			Sector:   NormalizeSector(cellAt(row, cols.sector)),
		})
	}
	return symbols, nil
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// NormalizeSector maps a raw sector label onto the GICS set, falling back
// to Unknown so roll-ups always have a bucket
func NormalizeSector(raw string) string {
	label := strings.TrimSpace(raw)
	if label == "" {
		return domain.SectorUnknown
	}
	for _, sector := range domain.GICSSectors {
		if strings.EqualFold(sector, label) {
			return sector
		}
	}
	return domain.SectorUnknown
}
