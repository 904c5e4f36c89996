package universe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"marketviz/pkg/contracts/domain"
)

func writeUniverseCSV(t *testing.T, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "universe.csv")
	require.NoError(t, os.WriteFile(path, []byte(rows), 0o644))
	return path
}

func TestLoadCSVUniverse(t *testing.T) {
	path := writeUniverseCSV(t, `Symbol,Security,Sector
AAPL,Apple Inc.,Information Technology
XOM,Exxon Mobil,Energy
ZZZ,Mystery Corp,Nonexistent Industry
`)

	symbols, err := Load(path, 0)
	require.NoError(t, err)
	require.Len(t, symbols, 3)

	assert.Equal(t, domain.Symbol{Ticker: "AAPL", Security: "Apple Inc.", Sector: "Information Technology"}, symbols[0])
	assert.Equal(t, "Energy", symbols[1].Sector)
	assert.Equal(t, domain.SectorUnknown, symbols[2].Sector, "unrecognized sectors normalize to Unknown")
}

func TestLoadAppliesMaxStocksCapDeterministically(t *testing.T) {
	path := writeUniverseCSV(t, `Symbol,Security,Sector
AAPL,Apple Inc.,Information Technology
MSFT,Microsoft,Information Technology
XOM,Exxon Mobil,Energy
`)

	symbols, err := Load(path, 2)
	require.NoError(t, err)
	require.Len(t, symbols, 2)
	assert.Equal(t, "AAPL", symbols[0].Ticker)
	assert.Equal(t, "MSFT", symbols[1].Ticker, "cap keeps file order")
}

func TestLoadSkipsDuplicatesAndBlanks(t *testing.T) {
	path := writeUniverseCSV(t, `Ticker,Name,GICS Sector
AAPL,Apple Inc.,Information Technology
AAPL,Apple Again,Information Technology
,Blank Row,Energy
MSFT,,Information Technology
`)

	symbols, err := Load(path, 0)
	require.NoError(t, err)
	require.Len(t, symbols, 2)
	assert.Equal(t, "Apple Inc.", symbols[0].Security)
	assert.Equal(t, "MSFT", symbols[1].Security, "missing security falls back to the ticker")
}

func TestLoadWorkbookUniverse(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Symbol", "Security", "Sector"},
		{"AAPL", "Apple Inc.", "Information Technology"},
		{"JNJ", "Johnson & Johnson", "health care"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	path := filepath.Join(t.TempDir(), "universe.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	symbols, err := Load(path, 0)
	require.NoError(t, err)
	require.Len(t, symbols, 2)
	assert.Equal(t, "AAPL", symbols[0].Ticker)
	assert.Equal(t, "Health Care", symbols[1].Sector, "sector matching is case-insensitive")
}

func TestLoadRejectsBadInputs(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "universe.txt"), 0)
	assert.Error(t, err, "unsupported extension")

	path := writeUniverseCSV(t, "Symbol,Security,Sector\n")
	_, err = Load(path, 0)
	assert.Error(t, err, "no data rows")

	path = writeUniverseCSV(t, "Foo,Bar\nx,y\n")
	_, err = Load(path, 0)
	assert.Error(t, err, "missing required columns")
}

func TestLoadMarketCaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market_caps.csv")
	require.NoError(t, os.WriteFile(path, []byte(`Symbol,MarketCap
AAPL,2800000000000
XOM,400000000000
BAD,not-a-number
NEG,-5
`), 0o644))

	table, err := LoadMarketCaps(path)
	require.NoError(t, err)
	assert.Len(t, table, 2)

	v, ok := table.MarketCap("AAPL")
	require.True(t, ok)
	assert.Equal(t, 2.8e12, v)

	_, ok = table.MarketCap("BAD")
	assert.False(t, ok)
}

func TestLoadMarketCapsMissingFileIsEmpty(t *testing.T) {
	table, err := LoadMarketCaps(filepath.Join(t.TempDir(), "absent.csv"))
	require.NoError(t, err)
	assert.Empty(t, table)
}
