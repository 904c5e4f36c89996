package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths contains all the application paths.
// This is the single source of truth for ALL file paths in the application.
type Paths struct {
	BaseDir    string
	DataDir    string
	CacheDir   string
	ExportsDir string
	LogsDir    string

	// Input files (root of the data directory)
	UniverseFile   string
	MarketCapsFile string

	// Well-known export files
	ProcessedCSV     string
	AnimationJSON    string
	SectorSummaryCSV string
	RunReportJSON    string
	DailySummaryJSON string
}

// GetPaths returns the application paths anchored at the executable
// directory, so the pipeline behaves the same regardless of the working
// directory it was launched from.
func GetPaths() (*Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %v", err)
	}

	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable symlinks: %v", err)
	}

	return GetPathsFrom(filepath.Dir(exe)), nil
}

// GetPathsFrom returns the application paths anchored at an explicit base
// directory. Used when MARKETVIZ_PATHS_BASE_DIR overrides the default and
// by tests.
//
// Directory structure:
//
//	base/
//	  ├── data/
//	  │   ├── universe.xlsx  (symbol constituents)
//	  │   ├── cache/         (per-request series cache)
//	  │   └── exports/       (generated datasets)
//	  └── logs/
func GetPathsFrom(baseDir string) *Paths {
	dataDir := filepath.Join(baseDir, "data")
	cacheDir := filepath.Join(dataDir, "cache")
	exportsDir := filepath.Join(dataDir, "exports")

	return &Paths{
		BaseDir:    baseDir,
		DataDir:    dataDir,
		CacheDir:   cacheDir,
		ExportsDir: exportsDir,
		LogsDir:    filepath.Join(baseDir, "logs"),

		UniverseFile:   filepath.Join(dataDir, "universe.xlsx"),
		MarketCapsFile: filepath.Join(dataDir, "market_caps.csv"),

		ProcessedCSV:     filepath.Join(exportsDir, "processed_data.csv"),
		AnimationJSON:    filepath.Join(exportsDir, "animation_data.json"),
		SectorSummaryCSV: filepath.Join(exportsDir, "sector_summary.csv"),
		RunReportJSON:    filepath.Join(exportsDir, "run_report.json"),
		DailySummaryJSON: filepath.Join(exportsDir, "daily_summary.json"),
	}
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	dirs := []string{
		p.DataDir,
		p.CacheDir,
		p.ExportsDir,
		p.LogsDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// LogPathResolution records the resolved paths for debugging
func (p *Paths) LogPathResolution() {
	slog.Default().Info("Resolved application paths",
		slog.String("base_dir", p.BaseDir),
		slog.String("data_dir", p.DataDir),
		slog.String("cache_dir", p.CacheDir),
		slog.String("exports_dir", p.ExportsDir),
		slog.String("logs_dir", p.LogsDir))
}
