package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultMaxAttempts, cfg.Fetch.MaxAttempts)
	assert.Equal(t, DefaultConcurrency, cfg.Fetch.Concurrency)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL())
	assert.Equal(t, "M", cfg.Processing.Period)
	assert.True(t, cfg.Cache.Enabled)
	assert.False(t, cfg.Schedule.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid period",
			mutate:  func(c *Config) { c.Processing.Period = "Y" },
			wantErr: "Period",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Fetch.Concurrency = 0 },
			wantErr: "Concurrency",
		},
		{
			name:    "excessive fill gap",
			mutate:  func(c *Config) { c.Processing.MaxFillGapDays = 11 },
			wantErr: "MaxFillGapDays",
		},
		{
			name:    "volatility window below two",
			mutate:  func(c *Config) { c.Processing.VolatilityWindow = 1 },
			wantErr: "VolatilityWindow",
		},
		{
			name:    "no fetch hosts",
			mutate:  func(c *Config) { c.Fetch.Hosts = nil },
			wantErr: "at least one fetch host",
		},
		{
			name: "max delay below initial delay",
			mutate: func(c *Config) {
				c.Fetch.InitialDelay = 10 * time.Second
				c.Fetch.MaxDelay = time.Second
			},
			wantErr: "below initial delay",
		},
		{
			name:    "malformed baseline date",
			mutate:  func(c *Config) { c.Processing.BaselineDate = "01/02/2024" },
			wantErr: "BaselineDate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateNormalizesLogging(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "xml"
	cfg.Logging.Output = "syslog"
	cfg.Logging.FilePath = ""

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "both", cfg.Logging.Output)
	assert.Equal(t, "logs/app.log", cfg.Logging.FilePath)
}

func TestOverlayFromFile(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	content := []byte(`
fetch:
  concurrency: 12
  max_stocks: 25
processing:
  period: W
cache:
  ttl_hours: 6
`)
	require.NoError(t, os.WriteFile(configFile, content, 0o644))

	cfg := Default()
	require.NoError(t, overlayFromFile(cfg, configFile))
	require.NoError(t, cfg.Validate())

	// Keys present in the file replace defaults
	assert.Equal(t, 12, cfg.Fetch.Concurrency)
	assert.Equal(t, 25, cfg.Fetch.MaxStocks)
	assert.Equal(t, "W", cfg.Processing.Period)
	assert.Equal(t, 6*time.Hour, cfg.Cache.TTL())

	// Untouched keys keep their defaults
	assert.Equal(t, DefaultMaxAttempts, cfg.Fetch.MaxAttempts)
	assert.Equal(t, DefaultVolatilityWindow, cfg.Processing.VolatilityWindow)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("MARKETVIZ_FETCH_CONCURRENCY", "3")
	t.Setenv("MARKETVIZ_CACHE_TTL_HOURS", "48")
	t.Setenv("MARKETVIZ_PROCESSING_PERIOD", "Q")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Fetch.Concurrency)
	assert.Equal(t, 48, cfg.Cache.TTLHours)
	assert.Equal(t, "Q", cfg.Processing.Period)
}

func TestBaselineTime(t *testing.T) {
	cfg := Default()

	got, err := cfg.BaselineTime()
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	cfg.Processing.BaselineDate = "2024-01-02"
	got, err = cfg.BaselineTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), got)
}

func TestGetPathsFrom(t *testing.T) {
	base := t.TempDir()
	paths := GetPathsFrom(base)

	assert.Equal(t, filepath.Join(base, "data"), paths.DataDir)
	assert.Equal(t, filepath.Join(base, "data", "cache"), paths.CacheDir)
	assert.Equal(t, filepath.Join(base, "data", "exports"), paths.ExportsDir)
	assert.Equal(t, filepath.Join(base, "data", "exports", "processed_data.csv"), paths.ProcessedCSV)

	require.NoError(t, paths.EnsureDirectories())
	for _, dir := range []string{paths.DataDir, paths.CacheDir, paths.ExportsDir, paths.LogsDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestResolvePathsHonorsOverrides(t *testing.T) {
	base := t.TempDir()
	universe := filepath.Join(base, "custom_universe.xlsx")

	cfg := Default()
	cfg.Paths.BaseDir = base
	cfg.Paths.UniverseFile = universe

	paths, err := cfg.ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, base, paths.BaseDir)
	assert.Equal(t, universe, paths.UniverseFile)
}
