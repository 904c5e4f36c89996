package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Fetch       FetchConfig       `yaml:"fetch" envconfig:"FETCH"`
	Cache       CacheConfig       `yaml:"cache" envconfig:"CACHE"`
	Processing  ProcessingConfig  `yaml:"processing" envconfig:"PROCESSING"`
	Schedule    ScheduleConfig    `yaml:"schedule" envconfig:"SCHEDULE"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" envconfig:"DIAGNOSTICS"`
	Logging     LoggingConfig     `yaml:"logging" envconfig:"LOGGING"`
	Paths       PathsConfig       `yaml:"paths" envconfig:"PATHS"`
}

// FetchConfig contains data source and orchestrator configuration
type FetchConfig struct {
	Hosts             []string      `yaml:"hosts" envconfig:"HOSTS"`
	RequestTimeout    time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" validate:"gt=0"`
	GlobalTimeout     time.Duration `yaml:"global_timeout" envconfig:"GLOBAL_TIMEOUT" validate:"gt=0"`
	Concurrency       int           `yaml:"concurrency" envconfig:"CONCURRENCY" validate:"min=1,max=64"`
	MaxStocks         int           `yaml:"max_stocks" envconfig:"MAX_STOCKS" validate:"min=1"`
	RateLimitRPS      float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" validate:"gt=0"`
	RateLimitBurst    int           `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST" validate:"min=1"`
	MaxAttempts       int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS" validate:"min=1,max=10"`
	InitialDelay      time.Duration `yaml:"initial_delay" envconfig:"INITIAL_DELAY" validate:"gt=0"`
	MaxDelay          time.Duration `yaml:"max_delay" envconfig:"MAX_DELAY" validate:"gt=0"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" envconfig:"BACKOFF_MULTIPLIER" validate:"gte=1"`
	Breaker           BreakerConfig `yaml:"breaker" envconfig:"BREAKER"`
}

// BreakerConfig contains circuit breaker configuration
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" envconfig:"FAILURE_THRESHOLD" validate:"min=1"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" envconfig:"RECOVERY_TIMEOUT" validate:"gt=0"`
}

// CacheConfig contains series cache configuration
type CacheConfig struct {
	Enabled       bool `yaml:"enabled" envconfig:"ENABLED"`
	TTLHours      int  `yaml:"ttl_hours" envconfig:"TTL_HOURS" validate:"min=0"`
	RetentionDays int  `yaml:"retention_days" envconfig:"RETENTION_DAYS" validate:"min=1"`
}

// TTL returns the cache freshness horizon as a duration
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// ProcessingConfig contains metric calculation and resampling configuration
type ProcessingConfig struct {
	BaselineDate     string `yaml:"baseline_date" envconfig:"BASELINE_DATE" validate:"omitempty,datetime=2006-01-02"`
	MaxFillGapDays   int    `yaml:"max_fill_gap_days" envconfig:"MAX_FILL_GAP_DAYS" validate:"min=0,max=10"`
	VolatilityWindow int    `yaml:"volatility_window" envconfig:"VOLATILITY_WINDOW" validate:"min=2"`
	Period           string `yaml:"period" envconfig:"PERIOD" validate:"oneof=D W M Q"`
}

// ScheduleConfig contains the refresh daemon's cron configuration.
// Specs use six fields (seconds first).
type ScheduleConfig struct {
	Enabled     bool   `yaml:"enabled" envconfig:"ENABLED"`
	RefreshSpec string `yaml:"refresh_spec" envconfig:"REFRESH_SPEC" validate:"required"`
	CleanupSpec string `yaml:"cleanup_spec" envconfig:"CLEANUP_SPEC" validate:"required"`
	SummarySpec string `yaml:"summary_spec" envconfig:"SUMMARY_SPEC" validate:"required"`
	RunOnStart  bool   `yaml:"run_on_start" envconfig:"RUN_ON_START"`
}

// DiagnosticsConfig contains the operational HTTP listener configuration
type DiagnosticsConfig struct {
	Enabled         bool          `yaml:"enabled" envconfig:"ENABLED"`
	ListenAddr      string        `yaml:"listen_addr" envconfig:"LISTEN_ADDR" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Output      string `yaml:"output" envconfig:"OUTPUT"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// PathsConfig contains file system path overrides. Empty fields fall back
// to the executable-directory layout from GetPaths.
type PathsConfig struct {
	BaseDir        string `yaml:"base_dir" envconfig:"BASE_DIR"`
	UniverseFile   string `yaml:"universe_file" envconfig:"UNIVERSE_FILE"`
	MarketCapsFile string `yaml:"market_caps_file" envconfig:"MARKET_CAPS_FILE"`
}

var validate = validator.New()

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Fetch: FetchConfig{
			Hosts:             []string{"query1.finance.yahoo.com", "query2.finance.yahoo.com"},
			RequestTimeout:    DefaultFetchTimeout,
			GlobalTimeout:     DefaultGlobalTimeout,
			Concurrency:       DefaultConcurrency,
			MaxStocks:         DefaultMaxStocks,
			RateLimitRPS:      DefaultRateLimitRPS,
			RateLimitBurst:    DefaultRateLimitBurst,
			MaxAttempts:       DefaultMaxAttempts,
			InitialDelay:      DefaultInitialDelay,
			MaxDelay:          DefaultMaxDelay,
			BackoffMultiplier: DefaultBackoffMultiplier,
			Breaker: BreakerConfig{
				FailureThreshold: DefaultFailureThreshold,
				RecoveryTimeout:  DefaultRecoveryTimeout,
			},
		},
		Cache: CacheConfig{
			Enabled:       true,
			TTLHours:      DefaultCacheTTLHours,
			RetentionDays: DefaultRetentionDays,
		},
		Processing: ProcessingConfig{
			MaxFillGapDays:   DefaultMaxFillGapDays,
			VolatilityWindow: DefaultVolatilityWindow,
			Period:           "M",
		},
		Schedule: ScheduleConfig{
			Enabled:     false,
			RefreshSpec: "0 */30 * * * *",
			CleanupSpec: "0 0 0 * * *",
			SummarySpec: "0 0 17 * * *",
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:         true,
			ListenAddr:      ":9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/app.log",
		},
	}
}

// Load loads configuration with precedence: defaults, then the YAML config
// file when present, then MARKETVIZ_* environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if configFile := getConfigFilePath(); configFile != "" {
		if err := overlayFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process("MARKETVIZ", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// overlayFromFile unmarshals the YAML file over the current values, so only
// keys present in the file are replaced
func overlayFromFile(cfg *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Validate normalizes and validates the configuration
func (c *Config) Validate() error {
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output != "both" && c.Logging.Output != "file" && c.Logging.Output != "console" {
		c.Logging.Output = "both"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}
	if len(c.Fetch.Hosts) == 0 {
		return fmt.Errorf("at least one fetch host must be specified")
	}
	if c.Fetch.MaxDelay < c.Fetch.InitialDelay {
		return fmt.Errorf("fetch max delay %s is below initial delay %s", c.Fetch.MaxDelay, c.Fetch.InitialDelay)
	}

	if err := validate.Struct(c); err != nil {
		return err
	}

	return nil
}

// BaselineTime parses the configured baseline date. The zero time means the
// requested range start is the baseline.
func (c *Config) BaselineTime() (time.Time, error) {
	if c.Processing.BaselineDate == "" {
		return time.Time{}, nil
	}
	return time.Parse(DateFormat, c.Processing.BaselineDate)
}

// ResolvePaths returns the path set honoring configured overrides, creating
// the required directories.
func (c *Config) ResolvePaths() (*Paths, error) {
	var paths *Paths
	if c.Paths.BaseDir != "" {
		paths = GetPathsFrom(c.Paths.BaseDir)
	} else {
		var err error
		paths, err = GetPaths()
		if err != nil {
			return nil, fmt.Errorf("failed to get paths: %w", err)
		}
	}

	if c.Paths.UniverseFile != "" {
		paths.UniverseFile = c.Paths.UniverseFile
	}
	if c.Paths.MarketCapsFile != "" {
		paths.MarketCapsFile = c.Paths.MarketCapsFile
	}

	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	return paths, nil
}
