package config

import "time"

// Application constants for the marketviz pipeline
const (
	// Application Info
	AppName = "marketviz"

	// Fetch defaults
	DefaultFetchTimeout      = 30 * time.Second
	DefaultGlobalTimeout     = 10 * time.Minute
	DefaultConcurrency       = 5
	DefaultMaxStocks         = 100
	DefaultRateLimitRPS      = 5.0
	DefaultRateLimitBurst    = 5
	DefaultMaxAttempts       = 3
	DefaultInitialDelay      = 1 * time.Second
	DefaultMaxDelay          = 30 * time.Second
	DefaultBackoffMultiplier = 2.0

	// Circuit breaker defaults
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 60 * time.Second

	// Cache defaults
	DefaultCacheTTLHours   = 24
	DefaultRetentionDays   = 30
	CacheGranularityDaily  = "1d"

	// Processing defaults
	DefaultVolatilityWindow = 20
	DefaultMaxFillGapDays   = 3
	TradingDaysPerYear      = 252
	AxisPaddingFraction     = 0.10

	// Scheduled refreshes fetch this much trailing history
	DefaultLookbackMonths = 12

	// Daily summary size
	DefaultTopPerformers = 10

	// File Paths (relative to the base directory)
	DefaultDataDir    = "data"
	DefaultCacheDir   = "data/cache"
	DefaultExportsDir = "data/exports"
	DefaultLogsDir    = "logs"

	// Date handling
	DateFormat = "2006-01-02"
)
