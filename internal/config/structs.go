//nolint:lll
package config

// Config represents the complete configuration for the labelscan application.
// It covers every command (resolve, decode, text, mixed, scan, serve) and is
// loaded from configuration files, environment variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Catalog source
	Catalog CatalogConfig `mapstructure:"catalog" yaml:"catalog" json:"catalog"`

	// Entity resolution thresholds
	Resolver ResolverConfig `mapstructure:"resolver" yaml:"resolver" json:"resolver"`

	// Retry controller bounds
	Retry RetryConfig `mapstructure:"retry" yaml:"retry" json:"retry"`

	// Text recognizer collaborators
	Recognizer RecognizerConfig `mapstructure:"recognizer" yaml:"recognizer" json:"recognizer"`

	// Structured code decoding from images
	Barcode BarcodeConfig `mapstructure:"barcode" yaml:"barcode" json:"barcode"`

	// Continuous scanning
	Scan ScanConfig `mapstructure:"scan" yaml:"scan" json:"scan"`

	// Batch resolution
	Parallel ParallelConfig `mapstructure:"parallel" yaml:"parallel" json:"parallel"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`
}

// CatalogConfig selects where the product catalog is read from. DSN wins
// over File when both are set.
type CatalogConfig struct {
	File  string `mapstructure:"file" yaml:"file" json:"file"`
	DSN   string `mapstructure:"dsn" yaml:"dsn" json:"dsn"`
	Table string `mapstructure:"table" yaml:"table" json:"table"`
}

// ResolverConfig contains entity resolution thresholds.
type ResolverConfig struct {
	Strict         bool `mapstructure:"strict" yaml:"strict" json:"strict"`
	MinUniqueScore int  `mapstructure:"min_unique_score" yaml:"min_unique_score" json:"min_unique_score"`
	MinGap         int  `mapstructure:"min_gap" yaml:"min_gap" json:"min_gap"`
	MinGapTopScore int  `mapstructure:"min_gap_top_score" yaml:"min_gap_top_score" json:"min_gap_top_score"`
}

// RetryConfig contains retry controller bounds.
type RetryConfig struct {
	LowConfidence float64 `mapstructure:"low_confidence" yaml:"low_confidence" json:"low_confidence"`
	MaxAttempts   int     `mapstructure:"max_attempts" yaml:"max_attempts" json:"max_attempts"`
}

// RecognizerConfig contains text recognition settings.
type RecognizerConfig struct {
	// Backend is "tesseract", "vision" or "none".
	Backend     string         `mapstructure:"backend" yaml:"backend" json:"backend"`
	Language    string         `mapstructure:"language" yaml:"language" json:"language"`
	Whitelist   string         `mapstructure:"whitelist" yaml:"whitelist" json:"whitelist"`
	PageSegMode int            `mapstructure:"page_seg_mode" yaml:"page_seg_mode" json:"page_seg_mode"`
	Fallback    FallbackConfig `mapstructure:"fallback" yaml:"fallback" json:"fallback"`
}

// FallbackConfig configures the vision model tried once when the primary
// recognizer fails.
type FallbackConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Model      string `mapstructure:"model" yaml:"model" json:"model"`
	BaseURL    string `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key" json:"-"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	MaxSide    int    `mapstructure:"max_side" yaml:"max_side" json:"max_side"`
}

// BarcodeConfig contains structured code decoding settings.
type BarcodeConfig struct {
	Enabled   bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Formats   []string `mapstructure:"formats" yaml:"formats" json:"formats"`
	TryHarder bool     `mapstructure:"try_harder" yaml:"try_harder" json:"try_harder"`
}

// ScanConfig contains continuous scan settings.
type ScanConfig struct {
	IntervalMS      int  `mapstructure:"interval_ms" yaml:"interval_ms" json:"interval_ms"`
	DedupeWindowMS  int  `mapstructure:"dedupe_window_ms" yaml:"dedupe_window_ms" json:"dedupe_window_ms"`
	StopOnResolved  bool `mapstructure:"stop_on_resolved" yaml:"stop_on_resolved" json:"stop_on_resolved"`
	IncludeExisting bool `mapstructure:"include_existing" yaml:"include_existing" json:"include_existing"`
}

// ParallelConfig contains batch resolution settings.
type ParallelConfig struct {
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string          `mapstructure:"host" yaml:"host" json:"host"`
	Port            int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int             `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int             `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client request limits.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	Burst             int  `mapstructure:"burst" yaml:"burst" json:"burst"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
}
