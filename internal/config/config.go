package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/MeKo-Tech/labelscan/internal/barcode"
	"github.com/MeKo-Tech/labelscan/internal/catalog"
	"github.com/MeKo-Tech/labelscan/internal/pipeline"
	"github.com/MeKo-Tech/labelscan/internal/recognizer/tesseract"
	"github.com/MeKo-Tech/labelscan/internal/recognizer/vision"
	"github.com/MeKo-Tech/labelscan/internal/resolve"
	"github.com/MeKo-Tech/labelscan/internal/scan"
)

// Recognizer backends.
const (
	BackendTesseract = "tesseract"
	BackendVision    = "vision"
	BackendNone      = "none"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	opts := resolve.DefaultOptions()
	retry := pipeline.DefaultRetryPolicy()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Catalog: CatalogConfig{
			Table: catalog.DefaultTable,
		},
		Resolver: ResolverConfig{
			Strict:         opts.Strict,
			MinUniqueScore: opts.MinUniqueScore,
			MinGap:         opts.MinGap,
			MinGapTopScore: opts.MinGapTopScore,
		},
		Retry: RetryConfig{
			LowConfidence: retry.LowConfidence,
			MaxAttempts:   retry.MaxAttempts,
		},
		Recognizer: RecognizerConfig{
			Backend:     BackendTesseract,
			Language:    "eng",
			PageSegMode: tesseract.DefaultOptions().PageSegMode,
			Fallback: FallbackConfig{
				Enabled:    false,
				Model:      "gpt-4o-mini",
				TimeoutSec: 30,
				MaxSide:    1600,
			},
		},
		Barcode: BarcodeConfig{
			Enabled: true,
			Formats: formatNames(barcode.DefaultFormats),
		},
		Scan: ScanConfig{
			IntervalMS:     int(scan.DefaultInterval / time.Millisecond),
			DedupeWindowMS: int(scan.DefaultDedupeWindow / time.Millisecond),
		},
		Parallel: ParallelConfig{
			MaxWorkers: runtime.NumCPU(),
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     20,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 120,
				Burst:             20,
			},
		},
		Output: OutputConfig{
			Format: "json",
		},
	}
}

func formatNames(formats []barcode.Format) []string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = f.String()
	}
	return names
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json"}
	if c.Output.Format != "" && !contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	validBackends := []string{BackendTesseract, BackendVision, BackendNone}
	if !contains(validBackends, c.Recognizer.Backend) {
		return fmt.Errorf("invalid recognizer backend: %s (must be one of: %s)", c.Recognizer.Backend, strings.Join(validBackends, ", "))
	}

	if c.Resolver.MinUniqueScore < 1 || c.Resolver.MinGap < 1 || c.Resolver.MinGapTopScore < 1 {
		return fmt.Errorf("invalid resolver thresholds: %+v (must be positive)", c.Resolver)
	}
	if c.Retry.LowConfidence < 0 || c.Retry.LowConfidence > 100 {
		return fmt.Errorf("invalid retry.low_confidence: %.2f (must be between 0 and 100)", c.Retry.LowConfidence)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("invalid retry.max_attempts: %d (must be positive)", c.Retry.MaxAttempts)
	}

	for _, name := range c.Barcode.Formats {
		if _, ok := barcode.ParseFormat(name); !ok {
			return fmt.Errorf("invalid barcode format: %s", name)
		}
	}

	if c.Scan.IntervalMS <= 0 {
		return fmt.Errorf("invalid scan interval: %d ms (must be positive)", c.Scan.IntervalMS)
	}
	if c.Scan.DedupeWindowMS < 0 {
		return fmt.Errorf("invalid scan dedupe window: %d ms (must not be negative)", c.Scan.DedupeWindowMS)
	}
	if c.Parallel.MaxWorkers <= 0 {
		return fmt.Errorf("invalid parallel max workers: %d (must be positive)", c.Parallel.MaxWorkers)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if rl := c.Server.RateLimit; rl.Enabled && (rl.RequestsPerMinute <= 0 || rl.Burst <= 0) {
		return fmt.Errorf("invalid rate limit: %d/min burst %d (must be positive)", rl.RequestsPerMinute, rl.Burst)
	}

	if c.Recognizer.Fallback.Enabled && c.Recognizer.Fallback.APIKey == "" {
		return fmt.Errorf("recognizer.fallback.api_key is required when the fallback is enabled")
	}

	return nil
}

// ResolverOptions converts to resolve.Options.
func (c *Config) ResolverOptions() resolve.Options {
	return resolve.Options{
		Strict:         c.Resolver.Strict,
		MinUniqueScore: c.Resolver.MinUniqueScore,
		MinGap:         c.Resolver.MinGap,
		MinGapTopScore: c.Resolver.MinGapTopScore,
	}
}

// RetryPolicy converts to pipeline.RetryPolicy.
func (c *Config) RetryPolicy() pipeline.RetryPolicy {
	return pipeline.RetryPolicy{LowConfidence: c.Retry.LowConfidence, MaxAttempts: c.Retry.MaxAttempts}
}

// TesseractOptions converts to tesseract.Options. Language may list several
// traineddata names separated by '+' or ','.
func (c *Config) TesseractOptions() tesseract.Options {
	opts := tesseract.DefaultOptions()
	if langs := splitList(c.Recognizer.Language); len(langs) > 0 {
		opts.Languages = langs
	}
	opts.Whitelist = c.Recognizer.Whitelist
	if c.Recognizer.PageSegMode > 0 {
		opts.PageSegMode = c.Recognizer.PageSegMode
	}
	return opts
}

// VisionConfig converts the fallback settings to vision.Config.
func (c *Config) VisionConfig() vision.Config {
	fb := c.Recognizer.Fallback
	return vision.Config{
		APIKey:  fb.APIKey,
		BaseURL: fb.BaseURL,
		Model:   fb.Model,
		Timeout: time.Duration(fb.TimeoutSec) * time.Second,
		MaxSide: fb.MaxSide,
	}
}

// BarcodeOptions converts to barcode.Options. Unknown names are skipped;
// Validate reports them.
func (c *Config) BarcodeOptions() barcode.Options {
	opts := barcode.Options{TryHarder: c.Barcode.TryHarder}
	for _, name := range c.Barcode.Formats {
		if f, ok := barcode.ParseFormat(name); ok {
			opts.Formats = append(opts.Formats, f)
		}
	}
	return opts
}

// ScanOptions converts to scan.Options.
func (c *Config) ScanOptions() scan.Options {
	return scan.Options{
		Interval:       time.Duration(c.Scan.IntervalMS) * time.Millisecond,
		DedupeWindow:   time.Duration(c.Scan.DedupeWindowMS) * time.Millisecond,
		StopOnResolved: c.Scan.StopOnResolved,
	}
}

// Helper functions

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '+' || r == ',' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
