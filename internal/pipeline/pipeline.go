package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/MeKo-Tech/labelscan/internal/barcode"
	"github.com/MeKo-Tech/labelscan/internal/recognizer"
	"github.com/MeKo-Tech/labelscan/internal/resolve"
)

// Config holds the tunable thresholds of the pipeline.
type Config struct {
	Resolver resolve.Options
	Retry    RetryPolicy
	Barcode  barcode.Options
	// DecodeBarcodes runs the barcode backend on captures before OCR.
	DecodeBarcodes bool
	Parallel       ParallelConfig
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		Resolver: resolve.DefaultOptions(),
		Retry:    DefaultRetryPolicy(),
		Barcode:  barcode.Options{Formats: barcode.DefaultFormats},
		Parallel: DefaultParallelConfig(),
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg      Config
	primary  recognizer.Recognizer
	fallback recognizer.Recognizer
	barcodes barcode.Backend
	logger   *slog.Logger
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithRecognizer sets the text recognizer.
func (b *Builder) WithRecognizer(r recognizer.Recognizer) *Builder {
	b.primary = r
	return b
}

// WithFallbackRecognizer sets the collaborator tried once when the primary fails.
func (b *Builder) WithFallbackRecognizer(r recognizer.Recognizer) *Builder {
	b.fallback = r
	return b
}

// WithBarcodeBackend enables payload decoding from captures.
func (b *Builder) WithBarcodeBackend(backend barcode.Backend) *Builder {
	b.barcodes = backend
	b.cfg.DecodeBarcodes = backend != nil
	return b
}

// WithBarcodeOptions replaces the decode options. An empty format list keeps
// the current formats.
func (b *Builder) WithBarcodeOptions(opts barcode.Options) *Builder {
	if len(opts.Formats) == 0 {
		opts.Formats = b.cfg.Barcode.Formats
	}
	b.cfg.Barcode = opts
	return b
}

// WithBarcodeFormats restricts the symbologies searched.
func (b *Builder) WithBarcodeFormats(formats ...barcode.Format) *Builder {
	if len(formats) > 0 {
		b.cfg.Barcode.Formats = formats
	}
	return b
}

// WithResolverOptions replaces the resolver thresholds.
func (b *Builder) WithResolverOptions(opts resolve.Options) *Builder {
	b.cfg.Resolver = opts
	return b
}

// WithStrict toggles code-only resolution.
func (b *Builder) WithStrict(strict bool) *Builder {
	b.cfg.Resolver.Strict = strict
	return b
}

// WithRetryPolicy replaces the retry bounds. A zero policy keeps the defaults
// and a zero MaxAttempts keeps its default.
func (b *Builder) WithRetryPolicy(p RetryPolicy) *Builder {
	b.cfg.Retry = p.withDefaults()
	return b
}

// WithParallelWorkers sets the number of captures resolved concurrently in
// batch calls.
func (b *Builder) WithParallelWorkers(workers int) *Builder {
	if workers > 0 {
		b.cfg.Parallel.MaxWorkers = workers
	}
	return b
}

// WithProgressCallback sets the progress reporter for batch calls.
func (b *Builder) WithProgressCallback(callback ProgressCallback) *Builder {
	b.cfg.Parallel.ProgressCallback = callback
	return b
}

// WithLogger sets the logger. Nil keeps slog.Default().
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// Config returns the current builder configuration.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks the configuration without building.
func (b *Builder) Validate() error {
	r := b.cfg.Resolver
	if r.MinUniqueScore < 1 || r.MinGap < 1 || r.MinGapTopScore < 1 {
		return fmt.Errorf("resolver thresholds must be positive: %+v", r)
	}
	if b.cfg.Retry.LowConfidence < 0 || b.cfg.Retry.LowConfidence > 100 {
		return fmt.Errorf("low confidence must be within 0..100, got %v", b.cfg.Retry.LowConfidence)
	}
	if b.cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", b.cfg.Retry.MaxAttempts)
	}
	if b.cfg.Parallel.MaxWorkers < 0 {
		return fmt.Errorf("parallel workers must be >= 0, got %d", b.cfg.Parallel.MaxWorkers)
	}
	return nil
}

// Pipeline resolves captures, payloads and text against a catalog snapshot.
// It holds no per-call state and is safe for concurrent use.
type Pipeline struct {
	cfg        Config
	recognizer recognizer.Recognizer
	barcodes   barcode.Backend
	logger     *slog.Logger
}

// Build validates the configuration and assembles the pipeline. A pipeline
// without a recognizer can still resolve payloads and text; captures then
// report RecognitionUnavailable.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	var rec recognizer.Recognizer
	switch {
	case b.primary != nil && b.fallback != nil:
		rec = recognizer.WithFallback(b.primary, b.fallback, logger)
	case b.primary != nil:
		rec = b.primary
	case b.fallback != nil:
		rec = b.fallback
	}

	cfg := b.cfg
	if cfg.Parallel.MaxWorkers == 0 {
		cfg.Parallel.MaxWorkers = runtime.NumCPU()
	}

	p := &Pipeline{cfg: cfg, recognizer: rec, barcodes: b.barcodes, logger: logger}
	logger.Debug("pipeline built",
		"recognizer", p.RecognizerName(),
		"strict", cfg.Resolver.Strict,
		"low_confidence", cfg.Retry.LowConfidence,
		"max_attempts", cfg.Retry.MaxAttempts,
		"barcodes", cfg.DecodeBarcodes,
	)
	return p, nil
}

// Close releases recognizers that hold native resources.
func (p *Pipeline) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, r := range recognizer.Unwrap(p.recognizer) {
		if c, ok := r.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", r.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// RecognizerName names the configured recognizer chain, or "none".
func (p *Pipeline) RecognizerName() string {
	if p.recognizer == nil {
		return "none"
	}
	return p.recognizer.Name()
}

// Info reports the pipeline configuration for health endpoints.
func (p *Pipeline) Info() map[string]interface{} {
	return map[string]interface{}{
		"recognizer":        p.RecognizerName(),
		"strict":            p.cfg.Resolver.Strict,
		"min_unique_score":  p.cfg.Resolver.MinUniqueScore,
		"min_gap":           p.cfg.Resolver.MinGap,
		"min_gap_top_score": p.cfg.Resolver.MinGapTopScore,
		"low_confidence":    p.cfg.Retry.LowConfidence,
		"max_attempts":      p.cfg.Retry.MaxAttempts,
		"barcodes":          p.cfg.DecodeBarcodes,
	}
}
