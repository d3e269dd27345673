package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/labelscan/internal/barcode"
	"github.com/MeKo-Tech/labelscan/internal/catalog"
	"github.com/MeKo-Tech/labelscan/internal/config"
	"github.com/MeKo-Tech/labelscan/internal/pipeline"
	"github.com/MeKo-Tech/labelscan/internal/recognizer"
	"github.com/MeKo-Tech/labelscan/internal/recognizer/tesseract"
	"github.com/MeKo-Tech/labelscan/internal/recognizer/vision"
)

// baseBuilder maps the resolver settings onto a pipeline builder without any
// recognizer; payload and text resolution need nothing else.
func baseBuilder(cfg *config.Config) *pipeline.Builder {
	return pipeline.NewBuilder().
		WithResolverOptions(cfg.ResolverOptions()).
		WithRetryPolicy(cfg.RetryPolicy()).
		WithParallelWorkers(cfg.Parallel.MaxWorkers).
		WithLogger(slog.Default())
}

// newBuilder adds the configured recognizers and barcode backend. Commands
// add their own overrides before calling Build.
func newBuilder(cfg *config.Config) (*pipeline.Builder, error) {
	b := baseBuilder(cfg)

	primary, err := primaryRecognizer(cfg)
	if err != nil {
		return nil, err
	}
	if primary != nil {
		b.WithRecognizer(primary)
	}

	if cfg.Recognizer.Fallback.Enabled && cfg.Recognizer.Backend != config.BackendVision {
		fb, err := vision.New(cfg.VisionConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create fallback recognizer: %w", err)
		}
		b.WithFallbackRecognizer(fb)
	}

	if cfg.Barcode.Enabled {
		backend, err := barcode.NewBackend()
		if err != nil {
			if !errors.Is(err, barcode.ErrNoBackend) {
				return nil, fmt.Errorf("failed to create barcode backend: %w", err)
			}
			slog.Debug("Barcode decoding unavailable", "error", err)
		} else {
			b.WithBarcodeBackend(backend).WithBarcodeOptions(cfg.BarcodeOptions())
		}
	}

	return b, nil
}

func primaryRecognizer(cfg *config.Config) (recognizer.Recognizer, error) {
	switch cfg.Recognizer.Backend {
	case config.BackendTesseract:
		engine, err := tesseract.New(cfg.TesseractOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to create tesseract recognizer: %w", err)
		}
		return engine, nil
	case config.BackendVision:
		rec, err := vision.New(cfg.VisionConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create vision recognizer: %w", err)
		}
		return rec, nil
	case config.BackendNone, "":
		return nil, nil //nolint:nilnil // no recognizer is a valid configuration
	default:
		return nil, fmt.Errorf("unknown recognizer backend: %s", cfg.Recognizer.Backend)
	}
}

// openCatalog opens the configured catalog and takes one snapshot so a bad
// file or database fails before any work starts.
func openCatalog(ctx context.Context, cfg *config.Config) (catalog.Source, catalog.Snapshot, error) {
	src, err := catalog.Open(cfg.Catalog.File, cfg.Catalog.DSN, cfg.Catalog.Table)
	if err != nil {
		return nil, catalog.Snapshot{}, fmt.Errorf("failed to open catalog: %w", err)
	}
	snap, err := src.Snapshot(ctx)
	if err != nil {
		return nil, catalog.Snapshot{}, fmt.Errorf("failed to load catalog: %w", err)
	}
	slog.Debug("Catalog loaded", "products", snap.Len())
	return src, snap, nil
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
