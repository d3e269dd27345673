package cmd

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/labelscan/internal/barcode"
	"github.com/MeKo-Tech/labelscan/internal/config"
	"github.com/MeKo-Tech/labelscan/internal/recognizer/tesseract"
)

// checkCmd reports whether the configured collaborators are usable.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check recognizer, barcode and catalog setup",
	Long: `Check that the configured text recognizer and barcode decoder are linked
into this binary and that the catalog can be loaded.

The tesseract recognizer needs a build with -tags=tesseract and the
libtesseract development files; barcode decoding needs -tags=barcode_gozxing.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		ctx := commandContext(cmd)
		out := cmd.OutOrStdout()
		failed := false

		_, _ = fmt.Fprintln(out, cmd.Short)
		_, _ = fmt.Fprintln(out)

		blank := image.NewGray(image.Rect(0, 0, 64, 32))
		draw.Draw(blank, blank.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

		switch cfg.Recognizer.Backend {
		case config.BackendNone:
			_, _ = fmt.Fprintln(out, "recognizer: disabled (captures report recognition_unavailable)")
		case config.BackendTesseract:
			rec, err := primaryRecognizer(cfg)
			if err == nil {
				_, err = rec.Recognize(ctx, blank)
			}
			switch {
			case errors.Is(err, tesseract.ErrNoBackend):
				failed = true
				_, _ = fmt.Fprintf(out, "recognizer: tesseract not linked (%v)\n", err)
			case err != nil:
				failed = true
				_, _ = fmt.Fprintf(out, "recognizer: tesseract failed: %v\n", err)
			default:
				_, _ = fmt.Fprintf(out, "recognizer: tesseract ok (languages %v)\n", cfg.TesseractOptions().Languages)
			}
		default:
			if _, err := primaryRecognizer(cfg); err != nil {
				failed = true
				_, _ = fmt.Fprintf(out, "recognizer: %s misconfigured: %v\n", cfg.Recognizer.Backend, err)
			} else {
				_, _ = fmt.Fprintf(out, "recognizer: %s configured (model %s)\n", cfg.Recognizer.Backend, cfg.Recognizer.Fallback.Model)
			}
		}
		if cfg.Recognizer.Fallback.Enabled {
			_, _ = fmt.Fprintf(out, "fallback: vision model %s\n", cfg.Recognizer.Fallback.Model)
		}

		if !cfg.Barcode.Enabled {
			_, _ = fmt.Fprintln(out, "barcode: disabled")
		} else {
			backend, err := barcode.NewBackend()
			if err == nil {
				_, err = backend.Decode(ctx, blank, cfg.BarcodeOptions())
			}
			switch {
			case errors.Is(err, barcode.ErrNoBackend):
				_, _ = fmt.Fprintln(out, "barcode: decoder not linked; payloads must be decoded by the client")
			case err == nil, errors.Is(err, barcode.ErrNotFound):
				_, _ = fmt.Fprintf(out, "barcode: ok (formats %v)\n", cfg.Barcode.Formats)
			default:
				failed = true
				_, _ = fmt.Fprintf(out, "barcode: decoder failed: %v\n", err)
			}
		}

		if _, snap, err := openCatalog(ctx, cfg); err != nil {
			failed = true
			_, _ = fmt.Fprintf(out, "catalog: %v\n", err)
		} else {
			_, _ = fmt.Fprintf(out, "catalog: %d products\n", snap.Len())
		}

		if failed {
			return errors.New("setup check failed")
		}
		_, _ = fmt.Fprintln(out)
		_, _ = fmt.Fprintln(out, "All checks passed.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
