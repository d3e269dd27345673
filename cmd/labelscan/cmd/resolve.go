package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/labelscan/internal/batch"
	"github.com/MeKo-Tech/labelscan/internal/pdf"
	"github.com/MeKo-Tech/labelscan/internal/pipeline"
	"github.com/MeKo-Tech/labelscan/internal/utils"
)

// resolveCmd resolves label photos and PDF label sheets.
var resolveCmd = &cobra.Command{
	Use:   "resolve [files or directories...]",
	Short: "Resolve label photos or PDF label sheets to catalog products",
	Long: `Resolve one or more label captures against the product catalog.

Images (JPEG, PNG, BMP) are resolved as camera captures. PDF files are treated
as label sheets: every embedded image becomes one capture. A barcode payload
decoded by another device can be attached to a single capture with --payload;
it is trusted before any text recognition runs.

Examples:
  labelscan resolve label.jpg
  labelscan resolve label.jpg --payload "PALLET:PROD-00007"
  labelscan resolve shots/*.png --format text --workers 4
  labelscan resolve shots/ -r --include '*.png' --exclude 'blurry_*'
  labelscan resolve sheet.pdf --pages 1-3 --password secret`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runResolveCommand,
}

// namedCapture pairs a capture with the name it is reported under.
type namedCapture struct {
	name    string
	page    int
	capture pipeline.Capture
}

func runResolveCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := commandContext(cmd)

	files, err := batch.Discover(args, discoveryOptions(cmd))
	if err != nil {
		return err
	}

	payload, _ := cmd.Flags().GetString("payload")
	payload = strings.TrimSpace(payload)
	if payload != "" && len(files) > 1 {
		return errors.New("--payload applies to a single capture")
	}

	captures, err := loadCaptures(cmd, files)
	if err != nil {
		return err
	}
	if len(captures) == 0 {
		return errors.New("no label images found in input")
	}
	if payload != "" && len(captures) > 1 {
		return fmt.Errorf("--payload applies to a single capture, input has %d", len(captures))
	}

	b, err := newBuilder(cfg)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("strict") {
		strict, _ := cmd.Flags().GetBool("strict")
		b.WithStrict(strict)
	}
	if cmd.Flags().Changed("workers") {
		workers, _ := cmd.Flags().GetInt("workers")
		b.WithParallelWorkers(workers)
	}
	if progress, _ := cmd.Flags().GetBool("progress"); progress && len(captures) > 1 {
		b.WithProgressCallback(pipeline.NewConsoleProgressCallback(cmd.ErrOrStderr(), "Resolving"))
	}
	p, err := b.Build()
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() { _ = p.Close() }()

	_, snap, err := openCatalog(ctx, cfg)
	if err != nil {
		return err
	}

	start := time.Now()
	var outcomes []pipeline.Outcome
	if payload != "" {
		c := captures[0].capture
		o, err := p.Resolve(ctx, pipeline.Request{Payload: payload, Capture: &c}, snap)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", captures[0].name, err)
		}
		outcomes = []pipeline.Outcome{o}
	} else {
		list := make([]pipeline.Capture, len(captures))
		for i, c := range captures {
			list[i] = c.capture
		}
		outcomes, err = p.ResolveCaptures(ctx, list, snap)
		if err != nil {
			return fmt.Errorf("failed to resolve captures: %w", err)
		}
	}

	stats := pipeline.CalculateParallelStats(outcomes, time.Since(start), p.Config().Parallel.MaxWorkers)
	slog.Info("Resolution finished",
		"total", stats.Total,
		"resolved", stats.Resolved,
		"with_problem", stats.WithProblem,
		"duration", stats.TotalDuration,
	)

	records := make([]record, len(outcomes))
	for i, o := range outcomes {
		records[i] = newRecord(captures[i].name, o)
		records[i].Page = captures[i].page
	}
	return writeRecords(cmd, records)
}

// loadCaptures decodes every input file; PDFs contribute one capture per
// embedded image.
func loadCaptures(cmd *cobra.Command, args []string) ([]namedCapture, error) {
	var out []namedCapture
	for _, path := range args {
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			pages, err := pdf.ExtractPages(path, pdfOptions(cmd))
			if err != nil {
				if errors.Is(err, pdf.ErrPasswordRequired) || pdf.IsPasswordError(err) {
					return nil, fmt.Errorf("%s is password protected; use --password", path)
				}
				return nil, fmt.Errorf("failed to read PDF %s: %w", path, err)
			}
			for _, pg := range pages {
				out = append(out, namedCapture{
					name:    fmt.Sprintf("%s#%d.%d", filepath.Base(path), pg.Number, pg.Index),
					page:    pg.Number,
					capture: pipeline.Capture{Image: pg.Image, Source: pipeline.SourcePDF},
				})
			}
			continue
		}

		img, meta, err := utils.LoadImage(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", path, err)
		}
		slog.Debug("Loaded capture", "path", meta.Path, "format", meta.Format, "width", meta.Width, "height", meta.Height)
		out = append(out, namedCapture{
			name:    path,
			capture: pipeline.Capture{Image: img, Source: pipeline.SourceUpload},
		})
	}
	return out, nil
}

func discoveryOptions(cmd *cobra.Command) batch.Options {
	recursive, _ := cmd.Flags().GetBool("recursive")
	include, _ := cmd.Flags().GetStringSlice("include")
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	return batch.Options{Recursive: recursive, IncludePatterns: include, ExcludePatterns: exclude}
}

func pdfOptions(cmd *cobra.Command) pdf.Options {
	pages, _ := cmd.Flags().GetString("pages")
	opts := pdf.Options{Pages: strings.TrimSpace(pages)}
	if pw, _ := cmd.Flags().GetString("password"); pw != "" {
		opts.Credentials = &pdf.Credentials{UserPassword: pw, OwnerPassword: pw}
	}
	return opts
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().String("payload", "", "barcode/QR payload decoded from the same label")
	resolveCmd.Flags().Bool("strict", false, "only accept exact matches on catalog ids")
	resolveCmd.Flags().Int("workers", 0, "number of parallel workers (default: parallel.max_workers)")
	resolveCmd.Flags().Bool("progress", false, "show a progress bar for multiple captures")
	resolveCmd.Flags().BoolP("recursive", "r", false, "descend into subdirectories")
	resolveCmd.Flags().StringSlice("include", nil, "file name patterns to include from directories (e.g. '*.png')")
	resolveCmd.Flags().StringSlice("exclude", nil, "file name patterns to exclude")
	resolveCmd.Flags().String("pages", "", "page range for PDF sheets (e.g. 1-3,5)")
	resolveCmd.Flags().String("password", "", "password for protected PDF sheets")
	addOutputFlags(resolveCmd)
}
