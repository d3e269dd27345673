package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/labelscan/internal/pipeline"
	"github.com/MeKo-Tech/labelscan/internal/scan"
)

// scanCmd runs a continuous scan session over a drop folder.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Continuously resolve label captures dropped into a folder",
	Long: `Watch a folder and resolve every capture written to it.

Each image file (JPEG, PNG, BMP) is one frame; a .payload file holds a barcode
payload decoded by another device. One frame is resolved per tick; ticks that
fire while a frame is still being resolved are skipped. Results repeated
within the dedupe window are dropped. Every result is printed as one line.

The session ends on Ctrl-C, after --timeout, or after the first exact or
fuzzy result with --stop-on-resolved.

Examples:
  labelscan scan --dir ./inbox
  labelscan scan --dir ./inbox --include-existing --stop-on-resolved --format text`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runScanCommand,
}

// scanLine is one streamed scan result.
type scanLine struct {
	Frame   string               `json:"frame"`
	At      time.Time            `json:"at"`
	Outcome pipeline.OutcomeView `json:"outcome"`
}

func runScanCommand(cmd *cobra.Command, _ []string) error {
	cfg := GetConfig()

	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		return errors.New("--dir is required")
	}
	includeExisting := cfg.Scan.IncludeExisting
	if cmd.Flags().Changed("include-existing") {
		includeExisting, _ = cmd.Flags().GetBool("include-existing")
	}

	opts := cfg.ScanOptions()
	if cmd.Flags().Changed("stop-on-resolved") {
		opts.StopOnResolved, _ = cmd.Flags().GetBool("stop-on-resolved")
	}
	if cmd.Flags().Changed("interval") {
		opts.Interval, _ = cmd.Flags().GetDuration("interval")
	}
	if cmd.Flags().Changed("dedupe-window") {
		opts.DedupeWindow, _ = cmd.Flags().GetDuration("dedupe-window")
	}
	if opts.Interval <= 0 {
		return fmt.Errorf("invalid interval: %s (must be positive)", opts.Interval)
	}
	format, _, err := outputSettings(cmd)
	if err != nil {
		return err
	}

	b, err := newBuilder(cfg)
	if err != nil {
		return err
	}
	p, err := b.Build()
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() { _ = p.Close() }()

	ctx := commandContext(cmd)
	catalogSrc, _, err := openCatalog(ctx, cfg)
	if err != nil {
		return err
	}

	frames, err := scan.NewDirSource(dir, includeExisting, slog.Default())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var mu sync.Mutex
	opts.Logger = slog.Default()
	opts.OnResult = func(r scan.Result) {
		mu.Lock()
		defer mu.Unlock()
		view := r.Outcome.View()
		if format == outputFormatText {
			writeTextRecord(out, record{Name: r.Frame, Outcome: view})
			return
		}
		data, err := json.Marshal(scanLine{Frame: r.Frame, At: r.At, Outcome: view})
		if err != nil {
			slog.Error("Failed to encode scan result", "frame", r.Frame, "error", err)
			return
		}
		_, _ = fmt.Fprintln(out, string(data))
	}

	slog.Info("Scanning", "dir", dir, "interval", opts.Interval, "stop_on_resolved", opts.StopOnResolved)
	session := scan.Start(ctx, frames, scan.CatalogHandler(p, catalogSrc, pipeline.SourceCamera), opts)

	var timeout <-chan time.Time
	if d, _ := cmd.Flags().GetDuration("timeout"); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-session.Done():
	case <-sigChan:
		slog.Info("Stopping scan")
		session.Stop()
	case <-timeout:
		slog.Info("Scan timeout reached")
		session.Stop()
	}
	<-session.Done()

	stats := session.Stats()
	slog.Info("Scan finished", "attempts", stats.Attempts, "skipped", stats.Skipped, "duplicates", stats.Duplicates)
	if err := session.Err(); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().String("dir", "", "folder to watch for captures")
	scanCmd.Flags().Bool("include-existing", false, "resolve files already in the folder first")
	scanCmd.Flags().Bool("stop-on-resolved", false, "stop after the first exact or fuzzy result")
	scanCmd.Flags().Duration("interval", 0, "tick interval (default: scan.interval_ms)")
	scanCmd.Flags().Duration("dedupe-window", 0, "drop repeated results within this window (default: scan.dedupe_window_ms)")
	scanCmd.Flags().Duration("timeout", 0, "stop the session after this long (0 = run until interrupted)")
	scanCmd.Flags().StringP("format", "f", outputFormatJSON, "output format (json, text)")
}
