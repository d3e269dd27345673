package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/labelscan/internal/catalog"
	"github.com/MeKo-Tech/labelscan/internal/testutil"
)

// labelFixture is one generated label and what resolving it should yield.
type labelFixture struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	InputFile    string   `json:"input_file"`
	Lines        []string `json:"lines"`
	Rotation     float64  `json:"rotation,omitempty"`
	Invert       bool     `json:"invert,omitempty"`
	ExpectedID   string   `json:"expected_id,omitempty"` // empty when no catalog product is named
	ExpectedKind string   `json:"expected_kind"`
}

var labelFixtures = []labelFixture{
	{Name: "apples_code", Description: "Printed catalog id with name", Lines: []string{"PROD-00007", "Organic Apples", "LOT A-100"}, ExpectedID: "PROD-00007", ExpectedKind: "exact"},
	{Name: "apples_name", Description: "Name only, fuzzy match", Lines: []string{"Organic Apples", "LOT A-100", "EXP 01/07/2026"}, ExpectedID: "PROD-00007", ExpectedKind: "fuzzy"},
	{Name: "oat_milk", Description: "Only \"milk\" is significant, shared with Whole Milk", Lines: []string{"Oat Milk 1L", "BATCH OM-2291"}, ExpectedKind: "ambiguous"},
	{Name: "organic_only", Description: "Shared token, ambiguous", Lines: []string{"Organic", "LOT X-1"}, ExpectedKind: "ambiguous"},
	{Name: "unknown_mango", Description: "Product missing from catalog", Lines: []string{"Fresh Mango", "LOT MG-2026", "EXP 01/04/2026"}, ExpectedKind: "unresolved"},
	{Name: "pears_rotated", Description: "Label photographed at 90 degrees", Lines: []string{"Organic Pears", "LOT P-9"}, Rotation: 90, ExpectedID: "PROD-00008", ExpectedKind: "fuzzy"},
	{Name: "plums_inverted", Description: "Light print on dark label", Lines: []string{"Organic Plums", "LOT PL-3"}, Invert: true, ExpectedID: "PROD-00009", ExpectedKind: "fuzzy"},
}

var payloadFixtures = map[string]string{
	"apples_url.payload":     "https://labels.example.com/p?id=PROD-00007&batchCode=L-77&exp=2026-03-15",
	"pears_pallet.payload":   "PALLET:PROD-00008",
	"unknown_pallet.payload": "PALLET:PROD-99999",
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		generateImages   = flag.Bool("images", true, "Generate synthetic label images")
		generateFixtures = flag.Bool("fixtures", true, "Generate catalog, payload and expectation fixtures")
		outDir           = flag.String("out", "", "Output directory (default: <project root>/testdata)")
		verbose          = flag.Bool("v", false, "Verbose output")
		help             = flag.Bool("h", false, "Show help")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate label test data for labelscan.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s                      # Generate all test data\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -fixtures=false      # Generate only images\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -out /tmp/labels     # Write somewhere else\n", os.Args[0])
	}

	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	dir := *outDir
	if dir == "" {
		root, err := testutil.GetProjectRoot()
		if err != nil {
			slog.Error("Failed to find project root", "error", err)
			os.Exit(1)
		}
		dir = filepath.Join(root, "testdata")
	}

	if *verbose {
		slog.Info("Options", "images", *generateImages, "fixtures", *generateFixtures, "out", dir)
	}

	if *generateImages {
		n, err := generateLabelImages(dir)
		if err != nil {
			slog.Error("Failed to generate label images", "error", err)
			os.Exit(1)
		}
		slog.Info("Generated label images", "count", n)
	}

	if *generateFixtures {
		if err := generateFixtureFiles(dir); err != nil {
			slog.Error("Failed to generate fixtures", "error", err)
			os.Exit(1)
		}
		slog.Info("Generated fixtures", "labels", len(labelFixtures), "payloads", len(payloadFixtures))
	}

	slog.Info("Test data generation completed", "dir", dir)
}

// generateLabelImages renders every label fixture under dir/images/labels.
func generateLabelImages(dir string) (int, error) {
	imagesDir := filepath.Join(dir, "images", "labels")
	if err := testutil.EnsureDir(imagesDir); err != nil {
		return 0, fmt.Errorf("failed to create images directory: %w", err)
	}

	for _, fx := range labelFixtures {
		cfg := testutil.DefaultLabelConfig()
		cfg.Lines = fx.Lines
		cfg.Rotation = fx.Rotation
		if fx.Invert {
			cfg.Background, cfg.Foreground = color.Black, color.White
		}

		path := filepath.Join(dir, fx.InputPath())
		if err := imaging.Save(testutil.GenerateLabelImage(cfg), path); err != nil {
			return 0, fmt.Errorf("failed to save %s: %w", path, err)
		}
	}
	return len(labelFixtures), nil
}

// InputPath is the image location relative to the output directory.
func (fx labelFixture) InputPath() string {
	return filepath.Join("images", "labels", fx.Name+".png")
}

// generateFixtureFiles writes the produce catalog, payload files and one JSON
// expectation per label.
func generateFixtureFiles(dir string) error {
	fixturesDir := filepath.Join(dir, "fixtures")
	payloadDir := filepath.Join(dir, "payloads")
	for _, d := range []string{fixturesDir, payloadDir} {
		if err := testutil.EnsureDir(d); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	doc := struct {
		Products []catalog.Item `yaml:"products"`
	}{Products: testutil.ProduceCatalog()}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "catalog.yaml"), data, 0o600); err != nil {
		return err
	}

	for name, payload := range payloadFixtures {
		if err := os.WriteFile(filepath.Join(payloadDir, name), []byte(payload+"\n"), 0o600); err != nil {
			return err
		}
	}

	for _, fx := range labelFixtures {
		fx.InputFile = fx.InputPath()
		data, err := json.MarshalIndent(fx, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(fixturesDir, fx.Name+".json"), data, 0o600); err != nil {
			return fmt.Errorf("failed to save fixture '%s': %w", fx.Name, err)
		}
	}
	return nil
}
