package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/MeKo-Tech/labelscan/internal/benchmark"
)

func main() {
	var (
		catalogSize = flag.Int("catalog-size", 5000, "Number of synthetic catalog products")
		batchSize   = flag.Int("batch", 32, "Captures per batch case")
		workers     = flag.Int("workers", 0, "Parallel workers for batch cases (0 = NumCPU)")
		iterations  = flag.Int("iterations", 100, "Number of iterations per case")
		outputFile  = flag.String("output", "", "Output file for results (optional)")
		only        = flag.String("case", "", "Run a single case by name")
	)
	flag.Parse()

	if *iterations < 1 {
		log.Fatalf("iterations must be at least 1, got %d", *iterations)
	}

	bench, err := benchmark.NewResolverBenchmark(benchmark.Config{
		CatalogSize: *catalogSize,
		BatchSize:   *batchSize,
		Workers:     *workers,
	})
	if err != nil {
		log.Fatalf("Benchmark setup failed: %v", err)
	}
	defer func() { _ = bench.Close() }()

	fmt.Printf("Running benchmarks with %d iterations per case...\n\n", *iterations)

	var results []benchmark.Result
	if *only != "" {
		results = []benchmark.Result{bench.Suite().Run(*only, *iterations)}
	} else {
		results = bench.Run(*iterations)
	}

	bench.WriteReport(os.Stdout, results)

	if *outputFile != "" {
		if err := saveResultsToFile(*outputFile, bench, results); err != nil {
			log.Printf("Failed to save results to file: %v", err)
		} else {
			fmt.Printf("\nResults saved to: %s\n", *outputFile)
		}
	}

	for _, r := range results {
		if r.Error != nil {
			os.Exit(1)
		}
	}
}

func saveResultsToFile(filename string, bench *benchmark.ResolverBenchmark, results []benchmark.Result) error {
	file, err := os.Create(filename) //nolint:gosec // user-selected output path
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	writeFileReport(file, bench, results)
	return nil
}

func writeFileReport(w io.Writer, bench *benchmark.ResolverBenchmark, results []benchmark.Result) {
	bench.WriteReport(w, results)
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "CSV Format:")
	benchmark.WriteCSV(w, results)
}
