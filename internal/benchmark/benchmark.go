// Package benchmark measures resolution throughput against synthetic catalogs.
package benchmark

import (
	"context"
	"fmt"
	"image"
	"io"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/labelscan/internal/catalog"
	"github.com/MeKo-Tech/labelscan/internal/pipeline"
	"github.com/MeKo-Tech/labelscan/internal/recognizer"
	"github.com/MeKo-Tech/labelscan/internal/resolve"
	"github.com/MeKo-Tech/labelscan/internal/testutil"
)

// Timer measures one named interval.
type Timer struct {
	start    time.Time
	name     string
	duration time.Duration
}

// NewTimer starts a timer.
func NewTimer(name string) *Timer {
	return &Timer{name: name, start: time.Now()}
}

// Stop stops the timer and returns the elapsed duration.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// Duration returns the recorded duration (only valid after Stop()).
func (t *Timer) Duration() time.Duration { return t.duration }

func (t *Timer) String() string {
	return fmt.Sprintf("%s: %v", t.name, t.duration)
}

// MemoryStats holds memory usage statistics.
type MemoryStats struct {
	AllocBytes      uint64
	TotalAllocBytes uint64
	SysBytes        uint64
	NumGC           uint32
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		SysBytes:        m.Sys,
		NumGC:           m.NumGC,
	}
}

func (m MemoryStats) String() string {
	return fmt.Sprintf("Alloc: %d KB, Total: %d KB, Sys: %d KB, GC: %d",
		m.AllocBytes/1024, m.TotalAllocBytes/1024, m.SysBytes/1024, m.NumGC)
}

// Result is the measurement of one case.
type Result struct {
	Name         string
	Duration     time.Duration
	MemoryBefore MemoryStats
	MemoryAfter  MemoryStats
	Iterations   int
	// Ops counts resolutions per iteration; batch cases resolve many at once.
	Ops   int
	Error error
}

// PerOp returns the average time of a single resolution.
func (r Result) PerOp() time.Duration {
	n := r.Iterations * max(r.Ops, 1)
	if n == 0 {
		return 0
	}
	return r.Duration / time.Duration(n)
}

// AllocatedKB is the cumulative allocation during the run.
func (r Result) AllocatedKB() uint64 {
	return (r.MemoryAfter.TotalAllocBytes - r.MemoryBefore.TotalAllocBytes) / 1024
}

func (r Result) String() string {
	if r.Error != nil {
		return fmt.Sprintf("%s: ERROR - %v", r.Name, r.Error)
	}
	return fmt.Sprintf("%s: %d iterations, per op: %v, total: %v, alloc: %d KB",
		r.Name, r.Iterations, r.PerOp(), r.Duration, r.AllocatedKB())
}

// Case is one benchmarked operation.
type Case struct {
	Name string
	Ops  int
	Func func() error
}

// Suite runs cases sequentially and keeps their results.
type Suite struct {
	cases   []Case
	results []Result
	mu      sync.Mutex
}

// NewSuite creates an empty suite.
func NewSuite() *Suite { return &Suite{} }

// Add registers a case resolving one label per call.
func (s *Suite) Add(name string, fn func() error) {
	s.AddBatch(name, 1, fn)
}

// AddBatch registers a case resolving ops labels per call.
func (s *Suite) AddBatch(name string, ops int, fn func() error) {
	s.cases = append(s.cases, Case{Name: name, Ops: ops, Func: fn})
}

// Run runs the named case.
func (s *Suite) Run(name string, iterations int) Result {
	for _, c := range s.cases {
		if c.Name == name {
			return runCase(c, iterations)
		}
	}
	return Result{Name: name, Error: fmt.Errorf("benchmark '%s' not found", name)}
}

// RunAll runs every case in registration order.
func (s *Suite) RunAll(iterations int) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = make([]Result, 0, len(s.cases))
	for _, c := range s.cases {
		s.results = append(s.results, runCase(c, iterations))
	}
	return s.results
}

// Results returns the last RunAll results.
func (s *Suite) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

func runCase(c Case, iterations int) Result {
	runtime.GC()
	before := GetMemoryStats()
	timer := NewTimer(c.Name)

	var err error
	for range iterations {
		if err = c.Func(); err != nil {
			break
		}
	}

	return Result{
		Name:         c.Name,
		Duration:     timer.Stop(),
		MemoryBefore: before,
		MemoryAfter:  GetMemoryStats(),
		Iterations:   iterations,
		Ops:          max(c.Ops, 1),
		Error:        err,
	}
}

// SyntheticCatalog returns size products with distinct three word names.
// The first entries are the produce fixtures so their labels stay resolvable.
func SyntheticCatalog(size int) []catalog.Item {
	items := testutil.ProduceCatalog()
	if size <= len(items) {
		return items[:max(size, 0)]
	}
	adjectives := []string{"Fresh", "Smoked", "Roasted", "Frozen", "Dried", "Pickled", "Salted", "Spiced"}
	nouns := []string{"Salmon", "Almonds", "Peppers", "Cherries", "Beans", "Walnuts", "Carrots", "Lentils", "Herring", "Figs"}
	for i := len(items); i < size; i++ {
		items = append(items, catalog.Item{
			ID: fmt.Sprintf("SYN-%05d", i),
			Name: fmt.Sprintf("%s %s Batch%d",
				adjectives[i%len(adjectives)], nouns[(i/len(adjectives))%len(nouns)], i),
		})
	}
	return items
}

// Config sizes a resolver benchmark.
type Config struct {
	CatalogSize int
	BatchSize   int
	Workers     int
}

// ResolverBenchmark exercises every resolution path against one snapshot.
type ResolverBenchmark struct {
	cfg   Config
	snap  catalog.Snapshot
	pipe  *pipeline.Pipeline
	suite *Suite
}

const benchLabelText = "Organic Apples\nLOT A-100\nEXP 01/07/2026"

// NewResolverBenchmark builds the pipeline and registers the cases. Captures
// go through a fixed-text recognizer so the numbers exclude OCR engines.
func NewResolverBenchmark(cfg Config) (*ResolverBenchmark, error) {
	if cfg.CatalogSize <= 0 {
		return nil, fmt.Errorf("catalog size must be positive, got %d", cfg.CatalogSize)
	}
	cfg.BatchSize = max(cfg.BatchSize, 1)

	rec := recognizer.Func{ID: "fixed", Fn: func(context.Context, image.Image) (recognizer.Recognition, error) {
		return recognizer.Recognition{Text: benchLabelText, Confidence: 95}, nil
	}}
	pipe, err := pipeline.NewBuilder().
		WithRecognizer(rec).
		WithParallelWorkers(cfg.Workers).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	b := &ResolverBenchmark{
		cfg:   cfg,
		snap:  catalog.NewSnapshot(SyntheticCatalog(cfg.CatalogSize)),
		pipe:  pipe,
		suite: NewSuite(),
	}
	b.register()
	return b, nil
}

func (b *ResolverBenchmark) register() {
	ctx := context.Background()
	label := testutil.GenerateLabelImage(testutil.DefaultLabelConfig())

	b.suite.Add("Payload_URL", func() error {
		return expectID(b.pipe.ResolvePayload(
			"https://labels.example.com/p?id=PROD-00007&batchCode=L-77&exp=2026-03-15", b.snap), "PROD-00007")
	})
	b.suite.Add("Text_CodeInText", func() error {
		return expectID(b.pipe.ResolveText("Item PROD-00002 oat drink", b.snap), "PROD-00002")
	})
	b.suite.Add("Text_NameTokens", func() error {
		return expectID(b.pipe.ResolveText(benchLabelText, b.snap), "PROD-00007")
	})
	b.suite.Add("Text_Unknown", func() error {
		b.pipe.ResolveText("Mystery Product LOT Z-1", b.snap)
		return nil
	})
	b.suite.Add("Capture_Single", func() error {
		o, err := b.pipe.ResolveCapture(ctx, pipeline.Capture{Image: label, Source: pipeline.SourceCamera}, b.snap)
		if err != nil {
			return err
		}
		return expectID(o, "PROD-00007")
	})

	captures := make([]pipeline.Capture, b.cfg.BatchSize)
	for i := range captures {
		captures[i] = pipeline.Capture{Image: label, Source: pipeline.SourceUpload}
	}
	b.suite.AddBatch(fmt.Sprintf("Capture_Batch%d", b.cfg.BatchSize), b.cfg.BatchSize, func() error {
		_, err := b.pipe.ResolveCaptures(ctx, captures, b.snap)
		return err
	})
	b.suite.AddBatch("Mixed_Pallet", 2, func() error {
		primary := b.pipe.ResolvePayload("PALLET:PROD-00007", b.snap)
		_, err := b.pipe.ResolveMixed(ctx, "PAL-1", primary,
			pipeline.Request{Text: "Organic Pears LOT P-9"}, b.snap)
		return err
	})
}

// Suite exposes the registered cases.
func (b *ResolverBenchmark) Suite() *Suite { return b.suite }

// Run runs every case.
func (b *ResolverBenchmark) Run(iterations int) []Result {
	return b.suite.RunAll(iterations)
}

// Close releases the pipeline.
func (b *ResolverBenchmark) Close() error { return b.pipe.Close() }

func expectID(o pipeline.Outcome, id string) error {
	if e, ok := resolve.EntityOf(o.Result); !ok || e.ID != id {
		return fmt.Errorf("expected %s, got %T", id, o.Result)
	}
	return nil
}

// WriteReport writes system information and one line per result.
func (b *ResolverBenchmark) WriteReport(w io.Writer, results []Result) {
	_, _ = fmt.Fprintln(w, strings.Repeat("=", 72))
	_, _ = fmt.Fprintln(w, "labelscan resolver benchmark")
	_, _ = fmt.Fprintln(w, strings.Repeat("=", 72))
	_, _ = fmt.Fprintf(w, "GOOS/GOARCH: %s/%s  NumCPU: %d  Go: %s\n",
		runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), runtime.Version())
	_, _ = fmt.Fprintf(w, "Catalog: %d products  Batch: %d  Workers: %d\n\n",
		b.snap.Len(), b.cfg.BatchSize, b.pipe.Config().Parallel.MaxWorkers)
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "• %s\n", r.String())
	}
}

// WriteCSV writes results in CSV form.
func WriteCSV(w io.Writer, results []Result) {
	_, _ = fmt.Fprintln(w, "Case,Iterations,Ops,Total_ms,PerOp_us,Alloc_KB,Error")
	for _, r := range results {
		errText := ""
		if r.Error != nil {
			errText = strings.ReplaceAll(r.Error.Error(), ",", ";")
		}
		_, _ = fmt.Fprintf(w, "%s,%d,%d,%.2f,%.2f,%d,%s\n",
			r.Name, r.Iterations, r.Ops,
			float64(r.Duration.Nanoseconds())/1e6,
			float64(r.PerOp().Nanoseconds())/1e3,
			r.AllocatedKB(), errText)
	}
}
