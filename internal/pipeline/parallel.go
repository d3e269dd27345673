package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/MeKo-Tech/labelscan/internal/catalog"
)

// ParallelConfig holds configuration for batch resolution.
type ParallelConfig struct {
	MaxWorkers       int              // Number of parallel workers (0 = runtime.NumCPU())
	ProgressCallback ProgressCallback // Optional progress reporting
}

// DefaultParallelConfig returns sensible defaults for batch resolution.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{MaxWorkers: runtime.NumCPU()}
}

type captureJob struct {
	index   int
	capture Capture
}

type captureResult struct {
	index   int
	outcome Outcome
	err     error
}

// ResolveCaptures resolves captures with a worker pool. Each capture is an
// independent invocation; outcomes are returned in input order. The first
// per-capture error is returned alongside the outcomes that succeeded.
func (p *Pipeline) ResolveCaptures(ctx context.Context, captures []Capture, snap catalog.Snapshot) ([]Outcome, error) {
	if len(captures) == 0 {
		return nil, errors.New("no captures provided")
	}
	if p == nil {
		return nil, ErrNilPipeline
	}

	cfg := p.cfg.Parallel
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(captures))
	progress := cfg.ProgressCallback
	if progress == nil {
		progress = NoOpProgressCallback{}
	}

	tally := Tally{Total: len(captures)}
	progress.OnStart(len(captures))
	defer func() { progress.OnComplete(tally) }()

	jobs := make(chan captureJob)
	results := make(chan captureResult, len(captures))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				o, err := p.ResolveCapture(ctx, job.capture, snap)
				results <- captureResult{index: job.index, outcome: o, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, c := range captures {
			select {
			case jobs <- captureJob{index: i, capture: c}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]Outcome, len(captures))
	errs := make([]error, len(captures))
	for r := range results {
		outcomes[r.index] = r.outcome
		errs[r.index] = r.err
		if r.err != nil {
			tally.fail()
			progress.OnError(r.index, r.err, tally)
			continue
		}
		tally.add(r.outcome)
		progress.OnOutcome(r.index, r.outcome, tally)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err != nil {
			return outcomes, fmt.Errorf("capture %d: %w", i, err)
		}
	}
	return outcomes, nil
}

// ParallelStats summarizes a batch run.
type ParallelStats struct {
	Total            int           `json:"total"`
	Resolved         int           `json:"resolved"`
	WithProblem      int           `json:"with_problem"`
	WorkerCount      int           `json:"worker_count"`
	TotalDuration    time.Duration `json:"total_duration_ns"`
	ThroughputPerSec float64       `json:"throughput_per_sec"`
}

// CalculateParallelStats computes statistics for a batch of outcomes.
func CalculateParallelStats(outcomes []Outcome, duration time.Duration, workerCount int) ParallelStats {
	s := ParallelStats{Total: len(outcomes), WorkerCount: workerCount, TotalDuration: duration}
	for _, o := range outcomes {
		if o.Problem == ProblemNone && o.Result != nil {
			s.Resolved++
		} else {
			s.WithProblem++
		}
	}
	if duration > 0 {
		s.ThroughputPerSec = float64(len(outcomes)) / duration.Seconds()
	}
	return s
}
