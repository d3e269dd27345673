// Package scan runs continuous label resolution over a stream of frames, such
// as a live camera preview or a watched drop folder.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sourcegraph/conc/panics"

	"github.com/MeKo-Tech/labelscan/internal/pipeline"
	"github.com/MeKo-Tech/labelscan/internal/resolve"
)

const (
	// DefaultInterval is the time between scan ticks.
	DefaultInterval = 500 * time.Millisecond
	// DefaultDedupeWindow suppresses repeats of the same resolved label.
	DefaultDedupeWindow = 3 * time.Second
)

// Handler resolves one frame. A returned error ends the session.
type Handler func(ctx context.Context, f Frame) (pipeline.Outcome, error)

// Result is one delivered outcome.
type Result struct {
	Frame   string
	Outcome pipeline.Outcome
	At      time.Time
}

// Options configures a session.
type Options struct {
	Interval time.Duration
	// DedupeWindow drops a resolved result identical to one delivered within
	// the window. Zero disables deduplication.
	DedupeWindow time.Duration
	// StopOnResolved ends the session after the first Exact or Fuzzy result.
	StopOnResolved bool
	// OnResult receives every delivered result from the attempt goroutine.
	OnResult func(Result)
	Logger   *slog.Logger
}

// DefaultOptions returns the standard tick interval and dedupe window.
func DefaultOptions() Options {
	return Options{Interval: DefaultInterval, DedupeWindow: DefaultDedupeWindow}
}

// Session is a running scan. At most one attempt is in flight; ticks that
// fire while one is running are skipped.
type Session struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	err     error
	stopped bool

	inFlight   atomic.Bool
	attempts   atomic.Int64
	skipped    atomic.Int64
	duplicates atomic.Int64

	wg    sync.WaitGroup
	seen  *gocache.Cache
	opts  Options
	src   FrameSource
	h     Handler
	owner context.Context
}

// Start begins scanning src. The session owns src and closes it exactly once
// when it ends, whatever the cause.
func Start(ctx context.Context, src FrameSource, h Handler, opts Options) *Session {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		cancel: cancel,
		done:   make(chan struct{}),
		opts:   opts,
		src:    src,
		h:      h,
		owner:  ctx,
	}
	if opts.DedupeWindow > 0 {
		s.seen = gocache.New(opts.DedupeWindow, 2*opts.DedupeWindow)
	}
	go s.run(runCtx)
	return s
}

// Stop ends the session and waits for it to finish. It is safe to call more
// than once and from any goroutine except OnResult.
func (s *Session) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
	<-s.done
}

// Done is closed once the session has ended and its source is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the session ended: nil after Stop, StopOnResolved or an
// exhausted source, the parent context's error after cancellation, or the
// handler, source or panic error otherwise. It is nil while running.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats reports attempt counters.
func (s *Session) Stats() Stats {
	return Stats{
		Attempts:   s.attempts.Load(),
		Skipped:    s.skipped.Load(),
		Duplicates: s.duplicates.Load(),
	}
}

// Stats counts what a session did.
type Stats struct {
	Attempts   int64 `json:"attempts"`
	Skipped    int64 `json:"skipped"`
	Duplicates int64 `json:"duplicates"`
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			if err := s.src.Close(); err != nil {
				s.fail(fmt.Errorf("close frame source: %w", err))
			}
			s.mu.Lock()
			if s.err == nil && !s.stopped && s.owner.Err() != nil {
				s.err = s.owner.Err()
			}
			s.mu.Unlock()
			s.opts.Logger.Debug("scan session ended", "attempts", s.attempts.Load(), "skipped", s.skipped.Load(), "error", s.err)
			return
		case <-ticker.C:
			if !s.inFlight.CompareAndSwap(false, true) {
				s.skipped.Add(1)
				continue
			}
			s.wg.Add(1)
			go s.attempt(ctx)
		}
	}
}

func (s *Session) attempt(ctx context.Context) {
	defer s.wg.Done()
	defer s.inFlight.Store(false)

	var pc panics.Catcher
	pc.Try(func() { s.step(ctx) })
	if r := pc.Recovered(); r != nil {
		s.opts.Logger.Error("scan attempt panicked", "panic", r.Value)
		s.fail(r.AsError())
	}
}

func (s *Session) step(ctx context.Context) {
	frame, ok, err := s.src.Next(ctx)
	switch {
	case ctx.Err() != nil:
		return
	case errors.Is(err, io.EOF):
		s.opts.Logger.Debug("frame source exhausted")
		s.finish()
		return
	case err != nil:
		s.fail(fmt.Errorf("next frame: %w", err))
		return
	case !ok:
		return
	}

	s.attempts.Add(1)
	outcome, err := s.h(ctx, frame)
	if ctx.Err() != nil {
		// Stopped mid-attempt; the result is discarded.
		return
	}
	if err != nil {
		s.fail(fmt.Errorf("resolve frame %q: %w", frame.Name, err))
		return
	}

	resolved := resolve.IsResolved(outcome.Result)
	if resolved && s.duplicate(outcome) {
		s.duplicates.Add(1)
		return
	}
	if s.opts.OnResult != nil {
		s.opts.OnResult(Result{Frame: frame.Name, Outcome: outcome, At: time.Now()})
	}
	if resolved && s.opts.StopOnResolved {
		s.finish()
	}
}

func (s *Session) duplicate(o pipeline.Outcome) bool {
	if s.seen == nil {
		return false
	}
	e, _ := resolve.EntityOf(o.Result)
	key := e.ID + "|" + o.Fields.BatchCode + "|" + o.Fields.ExpiryDateISO
	if _, found := s.seen.Get(key); found {
		return true
	}
	s.seen.SetDefault(key, struct{}{})
	return false
}

// fail records the first terminal error and ends the session.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.cancel()
}

// finish ends the session without an error.
func (s *Session) finish() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
}
