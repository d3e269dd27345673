package scan

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/labelscan/internal/catalog"
	"github.com/MeKo-Tech/labelscan/internal/pipeline"
	"github.com/MeKo-Tech/labelscan/internal/resolve"
)

const tick = 2 * time.Millisecond

// endless always has a frame ready.
type endless struct {
	closed atomic.Int32
	err    error
}

func (e *endless) Next(context.Context) (Frame, bool, error) {
	if e.err != nil {
		return Frame{}, false, e.err
	}
	return Frame{Name: "frame", Image: image.NewGray(image.Rect(0, 0, 2, 2))}, true, nil
}

func (e *endless) Close() error {
	e.closed.Add(1)
	return nil
}

func unresolved(context.Context, Frame) (pipeline.Outcome, error) {
	return pipeline.Outcome{Result: resolve.Unresolved{}, Problem: pipeline.NoTextDetected}, nil
}

func exact(context.Context, Frame) (pipeline.Outcome, error) {
	return pipeline.Outcome{Result: resolve.Exact{Entry: catalog.NewEntry("PROD-00001", "Apples")}}, nil
}

type collector struct {
	mu      sync.Mutex
	results []Result
}

func (c *collector) add(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
	}
}

func TestSession_StopClosesSourceOnce(t *testing.T) {
	src := &endless{}
	s := Start(context.Background(), src, unresolved, Options{Interval: tick})

	require.Eventually(t, func() bool { return s.Stats().Attempts >= 2 }, 5*time.Second, tick)
	s.Stop()
	s.Stop()

	waitDone(t, s)
	assert.NoError(t, s.Err())
	assert.Equal(t, int32(1), src.closed.Load())
}

func TestSession_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &endless{}
	s := Start(ctx, src, unresolved, Options{Interval: tick})

	cancel()
	waitDone(t, s)
	assert.ErrorIs(t, s.Err(), context.Canceled)
	assert.Equal(t, int32(1), src.closed.Load())
}

func TestSession_HandlerPanicIsRecovered(t *testing.T) {
	src := &endless{}
	s := Start(context.Background(), src, func(context.Context, Frame) (pipeline.Outcome, error) {
		panic("recognizer exploded")
	}, Options{Interval: tick})

	waitDone(t, s)
	require.Error(t, s.Err())
	assert.Contains(t, s.Err().Error(), "recognizer exploded")
	assert.Equal(t, int32(1), src.closed.Load())
}

func TestSession_HandlerError(t *testing.T) {
	boom := errors.New("boom")
	src := &endless{}
	s := Start(context.Background(), src, func(context.Context, Frame) (pipeline.Outcome, error) {
		return pipeline.Outcome{}, boom
	}, Options{Interval: tick})

	waitDone(t, s)
	assert.ErrorIs(t, s.Err(), boom)
	assert.Equal(t, int32(1), src.closed.Load())
}

func TestSession_SourceError(t *testing.T) {
	broken := errors.New("camera unplugged")
	src := &endless{err: broken}
	s := Start(context.Background(), src, unresolved, Options{Interval: tick})

	waitDone(t, s)
	assert.ErrorIs(t, s.Err(), broken)
	assert.Equal(t, int32(1), src.closed.Load())
}

func TestSession_SkipsTicksWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	src := &endless{}
	s := Start(context.Background(), src, func(ctx context.Context, _ Frame) (pipeline.Outcome, error) {
		calls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return pipeline.Outcome{Result: resolve.Unresolved{}}, nil
	}, Options{Interval: tick})

	require.Eventually(t, func() bool { return s.Stats().Skipped >= 3 }, 5*time.Second, tick)
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	s.Stop()
	assert.Equal(t, int32(1), src.closed.Load())
}

func TestSession_StopOnResolved(t *testing.T) {
	var got collector
	src := &endless{}
	s := Start(context.Background(), src, exact, Options{Interval: tick, StopOnResolved: true, OnResult: got.add})

	waitDone(t, s)
	assert.NoError(t, s.Err())
	assert.Equal(t, 1, got.len())
	assert.Equal(t, "frame", got.results[0].Frame)
	assert.Equal(t, int32(1), src.closed.Load())
}

func TestSession_DedupeWindow(t *testing.T) {
	var got collector
	src := &endless{}
	s := Start(context.Background(), src, exact, Options{Interval: tick, DedupeWindow: time.Minute, OnResult: got.add})

	require.Eventually(t, func() bool { return s.Stats().Duplicates >= 2 }, 5*time.Second, tick)
	s.Stop()
	assert.Equal(t, 1, got.len())
}

func TestSession_UnresolvedIsNotDeduplicated(t *testing.T) {
	var got collector
	s := Start(context.Background(), &endless{}, unresolved, Options{Interval: tick, DedupeWindow: time.Minute, OnResult: got.add})

	require.Eventually(t, func() bool { return got.len() >= 3 }, 5*time.Second, tick)
	s.Stop()
	assert.Zero(t, s.Stats().Duplicates)
}

func TestSession_ExhaustedSource(t *testing.T) {
	var got collector
	src := NewSliceSource(Frame{Name: "a"}, Frame{Name: "b"})
	s := Start(context.Background(), src, unresolved, Options{Interval: tick, OnResult: got.add})

	waitDone(t, s)
	assert.NoError(t, s.Err())
	require.Equal(t, 2, got.len())
	assert.Equal(t, "a", got.results[0].Frame)
	assert.Equal(t, "b", got.results[1].Frame)
	assert.Equal(t, 1, src.CloseCount())
}

func TestSession_PipelineHandler(t *testing.T) {
	p, err := pipeline.NewBuilder().Build()
	require.NoError(t, err)
	snap := catalog.NewSnapshot([]catalog.Item{{ID: "PROD-00003", Name: "Oat Milk"}})

	var got collector
	src := NewSliceSource(Frame{Name: "qr", Payload: "ITEM:PROD-00003"})
	s := Start(context.Background(), src, PipelineHandler(p, snap, pipeline.SourceCamera), Options{Interval: tick, OnResult: got.add})

	waitDone(t, s)
	require.Equal(t, 1, got.len())
	e, ok := resolve.EntityOf(got.results[0].Outcome.Result)
	require.True(t, ok)
	assert.Equal(t, "PROD-00003", e.ID)
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	assert.Equal(t, DefaultInterval, o.Interval)
	assert.Equal(t, DefaultDedupeWindow, o.DedupeWindow)
	assert.False(t, o.StopOnResolved)
}
