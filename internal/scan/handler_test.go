package scan

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/labelscan/internal/catalog"
	"github.com/MeKo-Tech/labelscan/internal/pipeline"
)

type recordingResolver struct {
	lastCall string
	lastReq  pipeline.Request
	lastCap  pipeline.Capture
}

func (r *recordingResolver) Resolve(_ context.Context, req pipeline.Request, _ catalog.Snapshot) (pipeline.Outcome, error) {
	r.lastCall, r.lastReq = "resolve", req
	return pipeline.Outcome{}, nil
}

func (r *recordingResolver) ResolveCapture(_ context.Context, c pipeline.Capture, _ catalog.Snapshot) (pipeline.Outcome, error) {
	r.lastCall, r.lastCap = "capture", c
	return pipeline.Outcome{}, nil
}

type countingSource struct {
	calls atomic.Int32
	err   error
}

func (c *countingSource) Snapshot(context.Context) (catalog.Snapshot, error) {
	c.calls.Add(1)
	return catalog.NewSnapshot(nil), c.err
}

func TestCatalogHandler(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 2))

	t.Run("bare image goes through capture resolution", func(t *testing.T) {
		r, src := &recordingResolver{}, &countingSource{}
		_, err := CatalogHandler(r, src, pipeline.SourceCamera)(context.Background(), Frame{Image: img})
		require.NoError(t, err)
		assert.Equal(t, "capture", r.lastCall)
		assert.Equal(t, pipeline.SourceCamera, r.lastCap.Source)
	})

	t.Run("payload with image", func(t *testing.T) {
		r, src := &recordingResolver{}, &countingSource{}
		_, err := CatalogHandler(r, src, pipeline.SourceUpload)(context.Background(), Frame{Image: img, Payload: "PALLET:X"})
		require.NoError(t, err)
		assert.Equal(t, "resolve", r.lastCall)
		assert.Equal(t, "PALLET:X", r.lastReq.Payload)
		require.NotNil(t, r.lastReq.Capture)
		assert.Equal(t, pipeline.SourceUpload, r.lastReq.Capture.Source)
	})

	t.Run("snapshot per frame", func(t *testing.T) {
		r, src := &recordingResolver{}, &countingSource{}
		h := CatalogHandler(r, src, pipeline.SourceCamera)
		for range 3 {
			_, err := h(context.Background(), Frame{Payload: "PROD-1"})
			require.NoError(t, err)
		}
		assert.Equal(t, int32(3), src.calls.Load())
	})

	t.Run("catalog failure ends the frame with an error", func(t *testing.T) {
		r, src := &recordingResolver{}, &countingSource{err: errors.New("db down")}
		_, err := CatalogHandler(r, src, pipeline.SourceCamera)(context.Background(), Frame{Payload: "PROD-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load catalog")
		assert.Empty(t, r.lastCall)
	})
}
