package pipeline

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/labelscan/internal/barcode"
	"github.com/MeKo-Tech/labelscan/internal/recognizer"
	"github.com/MeKo-Tech/labelscan/internal/resolve"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, resolve.DefaultOptions(), cfg.Resolver)
	assert.InDelta(t, 40.0, cfg.Retry.LowConfidence, 1e-9)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.False(t, cfg.DecodeBarcodes)
	assert.Equal(t, barcode.DefaultFormats, cfg.Barcode.Formats)
}

func TestBuilder_Chaining(t *testing.T) {
	b := NewBuilder()
	assert.Same(t, b, b.WithStrict(true))
	assert.Same(t, b, b.WithRetryPolicy(RetryPolicy{MaxAttempts: 2}))
	assert.Same(t, b, b.WithParallelWorkers(3))
	assert.Same(t, b, b.WithBarcodeFormats(barcode.FormatQR))

	cfg := b.Config()
	assert.True(t, cfg.Resolver.Strict)
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
	assert.InDelta(t, DefaultLowConfidence, cfg.Retry.LowConfidence, 1e-9)
	assert.Equal(t, 3, cfg.Parallel.MaxWorkers)
	assert.Equal(t, []barcode.Format{barcode.FormatQR}, cfg.Barcode.Formats)
}

func TestBuilder_WithBarcodeOptions(t *testing.T) {
	b := NewBuilder().WithBarcodeOptions(barcode.Options{TryHarder: true})
	assert.True(t, b.Config().Barcode.TryHarder)
	assert.Equal(t, barcode.DefaultFormats, b.Config().Barcode.Formats, "empty formats keep the defaults")

	b.WithBarcodeOptions(barcode.Options{Formats: []barcode.Format{barcode.FormatQR}})
	assert.Equal(t, []barcode.Format{barcode.FormatQR}, b.Config().Barcode.Formats)
	assert.False(t, b.Config().Barcode.TryHarder)
}

func TestBuilder_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Builder)
	}{
		{"zero unique score", func(b *Builder) { b.cfg.Resolver.MinUniqueScore = 0 }},
		{"negative gap", func(b *Builder) { b.cfg.Resolver.MinGap = -1 }},
		{"confidence above 100", func(b *Builder) { b.cfg.Retry.LowConfidence = 101 }},
		{"zero attempts", func(b *Builder) { b.cfg.Retry.MaxAttempts = 0 }},
		{"negative workers", func(b *Builder) { b.cfg.Parallel.MaxWorkers = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			tt.mutate(b)
			assert.Error(t, b.Validate())
			_, err := b.Build()
			assert.Error(t, err)
		})
	}
	assert.NoError(t, NewBuilder().Validate())
}

func TestBuilder_StrictDisablesNameMatching(t *testing.T) {
	p, err := NewBuilder().WithStrict(true).Build()
	require.NoError(t, err)

	o := p.ResolveText("Organic Apples", produceSnapshot())
	assert.IsType(t, resolve.Unresolved{}, o.Result)
	assert.Equal(t, UnknownProduct, o.Problem)
}

func TestBuilder_FallbackOnly(t *testing.T) {
	fb := &sequence{replies: []recognizer.Recognition{{Text: "PROD-00007", Confidence: 90}}}
	p, err := NewBuilder().WithFallbackRecognizer(fb).Build()
	require.NoError(t, err)
	assert.Equal(t, "sequence", p.RecognizerName())
}

type closingRecognizer struct {
	sequence
	closed bool
	err    error
}

func (c *closingRecognizer) Close() error {
	c.closed = true
	return c.err
}

func TestPipeline_Close(t *testing.T) {
	a := &closingRecognizer{}
	b := &closingRecognizer{err: errors.New("stuck")}
	p, err := NewBuilder().WithRecognizer(a).WithFallbackRecognizer(b).Build()
	require.NoError(t, err)

	err = p.Close()
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.ErrorContains(t, err, "stuck")
}

func TestPipeline_Info(t *testing.T) {
	p := newPipeline(t, recognizer.Func{ID: "fake", Fn: func(context.Context, image.Image) (recognizer.Recognition, error) {
		return recognizer.Recognition{}, nil
	}})
	info := p.Info()
	assert.Equal(t, "fake", info["recognizer"])
	assert.Equal(t, 4, info["max_attempts"])
	assert.Equal(t, "none", newPipeline(t, nil).RecognizerName())
}
