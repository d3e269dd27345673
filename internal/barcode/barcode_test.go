package barcode

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	results []Result
	err     error
	opts    Options
}

func (f *fakeBackend) Decode(_ context.Context, _ image.Image, opts Options) ([]Result, error) {
	f.opts = opts
	return f.results, f.err
}

func TestDecodePayload_PrefersFormatOrder(t *testing.T) {
	b := &fakeBackend{results: []Result{
		{Type: FormatCode128, Value: "1234567"},
		{Type: FormatQR, Value: `{"id":"PROD-00042"}`},
	}}

	got, err := DecodePayload(context.Background(), b, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, `{"id":"PROD-00042"}`, got)
	assert.Equal(t, DefaultFormats, b.opts.Formats)
}

func TestDecodePayload_NoSymbol(t *testing.T) {
	b := &fakeBackend{results: []Result{{Type: FormatQR, Value: "  "}}}
	_, err := DecodePayload(context.Background(), b, nil, Options{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecodePayload_BackendError(t *testing.T) {
	boom := errors.New("boom")
	_, err := DecodePayload(context.Background(), &fakeBackend{err: boom}, nil, Options{})
	assert.ErrorIs(t, err, boom)

	_, err = DecodePayload(context.Background(), nil, nil, Options{})
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestParseFormat(t *testing.T) {
	f, ok := ParseFormat(" QR ")
	require.True(t, ok)
	assert.Equal(t, FormatQR, f)
	assert.Equal(t, "qr", f.String())

	f, ok = ParseFormat("data_matrix")
	require.True(t, ok)
	assert.Equal(t, FormatDataMatrix, f)

	f, ok = ParseFormat("GTIN13")
	require.True(t, ok)
	assert.Equal(t, "ean13", f.String())
	assert.NotContains(t, DefaultFormats, FormatEAN13)

	_, ok = ParseFormat("upc_e")
	assert.False(t, ok)
	assert.Equal(t, "unknown", FormatUnknown.String())
}

func TestFormatNames_RoundTrip(t *testing.T) {
	for f := range formatNames {
		got, ok := ParseFormat(f.String())
		require.True(t, ok, f.String())
		assert.Equal(t, f, got)
	}
}
