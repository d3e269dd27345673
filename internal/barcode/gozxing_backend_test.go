//go:build barcode_gozxing

package barcode

import (
	"context"
	"image"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGozxingBackend_DecodesQR(t *testing.T) {
	matrix, err := qrcode.NewQRCodeWriter().Encode("PALLET:ABC123", gozxing.BarcodeFormat_QR_CODE, 240, 240, nil)
	require.NoError(t, err)

	b, err := NewBackend()
	require.NoError(t, err)

	got, err := DecodePayload(context.Background(), b, matrix, Options{Formats: []Format{FormatQR}})
	require.NoError(t, err)
	assert.Equal(t, "PALLET:ABC123", got)
}

func TestGozxingBackend_EAN13IsOptIn(t *testing.T) {
	matrix, err := oned.NewEAN13Writer().Encode("4006381333931", gozxing.BarcodeFormat_EAN_13, 380, 120, nil)
	require.NoError(t, err)

	b, err := NewBackend()
	require.NoError(t, err)

	_, err = DecodePayload(context.Background(), b, matrix, Options{})
	assert.ErrorIs(t, err, ErrNotFound, "default formats skip retail codes")

	got, err := DecodePayload(context.Background(), b, matrix, Options{Formats: []Format{FormatEAN13}, TryHarder: true})
	require.NoError(t, err)
	assert.Equal(t, "4006381333931", got)
}

func TestGozxingBackend_BlankImage(t *testing.T) {
	b, err := NewBackend()
	require.NoError(t, err)

	_, err = DecodePayload(context.Background(), b, image.NewGray(image.Rect(0, 0, 64, 64)), Options{})
	assert.ErrorIs(t, err, ErrNotFound)
}
