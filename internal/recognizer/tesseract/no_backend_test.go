//go:build !tesseract

package tesseract

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/labelscan/internal/recognizer"
)

func TestStubEngine(t *testing.T) {
	e, err := New(DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "tesseract", e.Name())

	_, err = e.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)))
	assert.ErrorIs(t, err, ErrNoBackend)
	assert.ErrorIs(t, err, recognizer.ErrUnavailable)
}
