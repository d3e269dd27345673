//go:build tesseract

package tesseract

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/labelscan/internal/testutil"
)

func TestEngine_ReadsSyntheticLabel(t *testing.T) {
	img := testutil.LabelImage(t, []string{"BATCH CODE LOT-2026-0113-001"}, 4)

	e, err := New(DefaultOptions())
	require.NoError(t, err)

	rec, err := e.Recognize(context.Background(), img)
	require.NoError(t, err)
	assert.Contains(t, strings.ToUpper(rec.Text), "BATCH")
	assert.Greater(t, rec.Confidence, 0.0)
}

func TestEngine_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, err := New(DefaultOptions())
	require.NoError(t, err)
	_, err = e.Recognize(ctx, testutil.LabelImage(t, []string{"X"}, 1))
	assert.ErrorIs(t, err, context.Canceled)
}
