package pipeline

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/labelscan/internal/recognizer"
	"github.com/MeKo-Tech/labelscan/internal/variant"
)

type scripted struct {
	id    string
	rec   recognizer.Recognition
	err   error
	calls int
}

func strategiesOf(steps ...*scripted) []Strategy {
	out := make([]Strategy, len(steps))
	for i, s := range steps {
		out[i] = Strategy{ID: s.id, Recognize: func(context.Context) (recognizer.Recognition, error) {
			s.calls++
			return s.rec, s.err
		}}
	}
	return out
}

func text(t string, conf float64) recognizer.Recognition {
	return recognizer.Recognition{Text: t, Confidence: conf}
}

func TestRun_FirstAttemptGoodEnough(t *testing.T) {
	orig := &scripted{id: "original", rec: text("LOT ABC-123 EXP 01/02/2026", 90)}
	inv := &scripted{id: "rot000-inv"}

	out, err := Run(context.Background(), strategiesOf(orig, inv), nil, DefaultRetryPolicy(), nil)
	require.NoError(t, err)

	assert.True(t, out.Recognized)
	assert.Equal(t, "original", out.Best.VariantID)
	assert.Equal(t, "ABC-123", out.Fields.BatchCode)
	assert.Len(t, out.Attempts, 1)
	assert.Zero(t, inv.calls)
}

// A weak first read with no fields falls through to the variants; the third
// attempt finds a batch code and the fourth is never called.
func TestRun_VariantWins(t *testing.T) {
	orig := &scripted{id: "original", rec: text("~~ ..", 20)}
	inv := &scripted{id: "rot000-inv", rec: text("", 10)}
	r90 := &scripted{id: "rot090", rec: text("BATCH CODE: LOT-2026-0113-001", 55)}
	r270 := &scripted{id: "rot270", rec: text("BATCH X-999999", 99)}

	out, err := Run(context.Background(), strategiesOf(orig, inv, r90, r270), nil, DefaultRetryPolicy(), nil)
	require.NoError(t, err)

	assert.Equal(t, "rot090", out.Best.VariantID)
	assert.InDelta(t, 55.0, out.Best.Confidence, 1e-9)
	assert.Equal(t, "LOT-2026-0113-001", out.Fields.BatchCode)
	assert.Len(t, out.Attempts, 3)
	assert.Zero(t, r270.calls)
}

func TestRun_LowConfidenceWithFieldsStillRetries(t *testing.T) {
	orig := &scripted{id: "original", rec: text("LOT AB-1234", 30)}
	inv := &scripted{id: "rot000-inv", rec: text("LOT CD-5678", 35)}

	out, err := Run(context.Background(), strategiesOf(orig, inv), nil, DefaultRetryPolicy(), nil)
	require.NoError(t, err)

	assert.Equal(t, "rot000-inv", out.Best.VariantID)
	assert.Equal(t, "CD-5678", out.Fields.BatchCode)
}

func TestRun_NoSuccessPicksHighestConfidence(t *testing.T) {
	orig := &scripted{id: "original", rec: text("hello", 30)}
	inv := &scripted{id: "rot000-inv", rec: text("world", 45)}
	r90 := &scripted{id: "rot090", rec: text("again", 45)}

	out, err := Run(context.Background(), strategiesOf(orig, inv, r90), nil, DefaultRetryPolicy(), nil)
	require.NoError(t, err)

	assert.Equal(t, "rot000-inv", out.Best.VariantID, "earliest wins ties")
	assert.Equal(t, "world", out.Best.RawText)
	assert.Len(t, out.Attempts, 3)
}

func TestRun_FailureIsRecordedAndLoopContinues(t *testing.T) {
	orig := &scripted{id: "original", err: errors.New("boom")}
	inv := &scripted{id: "rot000-inv", rec: text("EXP 2026-03-15", 60)}

	out, err := Run(context.Background(), strategiesOf(orig, inv), nil, DefaultRetryPolicy(), nil)
	require.NoError(t, err)

	require.Len(t, out.Attempts, 2)
	assert.True(t, out.Attempts[0].Failed)
	assert.Contains(t, out.Attempts[0].Error, "boom")
	assert.Equal(t, 1, orig.calls, "a failed strategy is not retried")
	assert.Equal(t, "rot000-inv", out.Best.VariantID)
	assert.Equal(t, "2026-03-15", out.Fields.ExpiryDate)
}

func TestRun_UnavailableEndsPass(t *testing.T) {
	orig := &scripted{id: "original", rec: text("smudge", 20)}
	inv := &scripted{id: "rot000-inv", err: recognizer.Unavailable("vision", errors.New("quota"))}
	r90 := &scripted{id: "rot090", rec: text("LOT AB-1234", 90)}

	out, err := Run(context.Background(), strategiesOf(orig, inv, r90), nil, DefaultRetryPolicy(), nil)
	require.NoError(t, err)

	require.Len(t, out.Attempts, 2)
	assert.True(t, out.Attempts[1].Failed)
	assert.Contains(t, out.Attempts[1].Error, "quota")
	assert.Zero(t, r90.calls)
	assert.True(t, out.Recognized)
	assert.Equal(t, "original", out.Best.VariantID)
}

func TestRun_UnavailableFirstAttempt(t *testing.T) {
	orig := &scripted{id: "original", err: recognizer.Unavailable("ocr", errors.New("down"))}
	inv := &scripted{id: "rot000-inv", rec: text("EXP 2026-03-15", 60)}

	out, err := Run(context.Background(), strategiesOf(orig, inv), nil, DefaultRetryPolicy(), nil)
	require.NoError(t, err)

	assert.False(t, out.Recognized)
	assert.Len(t, out.Attempts, 1)
	assert.Zero(t, inv.calls)
}

func TestRun_AllFailed(t *testing.T) {
	steps := []*scripted{
		{id: "a", err: errors.New("x")},
		{id: "b", err: errors.New("y")},
	}
	out, err := Run(context.Background(), strategiesOf(steps...), nil, DefaultRetryPolicy(), nil)
	require.NoError(t, err)
	assert.False(t, out.Recognized)
	assert.Len(t, out.Attempts, 2)
}

func TestRun_MaxAttempts(t *testing.T) {
	steps := make([]*scripted, 6)
	for i := range steps {
		steps[i] = &scripted{id: string(rune('a' + i)), rec: text("", 0)}
	}
	out, err := Run(context.Background(), strategiesOf(steps...), nil, RetryPolicy{MaxAttempts: 2}, nil)
	require.NoError(t, err)
	assert.Len(t, out.Attempts, 2)
	assert.Zero(t, steps[2].calls)
}

func TestRun_CancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := Strategy{ID: "original", Recognize: func(context.Context) (recognizer.Recognition, error) {
		cancel()
		return text("", 0), nil
	}}
	second := &scripted{id: "rot000-inv"}

	_, err := Run(ctx, append([]Strategy{first}, strategiesOf(second)...), nil, DefaultRetryPolicy(), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, second.calls)
}

func TestCaptureStrategies_Order(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 4))
	var sizes []image.Point
	rec := recognizer.Func{Fn: func(_ context.Context, im image.Image) (recognizer.Recognition, error) {
		sizes = append(sizes, im.Bounds().Size())
		return recognizer.Recognition{}, nil
	}}

	strategies := CaptureStrategies(img, rec)
	ids := make([]string, len(strategies))
	for i, s := range strategies {
		ids[i] = s.ID
		_, err := s.Recognize(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, []string{variant.OriginalID, "rot000-inv", "rot090", "rot270"}, ids)
	assert.Equal(t, []image.Point{{8, 4}, {8, 4}, {4, 8}, {4, 8}}, sizes)
}

func TestRetryPolicy_Defaults(t *testing.T) {
	assert.Equal(t, DefaultRetryPolicy(), RetryPolicy{}.withDefaults())
	assert.Equal(t, RetryPolicy{LowConfidence: 0, MaxAttempts: 2}, RetryPolicy{MaxAttempts: 2}.withDefaults())
	assert.Equal(t, RetryPolicy{LowConfidence: 55, MaxAttempts: DefaultMaxAttempts}, RetryPolicy{LowConfidence: 55}.withDefaults())
}

// With the threshold at zero a first read that found fields is accepted no
// matter how unsure the recognizer was.
func TestRun_ZeroLowConfidenceDisablesRetry(t *testing.T) {
	orig := &scripted{id: "original", rec: text("LOT AB-1234", 5)}
	inv := &scripted{id: "rot000-inv", rec: text("LOT CD-5678", 95)}

	out, err := Run(context.Background(), strategiesOf(orig, inv), nil, RetryPolicy{LowConfidence: 0, MaxAttempts: 4}, nil)
	require.NoError(t, err)

	assert.Equal(t, "original", out.Best.VariantID)
	assert.Zero(t, inv.calls)
}
