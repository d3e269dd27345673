package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/labelscan/internal/extract"
	"github.com/MeKo-Tech/labelscan/internal/recognizer"
	"github.com/MeKo-Tech/labelscan/internal/variant"
)

const (
	// DefaultLowConfidence is the confidence below which the first attempt is retried.
	DefaultLowConfidence = 40.0
	// DefaultMaxAttempts caps recognizer calls per capture, the original included.
	DefaultMaxAttempts = 4
)

// RetryPolicy bounds the retry controller.
type RetryPolicy struct {
	LowConfidence float64 `json:"low_confidence" mapstructure:"low_confidence"`
	MaxAttempts   int     `json:"max_attempts" mapstructure:"max_attempts"`
}

// DefaultRetryPolicy returns the standard policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{LowConfidence: DefaultLowConfidence, MaxAttempts: DefaultMaxAttempts}
}

// withDefaults replaces an unset policy with DefaultRetryPolicy. A set policy
// keeps its LowConfidence, so 0 disables the confidence retry.
func (p RetryPolicy) withDefaults() RetryPolicy {
	if p == (RetryPolicy{}) {
		return DefaultRetryPolicy()
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	return p
}

// Strategy is one way of reading a capture, usually one image variant.
type Strategy struct {
	ID        string
	Recognize func(ctx context.Context) (recognizer.Recognition, error)
}

// RetryOutcome is the attempt the controller settled on.
type RetryOutcome struct {
	Best     Attempt
	Fields   extract.Fields
	Attempts []Attempt
	// Recognized is false when every attempt failed.
	Recognized bool
}

// Run executes strategies in order. The first strategy is always run; the
// rest only when its extraction found neither batch nor expiry or its
// confidence is below policy.LowConfidence. It stops at the first strategy
// whose extraction finds a batch or expiry. Otherwise the successful attempt
// with the highest confidence wins, earliest first on ties. A failed strategy
// is recorded and skipped, except that a recognizer reporting
// recognizer.ErrUnavailable ends the pass: every later variant would hit the
// same backend. Run returns ctx.Err() if cancelled between attempts.
func Run(
	ctx context.Context,
	strategies []Strategy,
	extractFn func(string) extract.Fields,
	policy RetryPolicy,
	logger *slog.Logger,
) (RetryOutcome, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if extractFn == nil {
		extractFn = extract.Extract
	}
	policy = policy.withDefaults()

	var out RetryOutcome
	bestIdx := -1
	var bestFields extract.Fields

	for i, s := range strategies {
		if i >= policy.MaxAttempts {
			break
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		rec, err := s.Recognize(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			logger.Debug("recognition attempt failed", "variant", s.ID, "error", err)
			out.Attempts = append(out.Attempts, Attempt{VariantID: s.ID, Failed: true, Error: err.Error()})
			if errors.Is(err, recognizer.ErrUnavailable) {
				break
			}
			continue
		}

		attempt := Attempt{VariantID: s.ID, RawText: rec.Text, Confidence: recognizer.ClampConfidence(rec.Confidence)}
		out.Attempts = append(out.Attempts, attempt)
		fields := extractFn(rec.Text)
		logger.Debug("recognition attempt",
			"variant", s.ID,
			"confidence", attempt.Confidence,
			"batch", fields.BatchCode,
			"expiry", fields.ExpiryDate,
		)

		if bestIdx < 0 || attempt.Confidence > out.Attempts[bestIdx].Confidence {
			bestIdx = len(out.Attempts) - 1
			bestFields = fields
		}

		if i == 0 {
			if fields.HasAny() && attempt.Confidence >= policy.LowConfidence {
				return settle(out, len(out.Attempts)-1, fields), nil
			}
			continue
		}
		if fields.HasAny() {
			return settle(out, len(out.Attempts)-1, fields), nil
		}
	}

	if bestIdx < 0 {
		return out, nil
	}
	return settle(out, bestIdx, bestFields), nil
}

func settle(out RetryOutcome, idx int, fields extract.Fields) RetryOutcome {
	out.Best = out.Attempts[idx]
	out.Fields = fields
	out.Recognized = true
	return out
}

// CaptureStrategies returns the original image followed by the default
// variants after the first, each recognized with rec. Variants are generated
// once, on first use, so a capture that reads cleanly never pays for them.
func CaptureStrategies(img image.Image, rec recognizer.Recognizer) []Strategy {
	specs := variant.DefaultSpecs[1:]
	variants := sync.OnceValues(func() ([]variant.Variant, error) {
		return variant.GenerateSpecs(img, specs)
	})

	strategies := make([]Strategy, 0, len(specs)+1)
	strategies = append(strategies, Strategy{
		ID: variant.OriginalID,
		Recognize: func(ctx context.Context) (recognizer.Recognition, error) {
			return rec.Recognize(ctx, img)
		},
	})
	for i, spec := range specs {
		strategies = append(strategies, Strategy{
			ID: spec.ID(),
			Recognize: func(ctx context.Context) (recognizer.Recognition, error) {
				vs, err := variants()
				if err != nil {
					return recognizer.Recognition{}, fmt.Errorf("generate variants: %w", err)
				}
				return rec.Recognize(ctx, vs[i].Image)
			},
		})
	}
	return strategies
}
