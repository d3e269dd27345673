// Package recognizer defines the text recognition collaborator: anything that
// turns an image into text plus a 0..100 confidence. Concrete engines live in
// subpackages (tesseract, vision); this package only holds the contract and
// the fallback wrapper.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
)

// Recognition is the raw output of one recognizer call.
type Recognition struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Recognizer extracts text from an image. Implementations must honour ctx
// cancellation and must not retain img after returning.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (Recognition, error)
	Name() string
}

// ErrUnavailable marks a recognizer that could not produce a result at all,
// as opposed to one that produced empty text.
var ErrUnavailable = errors.New("recognizer: unavailable")

// UnavailableError records which backend failed and why. It matches
// ErrUnavailable with errors.Is.
type UnavailableError struct {
	Backend string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("recognizer %s unavailable: %v", e.Backend, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is reports ErrUnavailable as a match.
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Unavailable wraps err as an UnavailableError for backend.
func Unavailable(backend string, err error) error {
	return &UnavailableError{Backend: backend, Err: err}
}

// ClampConfidence limits c to [0, 100].
func ClampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c):
		return 0
	case c < 0:
		return 0
	case c > 100:
		return 100
	}
	return c
}

// Func adapts a plain function into a Recognizer.
type Func struct {
	ID string
	Fn func(ctx context.Context, img image.Image) (Recognition, error)
}

// Recognize implements Recognizer.
func (f Func) Recognize(ctx context.Context, img image.Image) (Recognition, error) {
	return f.Fn(ctx, img)
}

// Name implements Recognizer.
func (f Func) Name() string {
	if f.ID == "" {
		return "func"
	}
	return f.ID
}

type fallbackRecognizer struct {
	primary  Recognizer
	fallback Recognizer
	logger   *slog.Logger
}

// WithFallback returns a recognizer that asks fallback exactly once when
// primary returns an error. Empty text is a result, not an error, and does not
// trigger the fallback. When both fail the error wraps ErrUnavailable. A nil
// fallback returns primary unchanged.
func WithFallback(primary, fallback Recognizer, logger *slog.Logger) Recognizer {
	if fallback == nil {
		return primary
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &fallbackRecognizer{primary: primary, fallback: fallback, logger: logger}
}

func (f *fallbackRecognizer) Name() string {
	return f.primary.Name() + "+" + f.fallback.Name()
}

func (f *fallbackRecognizer) Recognize(ctx context.Context, img image.Image) (Recognition, error) {
	rec, err := f.primary.Recognize(ctx, img)
	if err == nil {
		return rec, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Recognition{}, ctxErr
	}

	f.logger.Debug("Primary recognizer failed, trying fallback",
		"primary", f.primary.Name(), "fallback", f.fallback.Name(), "error", err)

	rec, fbErr := f.fallback.Recognize(ctx, img)
	if fbErr == nil {
		return rec, nil
	}
	return Recognition{}, Unavailable(f.Name(), errors.Join(err, fbErr))
}

// Unwrap lists the recognizers chained inside r, or r itself.
func Unwrap(r Recognizer) []Recognizer {
	switch v := r.(type) {
	case nil:
		return nil
	case *fallbackRecognizer:
		return append(Unwrap(v.primary), Unwrap(v.fallback)...)
	default:
		return []Recognizer{r}
	}
}
