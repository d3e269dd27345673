//go:build !tesseract

package tesseract

import (
	"context"
	"image"

	"github.com/MeKo-Tech/labelscan/internal/recognizer"
)

// Engine is the stub used when Tesseract is not linked.
type Engine struct {
	opts Options
}

// New returns the stub engine. It never fails so configuration errors surface
// as RecognitionUnavailable outcomes rather than startup crashes.
func New(opts Options) (*Engine, error) { return &Engine{opts: opts}, nil }

// Name implements recognizer.Recognizer.
func (e *Engine) Name() string { return Name }

// Recognize always reports the engine as unavailable.
func (e *Engine) Recognize(context.Context, image.Image) (recognizer.Recognition, error) {
	return recognizer.Recognition{}, recognizer.Unavailable(Name, ErrNoBackend)
}
