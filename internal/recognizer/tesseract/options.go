// Package tesseract adapts the Tesseract OCR engine (via gosseract) to the
// recognizer contract. The cgo binding is only compiled with the "tesseract"
// build tag; default builds get a stub that reports ErrNoBackend.
package tesseract

import "errors"

// Name identifies this backend in logs and metrics.
const Name = "tesseract"

// ErrNoBackend is returned by the stub engine in builds without the tag.
var ErrNoBackend = errors.New("tesseract: engine not linked; build with -tags=tesseract")

// Options configures the engine.
type Options struct {
	// Languages are Tesseract traineddata names, e.g. "eng", "deu".
	Languages []string
	// Whitelist restricts recognized characters when non-empty.
	Whitelist string
	// PageSegMode is passed through as tessedit_pageseg_mode when > 0.
	PageSegMode int
}

// DefaultOptions suits short printed labels.
func DefaultOptions() Options {
	return Options{Languages: []string{"eng"}, PageSegMode: 6}
}
