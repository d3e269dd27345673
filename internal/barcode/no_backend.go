//go:build !barcode_gozxing

package barcode

// Callers treat ErrNoBackend as "skip barcode decoding".
func newDefaultBackend() (Backend, error) { return nil, ErrNoBackend }
