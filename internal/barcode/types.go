package barcode

import (
	"context"
	"errors"
	"image"
	"slices"
	"strings"
)

// Format is a symbology a backend can search for.
type Format int

const (
	FormatUnknown Format = iota
	FormatQR
	FormatDataMatrix
	FormatCode128
	FormatEAN13
)

// formatNames holds the canonical name first, then accepted aliases.
var formatNames = map[Format][]string{
	FormatQR:         {"qr", "qrcode", "qr_code"},
	FormatDataMatrix: {"datamatrix", "data_matrix", "dm"},
	FormatCode128:    {"code128", "code_128"},
	FormatEAN13:      {"ean13", "ean_13", "gtin13"},
}

func (f Format) String() string {
	if names, ok := formatNames[f]; ok {
		return names[0]
	}
	return "unknown"
}

// ParseFormat maps a config name or alias such as "QR" or "dm" to a Format.
func ParseFormat(name string) (Format, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f, names := range formatNames {
		if slices.Contains(names, name) {
			return f, true
		}
	}
	return FormatUnknown, false
}

// DefaultFormats are tried in this order. Retail EAN-13 codes carry a GTIN,
// not a catalog payload, so they are opt-in.
var DefaultFormats = []Format{FormatQR, FormatDataMatrix, FormatCode128}

// Options controls backend decoding behavior.
type Options struct {
	// Formats constrains the set of symbologies to search.
	Formats []Format

	// TryHarder enables more exhaustive search (slower but more robust).
	TryHarder bool
}

// Result represents a decoded symbol.
type Result struct {
	Type  Format
	Value string
}

// Backend is a pluggable barcode decoder implementation.
type Backend interface {
	Decode(ctx context.Context, img image.Image, opts Options) ([]Result, error)
}

var (
	// ErrNotFound is returned when the image holds no readable symbol.
	ErrNotFound = errors.New("barcode: no symbol found")

	// ErrNoBackend means this binary was built without a symbol decoder.
	// Labels can still be resolved from payloads the client decoded itself.
	ErrNoBackend = errors.New("barcode: no decoder linked; build with -tags=barcode_gozxing or send decoded payloads")
)

// NewBackend returns the decoder linked into this build, or ErrNoBackend.
func NewBackend() (Backend, error) { return newDefaultBackend() }

// DecodePayload returns the text of the first symbol found in img, searching
// formats in opts order (DefaultFormats when empty).
func DecodePayload(ctx context.Context, b Backend, img image.Image, opts Options) (string, error) {
	if b == nil {
		return "", ErrNoBackend
	}
	if len(opts.Formats) == 0 {
		opts.Formats = DefaultFormats
	}
	results, err := b.Decode(ctx, img, opts)
	if err != nil {
		return "", err
	}
	for _, f := range opts.Formats {
		for _, r := range results {
			if r.Type == f && strings.TrimSpace(r.Value) != "" {
				return r.Value, nil
			}
		}
	}
	return "", ErrNotFound
}
