//go:build barcode_gozxing

package barcode

import (
	"context"
	"errors"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

func newDefaultBackend() (Backend, error) { return gozxingBackend{}, nil }

// gozxingBackend runs one gozxing reader per requested format over a shared
// binarized bitmap. Readers are created per call; they keep internal state.
type gozxingBackend struct{}

func (gozxingBackend) Decode(ctx context.Context, img image.Image, opts Options) ([]Result, error) {
	if img == nil {
		return nil, errors.New("barcode: nil image")
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, err
	}

	hints := map[gozxing.DecodeHintType]interface{}{}
	if opts.TryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	formats := opts.Formats
	if len(formats) == 0 {
		formats = DefaultFormats
	}

	var out []Result
	for _, f := range formats {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		newReader, ok := gozxingReaders[f]
		if !ok {
			continue
		}
		if r, err := newReader().Decode(bmp, hints); err == nil && r != nil {
			out = append(out, Result{Type: f, Value: r.GetText()})
		}
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

var gozxingReaders = map[Format]func() gozxing.Reader{
	FormatQR:         qrcode.NewQRCodeReader,
	FormatDataMatrix: datamatrix.NewDataMatrixReader,
	FormatCode128:    oned.NewCode128Reader,
	FormatEAN13:      oned.NewEAN13Reader,
}
