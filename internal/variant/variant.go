// Package variant produces the preprocessed image variants the retry loop feeds
// to the text recognizer when the raw capture reads poorly: a global-threshold
// black/white rendition, its negative, and the two quarter-turn rotations.
package variant

import (
	"fmt"
	"image"
	"image/color"

	"github.com/MeKo-Tech/labelscan/internal/utils"
)

// OriginalID identifies the unprocessed capture in attempt logs.
const OriginalID = "original"

// ThresholdFactor scales the mean luminance into the binarization threshold.
const ThresholdFactor = 0.95

// Spec selects one variant.
type Spec struct {
	Rotation int // degrees counter-clockwise: 0, 90 or 270
	Inverted bool
}

// ID returns a stable identifier such as "rot090" or "rot000-inv".
func (s Spec) ID() string {
	id := fmt.Sprintf("rot%03d", s.Rotation)
	if s.Inverted {
		id += "-inv"
	}
	return id
}

// DefaultSpecs is the fixed variant order.
var DefaultSpecs = []Spec{
	{Rotation: 0},
	{Rotation: 0, Inverted: true},
	{Rotation: 90},
	{Rotation: 270},
}

// Variant is a derived image. It is never modified after Generate returns.
type Variant struct {
	Spec
	ID    string
	Image image.Image
}

// Generate returns the DefaultSpecs variants of img in order.
func Generate(img image.Image) ([]Variant, error) {
	return GenerateSpecs(img, DefaultSpecs)
}

// GenerateSpecs binarizes img once and derives one variant per spec. The input
// image is not modified.
func GenerateSpecs(img image.Image, specs []Spec) ([]Variant, error) {
	if img == nil {
		return nil, &utils.ImageProcessingError{Operation: "variant", Err: utils.ErrNilImage}
	}
	for _, s := range specs {
		if s.Rotation != 0 && s.Rotation != 90 && s.Rotation != 270 {
			return nil, &utils.ImageProcessingError{
				Operation: "variant",
				Err:       fmt.Errorf("unsupported rotation %d", s.Rotation),
			}
		}
	}

	bw := Binarize(img)
	out := make([]Variant, 0, len(specs))
	for _, s := range specs {
		var v image.Image = bw
		if s.Inverted {
			v = utils.Invert(v)
		}
		v, err := utils.Rotate(v, s.Rotation)
		if err != nil {
			return nil, err
		}
		out = append(out, Variant{Spec: s, ID: s.ID(), Image: v})
	}
	return out, nil
}

// Luminance returns 0.299R + 0.587G + 0.114B on a 0..255 scale.
func Luminance(c color.Color) float64 {
	r, g, b, _ := c.RGBA()
	return 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
}

// Threshold maps a mean luminance to the cut-off between black and white.
func Threshold(mean float64) float64 {
	t := mean * ThresholdFactor
	switch {
	case t < 0:
		return 0
	case t > 255:
		return 255
	}
	return t
}

// Binarize converts img to pure black and white: pixels brighter than
// Threshold(mean luminance) become white. The result is anchored at (0,0).
func Binarize(img image.Image) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	lum := make([]float64, w*h)
	var sum float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			l := Luminance(img.At(b.Min.X+x, b.Min.Y+y))
			lum[y*w+x] = l
			sum += l
		}
	}

	t := Threshold(sum / float64(len(lum)))
	for i, l := range lum {
		if l > t {
			out.Pix[(i/w)*out.Stride+i%w] = 255
		}
	}
	return out
}
