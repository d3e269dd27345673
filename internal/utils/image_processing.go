package utils

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ImageProcessingError names the step that failed on an image.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// ErrNilImage is wrapped by every helper that receives a nil image.
var ErrNilImage = errors.New("input image is nil")

// FitLongSide scales img down so neither side exceeds maxSide, keeping the
// aspect ratio. Small images and maxSide <= 0 return img itself.
func FitLongSide(img image.Image, maxSide int) (image.Image, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "fit", Err: ErrNilImage}
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, &ImageProcessingError{Operation: "fit", Err: fmt.Errorf("empty image %v", b)}
	}
	if maxSide <= 0 || (b.Dx() <= maxSide && b.Dy() <= maxSide) {
		return img, nil
	}
	return imaging.Fit(img, maxSide, maxSide, imaging.Lanczos), nil
}

// Rotate turns img counter-clockwise by a multiple of 90 degrees onto a new
// canvas anchored at (0,0).
func Rotate(img image.Image, degrees int) (image.Image, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "rotate", Err: ErrNilImage}
	}
	switch ((degrees % 360) + 360) % 360 {
	case 0:
		return img, nil
	case 90:
		return imaging.Rotate90(img), nil
	case 180:
		return imaging.Rotate180(img), nil
	case 270:
		return imaging.Rotate270(img), nil
	}
	return nil, &ImageProcessingError{Operation: "rotate", Err: fmt.Errorf("unsupported rotation %d", degrees)}
}

// Invert returns the negative of img.
func Invert(img image.Image) image.Image { return imaging.Invert(img) }
