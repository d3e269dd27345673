package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// LabelConfig describes a synthetic printed label.
type LabelConfig struct {
	Lines      []string
	Scale      int // integer upscaling of the 7x13 bitmap font
	Margin     int // in unscaled pixels
	Background color.Color
	Foreground color.Color
	Rotation   float64 // counter-clockwise, degrees
	Invert     bool
}

// DefaultLabelConfig returns black text on white at 3x.
func DefaultLabelConfig() LabelConfig {
	return LabelConfig{
		Lines:      []string{"Organic Apples", "LOT A-100", "EXP 01/07/2026"},
		Scale:      3,
		Margin:     8,
		Background: color.White,
		Foreground: color.Black,
	}
}

// GenerateLabelImage draws cfg.Lines left aligned, one per row, and applies
// scaling, rotation and inversion in that order.
func GenerateLabelImage(cfg LabelConfig) *image.NRGBA {
	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil()

	width := 0
	for _, line := range cfg.Lines {
		if w := font.MeasureString(face, line).Ceil(); w > width {
			width = w
		}
	}
	width += 2 * cfg.Margin
	height := len(cfg.Lines)*lineHeight + 2*cfg.Margin
	if width <= 2*cfg.Margin {
		width = 2*cfg.Margin + 1
	}
	if height <= 2*cfg.Margin {
		height = 2*cfg.Margin + 1
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: cfg.Background}, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{C: cfg.Foreground},
		Face: face,
	}
	for i, line := range cfg.Lines {
		drawer.Dot = fixed.P(cfg.Margin, cfg.Margin+(i+1)*lineHeight-face.Descent)
		drawer.DrawString(line)
	}

	var out *image.NRGBA
	if cfg.Scale > 1 {
		out = imaging.Resize(img, width*cfg.Scale, height*cfg.Scale, imaging.NearestNeighbor)
	} else {
		out = imaging.Clone(img)
	}
	if cfg.Rotation != 0 {
		out = imaging.Rotate(out, cfg.Rotation, cfg.Background)
	}
	if cfg.Invert {
		out = imaging.Invert(out)
	}
	return out
}

// LabelImage draws lines as black text on white, upscaled by scale.
func LabelImage(t *testing.T, lines []string, scale int) image.Image {
	t.Helper()
	require.NotEmpty(t, lines, "label needs at least one line")

	cfg := DefaultLabelConfig()
	cfg.Lines = lines
	cfg.Scale = scale
	return GenerateLabelImage(cfg)
}

// WriteLabelPNG draws a label and saves it under dir, returning the path.
func WriteLabelPNG(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	SaveImage(t, LabelImage(t, lines, 3), path)
	return path
}

// SaveImage saves an image to the specified path.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	dir := filepath.Dir(path)
	require.NoError(t, EnsureDir(dir), "Failed to create directory %s", dir)

	file, err := os.Create(path) //nolint:gosec // G304: Test file creation with controlled path
	require.NoError(t, err, "Failed to create file %s", path)
	defer func() {
		require.NoError(t, file.Close())
	}()

	require.NoError(t, png.Encode(file, img), "Failed to encode PNG image")
}

// LoadImage loads an image from the specified path.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()

	file, err := os.Open(path) //nolint:gosec // G304: Test file reading with controlled path
	require.NoError(t, err, "Failed to open image file %s", path)
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	require.NoError(t, err, "Failed to decode image")

	return img
}

// CompareImages compares two images and returns true if they are similar.
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	bounds1 := img1.Bounds()
	bounds2 := img2.Bounds()

	if bounds1.Dx() != bounds2.Dx() || bounds1.Dy() != bounds2.Dy() {
		return false
	}

	var totalDiff float64
	var pixelCount float64

	for y := 0; y < bounds1.Dy(); y++ {
		for x := 0; x < bounds1.Dx(); x++ {
			r1, g1, b1, a1 := img1.At(bounds1.Min.X+x, bounds1.Min.Y+y).RGBA()
			r2, g2, b2, a2 := img2.At(bounds2.Min.X+x, bounds2.Min.Y+y).RGBA()

			dr := float64(r1) - float64(r2)
			dg := float64(g1) - float64(g2)
			db := float64(b1) - float64(b2)
			da := float64(a1) - float64(a2)

			totalDiff += math.Sqrt(dr*dr + dg*dg + db*db + da*da)
			pixelCount++
		}
	}
	if pixelCount == 0 {
		return true
	}

	avgDiff := totalDiff / pixelCount
	maxDiff := math.Sqrt(4 * 65535 * 65535)

	return (avgDiff / maxDiff) <= tolerance
}
