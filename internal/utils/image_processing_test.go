package utils

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			val := uint8((x + y) % 256)
			img.Set(x, y, color.RGBA{val, val, val, 255})
		}
	}
	return img
}

func TestRotate(t *testing.T) {
	img := genTestImage(40, 10)

	tests := []struct {
		degrees int
		wantW   int
		wantH   int
	}{
		{0, 40, 10},
		{90, 10, 40},
		{180, 40, 10},
		{270, 10, 40},
		{-90, 10, 40},
		{450, 10, 40},
	}
	for _, tt := range tests {
		out, err := Rotate(img, tt.degrees)
		require.NoError(t, err, "degrees %d", tt.degrees)
		assert.Equal(t, tt.wantW, out.Bounds().Dx(), "degrees %d", tt.degrees)
		assert.Equal(t, tt.wantH, out.Bounds().Dy(), "degrees %d", tt.degrees)
	}

	_, err := Rotate(img, 45)
	var ipe *ImageProcessingError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "rotate", ipe.Operation)

	_, err = Rotate(nil, 90)
	assert.ErrorIs(t, err, ErrNilImage)
}

func TestRotate_QuarterTurnMovesCorner(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	img.SetGray(2, 0, color.Gray{Y: 255}) // top right

	out, err := Rotate(img, 90)
	require.NoError(t, err)
	// Counter-clockwise: top right ends up top left.
	r, _, _, _ := out.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}

func TestInvert(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 1))
	img.SetGray(0, 0, color.Gray{Y: 0})
	img.SetGray(1, 0, color.Gray{Y: 255})

	out := Invert(img)
	r0, _, _, _ := out.At(0, 0).RGBA()
	r1, _, _, _ := out.At(1, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r0)
	assert.Equal(t, uint32(0), r1)
}

func TestFitLongSide(t *testing.T) {
	small := genTestImage(50, 20)
	out, err := FitLongSide(small, 100)
	require.NoError(t, err)
	assert.Same(t, small, out)

	out, err = FitLongSide(small, 0)
	require.NoError(t, err)
	assert.Same(t, small, out, "zero disables scaling")

	out, err = FitLongSide(genTestImage(400, 200), 100)
	require.NoError(t, err)
	assert.Equal(t, 100, out.Bounds().Dx())
	assert.Equal(t, 50, out.Bounds().Dy())

	_, err = FitLongSide(nil, 100)
	assert.ErrorIs(t, err, ErrNilImage)
	_, err = FitLongSide(image.NewGray(image.Rect(0, 0, 0, 5)), 100)
	assert.Error(t, err)
}

func TestFitLongSide_NeverExceedsMax(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("fit keeps both sides within the limit", prop.ForAll(
		func(width, height int) bool {
			out, err := FitLongSide(genTestImage(width, height), 64)
			if err != nil {
				return false
			}
			b := out.Bounds()
			return b.Dx() <= 64 && b.Dy() <= 64 && b.Dx() >= 1 && b.Dy() >= 1
		},
		gen.IntRange(1, 300),
		gen.IntRange(1, 300),
	))

	properties.TestingRun(t)
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "label.png")

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, genTestImage(30, 12)))
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o600))

	img, meta, err := LoadImage(p)
	require.NoError(t, err)
	assert.Equal(t, 30, img.Bounds().Dx())
	assert.Equal(t, "png", meta.Format)
	assert.Equal(t, 12, meta.Height)
	assert.Positive(t, meta.SizeBytes)
}

func TestLoadImage_Errors(t *testing.T) {
	dir := t.TempDir()

	_, _, err := LoadImage("")
	assert.Error(t, err)

	_, _, err = LoadImage(filepath.Join(dir, "label.gif"))
	assert.Error(t, err)

	_, _, err = LoadImage(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.jpg")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o600))
	_, _, err = LoadImage(bad)
	var ipe *ImageProcessingError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "decode", ipe.Operation)
}

func TestEncodePNG_RoundTrip(t *testing.T) {
	data, err := EncodePNG(genTestImage(8, 8))
	require.NoError(t, err)

	img, format, err := DecodeImage(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 8, img.Bounds().Dx())

	_, err = EncodePNG(nil)
	assert.ErrorIs(t, err, ErrNilImage)
}

func TestIsSupportedImage(t *testing.T) {
	assert.True(t, IsSupportedImage("a/b/LABEL.JPG"))
	assert.True(t, IsSupportedImage("x.bmp"))
	assert.True(t, IsSupportedImage("scan.TIFF"))
	assert.True(t, IsSupportedImage("phone.webp"))
	assert.False(t, IsSupportedImage("x.pdf"))
	assert.False(t, IsSupportedImage("label"))
}
