package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// CreateTestImage creates a solid image with the given dimensions and color.
func CreateTestImage(width, height int, background color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{background}, image.Point{}, draw.Src)
	return img
}

// AddressImage renders text (typically "///word.word.word") in black on a
// white background, centered, one line per element.
func AddressImage(width, height int, lines ...string) *image.RGBA {
	img := CreateTestImage(width, height, color.White)
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: img, Src: image.NewUniform(color.Black), Face: face}

	lineHeight := face.Metrics().Height.Ceil()
	startY := (height - len(lines)*lineHeight) / 2
	for i, line := range lines {
		w := font.MeasureString(face, line).Ceil()
		drawer.Dot = fixed.P((width-w)/2, startY+(i+1)*lineHeight)
		drawer.DrawString(line)
	}
	return img
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// SaveImage writes img as PNG to path, creating parent directories.
func SaveImage(t testing.TB, img image.Image, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, EncodePNG(t, img), 0o600))
}
