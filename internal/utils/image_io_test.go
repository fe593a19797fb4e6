package utils

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestIsSupportedImage(t *testing.T) {
	for _, p := range []string{"a.png", "b.JPG", "c.jpeg", "d.bmp", "e.heic", "f.HEIF", "g.gif"} {
		assert.True(t, IsSupportedImage(p), p)
	}
	for _, p := range []string{"a.pdf", "b.tiff", "noext"} {
		assert.False(t, IsSupportedImage(p), p)
	}
	assert.True(t, IsPDF("scan.PDF"))
	assert.False(t, IsPDF("scan.png"))
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "still.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, solid(40, 20, color.White)), 0o600))

	img, meta, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, "png", meta.Format)
	assert.Equal(t, path, meta.Path)
	assert.InDelta(t, 2.0, meta.AspectRatio, 1e-9)
	assert.Positive(t, meta.SizeBytes)
}

func TestLoadImageBMP(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, solid(8, 8, color.Black)))
	path := filepath.Join(t.TempDir(), "still.bmp")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	_, meta, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, "bmp", meta.Format)
}

func TestLoadImageErrors(t *testing.T) {
	_, _, err := LoadImage("")
	require.Error(t, err)

	_, _, err = LoadImage("document.tiff")
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, _, err = LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	var procErr *ImageProcessingError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, "load", procErr.Operation)
	assert.ErrorIs(t, err, os.ErrNotExist)

	garbage := filepath.Join(t.TempDir(), "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o600))
	_, _, err = LoadImage(garbage)
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, "decode", procErr.Operation)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestReadImage(t *testing.T) {
	data := encodePNG(t, solid(10, 10, color.White))

	img, _, err := ReadImage(bytes.NewReader(data), int64(len(data)), "image/png")
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dy())

	_, _, err = ReadImage(bytes.NewReader(data), int64(len(data)-1), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")

	_, _, err = ReadImage(strings.NewReader(""), 0, "")
	assert.Error(t, err)
}

func TestIsHEIC(t *testing.T) {
	header := func(brand string) []byte {
		return append([]byte{0, 0, 0, 24}, []byte("ftyp"+brand+"\x00\x00\x00\x00")...)
	}
	assert.True(t, IsHEIC(header("heic")))
	assert.True(t, IsHEIC(header("mif1")))
	assert.False(t, IsHEIC(header("isom")))
	assert.False(t, IsHEIC([]byte("short")))
	assert.True(t, isHEICMimeType("image/HEIF"))
	assert.False(t, isHEICMimeType("image/png"))

	// A HEIC brand with a truncated body surfaces a decode error.
	_, _, err := DecodeImage(header("heic"), "")
	var procErr *ImageProcessingError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, "decode", procErr.Operation)
}
