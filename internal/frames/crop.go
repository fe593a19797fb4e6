package frames

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/MeKo-Tech/wordscan/internal/mempool"
)

// ErrCropOutside is returned when the scaled crop region misses the frame.
var ErrCropOutside = errors.New("frames: crop region outside frame")

// Upright rotates img clockwise by degrees. Only multiples of 90 are
// supported; anything else returns img unchanged.
func Upright(img image.Image, degrees int) image.Image {
	switch ((degrees % 360) + 360) % 360 {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// ScaleCrop maps crop, given in viewport coordinates, onto an image of the
// given bounds. The result is clipped to bounds.
func ScaleCrop(bounds, crop image.Rectangle, viewport image.Point) (image.Rectangle, error) {
	if viewport.X <= 0 || viewport.Y <= 0 {
		return image.Rectangle{}, fmt.Errorf("frames: invalid viewport %v", viewport)
	}
	crop = crop.Canon()
	w, h := bounds.Dx(), bounds.Dy()
	r := image.Rect(
		bounds.Min.X+crop.Min.X*w/viewport.X,
		bounds.Min.Y+crop.Min.Y*h/viewport.Y,
		bounds.Min.X+crop.Max.X*w/viewport.X,
		bounds.Min.Y+crop.Max.Y*h/viewport.Y,
	).Intersect(bounds)
	if r.Empty() {
		return image.Rectangle{}, ErrCropOutside
	}
	return r, nil
}

// cropPooled copies region r of src into a pooled RGBA image anchored at the
// origin.
func cropPooled(src image.Image, r image.Rectangle) *image.RGBA {
	dst := mempool.GetRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	xdraw.Copy(dst, image.Point{}, src, r, xdraw.Src, nil)
	return dst
}
