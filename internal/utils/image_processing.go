package utils

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// ImageConstraints defines the constraints for imported images.
type ImageConstraints struct {
	MaxWidth  int
	MaxHeight int
	MinWidth  int
	MinHeight int
}

// DefaultImageConstraints returns the default constraints for recognition
// input. Photos from phone cameras are scaled down; tiny images are refused.
func DefaultImageConstraints() ImageConstraints {
	return ImageConstraints{
		MaxWidth:  2560,
		MaxHeight: 2560,
		MinWidth:  16,
		MinHeight: 16,
	}
}

// ValidateImageConstraints checks dimensions against the provided constraints.
func ValidateImageConstraints(img image.Image, constraints ImageConstraints) error {
	if img == nil {
		return &ImageProcessingError{Operation: "validate", Err: errors.New("input image is nil")}
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < constraints.MinWidth || h < constraints.MinHeight {
		return &ImageProcessingError{
			Operation: "validate",
			Err: fmt.Errorf(
				"image too small: %dx%d < %dx%d",
				w, h, constraints.MinWidth, constraints.MinHeight,
			),
		}
	}
	return nil
}

// ResizeImage scales an image down to fit the constraints while preserving
// aspect ratio. Images already within bounds are returned unchanged.
func ResizeImage(img image.Image, constraints ImageConstraints) (image.Image, error) {
	if err := ValidateImageConstraints(img, constraints); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	scale := 1.0
	if constraints.MaxWidth > 0 {
		scale = math.Min(scale, float64(constraints.MaxWidth)/float64(width))
	}
	if constraints.MaxHeight > 0 {
		scale = math.Min(scale, float64(constraints.MaxHeight)/float64(height))
	}
	if scale >= 1.0 {
		return img, nil
	}

	newWidth := max(int(float64(width)*scale), constraints.MinWidth, 1)
	newHeight := max(int(float64(height)*scale), constraints.MinHeight, 1)

	return imaging.Resize(img, newWidth, newHeight, imaging.Lanczos), nil
}

// FlattenAlpha composites img onto an opaque white background. Transparent
// screenshots otherwise recognize as black-on-black.
func FlattenAlpha(img image.Image) image.Image {
	if img == nil || !hasAlpha(img) {
		return img
	}
	bg := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// PrepareImport normalizes an imported still for recognition.
func PrepareImport(img image.Image, constraints ImageConstraints) (image.Image, error) {
	resized, err := ResizeImage(img, constraints)
	if err != nil {
		return nil, err
	}
	return FlattenAlpha(resized), nil
}

func hasAlpha(img image.Image) bool {
	switch im := img.(type) {
	case *image.Gray, *image.Gray16, *image.YCbCr, *image.CMYK:
		return false
	case *image.RGBA:
		return !im.Opaque()
	case *image.NRGBA:
		return !im.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a < 0xffff {
				return true
			}
		}
	}
	return false
}
