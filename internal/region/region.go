// Package region limits a model edit to the lower part of a photo and puts
// the edited band back onto the untouched original.
package region

import (
	"errors"
	"fmt"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"

	"nightscape-preview/internal/raster"
)

var (
	ErrInvalidPercent = errors.New("crop percent must be within [0,100)")
	ErrEmptyImage     = errors.New("empty image")
)

// Cropped is the lower band of an image together with the size of the image
// it came from.
type Cropped struct {
	Image      raster.Image
	FullWidth  int
	FullHeight int
	OffsetY    int
}

// Offset is the first row kept when the top percent of height is removed.
// It is always below height for percent < 100, so a crop is never empty.
func Offset(height int, percent float64) int {
	return int(math.Floor(float64(height) * percent / 100))
}

func checkPercent(percent float64) error {
	if math.IsNaN(percent) || percent < 0 || percent >= 100 {
		return fmt.Errorf("%w: got %g", ErrInvalidPercent, percent)
	}
	return nil
}

// CropTop removes the top percent of rows.
func CropTop(img raster.Image, percent float64) (Cropped, error) {
	if err := checkPercent(percent); err != nil {
		return Cropped{}, err
	}
	if img.Empty() {
		return Cropped{}, ErrEmptyImage
	}

	w, h := img.Width(), img.Height()
	off := Offset(h, percent)

	band := raster.New(w, h-off, img.Format)
	band.Quality = img.Quality
	b := img.Pix.Bounds()
	for y := off; y < h; y++ {
		src := img.Pix.Pix[img.Pix.PixOffset(b.Min.X, b.Min.Y+y):][:w*4]
		copy(band.Pix.Pix[band.Pix.PixOffset(0, y-off):], src)
	}

	return Cropped{Image: band, FullWidth: w, FullHeight: h, OffsetY: off}, nil
}

// CompositeBack draws full, then sub over the band that CropTop(full, percent)
// removed it from. A sub image of another size, as models often return, is
// rescaled to fit the band.
func CompositeBack(full, sub raster.Image, percent float64) (raster.Image, error) {
	if err := checkPercent(percent); err != nil {
		return raster.Image{}, err
	}
	if full.Empty() || sub.Empty() {
		return raster.Image{}, ErrEmptyImage
	}

	out := full.Clone()
	w, h := full.Width(), full.Height()
	off := Offset(h, percent)
	target := image.Rect(0, off, w, h).Add(out.Pix.Bounds().Min)

	if sub.Width() == w && sub.Height() == h-off {
		xdraw.Draw(out.Pix, target, sub.Pix, sub.Pix.Bounds().Min, xdraw.Src)
		return out, nil
	}

	xdraw.CatmullRom.Scale(out.Pix, target, sub.Pix, sub.Pix.Bounds(), xdraw.Src, nil)
	return out, nil
}

// ClosestAspectRatio buckets w×h into one of the ratios the image model
// accepts. The checks run in order, so a ratio just under a threshold falls
// to the next bucket even when the skipped one is numerically closer.
func ClosestAspectRatio(w, h int) string {
	if w <= 0 || h <= 0 {
		return "1:1"
	}
	r := float64(w) / float64(h)
	switch {
	case r >= 1.5:
		return "16:9"
	case r >= 1.15:
		return "4:3"
	case r >= 0.85:
		return "1:1"
	case r >= 0.65:
		return "3:4"
	default:
		return "9:16"
	}
}
