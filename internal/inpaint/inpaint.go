// Package inpaint prepares inputs for mask-based image models: fixture
// sprites pasted at their positions and a soft mask around each one.
package inpaint

import (
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"

	"nightscape-preview/internal/fixture"
	"nightscape-preview/internal/raster"
)

const (
	DefaultScale    = 0.2
	DefaultDilation = 0.30
	blurPasses      = 3
)

// Centers converts placements to pixel centers on a w×h image.
func Centers(w, h int, m fixture.SpatialMap) []image.Point {
	out := make([]image.Point, 0, len(m))
	for _, p := range m {
		x, y := p.Pixel(w, h)
		out = append(out, image.Pt(int(math.Round(x)), int(math.Round(y))))
	}
	return out
}

// ScaleSprite resizes sprite by scale, keeping at least one pixel per side.
func ScaleSprite(sprite raster.Image, scale float64) raster.Image {
	if scale <= 0 || math.IsNaN(scale) {
		scale = DefaultScale
	}
	w := max(1, int(float64(sprite.Width())*scale))
	h := max(1, int(float64(sprite.Height())*scale))

	out := raster.New(w, h, sprite.Format)
	if sprite.Empty() {
		return out
	}
	xdraw.CatmullRom.Scale(out.Pix, out.Pix.Bounds(), sprite.Pix, sprite.Pix.Bounds(), xdraw.Src, nil)
	return out
}

// Footprints returns the rectangle a size-sized sprite covers at each center.
// The sprite is shifted to stay inside the image; the placement itself is
// not changed.
func Footprints(w, h int, centers []image.Point, size image.Point) []image.Rectangle {
	out := make([]image.Rectangle, 0, len(centers))
	for _, c := range centers {
		x := clampInt(c.X-size.X/2, 0, w-size.X)
		y := clampInt(c.Y-size.Y/2, 0, h-size.Y)
		out = append(out, image.Rect(x, y, x+size.X, y+size.Y))
	}
	return out
}

// PasteSprites alpha-composites the scaled sprite at each center over a copy
// of base.
func PasteSprites(base, sprite raster.Image, centers []image.Point, scale float64) raster.Image {
	out := base.Clone()
	if base.Empty() || sprite.Empty() || len(centers) == 0 {
		return out
	}

	small := ScaleSprite(sprite, scale)
	size := image.Pt(small.Width(), small.Height())
	for _, r := range Footprints(base.Width(), base.Height(), centers, size) {
		xdraw.Draw(out.Pix, r, small.Pix, image.Point{}, xdraw.Over)
	}
	return out
}

// BuildMask returns a black mask with a white, dilated rectangle over each
// footprint, box-blurred three times for a soft edge. dilation is the total
// growth relative to the footprint size, split between both sides.
func BuildMask(w, h int, footprints []image.Rectangle, dilation float64) *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, w, h))
	if w <= 0 || h <= 0 || len(footprints) == 0 {
		return mask
	}
	if dilation < 0 || math.IsNaN(dilation) {
		dilation = DefaultDilation
	}

	padX, padY := 0, 0
	for _, fp := range footprints {
		px := int(float64(fp.Dx()) * dilation / 2)
		py := int(float64(fp.Dy()) * dilation / 2)
		padX, padY = max(padX, px), max(padY, py)

		r := image.Rect(fp.Min.X-px, fp.Min.Y-py, fp.Max.X+px, fp.Max.Y+py).Intersect(mask.Bounds())
		xdraw.Draw(mask, r, image.NewUniform(color.Gray{Y: 255}), image.Point{}, xdraw.Src)
	}

	radius := max(padX, padY) / 2
	if radius < 1 {
		radius = 1
	}
	for i := 0; i < blurPasses; i++ {
		boxBlur(mask, radius)
	}
	return mask
}

// MaskImage wraps a mask as an encodable raster image.
func MaskImage(mask *image.Gray) raster.Image {
	return raster.FromImage(mask, raster.FormatPNG)
}

// boxBlur runs one horizontal and one vertical running-sum pass in place.
func boxBlur(g *image.Gray, radius int) {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	line := make([]int, max(w, h))

	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+w]
		for x := 0; x < w; x++ {
			line[x] = int(row[x])
		}
		blurLine(line[:w], radius, func(i int, v uint8) { row[i] = v })
	}

	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			line[y] = int(g.Pix[y*g.Stride+x])
		}
		blurLine(line[:h], radius, func(i int, v uint8) { g.Pix[i*g.Stride+x] = v })
	}
}

// blurLine averages src over a 2r+1 window with edges clamped.
func blurLine(src []int, r int, set func(int, uint8)) {
	n := len(src)
	if n == 0 {
		return
	}
	at := func(i int) int { return src[clampInt(i, 0, n-1)] }

	window := 2*r + 1
	sum := 0
	for i := -r; i <= r; i++ {
		sum += at(i)
	}
	out := make([]uint8, n)
	for i := 0; i < n; i++ {
		out[i] = uint8((sum + window/2) / window)
		sum += at(i+r+1) - at(i-r)
	}
	for i, v := range out {
		set(i, v)
	}
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
