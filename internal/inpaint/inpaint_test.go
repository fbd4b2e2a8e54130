package inpaint

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nightscape-preview/internal/fixture"
	"nightscape-preview/internal/raster"
)

func sprite(w, h int) raster.Image {
	img := raster.New(w, h, raster.FormatPNG)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Pix.SetRGBA(x, y, color.RGBA{R: 200, G: 160, B: 50, A: 255})
		}
	}
	return img
}

func TestCenters(t *testing.T) {
	got := Centers(200, 100, fixture.SpatialMap{{Type: fixture.Up, X: 50, Y: 50}, {Type: fixture.Path, X: 10, Y: 99}})
	assert.Equal(t, []image.Point{{X: 100, Y: 50}, {X: 20, Y: 99}}, got)
}

func TestScaleSprite_MinimumOnePixel(t *testing.T) {
	small := ScaleSprite(sprite(3, 3), 0.1)
	assert.Equal(t, 1, small.Width())
	assert.Equal(t, 1, small.Height())

	half := ScaleSprite(sprite(100, 40), 0.5)
	assert.Equal(t, 50, half.Width())
	assert.Equal(t, 20, half.Height())
}

func TestFootprints_ShiftSpriteInside(t *testing.T) {
	got := Footprints(100, 100, []image.Point{{X: 50, Y: 50}, {X: 2, Y: 99}}, image.Pt(10, 10))

	require.Len(t, got, 2)
	assert.Equal(t, image.Rect(45, 45, 55, 55), got[0])
	assert.Equal(t, image.Rect(0, 90, 10, 100), got[1])
}

func TestPasteSprites(t *testing.T) {
	base := raster.New(100, 100, raster.FormatJPEG)

	out := PasteSprites(base, sprite(100, 100), []image.Point{{X: 50, Y: 50}}, DefaultScale)

	got := out.Pix.RGBAAt(50, 50)
	assert.InDelta(t, 200, int(got.R), 1)
	assert.InDelta(t, 160, int(got.G), 1)
	assert.InDelta(t, 50, int(got.B), 1)
	assert.Equal(t, color.RGBA{}, out.Pix.RGBAAt(30, 30))
	assert.Equal(t, color.RGBA{}, base.Pix.RGBAAt(50, 50))
	assert.Equal(t, raster.FormatJPEG, out.Format)
}

func TestBuildMask_DilatedAndSoft(t *testing.T) {
	fp := []image.Rectangle{image.Rect(40, 40, 60, 60)}

	mask := BuildMask(100, 100, fp, DefaultDilation)

	assert.Equal(t, uint8(255), mask.GrayAt(50, 50).Y)
	assert.Equal(t, uint8(0), mask.GrayAt(5, 5).Y)
	assert.Greater(t, mask.GrayAt(38, 50).Y, uint8(0), "padding extends past the footprint")

	edge := mask.GrayAt(37, 50).Y
	assert.Greater(t, edge, uint8(0))
	assert.Less(t, edge, uint8(255), "edge is feathered")
}

func TestBuildMask_Deterministic(t *testing.T) {
	fp := Footprints(64, 48, []image.Point{{X: 10, Y: 10}, {X: 60, Y: 40}}, image.Pt(12, 12))

	a := BuildMask(64, 48, fp, 0.5)
	b := BuildMask(64, 48, fp, 0.5)

	assert.Equal(t, a.Pix, b.Pix)
	assert.Equal(t, 64, MaskImage(a).Width())
}

func TestBuildMask_Empty(t *testing.T) {
	mask := BuildMask(10, 10, nil, DefaultDilation)
	for _, v := range mask.Pix {
		assert.Equal(t, uint8(0), v)
	}
}
