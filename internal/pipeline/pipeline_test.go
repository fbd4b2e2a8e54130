package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nightscape-preview/internal/fixture"
	"nightscape-preview/internal/generation"
	"nightscape-preview/internal/glow"
	"nightscape-preview/internal/preview"
	"nightscape-preview/internal/raster"
	"nightscape-preview/internal/region"
)

var daylight = color.RGBA{R: 200, G: 190, B: 170, A: 255}

func solidPNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decode(t *testing.T, data []byte) raster.Image {
	t.Helper()
	img, err := raster.Decode(data, "")
	require.NoError(t, err)
	return img
}

func uplight() fixture.SpatialMap {
	return fixture.SpatialMap{{Type: fixture.Up, X: 50, Y: 80}}
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestRender_Local(t *testing.T) {
	s := New(Options{})
	src := solidPNG(t, 120, 90, daylight)

	resp, err := s.Render(context.Background(), Request{Image: src, MimeType: "image/png", Placements: uplight()})
	require.NoError(t, err)

	assert.Equal(t, raster.FormatPNG, resp.Format)
	assert.Equal(t, 120, resp.Width)
	assert.Equal(t, 90, resp.Height)
	assert.Equal(t, "4:3", resp.AspectRatio)

	out := decode(t, resp.Data)
	corner := out.Pix.RGBAAt(0, 0)
	assert.Less(t, corner.R, daylight.R, "far from the fixture the photo is darkened")

	again, err := s.Render(context.Background(), Request{Image: src, Placements: uplight()})
	require.NoError(t, err)
	assert.Equal(t, resp.Data, again.Data, "local rendering is deterministic")
}

func TestRender_LocalTintFilter(t *testing.T) {
	s := New(Options{})
	src := solidPNG(t, 40, 40, daylight)

	plain, err := s.Render(context.Background(), Request{Image: src})
	require.NoError(t, err)
	tinted, err := s.Render(context.Background(), Request{Image: src, NightFilter: NightFilterTint})
	require.NoError(t, err)

	assert.NotEqual(t, plain.Data, tinted.Data)
}

func TestRender_Markers(t *testing.T) {
	s := New(Options{})
	src := solidPNG(t, 200, 150, daylight)

	resp, err := s.Render(context.Background(), Request{Image: src, Mode: ModeMarkers, Placements: uplight(), Format: raster.FormatJPEG})
	require.NoError(t, err)

	assert.Equal(t, raster.FormatJPEG, resp.Format)
	out := decode(t, resp.Data)
	assert.Equal(t, 200, out.Width())
}

func TestRender_Mask(t *testing.T) {
	s := New(Options{})
	src := solidPNG(t, 200, 200, daylight)

	resp, err := s.Render(context.Background(), Request{
		Image:      src,
		Mode:       ModeMask,
		Placements: fixture.SpatialMap{{Type: fixture.Path, X: 50, Y: 50}},
		Format:     raster.FormatJPEG,
	})
	require.NoError(t, err)

	assert.Equal(t, raster.FormatPNG, resp.Format, "masks are always PNG")
	out := decode(t, resp.Data)
	assert.Greater(t, out.Pix.RGBAAt(100, 100).R, uint8(200))
	assert.Equal(t, uint8(0), out.Pix.RGBAAt(0, 0).R)
}

func TestRender_MaskNeedsPlacements(t *testing.T) {
	s := New(Options{})
	_, err := s.Render(context.Background(), Request{Image: solidPNG(t, 10, 10, daylight), Mode: ModeMask})
	assert.ErrorIs(t, err, ErrNoPlacements)
}

func TestRender_AIComposesBelowCrop(t *testing.T) {
	generated := color.RGBA{R: 10, G: 200, B: 30, A: 255}
	var gotReq generation.Request
	gen := generation.GeneratorFunc(func(_ context.Context, req generation.Request) (raster.Image, error) {
		gotReq = req
		out := raster.New(req.Image.Width(), req.Image.Height(), raster.FormatPNG)
		draw.Draw(out.Pix, out.Pix.Bounds(), &image.Uniform{C: generated}, image.Point{}, draw.Src)
		return out, nil
	})
	s := New(Options{Orchestrator: generation.New(generation.Options{Generator: gen, Sleep: noSleep})})

	src := solidPNG(t, 100, 100, daylight)
	beam := 45.0
	resp, err := s.Render(context.Background(), Request{
		Image:      src,
		Mode:       ModeAI,
		Placements: uplight(),
		Glow:       glow.Options{BeamAngleDeg: &beam},
		CropTop:    20,
		Style:      "amber",
	})
	require.NoError(t, err)

	assert.Equal(t, 80, gotReq.Image.Height())
	assert.Equal(t, "4:3", gotReq.AspectRatio)
	assert.Contains(t, gotReq.Prompt, "top 20% of the photo")
	assert.Contains(t, gotReq.Prompt, "Beam spread about 45 degrees")
	assert.Contains(t, gotReq.Prompt, "Amber")
	assert.Equal(t, 1, resp.Calls)
	assert.True(t, resp.Accepted)
	assert.False(t, resp.Verified)

	out := decode(t, resp.Data)
	require.Equal(t, 100, out.Height())

	lit := Night(decode(t, src), uplight(), glow.Options{BeamAngleDeg: &beam}, "")
	for y := 0; y < region.Offset(100, 20); y++ {
		for x := 0; x < 100; x += 9 {
			require.Equal(t, lit.Pix.RGBAAt(x, y), out.Pix.RGBAAt(x, y), "top band at %d,%d", x, y)
		}
	}
	assert.Equal(t, generated, out.Pix.RGBAAt(5, 95))
}

func TestRender_AIPromptBuilderIsInjectable(t *testing.T) {
	var got preview.Options
	gen := generation.GeneratorFunc(func(_ context.Context, req generation.Request) (raster.Image, error) {
		assert.Equal(t, "custom prompt", req.Prompt)
		return req.Image, nil
	})
	s := New(Options{
		Orchestrator: generation.New(generation.Options{Generator: gen, Sleep: noSleep}),
		Prompt: func(o preview.Options) string {
			got = o
			return "custom prompt"
		},
	})

	_, err := s.Render(context.Background(), Request{Image: solidPNG(t, 30, 30, daylight), Mode: ModeAI, Placements: uplight(), Custom: "note"})
	require.NoError(t, err)

	assert.True(t, got.Markers)
	assert.Equal(t, "1:1", got.AspectRatio)
	assert.Equal(t, "note", got.Custom)
	assert.Len(t, got.Placements, 1)
}

func TestRender_AIErrors(t *testing.T) {
	src := solidPNG(t, 20, 20, daylight)

	_, err := New(Options{}).Render(context.Background(), Request{Image: src, Mode: ModeAI})
	assert.ErrorIs(t, err, generation.ErrNoGenerator)

	var calls atomic.Int32
	gen := generation.GeneratorFunc(func(context.Context, generation.Request) (raster.Image, error) {
		calls.Add(1)
		return raster.Image{}, errors.New("503 service unavailable")
	})
	s := New(Options{Orchestrator: generation.New(generation.Options{Generator: gen, MaxAttempts: 2, Sleep: noSleep})})

	_, err = s.Render(context.Background(), Request{Image: src, Mode: ModeAI})
	assert.ErrorIs(t, err, generation.ErrRetryExhausted)
	assert.Equal(t, int32(2), calls.Load())

	_, err = s.Render(context.Background(), Request{Image: src, Mode: ModeAI, CropTop: 100})
	assert.ErrorIs(t, err, region.ErrInvalidPercent)
}

func TestRender_InputErrors(t *testing.T) {
	s := New(Options{})

	_, err := s.Render(context.Background(), Request{Image: []byte("not an image"), MimeType: "image/jpeg"})
	var decErr *raster.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "image/jpeg", decErr.Declared)

	_, err = s.Render(context.Background(), Request{
		Image:      solidPNG(t, 10, 10, daylight),
		Placements: fixture.SpatialMap{{Type: fixture.Up, X: 50, Y: 50}, {Type: fixture.Well, X: 101, Y: 5}},
	})
	var pe *fixture.PlacementError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.Index)
	assert.Equal(t, "horizontalPosition", pe.Field)

	_, err = s.Render(context.Background(), Request{Image: solidPNG(t, 10, 10, daylight), Mode: "sketch"})
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestRender_SpriteIsCached(t *testing.T) {
	var loads atomic.Int32
	sprite := solidPNG(t, 50, 50, color.RGBA{R: 255, A: 255})
	s := New(Options{Sprites: func(_ context.Context, name string) ([]byte, error) {
		loads.Add(1)
		assert.Equal(t, "bollard", name)
		return sprite, nil
	}})

	req := Request{Image: solidPNG(t, 100, 100, daylight), Placements: uplight(), Sprite: "bollard", SpriteScale: 0.2}
	resp, err := s.Render(context.Background(), req)
	require.NoError(t, err)
	_, err = s.Render(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int32(1), loads.Load())
	out := decode(t, resp.Data)
	px := out.Pix.RGBAAt(50, 80)
	assert.Greater(t, px.R, uint8(240), "sprite pasted at the fixture")
	assert.Less(t, px.G, uint8(30))
}

func TestRender_SpriteMissing(t *testing.T) {
	s := New(Options{Sprites: DirSprites(t.TempDir())})
	_, err := s.Render(context.Background(), Request{Image: solidPNG(t, 10, 10, daylight), Placements: uplight(), Sprite: "nope"})
	assert.ErrorIs(t, err, ErrSpriteMissing)

	_, err = New(Options{}).Render(context.Background(), Request{Image: solidPNG(t, 10, 10, daylight), Placements: uplight(), Sprite: "x"})
	assert.ErrorIs(t, err, ErrSpriteMissing)
}

func TestDirSprites(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "well.png"), []byte("png"), 0o600))

	data, err := DirSprites(dir)(context.Background(), "../well")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" AI ")
	require.NoError(t, err)
	assert.Equal(t, ModeAI, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, m)

	_, err = ParseMode("x")
	assert.ErrorIs(t, err, ErrUnknownMode)
}
