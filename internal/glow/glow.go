// Package glow renders fixture light locally, without an image model.
package glow

import (
	"image/color"
	"math"

	"nightscape-preview/internal/fixture"
	"nightscape-preview/internal/raster"
)

var coreColor = color.NRGBA{R: 255, G: 250, B: 236, A: 255}

const (
	ambientShare  = 0.16
	ambientSpread = 2.5
	forwardBias   = 0.3
	poolShare     = 0.38
	coreFraction  = 0.008
	minCoreRadius = 2.0
)

// Direction turns a rotation in degrees (0 = up, clockwise) into a unit
// vector in image coordinates.
func Direction(rotationDeg float64) (dx, dy float64) {
	rad := rotationDeg * math.Pi / 180
	return math.Sin(rad), -math.Cos(rad)
}

// Layers returns the gradients for one placement on a w×h image, in paint
// order: ambient, main beam, source core and, for pool types, the ground pool.
func Layers(w, h int, p fixture.Placement, r Resolved) []raster.Gradient {
	cfg := ConfigFor(p.Type)
	fw, fh := float64(w), float64(h)

	x, y := p.Pixel(w, h)
	rot := p.RotationOr(cfg.Rotation)
	dx, dy := Direction(rot)
	beam := p.BeamLengthOr()

	offset := cfg.OffsetY * fh * beam
	ox, oy := x+dx*offset, y+dy*offset

	across := cfg.RadiusX * fw * r.WidthScale
	along := cfg.RadiusY * fh * r.HeightScale * beam
	alpha := math.Min(1, cfg.Intensity*r.Intensity)
	angle := rot * math.Pi / 180

	layers := make([]raster.Gradient, 0, 4)

	ambient := ambientSpread * math.Max(across, along)
	ambientAlpha := alpha * ambientShare
	layers = append(layers, raster.Gradient{
		CX: ox, CY: oy,
		RU: ambient, RV: ambient,
		Color: cfg.Color,
		Stops: []raster.Stop{
			{Offset: 0, Alpha: ambientAlpha},
			{Offset: 0.45, Alpha: ambientAlpha * 0.45},
			{Offset: 1, Alpha: 0},
		},
	})

	// The V axis of a gradient at this angle points against the beam, so a
	// negative focus sits forward along it.
	layers = append(layers, raster.Gradient{
		CX: ox, CY: oy,
		RU: across, RV: along,
		Angle:  angle,
		FocusV: -forwardBias,
		Color:  cfg.Color,
		Stops: []raster.Stop{
			{Offset: 0, Alpha: alpha},
			{Offset: 0.35, Alpha: alpha * 0.62},
			{Offset: 0.7, Alpha: alpha * 0.22},
			{Offset: 1, Alpha: 0},
		},
	})

	core := math.Max(minCoreRadius, coreFraction*fw)
	coreAlpha := math.Min(1, 0.95*r.Intensity)
	layers = append(layers, raster.Gradient{
		CX: x, CY: y,
		RU: core, RV: core,
		Color: coreColor,
		Stops: []raster.Stop{
			{Offset: 0, Alpha: coreAlpha},
			{Offset: 0.5, Alpha: coreAlpha * 0.8},
			{Offset: 1, Alpha: 0},
		},
	})

	if cfg.Pool {
		reach := offset + along*0.6
		poolAlpha := alpha * poolShare
		layers = append(layers, raster.Gradient{
			CX: x + dx*reach, CY: y + dy*reach,
			RU: across * 1.6, RV: across * 0.55,
			Color: cfg.Color,
			Stops: []raster.Stop{
				{Offset: 0, Alpha: poolAlpha},
				{Offset: 0.6, Alpha: poolAlpha * 0.4},
				{Offset: 1, Alpha: 0},
			},
		})
	}

	return layers
}

// Render paints every placement's glow onto a copy of night. night is
// expected to be a darkened base; Render does not darken it.
func Render(night raster.Image, m fixture.SpatialMap, opts Options) raster.Image {
	if night.Empty() || len(m) == 0 {
		return night.Clone()
	}

	r := opts.Resolve()
	c := raster.NewCanvas(night)
	for _, p := range m {
		for _, g := range Layers(night.Width(), night.Height(), p, r) {
			c.Gradient(g)
		}
	}
	return c.Render()
}
