// Package markers draws numbered guide markers at fixture positions so an
// image model (or a person) can see exactly where each light goes.
package markers

import (
	"image"
	"image/color"
	"math"
	"strconv"

	"nightscape-preview/internal/fixture"
	"nightscape-preview/internal/raster"
)

// Options switches the individual marker elements on and off.
type Options struct {
	Body      bool
	Number    bool
	TypeLabel bool
	Crosshair bool
	TextLabel bool
}

func DefaultOptions() Options {
	return Options{Body: true, Number: true, TypeLabel: true, Crosshair: true, TextLabel: true}
}

// CleanOptions leaves only a small colored dot per fixture. The dot color
// still identifies the type; LegendLines spells the palette out for prompts.
func CleanOptions() Options {
	return Options{}
}

const (
	minRadius      = 10.0
	radiusFraction = 0.018
)

var (
	white   = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	black   = color.NRGBA{A: 255}
	outline = color.NRGBA{R: 20, G: 20, B: 24, A: 235}
	guide   = color.NRGBA{R: 255, G: 255, B: 255, A: 190}
)

// Mark is the resolved geometry of one marker.
type Mark struct {
	Number int
	Type   fixture.Type
	Label  string
	Center raster.Point
	Radius float64
}

// Plan resolves pixel positions and numbers for m on a w×h image. Numbers
// follow the map order starting at 1.
func Plan(w, h int, m fixture.SpatialMap) []Mark {
	r := Radius(w)
	marks := make([]Mark, 0, len(m))
	for i, p := range m {
		x, y := p.Pixel(w, h)
		marks = append(marks, Mark{
			Number: i + 1,
			Type:   p.Type,
			Label:  p.Label,
			Center: raster.Point{X: x, Y: y},
			Radius: r,
		})
	}
	return marks
}

// Radius is the marker radius for an image of the given width.
func Radius(width int) float64 {
	return math.Max(minRadius, float64(width)*radiusFraction)
}

// Draw returns a copy of img with one marker per placement.
func Draw(img raster.Image, m fixture.SpatialMap, opts Options) raster.Image {
	if img.Empty() || len(m) == 0 {
		return img.Clone()
	}

	c := raster.NewCanvas(img)
	for _, mk := range Plan(img.Width(), img.Height(), m) {
		if mk.Type == fixture.Gutter {
			drawGutter(c, mk, opts)
			continue
		}
		drawRound(c, mk, opts)
	}
	return c.Render()
}

func textScale(radius float64) int {
	s := int(math.Round(radius / 9))
	if s < 1 {
		return 1
	}
	return s
}

func drawRound(c *raster.Canvas, mk Mark, opts Options) {
	st := StyleFor(mk.Type)
	r := mk.Radius
	ctr := mk.Center
	scale := textScale(r)

	if opts.Crosshair {
		arm := r * 2.2
		w := math.Max(1, r/8)
		c.Line(raster.Point{X: ctr.X - arm, Y: ctr.Y}, raster.Point{X: ctr.X + arm, Y: ctr.Y}, w, guide)
		c.Line(raster.Point{X: ctr.X, Y: ctr.Y - arm}, raster.Point{X: ctr.X, Y: ctr.Y + arm}, w, guide)
	}

	if opts.Body {
		ring := math.Max(2, r/5)
		c.FillCircle(ctr, r, st.Color)
		c.Ring(ctr, r+ring/2, ring, outline)
	} else {
		dot := math.Max(2, r*0.3)
		c.FillCircle(ctr, dot, st.Color)
		c.Ring(ctr, dot+0.75, 1.5, white)
	}

	if opts.Number {
		centeredText(c, ctr, strconv.Itoa(mk.Number), scale, white)
	}

	below := ctr.Y + r + math.Max(2, r/5) + 2
	if opts.TypeLabel {
		below = labelBelow(c, ctr.X, below, st.Label, scale, st.Color)
	}
	if opts.TextLabel && mk.Label != "" {
		labelBelow(c, ctr.X, below, mk.Label, scale, st.Color)
	}
}

// drawGutter draws a channel bar with an upward stem, the mount of a gutter
// light aiming at the eaves.
func drawGutter(c *raster.Canvas, mk Mark, opts Options) {
	st := StyleFor(fixture.Gutter)
	r := mk.Radius
	ctr := mk.Center
	scale := textScale(r)

	barHalf := r * 1.2
	barH := math.Max(3, r*0.35)
	stemTop := ctr.Y - r*1.8
	stemW := math.Max(2, r*0.22)
	tip := r * 0.55

	if opts.Crosshair {
		arm := r * 2.2
		w := math.Max(1, r/8)
		c.Line(raster.Point{X: ctr.X - arm, Y: ctr.Y}, raster.Point{X: ctr.X + arm, Y: ctr.Y}, w, guide)
	}

	if !opts.Body {
		dot := math.Max(2, r*0.3)
		c.FillCircle(ctr, dot+1.5, white)
		c.FillCircle(ctr, dot, st.Color)
	} else {
		bar := image.Rect(
			int(math.Round(ctr.X-barHalf)), int(math.Round(ctr.Y-barH/2)),
			int(math.Round(ctr.X+barHalf)), int(math.Round(ctr.Y+barH/2)),
		)
		c.FillRect(bar.Inset(-2), outline)
		c.FillRect(bar, st.Color)

		c.Line(ctr, raster.Point{X: ctr.X, Y: stemTop + tip}, stemW+3, outline)
		c.Line(ctr, raster.Point{X: ctr.X, Y: stemTop + tip}, stemW, st.Color)
		c.FillPolygon([]raster.Point{
			{X: ctr.X, Y: stemTop - 2},
			{X: ctr.X - tip - 2, Y: stemTop + tip + 1},
			{X: ctr.X + tip + 2, Y: stemTop + tip + 1},
		}, outline)
		c.FillPolygon([]raster.Point{
			{X: ctr.X, Y: stemTop},
			{X: ctr.X - tip, Y: stemTop + tip},
			{X: ctr.X + tip, Y: stemTop + tip},
		}, st.Color)
	}

	if opts.Number {
		num := strconv.Itoa(mk.Number)
		size := raster.TextSize(num, scale)
		origin := image.Pt(int(math.Round(ctr.X+barHalf))+4, int(math.Round(ctr.Y))-size.Y/2)
		outlinedText(c, origin, num, scale, white)
	}

	below := ctr.Y + barH/2 + 4
	if opts.TypeLabel {
		below = labelBelow(c, ctr.X, below, st.Label, scale, st.Color)
	}
	if opts.TextLabel && mk.Label != "" {
		labelBelow(c, ctr.X, below, mk.Label, scale, st.Color)
	}
}

func centeredText(c *raster.Canvas, ctr raster.Point, s string, scale int, col color.NRGBA) {
	size := raster.TextSize(s, scale)
	origin := image.Pt(int(math.Round(ctr.X))-size.X/2, int(math.Round(ctr.Y))-size.Y/2)
	outlinedText(c, origin, s, scale, col)
}

// labelBelow centers s horizontally on x with its top at y and returns the
// y just under it.
func labelBelow(c *raster.Canvas, x, y float64, s string, scale int, col color.NRGBA) float64 {
	size := raster.TextSize(s, scale)
	origin := image.Pt(int(math.Round(x))-size.X/2, int(math.Round(y)))
	outlinedText(c, origin, s, scale, col)
	return y + float64(size.Y) + 2
}

// outlinedText draws s twice in black, one pixel down-right and one pixel
// up-left, then in col, so it reads on any background.
func outlinedText(c *raster.Canvas, origin image.Point, s string, scale int, col color.NRGBA) {
	c.Text(origin.Add(image.Pt(1, 1)), s, scale, black)
	c.Text(origin.Sub(image.Pt(1, 1)), s, scale, black)
	c.Text(origin, s, scale, col)
}
