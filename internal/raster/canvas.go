package raster

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Point is a sub-pixel position on the canvas.
type Point struct {
	X, Y float64
}

type op interface {
	apply(dst *image.RGBA)
}

// Canvas records drawing operations against a base image. Nothing is painted
// until Render, which works on a private copy of the base.
type Canvas struct {
	base Image
	ops  []op
}

func NewCanvas(base Image) *Canvas {
	return &Canvas{base: base}
}

// Len reports how many operations are queued.
func (c *Canvas) Len() int {
	return len(c.ops)
}

func (c *Canvas) Render() Image {
	out := c.base.Clone()
	if out.Pix == nil {
		return out
	}
	for _, o := range c.ops {
		o.apply(out.Pix)
	}
	return out
}

func (c *Canvas) Gradient(g Gradient) *Canvas {
	c.ops = append(c.ops, g)
	return c
}

func (c *Canvas) FillCircle(center Point, radius float64, col color.NRGBA) *Canvas {
	c.ops = append(c.ops, circleOp{center: center, outer: radius, inner: -1, col: col})
	return c
}

// Ring strokes a circle of the given radius, width pixels wide.
func (c *Canvas) Ring(center Point, radius, width float64, col color.NRGBA) *Canvas {
	c.ops = append(c.ops, circleOp{
		center: center,
		outer:  radius + width/2,
		inner:  radius - width/2,
		col:    col,
	})
	return c
}

func (c *Canvas) Line(from, to Point, width float64, col color.NRGBA) *Canvas {
	c.ops = append(c.ops, lineOp{from: from, to: to, half: width / 2, col: col})
	return c
}

func (c *Canvas) FillRect(r image.Rectangle, col color.NRGBA) *Canvas {
	c.ops = append(c.ops, rectOp{r: r, col: col})
	return c
}

func (c *Canvas) FillPolygon(pts []Point, col color.NRGBA) *Canvas {
	if len(pts) < 3 {
		return c
	}
	c.ops = append(c.ops, polygonOp{pts: append([]Point(nil), pts...), col: col})
	return c
}

// Text draws s with the 7x13 bitmap face, magnified by scale, with the top
// left corner of the text box at origin.
func (c *Canvas) Text(origin image.Point, s string, scale int, col color.NRGBA) *Canvas {
	if s == "" {
		return c
	}
	if scale < 1 {
		scale = 1
	}
	c.ops = append(c.ops, textOp{origin: origin, s: s, scale: scale, col: col})
	return c
}

// TextSize returns the pixel size of s as drawn by Text at scale.
func TextSize(s string, scale int) image.Point {
	if scale < 1 {
		scale = 1
	}
	face := basicfont.Face7x13
	w := font.MeasureString(face, s).Ceil()
	return image.Pt(w*scale, face.Height*scale)
}

type circleOp struct {
	center Point
	outer  float64
	inner  float64
	col    color.NRGBA
}

func (o circleOp) apply(dst *image.RGBA) {
	if o.outer <= 0 {
		return
	}
	area := image.Rect(
		int(math.Floor(o.center.X-o.outer))-1, int(math.Floor(o.center.Y-o.outer))-1,
		int(math.Ceil(o.center.X+o.outer))+1, int(math.Ceil(o.center.Y+o.outer))+1,
	).Intersect(dst.Bounds())

	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			d := math.Hypot(float64(x)+0.5-o.center.X, float64(y)+0.5-o.center.Y)
			cov := clamp01(o.outer + 0.5 - d)
			if o.inner >= 0 {
				cov = math.Min(cov, clamp01(d-o.inner+0.5))
			}
			overAt(dst, x, y, o.col, cov)
		}
	}
}

type lineOp struct {
	from, to Point
	half     float64
	col      color.NRGBA
}

func (o lineOp) apply(dst *image.RGBA) {
	if o.half <= 0 {
		return
	}
	pad := o.half + 1
	area := image.Rect(
		int(math.Floor(math.Min(o.from.X, o.to.X)-pad)), int(math.Floor(math.Min(o.from.Y, o.to.Y)-pad)),
		int(math.Ceil(math.Max(o.from.X, o.to.X)+pad)), int(math.Ceil(math.Max(o.from.Y, o.to.Y)+pad)),
	).Intersect(dst.Bounds())

	dx, dy := o.to.X-o.from.X, o.to.Y-o.from.Y
	lenSq := dx*dx + dy*dy
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			px, py := float64(x)+0.5-o.from.X, float64(y)+0.5-o.from.Y
			t := 0.0
			if lenSq > 0 {
				t = clamp01((px*dx + py*dy) / lenSq)
			}
			d := math.Hypot(px-t*dx, py-t*dy)
			overAt(dst, x, y, o.col, clamp01(o.half+0.5-d))
		}
	}
}

type rectOp struct {
	r   image.Rectangle
	col color.NRGBA
}

func (o rectOp) apply(dst *image.RGBA) {
	area := o.r.Canon().Intersect(dst.Bounds())
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			overAt(dst, x, y, o.col, 1)
		}
	}
}

type polygonOp struct {
	pts []Point
	col color.NRGBA
}

func (o polygonOp) apply(dst *image.RGBA) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range o.pts {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	area := image.Rect(
		int(math.Floor(minX)), int(math.Floor(minY)),
		int(math.Ceil(maxX))+1, int(math.Ceil(maxY))+1,
	).Intersect(dst.Bounds())

	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			if insidePolygon(o.pts, float64(x)+0.5, float64(y)+0.5) {
				overAt(dst, x, y, o.col, 1)
			}
		}
	}
}

// insidePolygon is the even-odd crossing test.
func insidePolygon(pts []Point, x, y float64) bool {
	in := false
	j := len(pts) - 1
	for i := range pts {
		a, b := pts[i], pts[j]
		if (a.Y > y) != (b.Y > y) {
			cross := a.X + (y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			if x < cross {
				in = !in
			}
		}
		j = i
	}
	return in
}

type textOp struct {
	origin image.Point
	s      string
	scale  int
	col    color.NRGBA
}

func (o textOp) apply(dst *image.RGBA) {
	face := basicfont.Face7x13
	size := TextSize(o.s, 1)
	mask := image.NewAlpha(image.Rect(0, 0, size.X, size.Y))
	d := font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(o.s)

	for my := 0; my < size.Y; my++ {
		for mx := 0; mx < size.X; mx++ {
			a := mask.AlphaAt(mx, my).A
			if a == 0 {
				continue
			}
			cov := float64(a) / 255
			for sy := 0; sy < o.scale; sy++ {
				for sx := 0; sx < o.scale; sx++ {
					x := o.origin.X + mx*o.scale + sx
					y := o.origin.Y + my*o.scale + sy
					if !(image.Point{X: x, Y: y}).In(dst.Bounds()) {
						continue
					}
					overAt(dst, x, y, o.col, cov)
				}
			}
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
