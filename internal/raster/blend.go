package raster

import (
	"image"
	"image/color"
	"math"
)

// Stop is one alpha stop of a gradient. Offset runs 0 (center) to 1 (edge).
type Stop struct {
	Offset float64
	Alpha  float64
}

// Gradient is a rotated elliptical radial gradient painted in screen mode.
//
// Local axes: U runs along the ellipse's first axis, V along its second.
// With Angle = θ the V axis points to (-sin θ, cos θ) on screen, so a beam
// aimed along (sin θ, -cos θ) is the -V direction.
type Gradient struct {
	CX, CY float64
	RU, RV float64
	Angle  float64

	// Focus is the gradient's bright point in unit-ellipse coordinates.
	// It must lie inside the unit circle; (0,0) gives a centered gradient.
	FocusU, FocusV float64

	Color color.NRGBA
	Stops []Stop
}

// alphaAt interpolates the stop list at t in [0,1].
func alphaAt(stops []Stop, t float64) float64 {
	if len(stops) == 0 || t >= 1 {
		return 0
	}
	if t <= stops[0].Offset {
		return stops[0].Alpha
	}
	for i := 1; i < len(stops); i++ {
		if t <= stops[i].Offset {
			a, b := stops[i-1], stops[i]
			span := b.Offset - a.Offset
			if span <= 0 {
				return b.Alpha
			}
			f := (t - a.Offset) / span
			return a.Alpha + (b.Alpha-a.Alpha)*f
		}
	}
	return stops[len(stops)-1].Alpha
}

// focalT maps a point in unit-ellipse space to its gradient offset for a
// two-point radial gradient whose inner circle is the focus and whose outer
// circle is the unit circle.
func focalT(u, v, fu, fv float64) float64 {
	du, dv := u-fu, v-fv
	dist := math.Hypot(du, dv)
	if dist == 0 {
		return 0
	}
	du /= dist
	dv /= dist
	fd := fu*du + fv*dv
	disc := fd*fd - (fu*fu + fv*fv) + 1
	if disc < 0 {
		return 1
	}
	s := -fd + math.Sqrt(disc)
	if s <= 0 {
		return 1
	}
	return dist / s
}

func (g Gradient) bounds() image.Rectangle {
	cos, sin := math.Cos(g.Angle), math.Sin(g.Angle)
	ex := math.Sqrt(g.RU*g.RU*cos*cos + g.RV*g.RV*sin*sin)
	ey := math.Sqrt(g.RU*g.RU*sin*sin + g.RV*g.RV*cos*cos)
	return image.Rect(
		int(math.Floor(g.CX-ex)), int(math.Floor(g.CY-ey)),
		int(math.Ceil(g.CX+ex))+1, int(math.Ceil(g.CY+ey))+1,
	)
}

func (g Gradient) apply(dst *image.RGBA) {
	if g.RU <= 0 || g.RV <= 0 || len(g.Stops) == 0 {
		return
	}
	area := g.bounds().Intersect(dst.Bounds())
	if area.Empty() {
		return
	}

	cos, sin := math.Cos(g.Angle), math.Sin(g.Angle)
	sr, sg, sb := float64(g.Color.R), float64(g.Color.G), float64(g.Color.B)

	for y := area.Min.Y; y < area.Max.Y; y++ {
		py := float64(y) + 0.5 - g.CY
		for x := area.Min.X; x < area.Max.X; x++ {
			px := float64(x) + 0.5 - g.CX
			u := (px*cos + py*sin) / g.RU
			v := (-px*sin + py*cos) / g.RV
			if u*u+v*v >= 1 {
				continue
			}
			a := alphaAt(g.Stops, focalT(u, v, g.FocusU, g.FocusV))
			if a <= 0 {
				continue
			}
			screenAt(dst, x, y, sr*a, sg*a, sb*a)
		}
	}
}

// screenAt applies screen blending, out = d + s - d*s/255, so overlapping
// light layers only ever brighten.
func screenAt(dst *image.RGBA, x, y int, r, g, b float64) {
	i := dst.PixOffset(x, y)
	p := dst.Pix[i : i+4 : i+4]
	p[0] = screen(p[0], r)
	p[1] = screen(p[1], g)
	p[2] = screen(p[2], b)
	if p[3] < 255 {
		lift := math.Max(r, math.Max(g, b))
		p[3] = screen(p[3], lift)
	}
}

func screen(d uint8, s float64) uint8 {
	if s <= 0 {
		return d
	}
	if s > 255 {
		s = 255
	}
	df := float64(d)
	return clampByte(df + s - df*s/255)
}

// over composites c at coverage onto dst with source-over.
func overAt(dst *image.RGBA, x, y int, c color.NRGBA, coverage float64) {
	if coverage <= 0 {
		return
	}
	if coverage > 1 {
		coverage = 1
	}
	a := float64(c.A) / 255 * coverage
	if a <= 0 {
		return
	}
	i := dst.PixOffset(x, y)
	p := dst.Pix[i : i+4 : i+4]
	inv := 1 - a
	p[0] = clampByte(float64(c.R)*a + float64(p[0])*inv)
	p[1] = clampByte(float64(c.G)*a + float64(p[1])*inv)
	p[2] = clampByte(float64(c.B)*a + float64(p[2])*inv)
	p[3] = clampByte(255*a + float64(p[3])*inv)
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
