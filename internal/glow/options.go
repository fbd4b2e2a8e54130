package glow

import "math"

// Clamp bounds for the caller-controlled multipliers.
const (
	MinIntensity = 0.1
	MaxIntensity = 2.0
	MinScale     = 0.4
	MaxScale     = 2.5

	MinBeamAngle = 15.0
	MaxBeamAngle = 60.0
)

// Options are the caller's global knobs. Nil fields mean "neutral".
// WidthScale and HeightScale, when set, replace the values derived from
// BeamAngleDeg.
type Options struct {
	Intensity    *float64 `json:"intensity,omitempty"`
	BeamAngleDeg *float64 `json:"beamAngleDeg,omitempty"`
	WidthScale   *float64 `json:"widthScale,omitempty"`
	HeightScale  *float64 `json:"heightScale,omitempty"`
}

// Resolved holds clamped multipliers ready for rendering.
type Resolved struct {
	Intensity   float64
	WidthScale  float64
	HeightScale float64
}

// BeamScales maps a beam angle to width and height multipliers. Narrow beams
// come out tight and long, floods short and broad.
func BeamScales(beamAngleDeg float64) (width, height float64) {
	t := (beamAngleDeg - MinBeamAngle) / (MaxBeamAngle - MinBeamAngle)
	t = clamp(t, 0, 1)
	return 0.6 + 1.0*t, 1.4 - 0.7*t
}

func (o Options) Resolve() Resolved {
	r := Resolved{Intensity: 1, WidthScale: 1, HeightScale: 1}

	if v, ok := finite(o.Intensity); ok {
		r.Intensity = v
	}
	if v, ok := finite(o.BeamAngleDeg); ok {
		r.WidthScale, r.HeightScale = BeamScales(v)
	}
	if v, ok := finite(o.WidthScale); ok {
		r.WidthScale = v
	}
	if v, ok := finite(o.HeightScale); ok {
		r.HeightScale = v
	}

	r.Intensity = clamp(r.Intensity, MinIntensity, MaxIntensity)
	r.WidthScale = clamp(r.WidthScale, MinScale, MaxScale)
	r.HeightScale = clamp(r.HeightScale, MinScale, MaxScale)
	return r
}

func finite(p *float64) (float64, bool) {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return 0, false
	}
	return *p, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
