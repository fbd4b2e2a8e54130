package glow

import (
	"image/color"

	"nightscape-preview/internal/fixture"
)

// Config holds the physical look of one fixture type.
//
// RadiusX and RadiusY are fractions of the image width and height: RadiusX is
// the spread across the beam, RadiusY the throw along it. OffsetY is a signed
// fraction of the image height measured along the beam direction, so a
// positive value moves the glow forward whichever way the fixture points.
type Config struct {
	Color     color.NRGBA
	RadiusX   float64
	RadiusY   float64
	OffsetY   float64
	Intensity float64
	Pool      bool
	Rotation  float64
}

var defaultConfig = Config{
	Color:     color.NRGBA{R: 255, G: 210, B: 150, A: 255},
	RadiusX:   0.06,
	RadiusY:   0.12,
	OffsetY:   0.06,
	Intensity: 0.7,
	Rotation:  0,
}

// ConfigFor returns the glow parameters for t. Unknown types get the default.
func ConfigFor(t fixture.Type) Config {
	switch t {
	case fixture.Up:
		return Config{
			Color:     color.NRGBA{R: 255, G: 200, B: 120, A: 255},
			RadiusX:   0.06,
			RadiusY:   0.22,
			OffsetY:   0.12,
			Intensity: 0.85,
			Rotation:  0,
		}
	case fixture.Soffit:
		return Config{
			Color:     color.NRGBA{R: 255, G: 225, B: 170, A: 255},
			RadiusX:   0.07,
			RadiusY:   0.16,
			OffsetY:   0.09,
			Intensity: 0.75,
			Pool:      true,
			Rotation:  180,
		}
	case fixture.Path:
		return Config{
			Color:     color.NRGBA{R: 255, G: 210, B: 150, A: 255},
			RadiusX:   0.07,
			RadiusY:   0.05,
			OffsetY:   0.02,
			Intensity: 0.7,
			Pool:      true,
			Rotation:  180,
		}
	case fixture.Well:
		return Config{
			Color:     color.NRGBA{R: 255, G: 205, B: 140, A: 255},
			RadiusX:   0.05,
			RadiusY:   0.20,
			OffsetY:   0.11,
			Intensity: 0.8,
			Rotation:  0,
		}
	case fixture.Gutter:
		return Config{
			Color:     color.NRGBA{R: 255, G: 215, B: 160, A: 255},
			RadiusX:   0.08,
			RadiusY:   0.14,
			OffsetY:   0.07,
			Intensity: 0.7,
			Rotation:  0,
		}
	case fixture.Hardscape:
		return Config{
			Color:     color.NRGBA{R: 255, G: 190, B: 120, A: 255},
			RadiusX:   0.06,
			RadiusY:   0.04,
			OffsetY:   0.015,
			Intensity: 0.65,
			Pool:      true,
			Rotation:  180,
		}
	case fixture.Coredrill:
		return Config{
			Color:     color.NRGBA{R: 255, G: 220, B: 170, A: 255},
			RadiusX:   0.035,
			RadiusY:   0.14,
			OffsetY:   0.07,
			Intensity: 0.8,
			Rotation:  0,
		}
	case fixture.Unknown:
		return defaultConfig
	}
	return defaultConfig
}
