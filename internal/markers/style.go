package markers

import (
	"fmt"
	"image/color"

	"nightscape-preview/internal/fixture"
)

// Style is the color and short tag used for a fixture type.
type Style struct {
	Color color.NRGBA
	Label string
}

var defaultStyle = Style{Color: color.NRGBA{R: 255, G: 0, B: 255, A: 255}, Label: "FIX"}

func StyleFor(t fixture.Type) Style {
	switch t {
	case fixture.Up:
		return Style{Color: color.NRGBA{R: 255, G: 176, B: 0, A: 255}, Label: "UP"}
	case fixture.Soffit:
		return Style{Color: color.NRGBA{R: 255, G: 236, B: 150, A: 255}, Label: "SOF"}
	case fixture.Path:
		return Style{Color: color.NRGBA{R: 110, G: 220, B: 110, A: 255}, Label: "PATH"}
	case fixture.Well:
		return Style{Color: color.NRGBA{R: 70, G: 170, B: 255, A: 255}, Label: "WELL"}
	case fixture.Gutter:
		return Style{Color: color.NRGBA{R: 255, G: 110, B: 50, A: 255}, Label: "GUT"}
	case fixture.Hardscape:
		return Style{Color: color.NRGBA{R: 190, G: 130, B: 255, A: 255}, Label: "HARD"}
	case fixture.Coredrill:
		return Style{Color: color.NRGBA{R: 0, G: 230, B: 210, A: 255}, Label: "CORE"}
	case fixture.Unknown:
		return defaultStyle
	}
	return defaultStyle
}

// LegendLines lists every type's marker color and tag, in fixture.Types
// order, for prompts that explain the overlay to a model.
func LegendLines() []string {
	types := fixture.Types()
	out := make([]string, 0, len(types))
	for _, t := range types {
		st := StyleFor(t)
		out = append(out, fmt.Sprintf("%s marker #%02x%02x%02x = %s fixture", st.Label, st.Color.R, st.Color.G, st.Color.B, t))
	}
	return out
}
