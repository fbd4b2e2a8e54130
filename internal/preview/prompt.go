package preview

import (
	"fmt"
	"strconv"
	"strings"

	"nightscape-preview/internal/fixture"
	"nightscape-preview/internal/markers"
)

type Options struct {
	Markers     bool   // the photo carries numbered fixture markers
	AspectRatio string // e.g. "4:3"; empty lets the model keep the input framing
	Placements  fixture.SpatialMap
	BeamAngle   float64 // degrees, 0 means the renderer default
	Intensity   float64 // 0 means the renderer default
	Style       string  // "" | "warm" | "neutral" | "moonlight" | ...
	CropTop     float64 // percent of the photo hidden from the model
	Custom      string
}

type LightStyle struct {
	Name  string
	Add   []string
	Notes []string
}

var lightStyles = map[string]LightStyle{
	"": {
		Name: "Warm white (2700K)",
		Add: []string{
			"All fixtures emit warm white light around 2700K",
			"Consistent colour temperature between fixtures",
		},
	},
	"warm": {
		Name: "Warm white (2700K)",
		Add: []string{
			"All fixtures emit warm white light around 2700K",
			"Consistent colour temperature between fixtures",
		},
	},
	"amber": {
		Name: "Amber (2200K)",
		Add: []string{
			"Deep amber, candle-like tone around 2200K",
			"Lower perceived brightness than warm white",
		},
		Notes: []string{"Good for brick, stone and traditional facades"},
	},
	"neutral": {
		Name: "Neutral white (3000K)",
		Add: []string{
			"Clean neutral white around 3000K",
			"Keep whites on the facade neutral, not blue",
		},
	},
	"moonlight": {
		Name: "Moonlighting (4000K)",
		Add: []string{
			"Cool 4000K light filtered through tree canopies from above",
			"Dappled leaf shadows on lawn and paving",
		},
		Notes: []string{"Never tint the whole scene blue; only the fixture light is cool"},
	},
	"dusk": {
		Name: "Blue-hour dusk",
		Add: []string{
			"Sky in deep blue hour, a little residual light on the horizon",
			"Fixtures in warm white 2700K against the cool sky",
		},
	},
}

var fixtureBriefs = map[fixture.Type][]string{
	fixture.Up: {
		"in-ground or stake uplight at the base of a wall, column or tree",
		"narrow beam grazing upward; brightest at the bottom, fading with height",
	},
	fixture.Soffit: {
		"recessed downlight in the eave",
		"soft scallop of light washing down the wall below it",
	},
	fixture.Path: {
		"low path light (mushroom or bollard head)",
		"round pool of light on the ground around its base",
	},
	fixture.Well: {
		"flush in-ground well light",
		"wide upward wash; no visible hardware",
	},
	fixture.Gutter: {
		"small spot mounted on the gutter edge aimed downward",
		"light falls on the ground and the lower facade",
	},
	fixture.Hardscape: {
		"under-cap light tucked into a wall, step or bench",
		"thin horizontal wash directly below the cap",
	},
	fixture.Coredrill: {
		"tiny flush fixture drilled into paving",
		"tight upward glow on the wall or column right above it",
	},
}

func briefFor(t fixture.Type) []string {
	switch t {
	case fixture.Up, fixture.Soffit, fixture.Path, fixture.Well, fixture.Gutter, fixture.Hardscape, fixture.Coredrill:
		return fixtureBriefs[t]
	case fixture.Unknown:
		return []string{"generic landscape fixture", "subtle warm glow around its position"}
	}
	return nil
}

// ParseArgs reads "/night" style arguments. Unrecognised words become the
// custom note.
func ParseArgs(raw string, defaults Options) Options {
	opts := defaults
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return opts
	}

	var custom []string
	for _, tok := range strings.Fields(raw) {
		orig := tok
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}

		switch tok {
		case "markers", "marked", "numbered":
			opts.Markers = true
			continue
		case "clean", "nomarkers":
			opts.Markers = false
			continue
		}

		if _, ok := lightStyles[tok]; ok && tok != "" {
			opts.Style = tok
			continue
		}
		if key, value, ok := strings.Cut(tok, "="); ok {
			if applyOption(&opts, key, value) {
				continue
			}
		}
		if norm := normalizeAspectRatio(tok); norm != "" {
			opts.AspectRatio = norm
			continue
		}

		custom = append(custom, orig)
	}

	opts.Custom = strings.TrimSpace(strings.Join(custom, " "))
	return opts
}

func applyOption(opts *Options, key, value string) bool {
	switch key {
	case "style", "color", "colour":
		if _, ok := lightStyles[value]; ok {
			opts.Style = value
			return true
		}
	case "beam", "angle":
		if v, err := strconv.ParseFloat(value, 64); err == nil && v > 0 {
			opts.BeamAngle = v
			return true
		}
	case "intensity", "power":
		if v, err := strconv.ParseFloat(value, 64); err == nil && v > 0 {
			opts.Intensity = v
			return true
		}
	case "crop", "croptop":
		if v, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64); err == nil && v >= 0 && v < 100 {
			opts.CropTop = v
			return true
		}
	case "ar", "aspect":
		if norm := normalizeAspectRatio(value); norm != "" {
			opts.AspectRatio = norm
			return true
		}
	}
	return false
}

// BuildPrompt writes the instructions for turning a daytime photo into a
// night preview with the given fixtures.
func BuildPrompt(opts Options) string {
	styleKey := strings.ToLower(strings.TrimSpace(opts.Style))
	style, ok := lightStyles[styleKey]
	if !ok {
		style = lightStyles[""]
	}

	var b strings.Builder
	b.Grow(4096)

	b.WriteString("TASK: Photorealistic night-time landscape lighting preview.\n\n")

	b.WriteString("REFERENCE IMAGE (IDENTITY LOCK): The attached photo is the real property. Treat this as an image-edit task.\n")
	b.WriteString("- Keep the house, roofline, windows, plants, hardscape and camera position exactly as in the photo.\n")
	b.WriteString("- Do NOT add, move or remove buildings, trees or objects.\n")
	b.WriteString("- Do NOT add captions, watermarks or text overlays.\n")
	if opts.Markers {
		b.WriteString("- The photo carries numbered coloured markers. Each marker is a fixture position; remove every marker, number and label from the output.\n")
		b.WriteString("- Marker colours identify the fixture type:\n")
		for _, line := range markers.LegendLines() {
			b.WriteString("  - " + line + "\n")
		}
	} else {
		b.WriteString("- The photo may already be darkened with rough glows at the fixture positions; refine them into real light.\n")
	}
	if opts.CropTop > 0 {
		b.WriteString(fmt.Sprintf("- The top %s%% of the photo (sky and roof) was cut away; do not invent a roofline at the top edge.\n", trimFloat(opts.CropTop)))
	}
	b.WriteString("\n")

	b.WriteString("OUTPUT SPEC:\n")
	b.WriteString("- Create 1 image.\n")
	if ar := normalizeAspectRatio(opts.AspectRatio); ar != "" {
		b.WriteString(fmt.Sprintf("- Aspect ratio: %s, same framing as the input.\n", ar))
	}
	b.WriteString("- Look: a real photograph taken about 45 minutes after sunset.\n\n")

	b.WriteString("UNIVERSAL TECHNICAL SPECS:\n")
	writeSection(&b, "Scene", []string{
		"Ambient light very low; sky dark navy, not black",
		"Interior window glow soft and sparse",
		"Surfaces not lit by a fixture stay dark",
	})
	writeSection(&b, "Light behaviour", []string{
		"Inverse-square falloff away from each fixture",
		"Textured surfaces show grazing highlights and shadows",
		"No light from positions without a fixture",
		"No lens flare, no visible beams in the air",
	})
	writeSection(&b, "Camera", []string{
		"Tripod long exposure; clean, low noise",
		"Realistic dynamic range; no HDR halos",
	})
	b.WriteString("\n")

	b.WriteString("LIGHT COLOUR:\n")
	b.WriteString("- " + style.Name + "\n")
	for _, line := range style.Add {
		b.WriteString("- " + line + "\n")
	}
	for _, line := range style.Notes {
		b.WriteString("- NOTE: " + line + "\n")
	}
	b.WriteString("\n")

	var tuning []string
	if opts.BeamAngle > 0 {
		tuning = append(tuning, fmt.Sprintf("Beam spread about %s degrees", trimFloat(opts.BeamAngle)))
	}
	if opts.Intensity > 0 {
		tuning = append(tuning, intensityLine(opts.Intensity))
	}
	if len(tuning) > 0 {
		b.WriteString("FIXTURE TUNING:\n")
		for _, line := range tuning {
			b.WriteString("- " + line + "\n")
		}
		b.WriteString("\n")
	}

	if len(opts.Placements) > 0 {
		b.WriteString("FIXTURES (one light per entry, numbered as on the markers):\n")
		for i, p := range opts.Placements {
			title := fmt.Sprintf("%d) %s at %s%% from left, %s%% from top", i+1, p.WireType(), trimFloat(p.X), trimFloat(p.Y))
			if p.Label != "" {
				title += " (" + p.Label + ")"
			}
			b.WriteString("\n" + title + "\n")
			lines := append([]string(nil), briefFor(p.Type)...)
			if p.Rotation != nil {
				lines = append(lines, fmt.Sprintf("aimed %s degrees clockwise from straight up", trimFloat(fixture.NormalizeRotation(*p.Rotation))))
			}
			if p.BeamLength != nil {
				lines = append(lines, fmt.Sprintf("throw length x%s of a standard fixture", trimFloat(p.BeamLengthOr())))
			}
			for _, line := range uniq(lines) {
				b.WriteString("  - " + line + "\n")
			}
		}
		b.WriteString("\n")
	}

	if custom := strings.TrimSpace(opts.Custom); custom != "" {
		b.WriteString("ADDITIONAL NOTES:\n")
		b.WriteString("- " + custom + "\n\n")
	}

	b.WriteString("NEGATIVE PROMPT (avoid):\n")
	for _, line := range []string{
		"daylight", "sun", "blue cast over the whole image", "neon colours",
		"extra fixtures", "visible markers or numbers", "text", "watermark",
		"cartoon", "painting", "CGI look", "overexposed hotspots", "light in the sky",
		"changed architecture", "moved camera", "border", "letterbox",
	} {
		b.WriteString("- " + line + "\n")
	}
	b.WriteString("\n")

	b.WriteString("OUTPUT RULES:\n")
	b.WriteString("- Return exactly 1 image.\n")
	b.WriteString("- Image only. No text, no JSON.\n")

	return strings.TrimSpace(b.String())
}

func intensityLine(v float64) string {
	switch {
	case v < 0.8:
		return "Subtle, low-output fixtures"
	case v > 1.2:
		return "Bright, high-output fixtures (still no blown highlights)"
	}
	return "Standard residential fixture output"
}

func uniq(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func writeSection(b *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	b.WriteString("- " + title + ":\n")
	for _, line := range lines {
		b.WriteString("  - " + line + "\n")
	}
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func normalizeAspectRatio(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return ""
	}
	a, errA := strconv.Atoi(strings.TrimSpace(parts[0]))
	b, errB := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errA != nil || errB != nil || a <= 0 || b <= 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d", a, b)
}
