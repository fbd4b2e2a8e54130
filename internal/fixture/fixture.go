// Package fixture models the lighting fixtures a designer places on a photo.
package fixture

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Type is the closed set of fixture kinds. Unknown carries wire values this
// build does not recognise; renderers give it a neutral fallback.
type Type int

const (
	Unknown Type = iota
	Up
	Soffit
	Path
	Well
	Gutter
	Hardscape
	Coredrill
)

// Types lists every known fixture type in display order.
func Types() []Type {
	return []Type{Up, Soffit, Path, Well, Gutter, Hardscape, Coredrill}
}

func (t Type) String() string {
	switch t {
	case Up:
		return "up"
	case Soffit:
		return "soffit"
	case Path:
		return "path"
	case Well:
		return "well"
	case Gutter:
		return "gutter"
	case Hardscape:
		return "hardscape"
	case Coredrill:
		return "coredrill"
	case Unknown:
		return "unknown"
	}
	return "unknown"
}

// ParseType accepts the canonical names plus a few spellings seen in designer
// exports ("uplight", "core-drill", "downlight").
func ParseType(raw string) (Type, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)

	switch key {
	case "up", "uplight", "spot", "spotlight":
		return Up, true
	case "soffit", "downlight", "eave":
		return Soffit, true
	case "path", "pathlight", "bollard":
		return Path, true
	case "well", "welllight", "inground":
		return Well, true
	case "gutter", "gutterlight", "guttermount":
		return Gutter, true
	case "hardscape", "wall", "step", "steplight":
		return Hardscape, true
	case "coredrill", "core", "coredrilled":
		return Coredrill, true
	}
	return Unknown, false
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText never fails on an unrecognised name: the value becomes
// Unknown so callers can decide whether to reject it.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, _ := ParseType(string(b))
	*t = parsed
	return nil
}

const (
	DefaultBeamLength = 1.0
	MinBeamLength     = 0.3
	MaxBeamLength     = 2.5
)

// Placement is one fixture on the photo. X and Y are percentages of the image
// width and height, so a map is valid at any resolution.
type Placement struct {
	Type       Type     `json:"fixtureType" yaml:"fixtureType"`
	X          float64  `json:"horizontalPosition" yaml:"horizontalPosition"`
	Y          float64  `json:"verticalPosition" yaml:"verticalPosition"`
	Rotation   *float64 `json:"rotation,omitempty" yaml:"rotation,omitempty"`
	BeamLength *float64 `json:"beamLength,omitempty" yaml:"beamLength,omitempty"`
	Label      string   `json:"label,omitempty" yaml:"label,omitempty"`

	// rawType keeps the wire value for error messages.
	rawType string
	// noX and noY mark decoded placements that omitted a position.
	noX, noY bool
}

// RotationOr returns the placement rotation normalised into [0,360), or def
// when none was given.
func (p Placement) RotationOr(def float64) float64 {
	if p.Rotation == nil || math.IsNaN(*p.Rotation) || math.IsInf(*p.Rotation, 0) {
		return NormalizeRotation(def)
	}
	return NormalizeRotation(*p.Rotation)
}

// BeamLengthOr clamps the beam length multiplier into its safe range.
func (p Placement) BeamLengthOr() float64 {
	if p.BeamLength == nil || math.IsNaN(*p.BeamLength) {
		return DefaultBeamLength
	}
	v := *p.BeamLength
	if v < MinBeamLength {
		return MinBeamLength
	}
	if v > MaxBeamLength {
		return MaxBeamLength
	}
	return v
}

// Pixel converts the percentage position to pixel space for a w×h image.
func (p Placement) Pixel(w, h int) (float64, float64) {
	return p.X / 100 * float64(w), p.Y / 100 * float64(h)
}

func NormalizeRotation(deg float64) float64 {
	r := math.Mod(deg, 360)
	if r < 0 {
		r += 360
	}
	if r >= 360 {
		r = 0
	}
	return r
}

// SpatialMap is the ordered placement list; index i is labelled i+1.
type SpatialMap []Placement

// PlacementError pins a validation failure to one placement and field.
type PlacementError struct {
	Index  int
	Field  string
	Value  string
	Reason string
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("placement %d: %s=%s: %s", e.Index+1, e.Field, e.Value, e.Reason)
}

// Validate returns the first PlacementError. Positions are never clamped.
func (m SpatialMap) Validate() error {
	for i, p := range m {
		if err := p.validate(i); err != nil {
			return err
		}
	}
	return nil
}

func (p Placement) validate(i int) error {
	if p.Type == Unknown && p.rawType == "" {
		return &PlacementError{Index: i, Field: "fixtureType", Value: `""`, Reason: "missing fixture type"}
	}
	if p.noX {
		return &PlacementError{Index: i, Field: "horizontalPosition", Value: `""`, Reason: "missing"}
	}
	if p.noY {
		return &PlacementError{Index: i, Field: "verticalPosition", Value: `""`, Reason: "missing"}
	}
	if !inPercent(p.X) {
		return &PlacementError{Index: i, Field: "horizontalPosition", Value: formatFloat(p.X), Reason: "must be within [0,100]"}
	}
	if !inPercent(p.Y) {
		return &PlacementError{Index: i, Field: "verticalPosition", Value: formatFloat(p.Y), Reason: "must be within [0,100]"}
	}
	if p.Rotation != nil && (math.IsNaN(*p.Rotation) || math.IsInf(*p.Rotation, 0)) {
		return &PlacementError{Index: i, Field: "rotation", Value: formatFloat(*p.Rotation), Reason: "must be a finite number of degrees"}
	}
	if p.BeamLength != nil && (math.IsNaN(*p.BeamLength) || math.IsInf(*p.BeamLength, 0) || *p.BeamLength <= 0) {
		return &PlacementError{Index: i, Field: "beamLength", Value: formatFloat(*p.BeamLength), Reason: "must be a positive multiplier"}
	}
	return nil
}

func inPercent(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 100
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}

// UnmarshalJSON keeps the original fixtureType string so an unknown type is
// distinguishable from a missing one, and remembers omitted positions.
func (p *Placement) UnmarshalJSON(data []byte) error {
	type plain Placement
	var aux struct {
		plain
		Type string   `json:"fixtureType"`
		X    *float64 `json:"horizontalPosition"`
		Y    *float64 `json:"verticalPosition"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Placement(aux.plain)
	p.rawType = strings.TrimSpace(aux.Type)
	p.Type, _ = ParseType(aux.Type)
	p.X, p.noX = derefPosition(aux.X)
	p.Y, p.noY = derefPosition(aux.Y)
	return nil
}

func derefPosition(v *float64) (float64, bool) {
	if v == nil {
		return 0, true
	}
	return *v, false
}

// WireType is the fixture type string the placement arrived with.
func (p Placement) WireType() string {
	if p.rawType != "" {
		return p.rawType
	}
	return p.Type.String()
}
