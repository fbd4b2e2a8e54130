package fixture

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestParseType(t *testing.T) {
	cases := map[string]Type{
		"up":         Up,
		"Uplight":    Up,
		"soffit":     Soffit,
		"down-light": Soffit,
		"path":       Path,
		"well":       Well,
		"gutter":     Gutter,
		"hardscape":  Hardscape,
		"core_drill": Coredrill,
	}
	for raw, want := range cases {
		got, ok := ParseType(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}

	got, ok := ParseType("laser")
	assert.False(t, ok)
	assert.Equal(t, Unknown, got)
}

func TestTypes_StringRoundTrip(t *testing.T) {
	for _, typ := range Types() {
		back, ok := ParseType(typ.String())
		require.True(t, ok)
		assert.Equal(t, typ, back)
	}
}

func TestNormalizeRotation(t *testing.T) {
	assert.InDelta(t, 0.0, NormalizeRotation(360), 1e-9)
	assert.InDelta(t, 270.0, NormalizeRotation(-90), 1e-9)
	assert.InDelta(t, 30.0, NormalizeRotation(750), 1e-9)
	assert.InDelta(t, 0.0, NormalizeRotation(-1e-18), 1e-9)
}

func TestPlacement_Defaults(t *testing.T) {
	p := Placement{Type: Up, X: 50, Y: 50}
	assert.InDelta(t, 180.0, p.RotationOr(180), 1e-9)
	assert.InDelta(t, DefaultBeamLength, p.BeamLengthOr(), 1e-9)

	p.Rotation = ptr(-45)
	p.BeamLength = ptr(9)
	assert.InDelta(t, 315.0, p.RotationOr(0), 1e-9)
	assert.InDelta(t, MaxBeamLength, p.BeamLengthOr(), 1e-9)

	p.BeamLength = ptr(0.01)
	assert.InDelta(t, MinBeamLength, p.BeamLengthOr(), 1e-9)
}

func TestPlacement_Pixel(t *testing.T) {
	x, y := Placement{X: 25, Y: 80}.Pixel(400, 200)
	assert.InDelta(t, 100.0, x, 1e-9)
	assert.InDelta(t, 160.0, y, 1e-9)
}

func TestValidate_RejectsOutOfRangeWithoutClamping(t *testing.T) {
	m := SpatialMap{
		{Type: Up, X: 10, Y: 10},
		{Type: Path, X: 101, Y: 50},
	}

	err := m.Validate()

	var pe *PlacementError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.Index)
	assert.Equal(t, "horizontalPosition", pe.Field)
	assert.Equal(t, 101.0, m[1].X, "value must be left as given")
	assert.Contains(t, err.Error(), "placement 2")
}

func TestValidate_Fields(t *testing.T) {
	cases := []struct {
		name  string
		p     Placement
		field string
	}{
		{"missing type", Placement{X: 1, Y: 1}, "fixtureType"},
		{"negative y", Placement{Type: Up, X: 1, Y: -0.5}, "verticalPosition"},
		{"nan x", Placement{Type: Up, X: math.NaN(), Y: 1}, "horizontalPosition"},
		{"inf rotation", Placement{Type: Up, X: 1, Y: 1, Rotation: ptr(math.Inf(1))}, "rotation"},
		{"zero beam", Placement{Type: Up, X: 1, Y: 1, BeamLength: ptr(0)}, "beamLength"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var pe *PlacementError
			require.True(t, errors.As(SpatialMap{tc.p}.Validate(), &pe))
			assert.Equal(t, tc.field, pe.Field)
		})
	}
}

func TestParseJSON(t *testing.T) {
	data := []byte(`[
		{"fixtureType":"up","horizontalPosition":50,"verticalPosition":70},
		{"fixtureType":"path","horizontalPosition":20,"verticalPosition":85,"rotation":180,"beamLength":1.5,"label":"Walk"}
	]`)

	m, err := ParseJSON(data)
	require.NoError(t, err)
	require.Len(t, m, 2)
	assert.Equal(t, Up, m[0].Type)
	assert.Nil(t, m[0].Rotation)
	assert.Equal(t, Path, m[1].Type)
	assert.InDelta(t, 180.0, *m[1].Rotation, 1e-9)
	assert.Equal(t, "Walk", m[1].Label)
}

func TestParseJSON_WrappedAndUnknownType(t *testing.T) {
	m, err := ParseJSON([]byte(`{"fixtures":[{"fixtureType":"laser","horizontalPosition":5,"verticalPosition":5}]}`))
	require.NoError(t, err)
	require.Len(t, m, 1)
	assert.Equal(t, Unknown, m[0].Type)
	assert.Equal(t, "laser", m[0].WireType())
}

func TestParseJSON_MissingType(t *testing.T) {
	_, err := ParseJSON([]byte(`[{"horizontalPosition":5,"verticalPosition":5}]`))

	var pe *PlacementError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "fixtureType", pe.Field)
}

func TestParseJSON_MissingPosition(t *testing.T) {
	_, err := ParseJSON([]byte(`[{"fixtureType":"up","horizontalPosition":5,"verticalPosition":5},{"fixtureType":"path","verticalPosition":80}]`))

	var pe *PlacementError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.Index)
	assert.Equal(t, "horizontalPosition", pe.Field)
	assert.Equal(t, "missing", pe.Reason)

	_, err = ParseJSON([]byte(`[{"fixtureType":"up","horizontalPosition":0}]`))
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "verticalPosition", pe.Field)

	m, err := ParseJSON([]byte(`[{"fixtureType":"up","horizontalPosition":0,"verticalPosition":0}]`))
	require.NoError(t, err, "an explicit zero is a valid edge position")
	assert.Zero(t, m[0].X)
}

func TestParseYAML_MissingPosition(t *testing.T) {
	_, err := ParseYAML([]byte("- {fixtureType: well, horizontalPosition: 30}\n"))

	var pe *PlacementError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "verticalPosition", pe.Field)
	assert.Equal(t, "missing", pe.Reason)
}

func TestParseJSON_Empty(t *testing.T) {
	m, err := ParseJSON([]byte("  "))
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
fixtures:
  - fixtureType: well
    horizontalPosition: 40
    verticalPosition: 90
  - fixtureType: mystery
    horizontalPosition: 60
    verticalPosition: 90
    rotation: 45
`)

	m, err := ParseYAML(data)
	require.NoError(t, err)
	require.Len(t, m, 2)
	assert.Equal(t, Well, m[0].Type)
	assert.Equal(t, Unknown, m[1].Type)
	assert.Equal(t, "mystery", m[1].WireType())
	assert.InDelta(t, 45.0, m[1].RotationOr(0), 1e-9)
}

func TestParseYAML_List(t *testing.T) {
	m, err := ParseYAML([]byte("- {fixtureType: up, horizontalPosition: 1, verticalPosition: 2}\n"))
	require.NoError(t, err)
	require.Len(t, m, 1)
	assert.Equal(t, Up, m[0].Type)
}

func TestParseCaption(t *testing.T) {
	m, err := ParseCaption("up 50 70; path 20% 85% rot=180 len=1.5\nwell 40 90 label=Old_Oak")
	require.NoError(t, err)
	require.Len(t, m, 3)

	assert.Equal(t, Up, m[0].Type)
	assert.InDelta(t, 50.0, m[0].X, 1e-9)
	assert.Equal(t, Path, m[1].Type)
	assert.InDelta(t, 85.0, m[1].Y, 1e-9)
	assert.InDelta(t, 1.5, *m[1].BeamLength, 1e-9)
	assert.Equal(t, "Old Oak", m[2].Label)
}

func TestParseCaption_Errors(t *testing.T) {
	_, err := ParseCaption("up 50")
	var pe *PlacementError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "entry", pe.Field)

	_, err = ParseCaption("up 50 70 zoom=2")
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "option", pe.Field)

	_, err = ParseCaption("up 50 170")
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "verticalPosition", pe.Field)
}
