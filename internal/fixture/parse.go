package fixture

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML mirrors UnmarshalJSON for placement files.
func (p *Placement) UnmarshalYAML(node *yaml.Node) error {
	var aux struct {
		Type       string   `yaml:"fixtureType"`
		X          *float64 `yaml:"horizontalPosition"`
		Y          *float64 `yaml:"verticalPosition"`
		Rotation   *float64 `yaml:"rotation"`
		BeamLength *float64 `yaml:"beamLength"`
		Label      string   `yaml:"label"`
	}
	if err := node.Decode(&aux); err != nil {
		return err
	}
	*p = Placement{
		Rotation:   aux.Rotation,
		BeamLength: aux.BeamLength,
		Label:      aux.Label,
		rawType:    strings.TrimSpace(aux.Type),
	}
	p.Type, _ = ParseType(aux.Type)
	p.X, p.noX = derefPosition(aux.X)
	p.Y, p.noY = derefPosition(aux.Y)
	return nil
}

// ParseJSON decodes a placement array, or an object with a "fixtures" array.
func ParseJSON(data []byte) (SpatialMap, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}

	var m SpatialMap
	if strings.HasPrefix(trimmed, "{") {
		var wrapped struct {
			Fixtures SpatialMap `json:"fixtures"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decode placements: %w", err)
		}
		m = wrapped.Fixtures
	} else if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode placements: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseYAML accepts the same two shapes as ParseJSON.
func ParseYAML(data []byte) (SpatialMap, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode placements: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	doc := root.Content[0]
	var m SpatialMap
	switch doc.Kind {
	case yaml.MappingNode:
		var wrapped struct {
			Fixtures SpatialMap `yaml:"fixtures"`
		}
		if err := doc.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("decode placements: %w", err)
		}
		m = wrapped.Fixtures
	case yaml.SequenceNode:
		if err := doc.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode placements: %w", err)
		}
	default:
		return nil, errors.New("decode placements: expected a list or a fixtures: mapping")
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseCaption reads the short form typed into a chat caption:
//
//	up 50 70; path 20 85 rot=180 len=1.5; well 40 90 label=Oak
//
// Entries are separated by ';' or newlines.
func ParseCaption(text string) (SpatialMap, error) {
	text = strings.ReplaceAll(text, "\n", ";")

	var m SpatialMap
	for _, entry := range strings.Split(text, ";") {
		fields := strings.Fields(entry)
		if len(fields) == 0 {
			continue
		}
		idx := len(m)
		if len(fields) < 3 {
			return nil, &PlacementError{Index: idx, Field: "entry", Value: strconv.Quote(strings.TrimSpace(entry)), Reason: "want: <type> <x%> <y%> [rot=deg] [len=mult] [label=text]"}
		}

		p := Placement{rawType: fields[0]}
		p.Type, _ = ParseType(fields[0])

		x, err := parsePercent(fields[1])
		if err != nil {
			return nil, &PlacementError{Index: idx, Field: "horizontalPosition", Value: fields[1], Reason: err.Error()}
		}
		y, err := parsePercent(fields[2])
		if err != nil {
			return nil, &PlacementError{Index: idx, Field: "verticalPosition", Value: fields[2], Reason: err.Error()}
		}
		p.X, p.Y = x, y

		for _, opt := range fields[3:] {
			key, value, ok := strings.Cut(opt, "=")
			if !ok {
				return nil, &PlacementError{Index: idx, Field: "option", Value: opt, Reason: "expected key=value"}
			}
			switch strings.ToLower(key) {
			case "rot", "rotation":
				v, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return nil, &PlacementError{Index: idx, Field: "rotation", Value: value, Reason: "not a number"}
				}
				p.Rotation = &v
			case "len", "beam", "beamlength":
				v, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return nil, &PlacementError{Index: idx, Field: "beamLength", Value: value, Reason: "not a number"}
				}
				p.BeamLength = &v
			case "label":
				p.Label = strings.ReplaceAll(value, "_", " ")
			default:
				return nil, &PlacementError{Index: idx, Field: "option", Value: opt, Reason: "unknown option"}
			}
		}

		m = append(m, p)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func parsePercent(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
	if err != nil {
		return 0, errors.New("not a number")
	}
	return v, nil
}
