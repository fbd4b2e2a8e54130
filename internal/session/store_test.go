package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nightscape-preview/internal/fixture"
)

func TestStore_HistoryIsBounded(t *testing.T) {
	s := NewStore(Options{MaxRenders: 2})
	s.Append(1, "ann", Render{Mode: "local"}, Render{Mode: "markers"}, Render{Mode: "ai"})

	h := s.Snapshot(1, "")
	require.Len(t, h, 2)
	assert.Equal(t, "markers", h[0].Mode)
	assert.Equal(t, "ai", h[1].Mode)
	assert.False(t, h[1].At.IsZero())
}

func TestStore_LastPlacements(t *testing.T) {
	s := NewStore(Options{})
	_, ok := s.LastPlacements(7)
	assert.False(t, ok)

	layout := fixture.SpatialMap{{Type: fixture.Up, X: 10, Y: 80}}
	s.Append(7, "", Render{Mode: "local", Placements: layout}, Render{Mode: "ai"})

	got, ok := s.LastPlacements(7)
	require.True(t, ok)
	assert.Equal(t, layout, got)

	got[0].X = 99
	again, _ := s.LastPlacements(7)
	assert.InDelta(t, 10.0, again[0].X, 1e-9, "callers get a copy")
}

func TestStore_Clear(t *testing.T) {
	s := NewStore(Options{})
	s.Append(3, "", Render{Mode: "local", Placements: fixture.SpatialMap{{Type: fixture.Path, X: 1, Y: 1}}})
	s.Clear(3)

	assert.Empty(t, s.Snapshot(3, ""))
	_, ok := s.LastPlacements(3)
	assert.False(t, ok)
}
