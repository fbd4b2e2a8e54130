package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"nightscape-preview/internal/fixture"
	"nightscape-preview/internal/generation"
	"nightscape-preview/internal/pipeline"
	"nightscape-preview/internal/preview"
	"nightscape-preview/internal/raster"
	"nightscape-preview/internal/region"
)

// looksLikePlacements reports whether text reads as a fixture layout
// ("up 50 70; ...") rather than a free-form note.
func looksLikePlacements(text string) bool {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", ";"))
	if text == "" {
		return false
	}
	first, _, _ := strings.Cut(text, ";")
	fields := strings.Fields(first)
	if len(fields) < 3 {
		return false
	}
	if _, known := fixture.ParseType(fields[0]); known {
		return true
	}
	return isNumber(fields[1]) && isNumber(fields[2])
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	return err == nil
}

// userMessage turns a render failure into a chat reply.
func userMessage(err error) string {
	var pe *fixture.PlacementError
	if errors.As(err, &pe) {
		return fmt.Sprintf("❌ Fixture %d: %s (%s = %s).\nFormat: up 50 70; path 20 85 rot=180", pe.Index+1, pe.Reason, pe.Field, pe.Value)
	}
	var de *raster.DecodeError
	if errors.As(err, &de) {
		return "❌ Could not read the photo. Send a JPEG or PNG."
	}

	switch {
	case errors.Is(err, generation.ErrNoGenerator):
		return "❌ AI mode is not configured on this bot. Switch to local or markers."
	case errors.Is(err, generation.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "⏳ The AI render took too long. Try again or use local mode."
	case errors.Is(err, generation.ErrRetryExhausted):
		return "❌ The AI service is busy. Try again in a minute."
	case errors.Is(err, region.ErrInvalidPercent):
		return "❌ Crop must be between 0 and 100 percent."
	case errors.Is(err, pipeline.ErrUnknownMode):
		return "❌ Unknown render mode."
	}
	return "❌ Rendering failed. Try again."
}

func modeName(mode string) string {
	switch mode {
	case preview.ModeAI:
		return "AI"
	case preview.ModeMarkers:
		return "Markers"
	default:
		return "Local"
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
