package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"nightscape-preview/internal/fixture"
	"nightscape-preview/internal/generation"
	"nightscape-preview/internal/pipeline"
	"nightscape-preview/internal/raster"
	"nightscape-preview/internal/region"
)

const maxUploadBytes = 25 << 20

type Renderer interface {
	Render(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
}

type serverOptions struct {
	Renderer       Renderer
	Logger         *slog.Logger
	RequestTimeout time.Duration
	// MaxConcurrent caps ai renders in flight; local renders are not limited.
	MaxConcurrent int
}

type server struct {
	renderer Renderer
	logger   *slog.Logger
	timeout  time.Duration
	aiSlots  *semaphore.Weighted
}

type apiError struct {
	Error     string `json:"error"`
	Placement *int   `json:"placement,omitempty"`
	Field     string `json:"field,omitempty"`
}

func newServer(opts serverOptions) *server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	slots := opts.MaxConcurrent
	if slots < 1 {
		slots = 1
	}
	return &server{
		renderer: opts.Renderer,
		logger:   logger,
		timeout:  timeout,
		aiSlots:  semaphore.NewWeighted(int64(slots)),
	}
}

func (s *server) routes(static http.FileSystem) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/preview", s.handlePreview)
	mux.HandleFunc("/api/mask", s.handleMask)
	mux.HandleFunc("/healthz", s.handleHealth)
	if static != nil {
		mux.Handle("/", http.FileServer(static))
	}
	return withLogging(mux, s.logger)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handlePreview(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w, r)
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
		return
	}

	req, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	req.ID = reqID

	mode, err := pipeline.ParseMode(r.FormValue("mode"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error(), Field: "mode"})
		return
	}
	if mode == pipeline.ModeMask {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "use /api/mask for masks", Field: "mode"})
		return
	}
	req.Mode = mode

	for _, f := range []struct {
		key string
		dst **float64
	}{
		{"beam_angle", &req.Glow.BeamAngleDeg},
		{"intensity", &req.Glow.Intensity},
		{"width_scale", &req.Glow.WidthScale},
		{"height_scale", &req.Glow.HeightScale},
	} {
		v, ok := optionalFloat(r, f.key)
		if !ok {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "not a number", Field: f.key})
			return
		}
		*f.dst = v
	}
	if bad := floatFields(r, map[string]*float64{
		"crop_top":     &req.CropTop,
		"quality":      &req.Quality,
		"sprite_scale": &req.SpriteScale,
	}); bad != "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "not a number", Field: bad})
		return
	}

	req.CleanMarkers = parseBool(r.FormValue("clean_markers"))
	req.NightFilter = strings.TrimSpace(r.FormValue("night_filter"))
	req.Style = strings.TrimSpace(r.FormValue("style"))
	req.Custom = strings.TrimSpace(r.FormValue("custom"))
	req.Sprite = strings.TrimSpace(r.FormValue("sprite"))
	if f := strings.TrimSpace(r.FormValue("format")); f != "" {
		req.Format = raster.NormalizeFormat(f)
	}

	if mode == pipeline.ModeAI {
		if err := s.aiSlots.Acquire(r.Context(), 1); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, apiError{Error: "request cancelled"})
			return
		}
		defer s.aiSlots.Release(1)
	}

	s.render(w, r, req)
}

func (s *server) handleMask(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w, r)
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
		return
	}

	req, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	req.ID = reqID
	req.Mode = pipeline.ModeMask
	req.Sprite = strings.TrimSpace(r.FormValue("sprite"))

	if bad := floatFields(r, map[string]*float64{
		"dilation":     &req.Dilation,
		"sprite_scale": &req.SpriteScale,
	}); bad != "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "not a number", Field: bad})
		return
	}

	s.render(w, r, req)
}

// readUpload reads the multipart image and placements shared by both
// endpoints. It writes the error response itself.
func (s *server) readUpload(w http.ResponseWriter, r *http.Request) (pipeline.Request, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
		return pipeline.Request{}, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "missing image", Field: "image"})
		return pipeline.Request{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "failed to read image", Field: "image"})
		return pipeline.Request{}, false
	}

	var placements fixture.SpatialMap
	if raw := strings.TrimSpace(r.FormValue("placements")); raw != "" {
		placements, err = fixture.ParseJSON([]byte(raw))
		if err != nil {
			var pe *fixture.PlacementError
			if errors.As(err, &pe) {
				_, body := errorResponse(err)
				writeJSON(w, http.StatusBadRequest, body)
			} else {
				writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error(), Field: "placements"})
			}
			return pipeline.Request{}, false
		}
	}

	return pipeline.Request{
		Image:      data,
		MimeType:   declaredType(header.Header.Get("Content-Type")),
		Placements: placements,
	}, true
}

func (s *server) render(w http.ResponseWriter, r *http.Request, req pipeline.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	resp, err := s.renderer.Render(ctx, req)
	if err != nil {
		status, body := errorResponse(err)
		s.logger.Warn("render failed", "req_id", req.ID, "mode", string(req.Mode), "status", status, "err", err)
		writeJSON(w, status, body)
		return
	}

	h := w.Header()
	h.Set("content-type", string(resp.Format))
	h.Set("X-Aspect-Ratio", resp.AspectRatio)
	if req.Mode == pipeline.ModeAI {
		h.Set("X-Attempts", strconv.Itoa(resp.Calls))
		if resp.Verified {
			h.Set("X-Realism-Score", strconv.FormatFloat(resp.Score, 'f', -1, 64))
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Data)
}

// errorResponse maps a render error to an HTTP status and JSON body.
func errorResponse(err error) (int, apiError) {
	var pe *fixture.PlacementError
	if errors.As(err, &pe) {
		idx := pe.Index
		return http.StatusBadRequest, apiError{Error: pe.Error(), Placement: &idx, Field: pe.Field}
	}
	var de *raster.DecodeError
	if errors.As(err, &de) {
		return http.StatusBadRequest, apiError{Error: de.Error(), Field: "image"}
	}

	switch {
	case errors.Is(err, pipeline.ErrUnknownMode),
		errors.Is(err, pipeline.ErrNoPlacements),
		errors.Is(err, pipeline.ErrSpriteMissing),
		errors.Is(err, region.ErrInvalidPercent):
		return http.StatusBadRequest, apiError{Error: err.Error()}
	case errors.Is(err, generation.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, apiError{Error: err.Error()}
	case errors.Is(err, generation.ErrNoGenerator):
		return http.StatusServiceUnavailable, apiError{Error: "ai mode is not configured"}
	case errors.Is(err, generation.ErrRetryExhausted):
		return http.StatusBadGateway, apiError{Error: err.Error()}
	}

	var nr *generation.NonRetryableError
	var tr *generation.TransientError
	if errors.As(err, &nr) || errors.As(err, &tr) {
		return http.StatusBadGateway, apiError{Error: err.Error()}
	}
	return http.StatusInternalServerError, apiError{Error: err.Error()}
}

func requestID(w http.ResponseWriter, r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", id)
	return id
}

// optionalFloat returns nil for a missing field and ok=false for one that is
// not a number.
func optionalFloat(r *http.Request, key string) (*float64, bool) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, false
	}
	return &v, true
}

// floatFields fills the present fields and returns the name of the first one
// that is not a number.
func floatFields(r *http.Request, dst map[string]*float64) string {
	keys := make([]string, 0, len(dst))
	for k := range dst {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := strings.TrimSpace(r.FormValue(key))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
		if err != nil {
			return key
		}
		*dst[key] = v
	}
	return ""
}

func declaredType(value string) string {
	value = strings.TrimSpace(value)
	if i := strings.IndexByte(value, ';'); i >= 0 {
		value = strings.TrimSpace(value[:i])
	}
	if value == "application/octet-stream" {
		return ""
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseBool(value string) bool {
	value = strings.TrimSpace(strings.ToLower(value))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func withLogging(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"req_id", w.Header().Get("X-Request-ID"),
			"dur_ms", time.Since(start).Milliseconds(),
		)
	})
}
