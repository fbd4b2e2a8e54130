// Package pipeline turns one uploaded photo and its fixture layout into a
// night preview. The web server, the bot and the CLI all go through Service.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nightscape-preview/internal/fixture"
	"nightscape-preview/internal/generation"
	"nightscape-preview/internal/glow"
	"nightscape-preview/internal/inpaint"
	"nightscape-preview/internal/markers"
	"nightscape-preview/internal/preview"
	"nightscape-preview/internal/raster"
	"nightscape-preview/internal/refcache"
	"nightscape-preview/internal/region"
)

type Mode string

const (
	ModeLocal   Mode = "local"
	ModeMarkers Mode = "markers"
	ModeAI      Mode = "ai"
	ModeMask    Mode = "mask"
)

const (
	NightFilterDefault = ""
	NightFilterTint    = "tint"
)

var (
	ErrUnknownMode   = errors.New("unknown render mode")
	ErrNoPlacements  = errors.New("no fixture placements")
	ErrSpriteMissing = errors.New("sprite not found")
)

func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModeLocal:
		return ModeLocal, nil
	case ModeMarkers:
		return ModeMarkers, nil
	case ModeAI:
		return ModeAI, nil
	case ModeMask:
		return ModeMask, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, value)
}

// PromptBuilder writes the model instructions for a request.
type PromptBuilder func(preview.Options) string

// SpriteLoader returns the encoded image of a named fixture sprite.
type SpriteLoader func(ctx context.Context, name string) ([]byte, error)

// DirSprites loads "<dir>/<name>.png".
func DirSprites(dir string) SpriteLoader {
	return func(_ context.Context, name string) ([]byte, error) {
		name = filepath.Base(strings.TrimSpace(name))
		if name == "" || name == "." || name == string(filepath.Separator) {
			return nil, ErrSpriteMissing
		}
		data, err := os.ReadFile(filepath.Join(dir, name+".png"))
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSpriteMissing, name)
		}
		return data, err
	}
}

type Options struct {
	// Orchestrator is required for ModeAI only.
	Orchestrator *generation.Orchestrator
	Prompt       PromptBuilder
	Sprites      SpriteLoader
	Cache        refcache.Cache
	// Quality is the lossy output quality when a request does not set one.
	Quality float64
	Logger  *slog.Logger
}

type Service struct {
	orchestrator *generation.Orchestrator
	prompt       PromptBuilder
	sprites      SpriteLoader
	cache        refcache.Cache
	quality      float64
	logger       *slog.Logger
}

func New(opts Options) *Service {
	prompt := opts.Prompt
	if prompt == nil {
		prompt = preview.BuildPrompt
	}
	quality := opts.Quality
	if quality <= 0 || quality > 1 {
		quality = raster.DefaultQuality
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cache := opts.Cache
	if cache == nil {
		cache = refcache.NewMemory(0)
	}

	return &Service{
		orchestrator: opts.Orchestrator,
		prompt:       prompt,
		sprites:      opts.Sprites,
		cache:        cache,
		quality:      quality,
		logger:       logger,
	}
}

type Request struct {
	ID       string
	Image    []byte
	MimeType string

	Placements fixture.SpatialMap
	Mode       Mode
	Glow       glow.Options
	// Markers overrides the marker look; nil picks DefaultOptions, or
	// CleanOptions when CleanMarkers is set.
	Markers      *markers.Options
	CleanMarkers bool
	NightFilter  string
	// CropTop hides the top percent of the photo from the model (ai only).
	CropTop float64

	// Sprite names a fixture sprite pasted at every placement in local mode
	// and used as the footprint size in mask mode.
	Sprite      string
	SpriteScale float64
	Dilation    float64

	Style  string
	Custom string

	Format  raster.Format
	Quality float64
}

type Response struct {
	Data        []byte
	Format      raster.Format
	Width       int
	Height      int
	AspectRatio string
	Prompt      string

	Score         float64
	Verified      bool
	Accepted      bool
	Issues        []string
	Calls         int
	Regenerations int
}

// Render runs req through the stages its mode needs and encodes the result.
func (s *Service) Render(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	logger := s.logger.With("req_id", req.ID, "mode", string(req.Mode))

	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return Response{}, err
	}
	if err := req.Placements.Validate(); err != nil {
		return Response{}, err
	}

	src, err := raster.Decode(req.Image, req.MimeType)
	if err != nil {
		return Response{}, err
	}
	if q := req.Quality; q > 0 && q <= 1 {
		src.Quality = q
	} else {
		src.Quality = s.quality
	}

	var (
		out  raster.Image
		resp Response
	)
	switch mode {
	case ModeLocal:
		out, err = s.renderLocal(ctx, src, req)
	case ModeMarkers:
		out = markers.Draw(src, req.Placements, markerOptions(req))
	case ModeMask:
		out, err = s.renderMask(ctx, src, req)
	case ModeAI:
		out, resp, err = s.renderAI(ctx, src, req, logger)
	}
	if err != nil {
		return Response{}, err
	}

	format := req.Format
	if format == "" {
		format = src.Format
	}
	if mode == ModeMask {
		format = raster.FormatPNG
	}
	data, used, err := raster.Encode(out, format)
	if err != nil {
		return Response{}, fmt.Errorf("encode result: %w", err)
	}

	resp.Data = data
	resp.Format = used
	resp.Width = out.Width()
	resp.Height = out.Height()
	if resp.AspectRatio == "" {
		resp.AspectRatio = region.ClosestAspectRatio(out.Width(), out.Height())
	}

	logger.Info("render done",
		"placements", len(req.Placements),
		"width", resp.Width,
		"height", resp.Height,
		"bytes", len(data),
		"dur_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

// Night darkens src and paints every placement's glow.
func Night(src raster.Image, m fixture.SpatialMap, opts glow.Options, filter string) raster.Image {
	var base raster.Image
	if filter == NightFilterTint {
		base = raster.DarkenTinted(src)
	} else {
		base = raster.Darken(src)
	}
	return glow.Render(base, m, opts)
}

func (s *Service) renderLocal(ctx context.Context, src raster.Image, req Request) (raster.Image, error) {
	lit := Night(src, req.Placements, req.Glow, req.NightFilter)
	if req.Sprite == "" {
		return lit, nil
	}

	sprite, err := s.sprite(ctx, req.Sprite)
	if err != nil {
		return raster.Image{}, err
	}
	centers := inpaint.Centers(lit.Width(), lit.Height(), req.Placements)
	return inpaint.PasteSprites(lit, sprite, centers, req.SpriteScale), nil
}

func (s *Service) renderMask(ctx context.Context, src raster.Image, req Request) (raster.Image, error) {
	if len(req.Placements) == 0 {
		return raster.Image{}, ErrNoPlacements
	}

	w, h := src.Width(), src.Height()
	size := defaultFootprint(w, h)
	if req.Sprite != "" {
		sprite, err := s.sprite(ctx, req.Sprite)
		if err != nil {
			return raster.Image{}, err
		}
		small := inpaint.ScaleSprite(sprite, req.SpriteScale)
		size = image.Pt(min(small.Width(), w), min(small.Height(), h))
	}

	dilation := req.Dilation
	if dilation <= 0 {
		dilation = inpaint.DefaultDilation
	}
	centers := inpaint.Centers(w, h, req.Placements)
	mask := inpaint.BuildMask(w, h, inpaint.Footprints(w, h, centers, size), dilation)
	return inpaint.MaskImage(mask), nil
}

// defaultFootprint is a marker-sized square, used when no sprite is given.
func defaultFootprint(w, h int) image.Point {
	d := int(2 * markers.Radius(w))
	return image.Pt(min(d, w), min(d, h))
}

func (s *Service) renderAI(ctx context.Context, src raster.Image, req Request, logger *slog.Logger) (raster.Image, Response, error) {
	if s.orchestrator == nil {
		return raster.Image{}, Response{}, generation.ErrNoGenerator
	}

	lit := Night(src, req.Placements, req.Glow, req.NightFilter)
	marked := markers.Draw(lit, req.Placements, markerOptions(req))

	cropped, err := region.CropTop(marked, req.CropTop)
	if err != nil {
		return raster.Image{}, Response{}, err
	}
	aspect := region.ClosestAspectRatio(cropped.Image.Width(), cropped.Image.Height())

	r := req.Glow.Resolve()
	opts := preview.Options{
		Markers:     true,
		AspectRatio: aspect,
		Placements:  req.Placements,
		Intensity:   r.Intensity,
		Style:       req.Style,
		CropTop:     req.CropTop,
		Custom:      req.Custom,
	}
	if req.Glow.BeamAngleDeg != nil {
		opts.BeamAngle = *req.Glow.BeamAngleDeg
	}
	prompt := s.prompt(opts)

	result, err := s.orchestrator.Generate(ctx, generation.Request{
		Image:       cropped.Image,
		Prompt:      prompt,
		AspectRatio: aspect,
	})
	if err != nil {
		logger.Warn("generation failed", "err", err)
		return raster.Image{}, Response{}, err
	}

	out, err := region.CompositeBack(lit, result.Image, req.CropTop)
	if err != nil {
		return raster.Image{}, Response{}, err
	}

	return out, Response{
		AspectRatio:   aspect,
		Prompt:        prompt,
		Score:         result.Score,
		Verified:      result.Verified,
		Accepted:      result.Accepted,
		Issues:        result.Issues,
		Calls:         result.Calls,
		Regenerations: result.Regenerations,
	}, nil
}

func (s *Service) sprite(ctx context.Context, name string) (raster.Image, error) {
	if s.sprites == nil {
		return raster.Image{}, fmt.Errorf("%w: %s (no sprite source)", ErrSpriteMissing, name)
	}
	data, err := refcache.GetOrLoad(ctx, s.cache, "sprite:"+name, func(ctx context.Context) ([]byte, error) {
		return s.sprites(ctx, name)
	})
	if err != nil {
		return raster.Image{}, err
	}
	return raster.Decode(data, string(raster.FormatPNG))
}

func markerOptions(req Request) markers.Options {
	if req.Markers != nil {
		return *req.Markers
	}
	if req.CleanMarkers {
		return markers.CleanOptions()
	}
	return markers.DefaultOptions()
}
