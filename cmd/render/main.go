// Command render lights a daytime photo from files on disk:
//
//	render -in house.jpg -placements fixtures.yaml -out night.png [-mode local|markers|ai|mask]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"nightscape-preview/internal/bootstrap"
	"nightscape-preview/internal/config"
	"nightscape-preview/internal/fixture"
	"nightscape-preview/internal/glow"
	"nightscape-preview/internal/pipeline"
	"nightscape-preview/internal/raster"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := bootstrap.NewLogger(cfg.LogLevel)

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, func(ctx context.Context) (renderer, func(), error) {
		stack, err := bootstrap.Build(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return stack.Service, func() { _ = stack.Close() }, nil
	})
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "render:", err)
		os.Exit(1)
	}
}

type renderer interface {
	Render(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
}

type builder func(ctx context.Context) (renderer, func(), error)

type flags struct {
	in          string
	out         string
	placements  string
	fixtures    string
	mode        string
	beam        float64
	intensity   float64
	clean       bool
	crop        float64
	style       string
	note        string
	filter      string
	format      string
	quality     float64
	sprite      string
	spriteScale float64
	dilation    float64
}

func parseFlags(args []string, stderr io.Writer) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.in, "in", "", "daytime photo")
	fs.StringVar(&f.out, "out", "", "output file (format from the extension unless -format is set)")
	fs.StringVar(&f.placements, "placements", "", "fixture placements file, JSON or YAML")
	fs.StringVar(&f.fixtures, "fixtures", "", `inline placements, e.g. "up 50 70; path 20 85 rot=180"`)
	fs.StringVar(&f.mode, "mode", "local", "local | markers | ai | mask")
	fs.Float64Var(&f.beam, "beam", 0, "beam angle in degrees (default per fixture type)")
	fs.Float64Var(&f.intensity, "intensity", 0, "glow intensity multiplier (default 1)")
	fs.BoolVar(&f.clean, "clean", false, "markers without number labels")
	fs.Float64Var(&f.crop, "crop", 0, "percent of the top hidden from the model (ai only)")
	fs.StringVar(&f.style, "style", "", "light colour for ai mode: warm | amber | neutral | moonlight | dusk")
	fs.StringVar(&f.note, "note", "", "extra instruction for ai mode")
	fs.StringVar(&f.filter, "filter", "", `night filter: "" or "tint"`)
	fs.StringVar(&f.format, "format", "", "output format: png | jpeg | webp")
	fs.Float64Var(&f.quality, "quality", 0, "lossy quality in (0,1]")
	fs.StringVar(&f.sprite, "sprite", "", "fixture sprite name (SPRITES_DIR)")
	fs.Float64Var(&f.spriteScale, "sprite-scale", 0, "sprite scale relative to its size")
	fs.Float64Var(&f.dilation, "dilation", 0, "mask padding as a fraction of the footprint")

	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	if f.in == "" || f.out == "" {
		fs.Usage()
		return flags{}, errors.New("-in and -out are required")
	}
	if f.placements != "" && f.fixtures != "" {
		return flags{}, errors.New("use either -placements or -fixtures")
	}
	return f, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, build builder) error {
	f, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	mode, err := pipeline.ParseMode(f.mode)
	if err != nil {
		return err
	}

	placements, err := loadPlacements(f)
	if err != nil {
		return err
	}

	img, err := os.ReadFile(f.in)
	if err != nil {
		return err
	}

	req := pipeline.Request{
		ID:           uuid.NewString(),
		Image:        img,
		Placements:   placements,
		Mode:         mode,
		Glow:         glowOptions(f),
		CleanMarkers: f.clean,
		NightFilter:  f.filter,
		CropTop:      f.crop,
		Sprite:       f.sprite,
		SpriteScale:  f.spriteScale,
		Dilation:     f.dilation,
		Style:        f.style,
		Custom:       f.note,
		Quality:      f.quality,
		Format:       outputFormat(f),
	}

	r, closeFn, err := build(ctx)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	resp, err := r.Render(ctx, req)
	if err != nil {
		return err
	}
	if err := os.WriteFile(f.out, resp.Data, 0o644); err != nil {
		return err
	}

	line := fmt.Sprintf("%s: %dx%d %s, %d fixture(s)", f.out, resp.Width, resp.Height, resp.Format, len(placements))
	if mode == pipeline.ModeAI {
		line += fmt.Sprintf(", %d model call(s)", resp.Calls)
		if resp.Verified {
			line += fmt.Sprintf(", realism %.0f", resp.Score)
		}
	}
	_, err = fmt.Fprintln(stdout, line)
	return err
}

func loadPlacements(f flags) (fixture.SpatialMap, error) {
	if f.fixtures != "" {
		return fixture.ParseCaption(f.fixtures)
	}
	if f.placements == "" {
		return nil, nil
	}
	data, err := os.ReadFile(f.placements)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(f.placements)) {
	case ".yaml", ".yml":
		return fixture.ParseYAML(data)
	default:
		return fixture.ParseJSON(data)
	}
}

func glowOptions(f flags) glow.Options {
	var opts glow.Options
	if f.beam > 0 {
		v := f.beam
		opts.BeamAngleDeg = &v
	}
	if f.intensity > 0 {
		v := f.intensity
		opts.Intensity = &v
	}
	return opts
}

// outputFormat prefers -format, then the output extension. Empty keeps the
// input format.
func outputFormat(f flags) raster.Format {
	if f.format != "" {
		return raster.NormalizeFormat(f.format)
	}
	if ext := filepath.Ext(f.out); ext != "" {
		return raster.NormalizeFormat(ext)
	}
	return ""
}
