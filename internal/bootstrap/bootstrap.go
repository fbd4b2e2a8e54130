// Package bootstrap builds the render stack shared by the web server, the bot
// and the CLI from one Config.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"nightscape-preview/internal/config"
	"nightscape-preview/internal/gemini"
	"nightscape-preview/internal/generation"
	"nightscape-preview/internal/httpclient"
	"nightscape-preview/internal/pipeline"
	"nightscape-preview/internal/refcache"
)

func NewLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	}))
}

type Stack struct {
	Service    *pipeline.Service
	Cache      refcache.Cache
	HTTPClient *http.Client
	// Gemini is nil when no API key is configured; ai mode then fails with
	// generation.ErrNoGenerator.
	Gemini *gemini.Client
}

func (s *Stack) Close() error {
	if s.Cache == nil {
		return nil
	}
	return s.Cache.Close()
}

// Build wires the cache, the outbound HTTP client, the Gemini adapters and
// the pipeline service.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Stack, error) {
	cache, err := refcache.New(cfg.Cache())
	if err != nil {
		return nil, fmt.Errorf("reference cache: %w", err)
	}

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	stack := &Stack{Cache: cache, HTTPClient: httpClient}

	var orchestrator *generation.Orchestrator
	if cfg.GeminiAPIKey != "" {
		gc, err := gemini.New(ctx, gemini.Options{
			APIKey:     cfg.GeminiAPIKey,
			BaseURL:    cfg.GeminiBaseURL,
			APIVersion: cfg.GeminiAPIVersion,
			ImageModel: cfg.GeminiImageModel,
			TextModel:  cfg.GeminiTextModel,
			HTTPClient: httpClient,
			Logger:     logger,
		})
		if err != nil {
			_ = cache.Close()
			return nil, err
		}
		stack.Gemini = gc

		refs, err := LoadReferences(ctx, cache, cfg.ReferencesDir)
		if err != nil {
			_ = cache.Close()
			return nil, err
		}
		if len(refs) > 0 {
			logger.Info("reference images loaded", "count", len(refs))
		}

		genOpts := cfg.Generation()
		genOpts.Generator = gemini.NewGenerator(stack.Gemini, refs...)
		genOpts.Verifier = gemini.NewVerifier(stack.Gemini)
		genOpts.Logger = logger
		orchestrator = generation.New(genOpts)
	}

	var sprites pipeline.SpriteLoader
	if cfg.SpritesDir != "" {
		sprites = pipeline.DirSprites(cfg.SpritesDir)
	}

	stack.Service = pipeline.New(pipeline.Options{
		Orchestrator: orchestrator,
		Sprites:      sprites,
		Cache:        cache,
		Quality:      cfg.OutputQuality,
		Logger:       logger,
	})
	return stack, nil
}

var referenceTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// LoadReferences reads every image in dir through the cache, keyed
// "ref:<file name>". An empty dir yields no references.
func LoadReferences(ctx context.Context, cache refcache.Cache, dir string) ([]gemini.ImageInput, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read references: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := referenceTypes[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	refs := make([]gemini.ImageInput, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := refcache.GetOrLoad(ctx, cache, "ref:"+name, func(context.Context) ([]byte, error) {
			return os.ReadFile(path)
		})
		if err != nil {
			return nil, fmt.Errorf("reference %s: %w", name, err)
		}
		refs = append(refs, gemini.ImageInput{
			Name:     strings.TrimSuffix(name, filepath.Ext(name)),
			Data:     data,
			MimeType: referenceTypes[strings.ToLower(filepath.Ext(name))],
		})
	}
	return refs, nil
}
