package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"nightscape-preview/internal/generation"
	"nightscape-preview/internal/refcache"
)

type Config struct {
	TelegramToken string
	GeminiAPIKey  string

	LogLevel string
	Debug    bool

	WebAddr    string
	PreferIPv4 bool

	MediaGroupDebounce time.Duration
	MaxConcurrent      int
	MaxHistoryRenders  int
	RequestTimeout     time.Duration
	HTTPTimeout        time.Duration

	GeminiBaseURL    string
	GeminiAPIVersion string
	GeminiImageModel string
	GeminiTextModel  string

	GenerationTimeout     time.Duration
	GenerationMaxAttempts int
	GenerationBaseDelay   time.Duration
	GenerationMaxDelay    time.Duration
	RealismThreshold      float64
	MaxRegenerations      int

	CacheMaxEntries int
	CacheTTL        time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisPrefix     string

	OutputQuality float64
	SpritesDir    string
	ReferencesDir string
}

// Load reads the environment. Out-of-range numbers fall back to their
// defaults; required keys are checked by the Require* methods because each
// binary needs a different set.
func Load() Config {
	cfg := Config{
		TelegramToken:         strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		GeminiAPIKey:          strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		LogLevel:              strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		Debug:                 getEnvBool("DEBUG", false),
		WebAddr:               getEnv("WEB_ADDR", ":8080"),
		PreferIPv4:            getEnvBool("PREFER_IPV4", true),
		MediaGroupDebounce:    time.Duration(getEnvInt("MEDIA_GROUP_DEBOUNCE_MS", 1200)) * time.Millisecond,
		MaxConcurrent:         getEnvInt("MAX_CONCURRENT", 4),
		MaxHistoryRenders:     getEnvInt("MAX_HISTORY_RENDERS", 20),
		RequestTimeout:        time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 600)) * time.Second,
		HTTPTimeout:           time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 180)) * time.Second,
		GeminiBaseURL:         getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GeminiAPIVersion:      getEnv("GEMINI_API_VERSION", "v1beta"),
		GeminiImageModel:      getEnv("GEMINI_IMAGE_MODEL", ""),
		GeminiTextModel:       getEnv("GEMINI_TEXT_MODEL", ""),
		GenerationTimeout:     time.Duration(getEnvInt("GENERATION_TIMEOUT_SECONDS", 120)) * time.Second,
		GenerationMaxAttempts: getEnvInt("GENERATION_MAX_ATTEMPTS", generation.DefaultMaxAttempts),
		GenerationBaseDelay:   time.Duration(getEnvInt("GENERATION_BASE_DELAY_MS", 2000)) * time.Millisecond,
		GenerationMaxDelay:    time.Duration(getEnvInt("GENERATION_MAX_DELAY_MS", 60000)) * time.Millisecond,
		RealismThreshold:      getEnvFloat("REALISM_THRESHOLD", generation.DefaultThreshold),
		MaxRegenerations:      getEnvInt("MAX_REGENERATIONS", generation.DefaultRegenerations),
		CacheMaxEntries:       getEnvInt("CACHE_MAX_ENTRIES", 64),
		CacheTTL:              time.Duration(getEnvInt("CACHE_TTL_SECONDS", 0)) * time.Second,
		RedisAddr:             getEnv("REDIS_ADDR", ""),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getEnvInt("REDIS_DB", 0),
		RedisPrefix:           getEnv("REDIS_PREFIX", ""),
		OutputQuality:         getEnvFloat("OUTPUT_QUALITY", 0.92),
		SpritesDir:            getEnv("SPRITES_DIR", ""),
		ReferencesDir:         getEnv("REFERENCES_DIR", ""),
	}

	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxHistoryRenders < 1 {
		cfg.MaxHistoryRenders = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 600 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 180 * time.Second
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = generation.DefaultCallTimeout
	}
	if cfg.GenerationMaxAttempts < 1 {
		cfg.GenerationMaxAttempts = generation.DefaultMaxAttempts
	}
	if cfg.GenerationMaxAttempts > generation.MaxAttemptsLimit {
		cfg.GenerationMaxAttempts = generation.MaxAttemptsLimit
	}
	if cfg.GenerationMaxDelay <= 0 {
		cfg.GenerationMaxDelay = generation.DefaultMaxDelay
	}
	if cfg.GenerationBaseDelay < 0 {
		cfg.GenerationBaseDelay = generation.DefaultBaseDelay
	}
	if cfg.RealismThreshold <= 0 || cfg.RealismThreshold > 100 {
		cfg.RealismThreshold = generation.DefaultThreshold
	}
	if cfg.MaxRegenerations < 0 {
		cfg.MaxRegenerations = 0
	}
	if cfg.CacheTTL < 0 {
		cfg.CacheTTL = 0
	}
	if cfg.OutputQuality <= 0 || cfg.OutputQuality > 1 {
		cfg.OutputQuality = 0.92
	}

	return cfg
}

func (c Config) RequireGemini() error {
	if c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY is required")
	}
	return nil
}

func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return c.RequireGemini()
}

// Cache selects redis when REDIS_ADDR is set.
func (c Config) Cache() refcache.Config {
	if c.RedisAddr == "" {
		return refcache.Config{Driver: refcache.DriverMemory, MaxEntries: c.CacheMaxEntries, TTL: c.CacheTTL}
	}
	return refcache.Config{
		Driver: refcache.DriverRedis,
		TTL:    c.CacheTTL,
		Redis: &refcache.RedisConfig{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
			Prefix:   c.RedisPrefix,
		},
	}
}

// Generation fills the retry and verification knobs; the caller adds the
// generator, verifier and logger.
func (c Config) Generation() generation.Options {
	return generation.Options{
		CallTimeout:   c.GenerationTimeout,
		MaxAttempts:   c.GenerationMaxAttempts,
		BaseDelay:     c.GenerationBaseDelay,
		MaxDelay:      c.GenerationMaxDelay,
		Threshold:     c.RealismThreshold,
		Regenerations: c.MaxRegenerations,
	}
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
