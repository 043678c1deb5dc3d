package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

const defaultConfigPath = "conf/config.json"

// Config mirrors conf/config.json. Every field can be overridden from the
// environment; secrets are expected to come from there (or a .env file).
type Config struct {
	Listen   string `json:"listen" env:"WALLPAPER_LISTEN" env-default:":8081"`
	Database string `json:"database" env:"WALLPAPER_DB" env-default:"data/cache.db"`

	Pexels struct {
		Key string `json:"key" env:"PEXELS_KEY"`
	} `json:"pexels.com"`
	Unsplash struct {
		AccessKey string `json:"access" env:"UNSPLASH_ACCESS_KEY"`
		SecretKey string `json:"secret" env:"UNSPLASH_SECRET_KEY"`
	} `json:"unsplash.com"`
	Pixabay struct {
		Key string `json:"key" env:"PIXABAY_KEY"`
	} `json:"pixabay.com"`

	Search   SearchConfig   `json:"search"`
	Retry    RetryConfig    `json:"retry"`
	Storage  StorageConfig  `json:"storage"`
	Sessions SessionConfig  `json:"sessions"`
	Auth     AuthConfig     `json:"auth"`
	Features FeatureConfig  `json:"features"`
	Log      LogConfig      `json:"log"`
	Debug    struct {
		PrettyJson bool `json:"prettyJson" env:"WALLPAPER_PRETTY_JSON"`
	} `json:"debug"`
}

// SearchConfig drives the aggregator. ForceSafeSearch turns safe search on
// for every query, whatever the caller's settings say.
type SearchConfig struct {
	// Providers is the fixed fallback order; the first entry is the primary.
	Providers       []string `json:"providers" env:"WALLPAPER_PROVIDERS" env-separator:"," env-default:"pixabay,pexels,unsplash"`
	MultiSource     bool     `json:"multiSource" env:"WALLPAPER_MULTI_SOURCE"`
	ForceSafeSearch bool     `json:"forceSafeSearch" env:"WALLPAPER_FORCE_SAFE_SEARCH"`
	TimeoutSec      int      `json:"timeoutSec" env:"WALLPAPER_PROVIDER_TIMEOUT" env-default:"30"`
	CacheTTLSec     int      `json:"cacheTtlSec" env:"WALLPAPER_CACHE_TTL" env-default:"86400"`
}

type RetryConfig struct {
	MaxAttempts   int `json:"maxAttempts" env:"WALLPAPER_RETRY_ATTEMPTS" env-default:"3"`
	InitialMillis int `json:"initialMillis" env:"WALLPAPER_RETRY_INITIAL_MS" env-default:"250"`
	MaxMillis     int `json:"maxMillis" env:"WALLPAPER_RETRY_MAX_MS" env-default:"4000"`
}

type StorageConfig struct {
	// Backend is "sqlite" (kv table next to the request cache) or "file"
	// (one JSON document per key under Dir).
	Backend string `json:"backend" env:"WALLPAPER_STORAGE" env-default:"sqlite"`
	Dir     string `json:"dir" env:"WALLPAPER_STORAGE_DIR" env-default:"data/kv"`
}

type SessionConfig struct {
	TTLSec int `json:"ttlSec" env:"WALLPAPER_SESSION_TTL" env-default:"1800"`
}

type AuthConfig struct {
	Required bool `json:"required" env:"WALLPAPER_AUTH_REQUIRED"`
}

// FeatureConfig replaces the per-screen variants of the mobile app.
type FeatureConfig struct {
	Filters    bool `json:"filters" env:"WALLPAPER_FEATURE_FILTERS"`
	Favorites  bool `json:"favorites" env:"WALLPAPER_FEATURE_FAVORITES"`
	Pagination bool `json:"pagination" env:"WALLPAPER_FEATURE_PAGINATION"`
}

type LogConfig struct {
	Level string `json:"level" env:"WALLPAPER_LOG_LEVEL" env-default:"info"`
	JSON  bool   `json:"json" env:"WALLPAPER_LOG_JSON"`
}

// newConfig holds the defaults cleanenv cannot express: booleans that are on
// unless the file or environment says otherwise.
func newConfig() *Config {
	cfg := &Config{}
	cfg.Search.MultiSource = true
	cfg.Features = FeatureConfig{Filters: true, Favorites: true, Pagination: true}
	return cfg
}

// LoadConfig reads path (when it exists) and overlays the environment. A
// missing file is not an error: the proxy can run from env vars alone.
func LoadConfig(path string) (*Config, error) {
	cfg := newConfig()
	if path == "" {
		path = defaultConfigPath
	}

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := decodeConfig(f, cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to open config: %w", err)
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to overlay env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeConfig(f io.ReadSeeker, cfg *Config) error {
	decoder := json.NewDecoder(f)
	err := decoder.Decode(cfg)
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		if _, serr := f.Seek(0, io.SeekStart); serr == nil {
			pos := findPos(bufio.NewReader(f), int(syntaxErr.Offset))
			return fmt.Errorf("unable to decode configuration file (Line: %d, Pos: %d): %w", pos.line, pos.pos, err)
		}
	}
	if err != nil {
		return fmt.Errorf("unable to decode configuration file: %w", err)
	}
	return nil
}

func (cfg *Config) Validate() error {
	for _, p := range cfg.Search.Providers {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "pixabay", "pexels", "unsplash":
		default:
			return fmt.Errorf("unknown provider %q", p)
		}
	}
	switch cfg.Storage.Backend {
	case "sqlite", "file":
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if cfg.Search.TimeoutSec <= 0 {
		return errors.New("search.timeoutSec must be positive")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return errors.New("retry.maxAttempts must be at least 1")
	}
	return nil
}

type FilePos struct {
	line int
	pos  int
}

func findPos(file *bufio.Reader, offset int) FilePos {
	p := FilePos{line: 1, pos: offset}
	var lineLen int
	for line, err := file.ReadBytes('\n'); len(line) > 0 && err == nil; line, err = file.ReadBytes('\n') {
		if p.pos < len(line) {
			return p
		}
		lineLen += len(line)
		if line[len(line)-1] == '\n' {
			p.line += 1
			p.pos -= lineLen
			lineLen = 0
		}
	}
	return p
}
