package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.Listen)
	assert.Equal(t, "data/cache.db", cfg.Database)
	assert.Equal(t, []string{"pixabay", "pexels", "unsplash"}, cfg.Search.Providers)
	assert.True(t, cfg.Search.MultiSource)
	assert.False(t, cfg.Search.ForceSafeSearch)
	assert.Equal(t, 30, cfg.Search.TimeoutSec)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, 1800, cfg.Sessions.TTLSec)
	assert.Equal(t, FeatureConfig{Filters: true, Favorites: true, Pagination: true}, cfg.Features)
	assert.False(t, cfg.Auth.Required)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := writeConfig(t, `{
  "listen": ":9000",
  "pexels.com": {"key": "file-key"},
  "pixabay.com": {"key": "pixabay-key"},
  "search": {"providers": ["pexels", "pixabay"], "multiSource": false},
  "features": {"filters": true, "favorites": false, "pagination": true},
  "debug": {"prettyJson": true}
}`)
	t.Setenv("PEXELS_KEY", "env-key")
	t.Setenv("WALLPAPER_STORAGE", "file")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "env-key", cfg.Pexels.Key)
	assert.Equal(t, "pixabay-key", cfg.Pixabay.Key)
	assert.Equal(t, []string{"pexels", "pixabay"}, cfg.Search.Providers)
	assert.False(t, cfg.Search.MultiSource)
	assert.False(t, cfg.Features.Favorites)
	assert.True(t, cfg.Debug.PrettyJson)
	assert.Equal(t, "file", cfg.Storage.Backend)
}

func TestLoadConfigSyntaxErrorPosition(t *testing.T) {
	path := writeConfig(t, "{\n  \"listen\": ,\n}\n")

	_, err := LoadConfig(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Line: 2")
}

func TestLoadConfigValidation(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{"search": {"providers": ["flickr"]}}`))
	assert.ErrorContains(t, err, "flickr")

	_, err = LoadConfig(writeConfig(t, `{"storage": {"backend": "redis"}}`))
	assert.ErrorContains(t, err, "redis")

	_, err = LoadConfig(writeConfig(t, `{"retry": {"maxAttempts": -1}}`))
	assert.ErrorContains(t, err, "maxAttempts")
}
