package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krisalay/menu-cache/config"
	"github.com/krisalay/menu-cache/edge"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Minute, cfg.Cache.API.TTL)
	assert.Equal(t, 100, cfg.Cache.API.MaxEntries)
	assert.Equal(t, int64(10<<20), cfg.Cache.API.MaxBytes)
	assert.Equal(t, 5*time.Second, cfg.Coordinator.PreloadTimeout)
	assert.Equal(t, edge.DefaultRules().StaticManifest, cfg.Edge.StaticManifest)
	assert.Equal(t, slog.LevelInfo, cfg.Log.SlogLevel())
}

func TestLoadOverridesDefaults(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/etc/menuedge.yaml", []byte(`
cache:
  images:
    ttl: 1h
    max_entries: 500
edge:
  upstream: https://menu.example.com
  version: v7
  page_paths: ["/", "/specials"]
log:
  level: debug
`), 0o644))

	cfg, err := config.Load(fs, "/etc/menuedge.yaml")
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.Cache.Images.TTL)
	assert.Equal(t, 500, cfg.Cache.Images.MaxEntries)
	assert.Equal(t, int64(50<<20), cfg.Cache.Images.MaxBytes)
	assert.Equal(t, 5*time.Minute, cfg.Cache.API.TTL)

	assert.Equal(t, "menu.example.com", cfg.Edge.UpstreamURL().Host)
	assert.Equal(t, edge.Generation{Prefix: "menu", Version: "v7"}, cfg.Edge.Generation())
	assert.Equal(t, []string{"/", "/specials"}, cfg.Edge.PagePaths)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())

	domains := cfg.Cache.Domains()
	assert.Equal(t, "images", domains.Images.Name)
	assert.Equal(t, time.Hour, domains.Images.TTL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(memfs.New(), "/nope.yaml")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "cache: [1, 2"},
		{"zero budget", "cache:\n  menu:\n    max_entries: 0"},
		{"relative upstream", "edge:\n  upstream: localhost:5000"},
		{"empty version", "edge:\n  version: \"\""},
		{"bad image pattern", "edge:\n  image_pattern: \"([\""},
		{"relative manifest path", "edge:\n  static_manifest: [\"static/app.js\"]"},
		{"bad log level", "log:\n  level: loud"},
		{"zero preload timeout", "coordinator:\n  preload_timeout: 0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
		})
	}
}
