// Package config loads the YAML configuration of the menu edge binary.
//
// Library packages never read configuration themselves; they take
// constructor arguments. This package turns a file into those arguments.
package config

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/go/errors"
	"gopkg.in/yaml.v3"

	cache "github.com/krisalay/menu-cache"
	"github.com/krisalay/menu-cache/edge"
)

// Budget is the size and TTL budget of one in-process cache.
type Budget struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	MaxBytes   int64         `yaml:"max_bytes"`
}

type CacheConfig struct {
	API    Budget `yaml:"api"`
	Images Budget `yaml:"images"`
	Menu   Budget `yaml:"menu"`

	// SweepInterval is how often expired entries are dropped in the
	// background. Zero disables the sweeper.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type CoordinatorConfig struct {
	PreloadTimeout     time.Duration `yaml:"preload_timeout"`
	PreloadConcurrency int           `yaml:"preload_concurrency"`

	// Preload maps a resource key to the upstream path it is fetched from
	// at startup.
	Preload map[string]string `yaml:"preload"`
}

type EdgeConfig struct {
	Listen     string `yaml:"listen"`
	Upstream   string `yaml:"upstream"`
	StorageDir string `yaml:"storage_dir"`
	QueueFile  string `yaml:"queue_file"`

	Prefix  string `yaml:"prefix"`
	Version string `yaml:"version"`

	ImagePattern   string   `yaml:"image_pattern"`
	APIPrefixes    []string `yaml:"api_prefixes"`
	PagePaths      []string `yaml:"page_paths"`
	StaticManifest []string `yaml:"static_manifest"`

	SyncInterval      time.Duration `yaml:"sync_interval"`
	SyncBuffer        int           `yaml:"sync_buffer"`
	NotificationIcon  string        `yaml:"notification_icon"`
	NotificationBadge string        `yaml:"notification_badge"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	Cache       CacheConfig       `yaml:"cache"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Edge        EdgeConfig        `yaml:"edge"`
	Log         LogConfig         `yaml:"log"`
}

// Default returns a configuration that works without a file.
func Default() Config {
	d := cache.DefaultDomainConfig()
	rules := edge.DefaultRules()

	return Config{
		Cache: CacheConfig{
			API:           budget(d.API),
			Images:        budget(d.Images),
			Menu:          budget(d.Menu),
			SweepInterval: time.Minute,
		},
		Coordinator: CoordinatorConfig{
			PreloadTimeout:     5 * time.Second,
			PreloadConcurrency: 4,
			Preload: map[string]string{
				"menu-items": "/api/menu-items",
				"categories": "/api/categories",
			},
		},
		Edge: EdgeConfig{
			Listen:            ":8080",
			Upstream:          "http://localhost:5000",
			StorageDir:        "data/edge-cache",
			QueueFile:         "data/sync-queue.json",
			Prefix:            "menu",
			Version:           "v1",
			ImagePattern:      edge.DefaultImagePattern,
			APIPrefixes:       rules.APIPrefixes,
			PagePaths:         rules.PagePaths,
			StaticManifest:    rules.StaticManifest,
			SyncInterval:      30 * time.Second,
			SyncBuffer:        64,
			NotificationIcon:  "/static/images/icon-192.png",
			NotificationBadge: "/static/images/badge-72.png",
		},
		Log: LogConfig{Level: "info"},
	}
}

func budget(c cache.Config) Budget {
	return Budget{TTL: c.TTL, MaxEntries: c.MaxEntries, MaxBytes: c.MaxBytes}
}

// Load reads and validates the file at path. Fields missing from the file
// keep their defaults.
func Load(fs billy.Filesystem, path string) (Config, error) {
	data, err := util.ReadFile(fs, path)
	if err != nil {
		return Config{}, errors.WithContext(
			errors.Wrap(err, errors.CodeInvalidConfig, "failed to read config file"),
			"path", path,
		)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, errors.CodeInvalidConfig, "failed to parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	for name, b := range map[string]Budget{"api": c.Cache.API, "images": c.Cache.Images, "menu": c.Cache.Menu} {
		if b.TTL <= 0 || b.MaxEntries <= 0 || b.MaxBytes <= 0 {
			return errors.WithContext(
				errors.New(errors.CodeInvalidConfig, "cache budget must be positive"),
				"cache", name,
			)
		}
	}
	if c.Cache.SweepInterval < 0 {
		return errors.New(errors.CodeInvalidConfig, "cache.sweep_interval cannot be negative")
	}

	if c.Coordinator.PreloadTimeout <= 0 {
		return errors.New(errors.CodeInvalidConfig, "coordinator.preload_timeout must be positive")
	}
	if c.Coordinator.PreloadConcurrency <= 0 {
		return errors.New(errors.CodeInvalidConfig, "coordinator.preload_concurrency must be positive")
	}

	u, err := url.Parse(c.Edge.Upstream)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.WithContext(
			errors.New(errors.CodeInvalidConfig, "edge.upstream must be an absolute URL"),
			"upstream", c.Edge.Upstream,
		)
	}
	if c.Edge.Version == "" {
		return errors.New(errors.CodeInvalidConfig, "edge.version is required")
	}
	if c.Edge.StorageDir == "" {
		return errors.New(errors.CodeInvalidConfig, "edge.storage_dir is required")
	}
	if c.Edge.SyncInterval <= 0 {
		return errors.New(errors.CodeInvalidConfig, "edge.sync_interval must be positive")
	}
	if c.Edge.SyncBuffer <= 0 {
		return errors.New(errors.CodeInvalidConfig, "edge.sync_buffer must be positive")
	}
	for _, p := range c.Edge.StaticManifest {
		if !strings.HasPrefix(p, "/") {
			return errors.WithContext(
				errors.New(errors.CodeInvalidConfig, "static manifest entries must be absolute paths"),
				"path", p,
			)
		}
	}
	if _, err := c.Edge.Rules(); err != nil {
		return err
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Domains converts the cache section.
func (c CacheConfig) Domains() cache.DomainConfig {
	return cache.DomainConfig{
		API:    cache.Config{Name: "api", TTL: c.API.TTL, MaxEntries: c.API.MaxEntries, MaxBytes: c.API.MaxBytes},
		Images: cache.Config{Name: "images", TTL: c.Images.TTL, MaxEntries: c.Images.MaxEntries, MaxBytes: c.Images.MaxBytes},
		Menu:   cache.Config{Name: "menu", TTL: c.Menu.TTL, MaxEntries: c.Menu.MaxEntries, MaxBytes: c.Menu.MaxBytes},
	}
}

// Rules compiles the classification rules.
func (e EdgeConfig) Rules() (edge.Rules, error) {
	return edge.NewRules(e.ImagePattern, e.APIPrefixes, e.PagePaths, e.StaticManifest)
}

func (e EdgeConfig) Generation() edge.Generation {
	return edge.Generation{Prefix: e.Prefix, Version: e.Version}
}

// UpstreamURL returns the parsed upstream. Call Validate first.
func (e EdgeConfig) UpstreamURL() *url.URL {
	u, _ := url.Parse(e.Upstream)
	return u
}

// SlogLevel returns the configured log level.
func (l LogConfig) SlogLevel() slog.Level {
	lvl, _ := parseLevel(l.Level)
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, errors.WithContext(
			errors.Wrap(err, errors.CodeInvalidConfig, "invalid log level"),
			"level", s,
		)
	}
	return lvl, nil
}
