// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config is the complete runtime configuration. Every field has a default
// that works for local development; production deploys override through the
// environment.
type Config struct {
	Port    int    `env:"PORT" envDefault:"8080"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	CacheDir string `env:"CACHE_DIR" envDefault:"cache"`
	LinksDir string `env:"LINKS_DIR" envDefault:"links"`
	DataDir  string `env:"DATA_DIR" envDefault:"data"`

	MaxWidth      int `env:"MAX_WIDTH" envDefault:"1920"`
	MaxHeight     int `env:"MAX_HEIGHT" envDefault:"1080"`
	DefaultWidth  int `env:"DEFAULT_WIDTH" envDefault:"1280"`
	DefaultHeight int `env:"DEFAULT_HEIGHT" envDefault:"720"`

	// CacheExpiry is advisory: it drives the Cache-Control header on served
	// artifacts, not on-disk eviction.
	CacheExpiry    time.Duration `env:"CACHE_EXPIRY" envDefault:"24h"`
	LinkTTL        time.Duration `env:"LINK_TTL" envDefault:"24h"`
	BrowserTimeout time.Duration `env:"BROWSER_TIMEOUT" envDefault:"30s"`

	UserAgent string `env:"USER_AGENT" envDefault:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment and prepares the data directories.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if cfg.DefaultWidth > cfg.MaxWidth || cfg.DefaultHeight > cfg.MaxHeight {
		return nil, fmt.Errorf("config: defaults %dx%d exceed maximums %dx%d",
			cfg.DefaultWidth, cfg.DefaultHeight, cfg.MaxWidth, cfg.MaxHeight)
	}
	for _, dir := range []string{cfg.CacheDir, cfg.LinksDir, cfg.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("config: mkdir %s: %w", dir, err)
		}
	}
	return cfg, nil
}
