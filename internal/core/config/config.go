// Package config handles configuration loading and validation for vgloss.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/hay-kot/vgloss/internal/core/styles"
	"github.com/hay-kot/vgloss/internal/syncer"
	"github.com/hay-kot/vgloss/internal/transport"
)

// EnvPrefix is prepended to every environment override, e.g. VGLOSS_SERVER.
const EnvPrefix = "VGLOSS_"

// Config holds the application configuration.
type Config struct {
	Server  string      `yaml:"server" env:"SERVER"`
	Sync    SyncConfig  `yaml:"sync"   envPrefix:"SYNC_"`
	CSRF    CSRFConfig  `yaml:"csrf"   envPrefix:"CSRF_"`
	Serve   ServeConfig `yaml:"serve"  envPrefix:"SERVE_"`
	Theme   string      `yaml:"theme"  env:"THEME"`
	DataDir string      `yaml:"-"` // set by caller, not from config file
}

// SyncConfig tunes the commit loop of the sync engine.
type SyncConfig struct {
	Debounce      time.Duration `yaml:"debounce"       env:"DEBOUNCE"`
	CommitTimeout time.Duration `yaml:"commit_timeout" env:"COMMIT_TIMEOUT"`
	RetryInitial  time.Duration `yaml:"retry_initial"  env:"RETRY_INITIAL"`
	RetryMax      time.Duration `yaml:"retry_max"      env:"RETRY_MAX"`
	// Journal persists queued actions so they survive a restart.
	Journal bool `yaml:"journal" env:"JOURNAL"`
}

// CSRFConfig names the cookie the backend issues and the header the client
// echoes it in.
type CSRFConfig struct {
	Cookie string `yaml:"cookie" env:"COOKIE"`
	Header string `yaml:"header" env:"HEADER"`
}

// ServeConfig configures the reference backend started by `vgloss serve`.
type ServeConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
	// Seed is an optional JSON file with the initial tags, folders and files.
	Seed string `yaml:"seed" env:"SEED"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	sc := syncer.DefaultConfig("http://localhost:8000")
	return Config{
		Server: sc.Server,
		Sync: SyncConfig{
			Debounce:      sc.Debounce,
			CommitTimeout: sc.CommitTimeout,
			RetryInitial:  sc.RetryInitial,
			RetryMax:      sc.RetryMax,
			Journal:       true,
		},
		CSRF: CSRFConfig{
			Cookie: transport.DefaultCSRFCookie,
			Header: transport.DefaultCSRFHeader,
		},
		Serve: ServeConfig{
			Addr: ":8000",
		},
		Theme: styles.DefaultTheme,
	}
}

// Load reads configuration from the given path, applies VGLOSS_* environment
// overrides and sets the data directory. A missing or empty configPath
// yields the defaults.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.DataDir = dataDir
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Sync.Debounce == 0 {
		c.Sync.Debounce = defaults.Sync.Debounce
	}
	if c.Sync.CommitTimeout == 0 {
		c.Sync.CommitTimeout = defaults.Sync.CommitTimeout
	}
	if c.Sync.RetryInitial == 0 {
		c.Sync.RetryInitial = defaults.Sync.RetryInitial
	}
	if c.Sync.RetryMax == 0 {
		c.Sync.RetryMax = defaults.Sync.RetryMax
	}
	if c.CSRF.Cookie == "" {
		c.CSRF.Cookie = defaults.CSRF.Cookie
	}
	if c.CSRF.Header == "" {
		c.CSRF.Header = defaults.CSRF.Header
	}
	if c.Serve.Addr == "" {
		c.Serve.Addr = defaults.Serve.Addr
	}
	if c.Theme == "" {
		c.Theme = defaults.Theme
	}
}

// SyncerConfig returns the engine configuration for the configured server.
func (c *Config) SyncerConfig() syncer.Config {
	return syncer.Config{
		Server:        c.Server,
		Debounce:      c.Sync.Debounce,
		CommitTimeout: c.Sync.CommitTimeout,
		RetryInitial:  c.Sync.RetryInitial,
		RetryMax:      c.Sync.RetryMax,
	}
}
