// Package config loads the kango YAML configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level kango configuration.
type Config struct {
	DBPath        string        `yaml:"db_path"`
	LogLevel      string        `yaml:"log_level"` // debug | info | warn | error
	Debounce      time.Duration `yaml:"debounce"`
	WatchInterval time.Duration `yaml:"watch_interval"`
	ExportDir     string        `yaml:"export_dir"`
	HTTP          HTTPConfig    `yaml:"http"`
	Browser       BrowserConfig `yaml:"browser"`
}

// HTTPConfig controls the panel API listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// BrowserConfig controls live tabs.
type BrowserConfig struct {
	Remote   string `yaml:"remote"`
	Headless *bool  `yaml:"headless"`
	// AllowPrivate lets `kango open` reach loopback and private networks.
	AllowPrivate bool `yaml:"allow_private"`
	// Resync is the periodic marker re-sync of live tabs. 0 disables it.
	Resync time.Duration `yaml:"resync"`
}

// IsHeadless reports the effective headless setting (default true).
func (b BrowserConfig) IsHeadless() bool {
	return b.Headless == nil || *b.Headless
}

// Default returns the configuration used without a file.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.applyDefaults()
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "kango.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Debounce <= 0 {
		c.Debounce = 750 * time.Millisecond
	}
	if c.WatchInterval <= 0 {
		c.WatchInterval = 500 * time.Millisecond
	}
	if c.ExportDir == "" {
		c.ExportDir = "."
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8765"
	}
	if c.Browser.Resync < 0 {
		c.Browser.Resync = 0
	}
}

// ParseLevel maps a log level name to its slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("config: unknown log level %q", s)
}
