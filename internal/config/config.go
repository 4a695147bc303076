// Package config loads pagedrive settings from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level pagedrive configuration.
type Config struct {
	Root              string        `yaml:"root"`
	CacheSize         int           `yaml:"cache_size"`
	StylesheetTimeout time.Duration `yaml:"stylesheet_timeout"`
	Fetch             FetchConfig   `yaml:"fetch"`
	Forms             FormsConfig   `yaml:"forms"`
	History           HistoryConfig `yaml:"history"`
	Log               LogConfig     `yaml:"log"`
	Server            ServerConfig  `yaml:"server"`
}

// FetchConfig controls the HTTP client.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	MaxBody   int64         `yaml:"max_body"`
}

// FormsConfig controls form interception.
type FormsConfig struct {
	Mode string `yaml:"mode"` // on | off | optin
	// AllowNoRedirect accepts a plain 200 answer to an unsafe submission.
	AllowNoRedirect bool `yaml:"allow_no_redirect"`
}

// HistoryConfig selects the restoration data store.
type HistoryConfig struct {
	Store string `yaml:"store"` // memory | sqlite
	Path  string `yaml:"path"`
}

// LogConfig controls the CLI logger.
type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// ServerConfig controls the serve command.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	MCP  bool   `yaml:"mcp"`
}

const (
	FormModeOn    = "on"
	FormModeOff   = "off"
	FormModeOptIn = "optin"

	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Default returns a configuration with every default applied.
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

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown enum values.
func (c *Config) Validate() error {
	switch c.Forms.Mode {
	case FormModeOn, FormModeOff, FormModeOptIn:
	default:
		return fmt.Errorf("config: forms.mode %q: want on, off or optin", c.Forms.Mode)
	}
	switch c.History.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.History.Path == "" {
			return fmt.Errorf("config: history.path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("config: history.store %q: want memory or sqlite", c.History.Store)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Root == "" {
		c.Root = "/"
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 10
	}
	if c.StylesheetTimeout <= 0 {
		c.StylesheetTimeout = 2 * time.Second
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "pagedrive/1.0"
	}
	if c.Fetch.MaxBody <= 0 {
		c.Fetch.MaxBody = 10 << 20
	}
	if c.Forms.Mode == "" {
		c.Forms.Mode = FormModeOn
	}
	if c.History.Store == "" {
		c.History.Store = StoreMemory
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
}
