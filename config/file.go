package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration file.
type Config struct {
	DBPath   string              `yaml:"db_path"`
	LogLevel string              `yaml:"log_level"`
	Browser  BrowserConfig       `yaml:"browser"`
	HTTP     HTTPConfig          `yaml:"http"`
	MCP      MCPConfig           `yaml:"mcp"`
	Settings Settings            `yaml:"settings"`
	Aliases  map[string][]string `yaml:"aliases"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	// Remote is a DevTools websocket URL; empty launches a local Chrome.
	Remote          string        `yaml:"remote"`
	Bin             string        `yaml:"bin"`
	Stealth         string        `yaml:"stealth"` // headless | headful
	NoStealthPages  bool          `yaml:"no_stealth_pages"`
	ViewportWidth   int           `yaml:"viewport_width"`
	ViewportHeight  int           `yaml:"viewport_height"`
	NavigateTimeout time.Duration `yaml:"navigate_timeout"`
}

// HTTPConfig configures the HTTP API.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// AllowRemote serves non-loopback clients too.
	AllowRemote bool `yaml:"allow_remote"`
}

// MCPConfig configures the MCP server.
type MCPConfig struct {
	Transport string `yaml:"transport"` // stdio | none
	Name      string `yaml:"name"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Settings: DefaultSettings()}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads a YAML configuration file. Settings keys missing from the
// file keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML configuration.
func Parse(data []byte) (*Config, error) {
	cfg := Config{Settings: DefaultSettings()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "formpilot.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.ViewportWidth <= 0 {
		c.Browser.ViewportWidth = 1280
	}
	if c.Browser.ViewportHeight <= 0 {
		c.Browser.ViewportHeight = 800
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8765"
	}
	if c.MCP.Transport == "" {
		c.MCP.Transport = "none"
	}
	if c.MCP.Name == "" {
		c.MCP.Name = "formpilot"
	}
}

// Level parses the configured log level.
func (c *Config) Level() slog.Level {
	return ParseLevel(c.LogLevel)
}

// ParseLevel maps debug|info|warn|error to a slog level; anything else is
// info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
