package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Cache    CacheConfig    `toml:"cache"`
	Services ServicesConfig `toml:"services"`
	Console  ConsoleConfig  `toml:"console"`
	Auth     AuthConfig     `toml:"auth"`
	MCP      MCPConfig      `toml:"mcp"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type CacheConfig struct {
	Path string `toml:"path"`
}

type ServicesConfig struct {
	IdentityURL string `toml:"identity_url"`
	CaptureURL  string `toml:"capture_url"`
	TokenURL    string `toml:"token_url"`
	TimeoutSec  int    `toml:"timeout_sec"`
}

type ConsoleConfig struct {
	PageSize          int `toml:"page_size"`
	SearchDebounceMs  int `toml:"search_debounce_ms"`
	PlanterDebounceMs int `toml:"planter_debounce_ms"`
}

type AuthConfig struct {
	SessionSecret  string `toml:"session_secret"`
	TokenExpiryMin int    `toml:"token_expiry_min"`
}

// MCPConfig holds the operator credentials the mcp command logs in
// with. The stdio transport has no login endpoint, so the session is
// established before serving.
type MCPConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8090",
		},
		Cache: CacheConfig{
			Path: "data/console.db",
		},
		Services: ServicesConfig{
			IdentityURL: "http://localhost:30001/api/v1",
			CaptureURL:  "http://localhost:30002",
			TokenURL:    "http://localhost:30004",
			TimeoutSec:  30,
		},
		Console: ConsoleConfig{
			PageSize:          200,
			SearchDebounceMs:  300,
			PlanterDebounceMs: 200,
		},
		Auth: AuthConfig{
			SessionSecret:  "change-me-in-production",
			TokenExpiryMin: 1440, // 24h
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// ServiceTimeout returns the HTTP client timeout for backend calls.
func (c *Config) ServiceTimeout() time.Duration {
	if c.Services.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Services.TimeoutSec) * time.Second
}

// SearchDebounce returns the quiet period for free-text search input.
func (c *Config) SearchDebounce() time.Duration {
	if c.Console.SearchDebounceMs <= 0 {
		return 300 * time.Millisecond
	}
	return time.Duration(c.Console.SearchDebounceMs) * time.Millisecond
}

// PlanterDebounce returns the quiet period for the planter lookup input.
func (c *Config) PlanterDebounce() time.Duration {
	if c.Console.PlanterDebounceMs <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(c.Console.PlanterDebounceMs) * time.Millisecond
}
