package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	Env         string        `envconfig:"APP_ENV" default:"development"`
	Port        int           `envconfig:"APP_PORT" default:"8080"`
	InitTimeout time.Duration `envconfig:"ENGINE_INIT_TIMEOUT" default:"60s"`
	StaticDir   string        `envconfig:"STATIC_DIR" default:"public"`
	AutoInit    bool          `envconfig:"AUTO_INIT" default:"false"`
	SQLite      SQLiteConfig
	WASI        WASIConfig
	Limiter     RateLimiterConfig
}

// query engine configuration
type SQLiteConfig struct {
	// Path of the database file; empty keeps the database in memory
	Path string `envconfig:"SQLITE_PATH"`
}

// code-interpreter configuration
type WASIConfig struct {
	Module           string   `envconfig:"WASI_MODULE" default:"engines/python/python.wasm"`
	Args             []string `envconfig:"WASI_ARGS" default:"python,-c"`
	SourceViaStdin   bool     `envconfig:"WASI_STDIN_SOURCE" default:"false"`
	MemoryLimitPages uint32   `envconfig:"WASI_MEMORY_LIMIT_PAGES" default:"0"`
	VerifySource     string   `envconfig:"WASI_VERIFY_SOURCE"`
}

// rate limiting configuration
type RateLimiterConfig struct {
	RPS     float64 `envconfig:"RATE_LIMIT_RPS" default:"5"`
	Burst   int     `envconfig:"RATE_LIMIT_BURST" default:"10"`
	Enabled bool    `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
		"test":        true,
	}
	if !validEnvs[c.Env] {
		return fmt.Errorf("invalid environment: %s (must be one of: development, staging, production, test)", c.Env)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be between 1 and 65535)", c.Port)
	}
	if c.InitTimeout <= 0 {
		return fmt.Errorf("ENGINE_INIT_TIMEOUT must be positive")
	}
	if c.WASI.Module == "" {
		return fmt.Errorf("WASI_MODULE must not be empty")
	}
	if c.Limiter.RPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be non-negative")
	}
	if c.Limiter.Burst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) String() string {
	sqlite := c.SQLite.Path
	if sqlite == "" {
		sqlite = ":memory:"
	}
	return fmt.Sprintf("Config{Env=%s, Port=%d, InitTimeout=%s, AutoInit=%t, SQLite=%s, "+
		"WASI.Module=%s, WASI.Stdin=%t, Limiter.RPS=%.2f, Limiter.Burst=%d, Limiter.Enabled=%t}",
		c.Env, c.Port, c.InitTimeout, c.AutoInit, sqlite,
		c.WASI.Module, c.WASI.SourceViaStdin, c.Limiter.RPS, c.Limiter.Burst, c.Limiter.Enabled)
}
