package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 60*time.Second, cfg.InitTimeout)
	assert.Equal(t, "engines/python/python.wasm", cfg.WASI.Module)
	assert.Equal(t, []string{"python", "-c"}, cfg.WASI.Args)
	assert.Empty(t, cfg.SQLite.Path)
	assert.True(t, cfg.Limiter.Enabled)
	assert.Equal(t, ":8080", cfg.GetServerAddr())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("ENGINE_INIT_TIMEOUT", "5s")
	t.Setenv("SQLITE_PATH", "/tmp/play.db")
	t.Setenv("WASI_ARGS", "python3,-")
	t.Setenv("WASI_STDIN_SOURCE", "true")
	t.Setenv("AUTO_INIT", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.InitTimeout)
	assert.Equal(t, "/tmp/play.db", cfg.SQLite.Path)
	assert.Equal(t, []string{"python3", "-"}, cfg.WASI.Args)
	assert.True(t, cfg.WASI.SourceViaStdin)
	assert.True(t, cfg.AutoInit)
	assert.False(t, cfg.IsDevelopment())
	assert.Contains(t, cfg.String(), "SQLite=/tmp/play.db")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Env:         "test",
			Port:        8080,
			InitTimeout: time.Second,
			WASI:        WASIConfig{Module: "m.wasm"},
			Limiter:     RateLimiterConfig{RPS: 1, Burst: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad env", func(c *Config) { c.Env = "qa" }, "invalid environment"},
		{"bad port", func(c *Config) { c.Port = 0 }, "invalid port"},
		{"zero timeout", func(c *Config) { c.InitTimeout = 0 }, "ENGINE_INIT_TIMEOUT"},
		{"no module", func(c *Config) { c.WASI.Module = "" }, "WASI_MODULE"},
		{"negative rps", func(c *Config) { c.Limiter.RPS = -1 }, "RATE_LIMIT_RPS"},
		{"zero burst", func(c *Config) { c.Limiter.Burst = 0 }, "RATE_LIMIT_BURST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "qa")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}
