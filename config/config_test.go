package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/tiercache/errors"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TIERCACHE_UPSTREAM_URL", "https://origin.example.com/api")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "127.0.0.1:9090", cfg.MetricsAddr)
	assert.Equal(t, 1024, cfg.MemoryMaxEntries)
	assert.Equal(t, 5*time.Minute, cfg.MemoryTTL)
	assert.Equal(t, 10000, cfg.DiskMaxEntries)
	assert.Equal(t, 24*time.Hour, cfg.DiskTTL)
	assert.Equal(t, 4, cfg.RefreshWorkers)
	assert.Empty(t, cfg.DBPath)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TIERCACHE_UPSTREAM_URL", "http://localhost:9000")
	t.Setenv("TIERCACHE_LISTEN_ADDR", "0.0.0.0:8181")
	t.Setenv("TIERCACHE_DB_PATH", "/var/lib/tiercache/cache.db")
	t.Setenv("TIERCACHE_MEMORY_MAX_ENTRIES", "50")
	t.Setenv("TIERCACHE_MEMORY_TTL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8181", cfg.ListenAddr)
	assert.Equal(t, "/var/lib/tiercache/cache.db", cfg.DBPath)
	assert.Equal(t, 50, cfg.MemoryMaxEntries)
	assert.Equal(t, 30*time.Second, cfg.MemoryTTL)
}

func TestLoad_MissingUpstream(t *testing.T) {
	t.Setenv("TIERCACHE_UPSTREAM_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestValidate(t *testing.T) {
	valid := Config{
		ListenAddr:       "127.0.0.1:8080",
		UpstreamURL:      "https://origin.example.com",
		MemoryMaxEntries: 10,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing upstream", func(c *Config) { c.UpstreamURL = "" }},
		{"relative upstream", func(c *Config) { c.UpstreamURL = "origin.example.com" }},
		{"missing listen addr", func(c *Config) { c.ListenAddr = "" }},
		{"zero memory entries", func(c *Config) { c.MemoryMaxEntries = 0 }},
		{"negative disk entries", func(c *Config) { c.DiskMaxEntries = -1 }},
		{"negative ttl", func(c *Config) { c.MemoryTTL = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
