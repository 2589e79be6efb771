package config

import (
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/c360/tiercache/errors"
)

// Config holds the tiercached daemon configuration.
type Config struct {
	// ListenAddr is where the cache HTTP API listens.
	ListenAddr string `env:"TIERCACHE_LISTEN_ADDR" envDefault:"127.0.0.1:8080"`

	// MetricsAddr is where Prometheus metrics are exposed.
	MetricsAddr string `env:"TIERCACHE_METRICS_ADDR" envDefault:"127.0.0.1:9090"`

	// UpstreamURL is the origin that cache misses are fetched from.
	// Required.
	UpstreamURL string `env:"TIERCACHE_UPSTREAM_URL"`

	// DBPath is the SQLite file for the persisted tier. Empty disables
	// the disk tier.
	DBPath string `env:"TIERCACHE_DB_PATH"`

	// MemoryMaxEntries bounds the in-memory tier.
	MemoryMaxEntries int `env:"TIERCACHE_MEMORY_MAX_ENTRIES" envDefault:"1024"`

	// MemoryTTL bounds freshness of the in-memory tier.
	MemoryTTL time.Duration `env:"TIERCACHE_MEMORY_TTL" envDefault:"5m"`

	// DiskMaxEntries bounds the persisted tier. Zero means unbounded.
	DiskMaxEntries int `env:"TIERCACHE_DISK_MAX_ENTRIES" envDefault:"10000"`

	// DiskTTL bounds freshness of the persisted tier. Zero means entries
	// never expire.
	DiskTTL time.Duration `env:"TIERCACHE_DISK_TTL" envDefault:"24h"`

	// RefreshWorkers bounds background refresh concurrency.
	RefreshWorkers int `env:"TIERCACHE_REFRESH_WORKERS" envDefault:"4"`

	// RefreshQueueSize bounds the pending refresh queue.
	RefreshQueueSize int `env:"TIERCACHE_REFRESH_QUEUE_SIZE" envDefault:"256"`
}

// Load reads configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.WrapInvalid(err, "config", "Load", "parse environment")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.UpstreamURL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"config", "Validate", "TIERCACHE_UPSTREAM_URL is required")
	}
	parsed, err := url.Parse(c.UpstreamURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"config", "Validate", "TIERCACHE_UPSTREAM_URL must be an absolute URL")
	}
	if c.ListenAddr == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"config", "Validate", "TIERCACHE_LISTEN_ADDR is required")
	}
	if c.MemoryMaxEntries <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"config", "Validate", "TIERCACHE_MEMORY_MAX_ENTRIES must be positive")
	}
	if c.DiskMaxEntries < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"config", "Validate", "TIERCACHE_DISK_MAX_ENTRIES cannot be negative")
	}
	if c.MemoryTTL < 0 || c.DiskTTL < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"config", "Validate", "TTLs cannot be negative")
	}
	return nil
}
