package cache

import (
	"time"

	"github.com/c360/tiercache/metric"
)

// Option configures cache behavior using the functional options pattern.
type Option[K comparable, V any] func(*cacheOptions[K, V])

// cacheOptions holds internal configuration for cache instances.
// Stats are ALWAYS collected - they are not optional.
// Metrics are optional and exposed via WithMetrics().
type cacheOptions[K comparable, V any] struct {
	// defaultTTL applies to entries stored via Set. Zero means no expiry.
	defaultTTL time.Duration

	// clock overrides time.Now for expiry checks. Tests inject a fake.
	clock func() time.Time

	// metricsReg is optional - if provided, cache stats are also exposed as Prometheus metrics
	metricsReg *metric.Registry

	// metricsPrefix is used as the component label for Prometheus metrics
	metricsPrefix string

	// evictCallback is called when items are evicted from the cache
	evictCallback EvictCallback[K, V]
}

// WithDefaultTTL sets the TTL applied to entries stored via Set.
// If ttl is <= 0, this option is ignored.
func WithDefaultTTL[K comparable, V any](ttl time.Duration) Option[K, V] {
	return func(opts *cacheOptions[K, V]) {
		if ttl > 0 {
			opts.defaultTTL = ttl
		}
	}
}

// WithClock overrides the time source used for expiry checks.
// If clock is nil, this option is ignored.
func WithClock[K comparable, V any](clock func() time.Time) Option[K, V] {
	return func(opts *cacheOptions[K, V]) {
		if clock != nil {
			opts.clock = clock
		}
	}
}

// WithMetrics enables Prometheus metrics export for cache statistics.
// If registry is nil or prefix is empty, this option is ignored.
func WithMetrics[K comparable, V any](registry *metric.Registry, prefix string) Option[K, V] {
	return func(opts *cacheOptions[K, V]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithEvictionCallback sets a callback function that is called when items
// are evicted by capacity pressure, TTL expiry, Delete, or Clear.
func WithEvictionCallback[K comparable, V any](callback EvictCallback[K, V]) Option[K, V] {
	return func(opts *cacheOptions[K, V]) {
		opts.evictCallback = callback
	}
}

// applyOptions applies functional options to create final cache configuration.
func applyOptions[K comparable, V any](options ...Option[K, V]) *cacheOptions[K, V] {
	opts := &cacheOptions[K, V]{}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	return opts
}
