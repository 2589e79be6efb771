package tiercache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/tiercache/dedupe"
	"github.com/c360/tiercache/disktier"
	"github.com/c360/tiercache/errors"
	"github.com/c360/tiercache/metric"
	"github.com/c360/tiercache/monitor"
	"github.com/c360/tiercache/pkg/cache"
	"github.com/c360/tiercache/pkg/worker"
)

const stopTimeout = 5 * time.Second

// Result carries a cached value and whether it may be out of date. Stale is
// true only for values served from the persisted tier while a background
// refresh is pending.
type Result[V any] struct {
	Value V
	Stale bool
}

// Config assembles a TieredCache. Fetch, KeyString, and Memory are
// required; Disk is optional and requires Encode and Decode when set.
type Config[K comparable, V any] struct {
	// Name identifies this cache in logs and metrics.
	Name string

	// Fetch retrieves a value from the network or other source of truth.
	Fetch func(ctx context.Context, key K) (V, error)

	// KeyString renders a key as a stable string for the persisted tier
	// and for request coalescing.
	KeyString func(key K) string

	// Encode and Decode convert values to and from the persisted tier's
	// byte representation.
	Encode func(value V) ([]byte, error)
	Decode func(raw []byte) (V, error)

	// Memory is the in-memory tier.
	Memory *cache.LRU[K, V]

	// Disk is the persisted tier. Nil disables it.
	Disk *disktier.Store

	// Monitor receives hit/miss telemetry. Defaults to a fresh monitor.
	Monitor *monitor.Monitor

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Metrics optionally mirrors refresh pool statistics as Prometheus
	// metrics under Name.
	Metrics *metric.Registry

	// MemoryTTL and DiskTTL bound entry freshness per tier. Zero falls
	// back to the tier's own default (memory) or no expiry (disk).
	MemoryTTL time.Duration
	DiskTTL   time.Duration

	// RefreshWorkers and RefreshQueueSize bound background refresh
	// concurrency. Zero uses the worker pool defaults.
	RefreshWorkers   int
	RefreshQueueSize int
}

// TieredCache is a read-through cache over memory, disk, and a fetch
// function. All methods are safe for concurrent use.
type TieredCache[K comparable, V any] struct {
	cfg       Config[K, V]
	coalescer *dedupe.Coalescer[V]
	pool      *worker.Pool[K]
	mon       *monitor.Monitor
	logger    *slog.Logger
	cancel    context.CancelFunc
	closed    atomic.Bool
}

// New creates a TieredCache and starts its background refresh workers.
func New[K comparable, V any](cfg Config[K, V]) (*TieredCache[K, V], error) {
	if cfg.Fetch == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"tiercache", "New", "fetch function is required")
	}
	if cfg.KeyString == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"tiercache", "New", "key string function is required")
	}
	if cfg.Memory == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"tiercache", "New", "memory tier is required")
	}
	if cfg.Disk != nil && (cfg.Encode == nil || cfg.Decode == nil) {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"tiercache", "New", "disk tier requires an encode/decode pair")
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Name != "" {
		cfg.Logger = cfg.Logger.With("cache", cfg.Name)
	}
	if cfg.Monitor == nil {
		cfg.Monitor = monitor.New()
	}

	c := &TieredCache[K, V]{
		cfg:       cfg,
		coalescer: dedupe.New[V](),
		mon:       cfg.Monitor,
		logger:    cfg.Logger,
	}

	var poolOpts []worker.Option[K]
	if cfg.Metrics != nil && cfg.Name != "" {
		poolOpts = append(poolOpts, worker.WithMetrics[K](cfg.Metrics, cfg.Name+"_refresh"))
	}
	pool, err := worker.NewPool(cfg.RefreshWorkers, cfg.RefreshQueueSize, c.refresh, poolOpts...)
	if err != nil {
		return nil, errors.WrapInvalid(err, "tiercache", "New", "create refresh pool")
	}
	c.pool = pool

	// Refreshes outlive any request, so the pool runs on an internal
	// context owned by Close.
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	if err := pool.Start(ctx); err != nil {
		cancel()
		return nil, errors.WrapFatal(err, "tiercache", "New", "start refresh pool")
	}

	return c, nil
}

// NewStringKeyed creates a TieredCache for string keys, defaulting
// KeyString to the identity function.
func NewStringKeyed[V any](cfg Config[string, V]) (*TieredCache[string, V], error) {
	if cfg.KeyString == nil {
		cfg.KeyString = func(key string) string { return key }
	}
	return New(cfg)
}

// Get returns the value for key, consulting memory, then disk, then the
// fetch function. A value served from disk is marked stale and a background
// refresh is scheduled; a memory hit also schedules a refresh so hot keys
// converge on fresh data. Only a miss on every tier surfaces a fetch error.
func (c *TieredCache[K, V]) Get(ctx context.Context, key K, opts ...GetOption) (Result[V], error) {
	if c.closed.Load() {
		return Result[V]{}, errors.WrapInvalid(errors.ErrClosed, "tiercache", "Get", "cache closed")
	}

	start := time.Now()
	defer func() {
		c.mon.RecordDuration("get", time.Since(start))
	}()

	options := applyGetOptions(opts...)
	ks := c.cfg.KeyString(key)

	if options.forceRefresh {
		value, err := c.fetchThrough(ctx, key, ks, "get")
		if err != nil {
			return Result[V]{}, err
		}
		return Result[V]{Value: value}, nil
	}

	if value, ok := c.cfg.Memory.Get(key); ok {
		c.mon.RecordHit(monitor.TierMemory, "get")
		c.scheduleRefresh(key, ks)
		return Result[V]{Value: value}, nil
	}
	c.mon.RecordMiss(monitor.TierMemory, "get")

	if c.cfg.Disk != nil {
		value, found, err := disktier.Get(ctx, c.cfg.Disk, ks, c.cfg.Decode)
		switch {
		case err != nil:
			// A broken disk tier degrades to a network fetch.
			c.mon.RecordMiss(monitor.TierDisk, "get")
			c.logger.Warn("disk tier read failed", "key", ks, "error", err)
		case found:
			c.mon.RecordHit(monitor.TierDisk, "get")
			c.scheduleRefresh(key, ks)
			return Result[V]{Value: value, Stale: true}, nil
		default:
			c.mon.RecordMiss(monitor.TierDisk, "get")
		}
	}

	value, err := c.fetchThrough(ctx, key, ks, "get")
	if err != nil {
		return Result[V]{}, err
	}
	return Result[V]{Value: value}, nil
}

// Put stores a value in both tiers without touching the network.
func (c *TieredCache[K, V]) Put(ctx context.Context, key K, value V) error {
	if c.closed.Load() {
		return errors.WrapInvalid(errors.ErrClosed, "tiercache", "Put", "cache closed")
	}

	start := time.Now()
	defer func() {
		c.mon.RecordDuration("put", time.Since(start))
	}()

	c.setMemory(key, value)

	if c.cfg.Disk != nil {
		raw, err := c.cfg.Encode(value)
		if err != nil {
			return errors.WrapInvalid(err, "tiercache", "Put", "encode value")
		}
		if err := c.cfg.Disk.Put(ctx, c.cfg.KeyString(key), raw, c.cfg.DiskTTL); err != nil {
			return err
		}
	}
	return nil
}

// Clear empties both tiers and detaches any in-flight fetches.
func (c *TieredCache[K, V]) Clear(ctx context.Context) error {
	if c.closed.Load() {
		return errors.WrapInvalid(errors.ErrClosed, "tiercache", "Clear", "cache closed")
	}

	c.cfg.Memory.Clear()
	c.coalescer.Clear()

	if c.cfg.Disk != nil {
		if err := c.cfg.Disk.Clear(ctx); err != nil {
			return err
		}
	}
	return nil
}

// CacheStats is a point-in-time view across tiers.
type CacheStats struct {
	MemoryEntries int              `json:"memory_entries"`
	MemoryHitRate float64          `json:"memory_hit_rate"`
	Memory        cache.Snapshot   `json:"memory"`
	DiskEntries   int              `json:"disk_entries"`
	InflightKeys  int              `json:"inflight_keys"`
	Refresh       worker.PoolStats `json:"refresh"`
	Monitor       monitor.Stats    `json:"monitor"`
}

// Stats aggregates statistics from every tier and the refresh pool.
func (c *TieredCache[K, V]) Stats(ctx context.Context) (CacheStats, error) {
	stats := CacheStats{
		MemoryEntries: c.cfg.Memory.Size(),
		MemoryHitRate: c.cfg.Memory.Stats().HitRatio(),
		Memory:        c.cfg.Memory.Stats().Snapshot(),
		InflightKeys:  c.coalescer.InflightCount(),
		Refresh:       c.pool.Stats(),
		Monitor:       c.mon.Stats(),
	}

	if c.cfg.Disk != nil {
		count, err := c.cfg.Disk.Count(ctx)
		if err != nil {
			return CacheStats{}, err
		}
		stats.DiskEntries = count
	}
	return stats, nil
}

// Monitor returns the cache's monitor for callers that expose telemetry.
func (c *TieredCache[K, V]) Monitor() *monitor.Monitor {
	return c.mon
}

// Close stops the refresh workers. It does not close the disk store, which
// the caller owns. Safe to call more than once.
func (c *TieredCache[K, V]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := c.pool.Stop(stopTimeout)
	c.cancel()
	if err != nil {
		return errors.WrapTransient(err, "tiercache", "Close", "stop refresh pool")
	}
	return nil
}

// fetchThrough performs a coalesced fetch and writes the result through
// both tiers. All concurrent callers for ks share one fetch.
func (c *TieredCache[K, V]) fetchThrough(ctx context.Context, key K, ks string, op string) (V, error) {
	value, err := c.coalescer.Do(ctx, ks, func(fctx context.Context) (V, error) {
		c.mon.RecordNetworkRequest(op)

		v, err := c.cfg.Fetch(fctx, key)
		if err != nil {
			var zero V
			return zero, errors.WrapTransient(err, "tiercache", "Get", "network fetch")
		}

		c.writeThrough(fctx, key, ks, v)
		return v, nil
	})
	return value, err
}

// writeThrough stores a fetched value in both tiers. Disk failures are
// logged, not surfaced: the value is already in memory.
func (c *TieredCache[K, V]) writeThrough(ctx context.Context, key K, ks string, value V) {
	c.setMemory(key, value)

	if c.cfg.Disk == nil {
		return
	}
	raw, err := c.cfg.Encode(value)
	if err != nil {
		c.logger.Warn("encode for disk tier failed", "key", ks, "error", err)
		return
	}
	if err := c.cfg.Disk.Put(ctx, ks, raw, c.cfg.DiskTTL); err != nil {
		c.logger.Warn("disk tier write failed", "key", ks, "error", err)
	}
}

func (c *TieredCache[K, V]) setMemory(key K, value V) {
	if c.cfg.MemoryTTL > 0 {
		c.cfg.Memory.SetTTL(key, value, c.cfg.MemoryTTL)
	} else {
		c.cfg.Memory.Set(key, value)
	}
}

// scheduleRefresh enqueues a background refresh. A full queue drops the
// refresh; the caller was already served from cache and the next read will
// schedule another.
func (c *TieredCache[K, V]) scheduleRefresh(key K, ks string) {
	if err := c.pool.Submit(key); err != nil {
		c.logger.Debug("refresh not scheduled", "key", ks, "error", err)
	}
}

// refresh is the worker pool processor. Failures are recorded and logged
// but never surfaced, since the original caller already has a value.
func (c *TieredCache[K, V]) refresh(ctx context.Context, key K) error {
	ks := c.cfg.KeyString(key)

	_, err := c.fetchThrough(ctx, key, ks, "refresh")
	if err != nil {
		c.logger.Warn("background refresh failed", "key", ks, "error", err)
	}
	return err
}
