package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/c360/tiercache/errors"
)

// lruEntry represents an entry in the LRU cache.
type lruEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time // zero means no expiration
}

// LRU is a thread-safe cache that evicts the least recently used entry when
// a new key is inserted at capacity. Entries may also expire by TTL; expiry
// is checked lazily on access.
type LRU[K comparable, V any] struct {
	mu         sync.Mutex
	maxEntries int
	items      map[K]*list.Element // key -> list element
	order      *list.List          // doubly-linked list for LRU ordering
	defaultTTL time.Duration
	clock      func() time.Time
	stats      *Statistics         // ALWAYS initialized
	metrics    *cacheMetrics       // Optional, if metrics enabled
	evictFn    EvictCallback[K, V] // Optional callback
}

// NewLRU creates a cache holding at most maxEntries entries.
// Returns an error if maxEntries is not positive or if metrics registration
// fails when requested.
func NewLRU[K comparable, V any](maxEntries int, options ...Option[K, V]) (*LRU[K, V], error) {
	if maxEntries <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"cache", "NewLRU", "maxEntries must be positive")
	}

	opts := applyOptions(options...)

	var metrics *cacheMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "NewLRU", "metrics registration")
		}
	}

	return &LRU[K, V]{
		maxEntries: maxEntries,
		items:      make(map[K]*list.Element),
		order:      list.New(),
		defaultTTL: opts.defaultTTL,
		clock:      opts.clock,
		stats:      NewStatistics(),
		metrics:    metrics,
		evictFn:    opts.evictCallback,
	}, nil
}

// Get retrieves a value by key and marks it as recently used. An expired
// entry is removed and counted as a miss.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	var zero V

	c.mu.Lock()

	element, exists := c.items[key]
	if !exists {
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
		c.mu.Unlock()
		return zero, false
	}

	entry := element.Value.(*lruEntry[K, V])
	if c.isExpired(entry) {
		c.removeElement(element)
		c.stats.Expiration()
		c.stats.Miss()
		c.stats.UpdateSize(int64(len(c.items)))
		if c.metrics != nil {
			c.metrics.recordExpiration()
			c.metrics.recordMiss()
			c.metrics.updateSize(len(c.items))
		}
		c.mu.Unlock()

		// Expiry removes the entry from the cache, so it counts as an
		// eviction for callback purposes. Called outside the lock.
		if c.evictFn != nil {
			c.evictFn(entry.key, entry.value)
		}
		return zero, false
	}

	c.order.MoveToFront(element)
	c.stats.Hit()
	if c.metrics != nil {
		c.metrics.recordHit()
	}
	c.mu.Unlock()

	return entry.value, true
}

// Set stores a value under the key using the cache's default TTL.
func (c *LRU[K, V]) Set(key K, value V) bool {
	return c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores a value with an explicit TTL and marks it as recently used.
// A ttl of zero means the entry never expires. Returns true if a new entry
// was created, false if an existing entry was updated.
func (c *LRU[K, V]) SetTTL(key K, value V, ttl time.Duration) bool {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	var evictKey K
	var evictValue V
	var evicted bool

	c.mu.Lock()

	if element, exists := c.items[key]; exists {
		// Update in place. Updating never evicts.
		entry := element.Value.(*lruEntry[K, V])
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(element)

		c.stats.Set()
		if c.metrics != nil {
			c.metrics.recordSet()
		}
		c.mu.Unlock()
		return false
	}

	// Evict the LRU entry before inserting into a full cache so the size
	// never exceeds maxEntries.
	if len(c.items) >= c.maxEntries {
		if oldest := c.order.Back(); oldest != nil {
			entry := oldest.Value.(*lruEntry[K, V])
			evictKey = entry.key
			evictValue = entry.value
			evicted = true

			c.removeElement(oldest)
			c.stats.Eviction()
			if c.metrics != nil {
				c.metrics.recordEviction()
			}
		}
	}

	entry := &lruEntry[K, V]{key: key, value: value, expiresAt: expiresAt}
	c.items[key] = c.order.PushFront(entry)

	c.stats.Set()
	c.stats.UpdateSize(int64(len(c.items)))
	if c.metrics != nil {
		c.metrics.recordSet()
		c.metrics.updateSize(len(c.items))
	}
	c.mu.Unlock()

	// Callback outside lock to prevent deadlock.
	if evicted && c.evictFn != nil {
		c.evictFn(evictKey, evictValue)
	}
	return true
}

// Delete removes an entry by key. Returns true if the key existed.
func (c *LRU[K, V]) Delete(key K) bool {
	var evictKey K
	var evictValue V
	var shouldEvict bool

	c.mu.Lock()
	element, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return false
	}

	if c.evictFn != nil {
		entry := element.Value.(*lruEntry[K, V])
		evictKey = entry.key
		evictValue = entry.value
		shouldEvict = true
	}

	c.removeElement(element)
	c.stats.Delete()
	c.stats.UpdateSize(int64(len(c.items)))
	if c.metrics != nil {
		c.metrics.recordDelete()
		c.metrics.updateSize(len(c.items))
	}
	c.mu.Unlock()

	if shouldEvict {
		c.evictFn(evictKey, evictValue)
	}
	return true
}

// Clear removes all entries from the cache.
func (c *LRU[K, V]) Clear() {
	var evictItems []lruEntry[K, V]

	c.mu.Lock()
	if c.evictFn != nil {
		evictItems = make([]lruEntry[K, V], 0, len(c.items))
		for element := c.order.Back(); element != nil; element = element.Prev() {
			entry := element.Value.(*lruEntry[K, V])
			evictItems = append(evictItems, *entry)
		}
	}

	c.items = make(map[K]*list.Element)
	c.order.Init()

	c.stats.UpdateSize(0)
	if c.metrics != nil {
		c.metrics.updateSize(0)
	}
	c.mu.Unlock()

	for _, entry := range evictItems {
		c.evictFn(entry.key, entry.value)
	}
}

// Size returns the current number of entries, including entries that have
// expired but not yet been collected by a Get.
func (c *LRU[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns all keys in most-recently-used order.
func (c *LRU[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.items))
	for element := c.order.Front(); element != nil; element = element.Next() {
		keys = append(keys, element.Value.(*lruEntry[K, V]).key)
	}
	return keys
}

// Stats returns the cache's statistics tracker.
func (c *LRU[K, V]) Stats() *Statistics {
	return c.stats
}

// isExpired reports whether the entry's TTL has elapsed. Must be called with
// the lock held.
func (c *LRU[K, V]) isExpired(entry *lruEntry[K, V]) bool {
	if entry.expiresAt.IsZero() {
		return false
	}
	return c.now().After(entry.expiresAt)
}

// removeElement removes an element from both the map and the order list.
// Must be called with the lock held.
func (c *LRU[K, V]) removeElement(element *list.Element) {
	entry := element.Value.(*lruEntry[K, V])
	delete(c.items, entry.key)
	c.order.Remove(element)
}

func (c *LRU[K, V]) now() time.Time {
	if c.clock != nil {
		return c.clock()
	}
	return time.Now()
}
