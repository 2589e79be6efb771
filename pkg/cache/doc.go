// Package cache provides a generic, thread-safe in-memory cache with LRU
// eviction and per-entry TTL expiration.
//
// # Overview
//
// The cache is bounded by a maximum entry count. When inserting a new key
// into a full cache, the least recently used entry is evicted first. Entries
// may additionally carry a time-to-live; expired entries are removed lazily
// on access rather than by a background sweeper, so an idle cache costs
// nothing.
//
// All operations are safe for concurrent use. Statistics are always
// collected and can optionally be mirrored as Prometheus metrics.
//
// # Quick Start
//
//	c, err := cache.NewLRU[string, *Profile](1000,
//		cache.WithDefaultTTL[string, *Profile](5*time.Minute),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	c.Set("user:42", profile)
//	value, ok := c.Get("user:42")
//
// # Eviction and Expiration
//
// LRU order is updated on both Get and Set. Eviction only occurs when a new
// key is inserted into a cache already at capacity; updating an existing key
// never evicts. A TTL of zero on an entry means it never expires unless a
// default TTL was configured.
package cache
