// Package tiercache implements a multi-tier read-through cache with
// stale-while-revalidate semantics.
//
// A TieredCache fronts a fetch function with two cache tiers: a bounded
// in-memory LRU and an optional SQLite-backed persisted tier. Reads check
// memory first, then disk, then the network. A disk hit is served
// immediately and marked stale while a background refresh fetches a fresh
// value and writes it through both tiers. Concurrent fetches for the same
// key are coalesced so the network sees at most one request per key at a
// time.
//
// The only synchronous error path is a miss on every tier combined with a
// failed fetch; background refresh failures are logged and recorded but
// never surface to callers, who already received a cached value.
package tiercache
