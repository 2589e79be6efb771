package dedupe

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/c360/tiercache/errors"
)

// Fetch produces the value for a key. It runs at most once per in-flight
// window regardless of how many callers ask for the key.
type Fetch[V any] func(ctx context.Context) (V, error)

// Coalescer deduplicates concurrent fetches by string key. The zero value
// is not usable; create one with New.
type Coalescer[V any] struct {
	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]int // key -> number of callers waiting on it
}

// New creates a Coalescer.
func New[V any]() *Coalescer[V] {
	return &Coalescer[V]{
		inflight: make(map[string]int),
	}
}

// Do executes fetch for the key, coalescing with any concurrent Do calls
// for the same key. All coalesced callers receive the same value and error.
//
// If ctx ends while waiting, Do returns the context error immediately; the
// underlying fetch keeps running for other waiters. The fetch itself
// receives a context detached from any single caller.
func (c *Coalescer[V]) Do(ctx context.Context, key string, fetch Fetch[V]) (V, error) {
	var zero V
	if fetch == nil {
		return zero, errors.WrapInvalid(errors.ErrInvalidConfig,
			"dedupe", "Do", "nil fetch function")
	}

	c.mu.Lock()
	c.inflight[key]++
	c.mu.Unlock()
	defer c.release(key)

	ch := c.group.DoChan(key, func() (any, error) {
		// The flight outlives any individual caller, so it must not
		// inherit a caller's deadline.
		return fetch(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		value, ok := res.Val.(V)
		if !ok {
			return zero, errors.WrapFatal(errors.ErrDataCorrupted,
				"dedupe", "Do", "unexpected flight result type")
		}
		return value, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Cancel detaches the key from its in-flight fetch, if any. Callers already
// waiting still receive the result; subsequent Do calls for the key start a
// fresh fetch.
func (c *Coalescer[V]) Cancel(key string) {
	c.group.Forget(key)
}

// Clear detaches every key from its in-flight fetch.
func (c *Coalescer[V]) Clear() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.inflight))
	for key := range c.inflight {
		keys = append(keys, key)
	}
	c.mu.Unlock()

	for _, key := range keys {
		c.group.Forget(key)
	}
}

// IsInflight reports whether at least one caller is currently waiting on
// the key.
func (c *Coalescer[V]) IsInflight(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight[key] > 0
}

// InflightCount returns the number of keys with at least one waiting caller.
func (c *Coalescer[V]) InflightCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

func (c *Coalescer[V]) release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inflight[key]--
	if c.inflight[key] <= 0 {
		delete(c.inflight, key)
	}
}
