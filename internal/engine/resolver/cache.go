package resolver

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"enginelink/internal/shared/observability"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize matches the number of distinct navigation targets a
// session typically revisits.
const DefaultCacheSize = 1 << 6

// DirectMappedCache is a fixed-size, lazily populated cache where every key
// maps to exactly one slot. Inserting a key whose slot is held by another key
// replaces it, so the entry count never exceeds the slot count.
//
// Concurrent GetOrCreate calls for the same key share one create call. Slot
// locks are only held to copy a value in or out, never across create, so a
// slow lookup does not block unrelated keys.
type DirectMappedCache[K comparable, V any] struct {
	name      string
	slots     []cacheSlot[K, V]
	keyString func(K) string
	group     singleflight.Group
	gen       atomic.Uint64
}

type cacheSlot[K comparable, V any] struct {
	mu    sync.Mutex
	used  bool
	key   K
	value V
}

// NewDirectMappedCache creates a cache with the given number of slots.
// keyString must be injective over the keys used; it feeds both slot hashing
// and same-key coalescing. Capacity <= 0 is normalised to DefaultCacheSize.
func NewDirectMappedCache[K comparable, V any](name string, capacity int, keyString func(K) string) *DirectMappedCache[K, V] {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &DirectMappedCache[K, V]{
		name:      name,
		slots:     make([]cacheSlot[K, V], capacity),
		keyString: keyString,
	}
}

// Get returns the cached value for key without computing anything.
func (c *DirectMappedCache[K, V]) Get(key K) (V, bool) {
	return c.load(c.slotFor(c.keyString(key)), key)
}

// GetOrCreate returns the cached value for key, calling create at most once
// per concurrent burst of callers on a miss. A successful result is stored
// unless the cache was invalidated while create ran; errors are never stored.
// If another caller stored a value for key first, that value wins.
//
// create runs detached from the cancellation of whichever caller started it,
// so one caller giving up never fails the others. Each caller waits on its own
// ctx and returns ctx.Err() if it is done first. Callers arriving after an
// Invalidate start a new flight rather than joining one that began before it.
func (c *DirectMappedCache[K, V]) GetOrCreate(ctx context.Context, key K, create func(context.Context) (V, error)) (V, error) {
	var zero V
	ks := c.keyString(key)
	slot := c.slotFor(ks)
	if v, ok := c.load(slot, key); ok {
		observability.CacheHitsTotal.WithLabelValues(c.name).Inc()
		return v, nil
	}
	observability.CacheMissesTotal.WithLabelValues(c.name).Inc()

	gen := c.gen.Load()
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(ks+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		// A flight that finished just before this one may already have stored it.
		if v, ok := c.load(slot, key); ok {
			return v, nil
		}
		v, err := create(flightCtx)
		if err != nil {
			return nil, err
		}
		return c.store(slot, key, v, gen), nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Invalidate drops every entry. Computations already in flight still return
// their result to their callers but do not store it.
func (c *DirectMappedCache[K, V]) Invalidate() {
	c.gen.Add(1)
	for i := range c.slots {
		slot := &c.slots[i]
		slot.mu.Lock()
		var zeroK K
		var zeroV V
		slot.used, slot.key, slot.value = false, zeroK, zeroV
		slot.mu.Unlock()
	}
	observability.CacheInvalidationsTotal.WithLabelValues(c.name).Inc()
}

// Len returns the number of occupied slots.
func (c *DirectMappedCache[K, V]) Len() int {
	n := 0
	for i := range c.slots {
		slot := &c.slots[i]
		slot.mu.Lock()
		if slot.used {
			n++
		}
		slot.mu.Unlock()
	}
	return n
}

// Cap returns the number of slots.
func (c *DirectMappedCache[K, V]) Cap() int {
	return len(c.slots)
}

func (c *DirectMappedCache[K, V]) slotFor(ks string) *cacheSlot[K, V] {
	return &c.slots[xxhash.Sum64String(ks)%uint64(len(c.slots))]
}

func (c *DirectMappedCache[K, V]) load(slot *cacheSlot[K, V], key K) (V, bool) {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.used && slot.key == key {
		return slot.value, true
	}
	var zero V
	return zero, false
}

func (c *DirectMappedCache[K, V]) store(slot *cacheSlot[K, V], key K, value V, gen uint64) V {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if c.gen.Load() != gen {
		return value
	}
	if slot.used {
		if slot.key == key {
			return slot.value
		}
		observability.CacheEvictionsTotal.WithLabelValues(c.name).Inc()
	}
	slot.used, slot.key, slot.value = true, key, value
	return value
}
