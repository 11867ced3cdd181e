package cache

import (
	"sync"
	"time"
)

// Item is a cached value with an idle-expiry deadline.
type Item struct {
	Value     interface{}
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired checks if the item has passed its deadline
func (item *Item) IsExpired() bool {
	return time.Now().After(item.ExpiresAt)
}

// EvictFunc runs outside the cache lock for every entry removed by the
// sweep or by an expired lookup.
type EvictFunc func(key string, value interface{})

// Cache is a thread-safe in-memory store with TTL and an eviction hook.
// Touch renews an entry's deadline; entries that are not touched past
// their TTL are reclaimed by a periodic sweep.
type Cache struct {
	items map[string]*Item
	mu    sync.RWMutex

	ttl           time.Duration
	sweepInterval time.Duration
	onEvict       EvictFunc
	stopSweep     chan struct{}
	stopOnce      sync.Once
}

// New creates a cache. sweepInterval is injectable so operators control
// how promptly idle entries disappear.
func New(ttl, sweepInterval time.Duration, onEvict EvictFunc) *Cache {
	c := &Cache{
		items:         make(map[string]*Item),
		ttl:           ttl,
		sweepInterval: sweepInterval,
		onEvict:       onEvict,
		stopSweep:     make(chan struct{}),
	}

	go c.sweep()

	return c
}

// Get retrieves a live value. Expired entries behave as absent.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Expiry is checked under the lock: Touch moves the deadline
	// concurrently.
	item, exists := c.items[key]
	if !exists || item.IsExpired() {
		return nil, false
	}
	return item.Value, true
}

// Set stores a value with a fresh deadline
func (c *Cache) Set(key string, value interface{}) {
	now := time.Now()
	c.mu.Lock()
	c.items[key] = &Item{
		Value:     value,
		ExpiresAt: now.Add(c.ttl),
		CreatedAt: now,
	}
	c.mu.Unlock()
}

// Touch extends an entry's deadline. Returns false when the entry is
// absent or already expired.
func (c *Cache) Touch(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[key]
	if !exists || item.IsExpired() {
		return false
	}
	item.ExpiresAt = time.Now().Add(c.ttl)
	return true
}

// Delete removes an entry without invoking the eviction hook.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len returns the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the sweep goroutine.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stopSweep) })
}

func (c *Cache) sweep() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.reap()
		case <-c.stopSweep:
			return
		}
	}
}

func (c *Cache) reap() {
	type evicted struct {
		key   string
		value interface{}
	}

	var reaped []evicted

	c.mu.Lock()
	for key, item := range c.items {
		if item.IsExpired() {
			reaped = append(reaped, evicted{key, item.Value})
			delete(c.items, key)
		}
	}
	c.mu.Unlock()

	if c.onEvict != nil {
		for _, e := range reaped {
			c.onEvict(e.key, e.value)
		}
	}
}
