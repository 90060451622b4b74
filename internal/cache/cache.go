package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"taskforge.org/internal/obs"
)

// DefaultCapacity bounds each namespace. The addressing model is
// namespace+key; entries live until explicitly evicted or displaced.
const DefaultCapacity = 4096

// Cache is a namespaced read cache handed by reference to every component
// that holds eviction rights. There is no global registry; callers share
// one instance through construction.
type Cache struct {
	mu       sync.Mutex
	capacity int
	spaces   map[string]*lru.Cache[string, any]
}

// New creates a cache whose namespaces each hold up to capacity entries.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		spaces:   make(map[string]*lru.Cache[string, any]),
	}
}

func (c *Cache) space(namespace string) *lru.Cache[string, any] {
	s, ok := c.spaces[namespace]
	if !ok {
		// lru.New only errors on non-positive size, which New prevents.
		s, _ = lru.New[string, any](c.capacity)
		c.spaces[namespace] = s
	}
	return s
}

// Get returns the value stored under (namespace, key), if any.
func (c *Cache) Get(namespace, key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.space(namespace).Get(key)
	if ok {
		obs.CacheOp(namespace, "hit")
	} else {
		obs.CacheOp(namespace, "miss")
	}
	return v, ok
}

// Put stores value under (namespace, key), replacing any previous value.
func (c *Cache) Put(namespace, key string, value any) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.space(namespace).Add(key, value)
	obs.CacheOp(namespace, "put")
}

// Evict removes a single entry.
func (c *Cache) Evict(namespace, key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.space(namespace).Remove(key)
	obs.CacheOp(namespace, "evict")
}

// EvictAll clears an entire namespace. Several write paths use this coarse
// invalidation on purpose; it trades hit rate for simplicity.
func (c *Cache) EvictAll(namespace string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.space(namespace).Purge()
	obs.CacheOp(namespace, "evict_all")
}
