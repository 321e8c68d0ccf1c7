package cache

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUFactory creates LRU-backed hot caches, for hosts that want a strict
// item-count bound instead of Ristretto's cost model.
type LRUFactory struct {
	maxSize int
}

// NewLRUFactory creates a new LRU hot cache factory.
func NewLRUFactory(maxSize int) LocalCacheFactory {
	return &LRUFactory{maxSize: maxSize}
}

// Create creates a new LRU hot cache instance.
func (f *LRUFactory) Create() (LocalCache, error) {
	return NewLRUCache(f.maxSize)
}

// LRUCache is the golang-lru backed hot cache.
type LRUCache struct {
	cache     *lru.Cache[string, any]
	hits      int64
	misses    int64
	evictions int64
}

// NewLRUCache creates a new LRU-backed hot cache.
func NewLRUCache(maxSize int) (*LRUCache, error) {
	c := &LRUCache{}
	cache, err := lru.NewWithEvict[string, any](maxSize, func(string, any) {
		atomic.AddInt64(&c.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	c.cache = cache
	return c, nil
}

// Get retrieves a value from the hot cache.
func (lc *LRUCache) Get(key string) (any, bool) {
	value, found := lc.cache.Get(key)
	if found {
		atomic.AddInt64(&lc.hits, 1)
	} else {
		atomic.AddInt64(&lc.misses, 1)
	}
	return value, found
}

// Set stores a value in the hot cache.
func (lc *LRUCache) Set(key string, value any, cost int64) bool {
	lc.cache.Add(key, value)
	return true
}

// Delete removes a value from the hot cache.
func (lc *LRUCache) Delete(key string) {
	lc.cache.Remove(key)
}

// Clear removes all values from the hot cache.
func (lc *LRUCache) Clear() {
	lc.cache.Purge()
}

// Close closes the hot cache.
func (lc *LRUCache) Close() {
	lc.cache.Purge()
}

// Metrics returns hot cache metrics.
func (lc *LRUCache) Metrics() LocalCacheMetrics {
	return LocalCacheMetrics{
		Hits:      atomic.LoadInt64(&lc.hits),
		Misses:    atomic.LoadInt64(&lc.misses),
		Evictions: atomic.LoadInt64(&lc.evictions),
		Size:      int64(lc.cache.Len()),
	}
}
