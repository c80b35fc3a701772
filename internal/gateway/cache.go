package gateway

import (
	"crypto/rsa"
	"sync"
	"time"
)

// keySetCacheKey is the fixed cache key for the single global key set. The
// cache is keyed anyway so a bounded entry count is enforceable and a
// per-issuer split would be a local change.
const keySetCacheKey = "jwks"

type cacheEntry struct {
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// keySetCache caches fetched verification documents with a TTL and a bounded
// entry count. Safe for concurrent use; concurrent misses may race to fetch
// independently, last write wins.
type keySetCache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func newKeySetCache(ttl time.Duration, maxEntries int) *keySetCache {
	return &keySetCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// get returns the cached key set for key if present and not past its TTL.
func (c *keySetCache) get(key string) (map[string]*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.fetchedAt) >= c.ttl {
		return nil, false
	}
	return entry.keys, true
}

// put stores a freshly fetched key set. At capacity, expired entries are
// evicted first; if none are expired an arbitrary entry is dropped.
func (c *keySetCache) put(key string, keys map[string]*rsa.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictExpiredLocked()
		if len(c.entries) >= c.maxEntries {
			for k := range c.entries {
				delete(c.entries, k)
				break
			}
		}
	}

	c.entries[key] = cacheEntry{keys: keys, fetchedAt: c.now()}
}

func (c *keySetCache) evictExpiredLocked() {
	now := c.now()
	for k, entry := range c.entries {
		if now.Sub(entry.fetchedAt) >= c.ttl {
			delete(c.entries, k)
		}
	}
}
