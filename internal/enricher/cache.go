// Package enricher implements the Enricher (C6): enrich(Lead) -> Lead,
// fanning a fixed set of enrichment operations out to external providers
// in parallel, merging conservatively, and caching results. The cache is
// adapted from engine/internal/resources.Manager's LRU+spill-to-disk
// shape: LRU-by-recency list + map here too, but entries expire by
// CacheEntry.TTL rather than spilling pages to disk.
package enricher

import (
	"container/list"
	"sync"
	"time"

	"leadpipe/internal/leadmodel"
)

// Cache stores enrichment lookups keyed by provider+key, LRU-capped and
// TTL-evicted. The in-process implementation here and a Redis-backed one
// (cache_redis.go) share this interface so the Enricher never cares
// which backend is wired.
type Cache interface {
	Get(provider, key string) (leadmodel.CacheEntry, bool)
	Set(entry leadmodel.CacheEntry)
}

type lruEntry struct {
	key   string
	entry leadmodel.CacheEntry
}

// LRUCache is the default in-process Cache: container/list for
// recency order plus a map for O(1) lookup, exactly the shape of
// engine/internal/resources.Manager's cache+lru pair.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	lru      *list.List
	index    map[string]*list.Element
	now      func() time.Time
}

func NewLRUCache(capacity int) *LRUCache {
	return &LRUCache{capacity: capacity, lru: list.New(), index: make(map[string]*list.Element), now: time.Now}
}

func cacheKey(provider, key string) string { return provider + "\x00" + key }

func (c *LRUCache) Get(provider, key string) (leadmodel.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[cacheKey(provider, key)]
	if !ok {
		return leadmodel.CacheEntry{}, false
	}
	entry := el.Value.(*lruEntry).entry
	if entry.Expired(c.now()) {
		c.lru.Remove(el)
		delete(c.index, cacheKey(provider, key))
		return leadmodel.CacheEntry{}, false
	}
	c.lru.MoveToFront(el)
	return entry, true
}

func (c *LRUCache) Set(entry leadmodel.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := cacheKey(entry.Provider, entry.Key)
	if el, ok := c.index[k]; ok {
		el.Value.(*lruEntry).entry = entry
		c.lru.MoveToFront(el)
		return
	}
	el := c.lru.PushFront(&lruEntry{key: k, entry: entry})
	c.index[k] = el
	if c.capacity > 0 {
		for len(c.index) > c.capacity {
			back := c.lru.Back()
			if back == nil {
				break
			}
			delete(c.index, back.Value.(*lruEntry).key)
			c.lru.Remove(back)
		}
	}
}
