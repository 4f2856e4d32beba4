package enricher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"leadpipe/internal/leadmodel"
)

// RedisCache is the optional distributed backend for the enrichment
// cache, behind the same Cache interface as LRUCache, for deployments
// that run multiple Enricher processes against one shared provider
// quota.
type RedisCache struct {
	client *redis.Client
	ctx    context.Context
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, ctx: context.Background()}
}

func (r *RedisCache) Get(provider, key string) (leadmodel.CacheEntry, bool) {
	raw, err := r.client.Get(r.ctx, cacheKey(provider, key)).Result()
	if err != nil {
		return leadmodel.CacheEntry{}, false
	}
	var entry leadmodel.CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return leadmodel.CacheEntry{}, false
	}
	if entry.Expired(time.Now()) {
		return leadmodel.CacheEntry{}, false
	}
	return entry, true
}

func (r *RedisCache) Set(entry leadmodel.CacheEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	ttl := entry.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	r.client.Set(r.ctx, cacheKey(entry.Provider, entry.Key), data, ttl)
}
