package enrich

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is the lookup cache contract shared by enrichment stages. Keys are
// typically IPs; values are the stage's enrichment payload. Caches are
// independent of the event window and its lock.
type Cache interface {
	Get(ctx context.Context, key string) (map[string]interface{}, bool)
	Set(ctx context.Context, key string, value map[string]interface{})
}

// LRUCache is an in-process TTL cache backed by hashicorp's expirable LRU.
type LRUCache struct {
	lru *expirable.LRU[string, map[string]interface{}]
}

// NewLRUCache creates a cache holding up to size entries for ttl each.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	return &LRUCache{
		lru: expirable.NewLRU[string, map[string]interface{}](size, nil, ttl),
	}
}

// Get returns the cached payload for key, if present and unexpired.
func (c *LRUCache) Get(_ context.Context, key string) (map[string]interface{}, bool) {
	return c.lru.Get(key)
}

// Set stores the payload for key.
func (c *LRUCache) Set(_ context.Context, key string, value map[string]interface{}) {
	c.lru.Add(key, value)
}
