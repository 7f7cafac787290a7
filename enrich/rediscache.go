package enrich

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache shares enrichment lookups across engine instances so a fleet
// does not hammer the reputation service with the same IPs. Failures are
// treated as cache misses; Redis being down never blocks enrichment.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewRedisCache creates a Redis-backed enrichment cache.
func NewRedisCache(addr, password string, db, poolSize int, prefix string, ttl time.Duration, logger *zap.SugaredLogger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

// Ping tests the Redis connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Get returns the cached payload for key. Any Redis or decode error is
// logged and reported as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (map[string]interface{}, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Debugw("Redis cache get failed", "key", key, "error", err)
		return nil, false
	}

	var value map[string]interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		c.logger.Warnw("Redis cache entry corrupt, discarding", "key", key, "error", err)
		return nil, false
	}
	return value, true
}

// Set stores the payload for key with the cache TTL. Errors are logged and
// dropped.
func (c *RedisCache) Set(ctx context.Context, key string, value map[string]interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warnw("Failed to marshal cache value", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Debugw("Redis cache set failed", "key", key, "error", err)
	}
}
