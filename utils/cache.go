package utils

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultCacheTTL = time.Hour
	cacheOpTimeout  = 2 * time.Second
)

// RedisCache stores JSON payloads in Redis. Every failure is logged and
// reported as a miss so callers fall back to the ledger.
type RedisCache struct {
	rc *redis.Client
}

// NewRedisCache wraps rc. It returns nil when rc is nil.
func NewRedisCache(rc *redis.Client) *RedisCache {
	if rc == nil {
		return nil
	}
	return &RedisCache{rc: rc}
}

// GetJSON loads key into out and reports whether it was found.
func (c *RedisCache) GetJSON(ctx context.Context, key string, out interface{}) bool {
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	b, err := c.rc.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			L().Debugf("cache get miss key=%s err=%v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(b, out); err != nil {
		L().Warnf("cache decode failed key=%s err=%v", key, err)
		return false
	}
	return true
}

// SetJSON marshals v and stores it under key.
func (c *RedisCache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	if err := c.rc.Set(ctx, key, b, ttl).Err(); err != nil {
		L().Warnf("cache set failed key=%s err=%v", key, err)
	}
}

// Delete removes keys.
func (c *RedisCache) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	if err := c.rc.Del(ctx, keys...).Err(); err != nil {
		L().Warnf("cache delete failed keys=%v err=%v", keys, err)
	}
}
