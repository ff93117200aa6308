package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// CacheKeyPrefix is the Redis key prefix for cached data
	CacheKeyPrefix = "cache:"
	// DefaultCacheTTL applies when Set is called without a TTL
	DefaultCacheTTL = 10 * time.Minute

	cacheVersionSuffix = ":ver"
	cacheVersionTTL    = 24 * time.Hour
)

// CacheService is a thin JSON cache over Redis. A nil client turns every
// call into a miss/no-op, so callers never branch on Redis availability.
type CacheService struct {
	rdb *redis.Client
}

func NewCacheService(rdb *redis.Client) *CacheService {
	return &CacheService{rdb: rdb}
}

// Enabled reports whether a Redis client is configured.
func (c *CacheService) Enabled() bool {
	return c != nil && c.rdb != nil
}

// Get decodes the cached value into dest. A miss returns (false, nil).
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	val, err := c.rdb.Get(ctx, CacheKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Version returns the invalidation counter of key, 0 when it was never
// invalidated. Read it before loading the value from the source of truth and
// pass it to SetIfVersion.
func (c *CacheService) Version(ctx context.Context, key string) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	v, err := c.rdb.Get(ctx, CacheKeyPrefix+key+cacheVersionSuffix).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Invalidate drops key and bumps its version so loads that started before
// the call cannot write their stale value back.
func (c *CacheService) Invalidate(ctx context.Context, key string) error {
	if !c.Enabled() {
		return nil
	}
	verKey := CacheKeyPrefix + key + cacheVersionSuffix
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, verKey)
		p.Expire(ctx, verKey, cacheVersionTTL)
		p.Del(ctx, CacheKeyPrefix+key)
		return nil
	})
	return err
}

// SetIfVersion stores value only while the version of key still equals
// version. It reports whether the value was written.
func (c *CacheService) SetIfVersion(ctx context.Context, key string, value interface{}, ttl time.Duration, version int64) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}

	verKey := CacheKeyPrefix + key + cacheVersionSuffix
	stored := false
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, verKey).Int64()
		if errors.Is(err, redis.Nil) {
			cur, err = 0, nil
		}
		if err != nil || cur != version {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, CacheKeyPrefix+key, data, ttl)
			return nil
		})
		stored = err == nil
		return err
	}, verKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return stored, err
}

// CacheKey generates a cache key for a specific resource
func CacheKey(resource string, identifier string) string {
	return resource + ":" + identifier
}
