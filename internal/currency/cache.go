package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/revenue-engine/pkg/redis"
)

// Cache is a shared second-level store for the rate table.
type Cache interface {
	Load(ctx context.Context) (*RateTable, error)
	Store(ctx context.Context, table *RateTable, ttl time.Duration) error
}

// RedisCache keeps the rate table as JSON under a namespaced key so every
// worker shares one remote fetch per TTL.
type RedisCache struct {
	kv  redis.KV
	key string
}

// NewRedisCache binds the cache to the pivot currency's key.
func NewRedisCache(kv redis.KV, pivot string) *RedisCache {
	return &RedisCache{kv: kv, key: kv.RatesKey(NormalizeCode(pivot))}
}

// Load returns nil, nil when nothing is cached.
func (c *RedisCache) Load(ctx context.Context) (*RateTable, error) {
	raw, err := c.kv.Get(ctx, c.key)
	if redis.IsNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cached rates: %w", err)
	}
	var table RateTable
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		return nil, fmt.Errorf("decode cached rates: %w", err)
	}
	return &table, nil
}

// Store writes the table with the given TTL.
func (c *RedisCache) Store(ctx context.Context, table *RateTable, ttl time.Duration) error {
	if table == nil {
		return nil
	}
	raw, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("encode rates: %w", err)
	}
	if err := c.kv.Set(ctx, c.key, string(raw), ttl); err != nil {
		return fmt.Errorf("store cached rates: %w", err)
	}
	return nil
}
