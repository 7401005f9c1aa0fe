// Package redis provides a Redis-backed cache.Cache implementation. It
// registers itself under the name "redis" in the cache registry and is the
// backing store for ChatSession summary caches and extraction
// content-hash dedup lookups (spec §3, §4.5).
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lookatitude/docintel/cache"
)

func init() {
	cache.Register("redis", func(cfg cache.Config) (cache.Cache, error) {
		addr, _ := cache.GetOption[string](cfg, "addr")
		if addr == "" {
			addr = "localhost:6379"
		}
		password, _ := cache.GetOption[string](cfg, "password")
		db, _ := cache.GetOption[int](cfg, "db")
		client := goredis.NewClient(&goredis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		})
		return New(client, cfg.TTL), nil
	})
}

// Cache is a cache.Cache implementation backed by a Redis client. Values are
// JSON-encoded; keys with no TTL are stored with Redis' KeepTTL semantics
// disabled (no expiration).
type Cache struct {
	client     *goredis.Client
	defaultTTL time.Duration
}

// New wraps an existing Redis client as a cache.Cache.
func New(client *goredis.Client, defaultTTL time.Duration) *Cache {
	return &Cache{client: client, defaultTTL: defaultTTL}
}

func (c *Cache) Get(ctx context.Context, key string) (any, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis cache get %q: %w", key, err)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, fmt.Errorf("redis cache decode %q: %w", key, err)
	}
	return value, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis cache encode %q: %w", key, err)
	}
	switch {
	case ttl > 0:
		// explicit TTL
	case ttl < 0:
		ttl = 0 // no expiration
	default:
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis cache set %q: %w", key, err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis cache delete %q: %w", key, err)
	}
	return nil
}

// Clear flushes the selected Redis database. It is intended for tests and
// local development only — calling it against a shared production database
// would erase every key the process shares the DB with.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("redis cache clear: %w", err)
	}
	return nil
}

var _ cache.Cache = (*Cache)(nil)
