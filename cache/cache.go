// Package cache keeps canonical tables between requests. Stores hold opaque
// bytes; the Memoizer layers JSON encoding and load deduplication on top.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"commodity-prices/config"
)

// Store is a byte-oriented key/value cache with per-entry expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

const defaultMemoryEntries = 64

// NewStore builds the store selected by cfg.CacheBackend. "none" returns a
// nil store, which the Memoizer treats as caching disabled.
func NewStore(cfg *config.Config) (Store, error) {
	switch strings.ToLower(cfg.CacheBackend) {
	case "", "memory":
		return NewMemoryStore(defaultMemoryEntries, cfg.CacheTTL), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("cache: redis connection failed: %w", err)
		}
		return NewRedisStore(client, "commodity-prices:"), nil
	case "none", "off":
		return nil, nil
	}
	return nil, fmt.Errorf("cache: unknown backend %q", cfg.CacheBackend)
}
