// Package cache はダッシュボード集計結果のキャッシュを提供する。
// REDIS_ADDRが設定されている場合はRedis、未設定の場合は何も保持しない実装を使う。
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache はキーと値のキャッシュのインターフェース。
type Cache interface {
	// Get はキーの値を返す。存在しない場合はfound=falseを返す。
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Set はTTL付きで値を保存する。
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Incr はキーの整数値を1加算し、加算後の値を返す。
	Incr(ctx context.Context, key string) (int64, error)
	// Close は接続を閉じる。
	Close() error
}

// RedisCache はRedisを使用したCache実装。
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache はRedisCacheを生成し、接続を確認する。
func NewRedisCache(ctx context.Context, addr, password string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis %s: %w", addr, err)
	}
	return &RedisCache{client: client}, nil
}

// Get はキーの値を返す。
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cache key: %w", err)
	}
	return b, true, nil
}

// Set はTTL付きで値を保存する。
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache key: %w", err)
	}
	return nil
}

// Incr はキーの整数値を1加算する。
func (c *RedisCache) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment cache key: %w", err)
	}
	return n, nil
}

// Close は接続を閉じる。
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// NopCache は何も保持しないCache実装。
type NopCache struct{}

// NewNopCache はNopCacheを生成する。
func NewNopCache() NopCache { return NopCache{} }

func (NopCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NopCache) Incr(context.Context, string) (int64, error) { return 0, nil }
func (NopCache) Close() error { return nil }

var (
	_ Cache = (*RedisCache)(nil)
	_ Cache = NopCache{}
)
