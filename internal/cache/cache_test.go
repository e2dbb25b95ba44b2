package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNopCache(t *testing.T) {
	c := NewNopCache()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, found, err := c.Get(ctx, "k"); err != nil || found {
		t.Errorf("Get = found %v, err %v; want miss", found, err)
	}
	if n, err := c.Incr(ctx, "k"); err != nil || n != 0 {
		t.Errorf("Incr = %d, %v", n, err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

// TEST_REDIS_ADDR が設定されている場合のみ実際のRedisで検証する。
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR が未設定のためスキップ")
	}
	ctx := context.Background()
	c, err := NewRedisCache(ctx, addr, os.Getenv("TEST_REDIS_PASSWORD"))
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	defer c.Close()

	key := "habits:test:" + uuid.New().String()
	if _, found, err := c.Get(ctx, key); err != nil || found {
		t.Fatalf("Get before Set = found %v, err %v", found, err)
	}
	if err := c.Set(ctx, key, []byte("payload"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, found, err := c.Get(ctx, key)
	if err != nil || !found || string(v) != "payload" {
		t.Errorf("Get = %q, %v, %v", v, found, err)
	}

	counter := key + ":ver"
	for want := int64(1); want <= 2; want++ {
		n, err := c.Incr(ctx, counter)
		if err != nil || n != want {
			t.Errorf("Incr = %d, %v; want %d", n, err, want)
		}
	}
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedisCache(ctx, "127.0.0.1:1", ""); err == nil {
		t.Error("expected error for unreachable redis")
	}
}
