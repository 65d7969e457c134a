package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisExactCache(t *testing.T) (*RedisExactCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisExactCacheFromClient(client), mr
}

func TestRedisExactCacheGetSetDelete(t *testing.T) {
	c, _ := newTestRedisExactCache(t)
	defer c.Close()
	ctx := context.Background()

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Fatal("expected miss on empty cache")
	}

	entry := &ExactEntry{Response: []byte(`{"ok":true}`), Model: "claude-opus", Provider: "anthropic"}
	if err := c.Set(ctx, "k1", entry, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok := c.Get(ctx, "k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Provider != "anthropic" {
		t.Fatalf("provider = %q, want anthropic", got.Provider)
	}

	if err := c.Delete(ctx, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := c.Get(ctx, "k1"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestRedisExactCacheDegradesOnOutage(t *testing.T) {
	c, mr := newTestRedisExactCache(t)
	defer c.Close()
	ctx := context.Background()

	mr.Close() // simulate a Redis outage

	if _, ok := c.Get(ctx, "anything"); ok {
		t.Fatal("expected Get to degrade to a miss when Redis is unavailable")
	}
	if err := c.Set(ctx, "anything", &ExactEntry{}, time.Minute); err != nil {
		t.Fatalf("expected Set to degrade silently, got error: %v", err)
	}
}

func TestRedisExactCacheExpires(t *testing.T) {
	c, mr := newTestRedisExactCache(t)
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "k", &ExactEntry{}, 50*time.Millisecond)
	mr.FastForward(100 * time.Millisecond)

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected expired entry to miss")
	}
}
