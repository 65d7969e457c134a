package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultQueryTimeout = 500 * time.Millisecond

// RedisExactCache is a Redis-backed exact-match tier, adapted from the
// teacher's ExactCache: same graceful-degradation contract (a Redis outage
// degrades to a miss on Get and a silent no-op on Set rather than failing
// the request), extended to store the richer ExactEntry envelope this
// protocol needs (model/provider/timestamps) instead of a raw byte blob.
type RedisExactCache struct {
	client       *redis.Client
	queryTimeout time.Duration
	hits, misses int64
}

// NewRedisExactCacheFromClient wraps an existing client; the caller owns
// its lifecycle.
func NewRedisExactCacheFromClient(client *redis.Client) *RedisExactCache {
	return &RedisExactCache{client: client, queryTimeout: defaultQueryTimeout}
}

// NewRedisExactCacheFromURL parses redisURL, builds a client, and verifies
// connectivity with a bounded PING.
func NewRedisExactCacheFromURL(ctx context.Context, redisURL string) (*RedisExactCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: parse url: %w", err)
	}
	cli := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pingCtx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	return &RedisExactCache{client: cli, queryTimeout: defaultQueryTimeout}, nil
}

func (c *RedisExactCache) Get(ctx context.Context, key string) (*ExactEntry, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.WarnContext(ctx, "exact_cache_get_error", slog.String("key", key), slog.String("error", err.Error()))
		}
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	var entry ExactEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		slog.WarnContext(ctx, "exact_cache_decode_error", slog.String("key", key), slog.String("error", err.Error()))
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	atomic.AddInt64(&c.hits, 1)
	return &entry, true
}

func (c *RedisExactCache) Set(ctx context.Context, key string, entry *ExactEntry, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	raw, err := json.Marshal(entry)
	if err != nil {
		return nil // degrade: never fail the request over a cache encode error
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		slog.WarnContext(ctx, "exact_cache_set_error", slog.String("key", key), slog.String("error", err.Error()))
	}
	return nil // always nil — graceful degradation
}

func (c *RedisExactCache) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: DEL %s: %w", key, err)
	}
	return nil
}

func (c *RedisExactCache) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), c.queryTimeout)
	defer cancel()

	var dbSize int64
	if n, err := c.client.DBSize(ctx).Result(); err == nil {
		dbSize = n
	}
	return Stats{
		TotalEntries: int(dbSize),
		HitCount:     atomic.LoadInt64(&c.hits),
		MissCount:    atomic.LoadInt64(&c.misses),
	}
}

func (c *RedisExactCache) Close() error {
	return c.client.Close()
}
