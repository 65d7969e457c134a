package cache

import (
	"context"
	"time"

	"github.com/botirk38/semanticcache"
	"github.com/botirk38/semanticcache/options"
)

// LibrarySemanticCache delegates the semantic tier to
// github.com/botirk38/semanticcache, the embedding+cosine-similarity+
// pluggable-backend library the rest of the retrieval pack uses for this
// exact purpose. It is the production-grade alternative to
// NativeSemanticCache — configure it when an OpenAI API key is available
// and an LRU or Redis-backed store is wanted without hand-rolling eviction.
type LibrarySemanticCache struct {
	cache *semanticcache.SemanticCache[string, []byte]
}

// NewLibraryLRUSemanticCache builds a LibrarySemanticCache backed by an
// in-process LRU of the given capacity, embedding with OpenAI's API.
func NewLibraryLRUSemanticCache(openAIAPIKey, embedModel string, capacity int) (*LibrarySemanticCache, error) {
	c, err := semanticcache.New[string, []byte](
		options.WithOpenAIProvider[string, []byte](openAIAPIKey, embedModel),
		options.WithLRUBackend[string, []byte](capacity),
	)
	if err != nil {
		return nil, err
	}
	return &LibrarySemanticCache{cache: c}, nil
}

// NewLibraryRedisSemanticCache builds a LibrarySemanticCache backed by
// Redis, so semantic hits survive process restarts and are shared across
// replicas.
func NewLibraryRedisSemanticCache(openAIAPIKey, embedModel, redisURL string, db int) (*LibrarySemanticCache, error) {
	c, err := semanticcache.New[string, []byte](
		options.WithOpenAIProvider[string, []byte](openAIAPIKey, embedModel),
		options.WithRedisBackend[string, []byte](redisURL, db),
	)
	if err != nil {
		return nil, err
	}
	return &LibrarySemanticCache{cache: c}, nil
}

func (c *LibrarySemanticCache) Lookup(ctx context.Context, prompt string, minSimilarity float64) (*SemanticMatch, error) {
	match, err := c.cache.Lookup(ctx, prompt, float32(minSimilarity))
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, nil
	}
	return &SemanticMatch{
		Entry:      &SemanticEntry{Prompt: prompt, Response: match.Value},
		Similarity: float64(match.Score),
	}, nil
}

func (c *LibrarySemanticCache) Store(ctx context.Context, key, prompt string, entry *SemanticEntry, ttl time.Duration) error {
	// Fire-and-forget, matching the library's own async-store idiom — a
	// cache write must never block or fail the request it is caching.
	c.cache.SetAsync(ctx, key, prompt, entry.Response)
	return nil
}

// Stats is unavailable from the library's public surface; it reports a
// zero-value Stats rather than guessing.
func (c *LibrarySemanticCache) Stats() Stats { return Stats{} }

func (c *LibrarySemanticCache) Close() error { return c.cache.Close() }
