package cache

import (
	"context"
	"sync"
	"time"

	"github.com/nulpointcorp/mcp-gateway/internal/mcp/embed"
)

// NativeSemanticCache is the spec-literal SemanticCache implementation: an
// embedding provider turns the prompt into a vector, and lookup is a linear
// cosine-similarity scan bounded by maxEntries; when full, the oldest-inserted
// entries are dropped first (a lookup does not refresh an entry). It trades
// lookup speed at large scale for being fully self-contained and
// deterministic under test — the corpus-backed alternative is
// LibrarySemanticCache.
type NativeSemanticCache struct {
	mu         sync.Mutex
	embedder   embed.Provider
	entries    []*semEntryNode
	maxEntries int
	hits, misses int64
}

type semEntryNode struct {
	key   string
	entry *SemanticEntry
}

// NewNativeSemanticCache constructs a NativeSemanticCache using embedder
// for vectorization, bounded at maxEntries (<=0 means unbounded).
func NewNativeSemanticCache(embedder embed.Provider, maxEntries int) *NativeSemanticCache {
	return &NativeSemanticCache{embedder: embedder, maxEntries: maxEntries}
}

func (c *NativeSemanticCache) Lookup(ctx context.Context, prompt string, minSimilarity float64) (*SemanticMatch, error) {
	vec, err := c.embedder.Embed(ctx, prompt)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var best *semEntryNode
	bestSim := minSimilarity
	liveIdx := c.entries[:0]
	for _, node := range c.entries {
		if now.After(node.entry.ExpiresAt) {
			continue
		}
		liveIdx = append(liveIdx, node)
		sim := embed.CosineSimilarity(vec, node.entry.Embedding)
		if sim >= bestSim {
			bestSim = sim
			best = node
		}
	}
	c.entries = liveIdx

	if best == nil {
		c.misses++
		return nil, nil
	}
	c.hits++
	return &SemanticMatch{Entry: best.entry, Similarity: bestSim}, nil
}

func (c *NativeSemanticCache) Store(ctx context.Context, key, prompt string, entry *SemanticEntry, ttl time.Duration) error {
	if entry.Embedding == nil {
		vec, err := c.embedder.Embed(ctx, prompt)
		if err != nil {
			return err
		}
		entry.Embedding = vec
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	entry.ExpiresAt = time.Now().Add(ttl)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, node := range c.entries {
		if node.key == key {
			node.entry = entry
			return nil
		}
	}
	c.entries = append(c.entries, &semEntryNode{key: key, entry: entry})
	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		c.entries = c.entries[len(c.entries)-c.maxEntries:]
	}
	return nil
}

func (c *NativeSemanticCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		TotalEntries: len(c.entries),
		HitCount:     c.hits,
		MissCount:    c.misses,
	}
}

func (c *NativeSemanticCache) Close() error { return nil }
