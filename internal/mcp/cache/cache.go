// Package cache implements the two-tier CacheTier: an ExactCache keyed on
// a canonical hash of the request, and a SemanticCache keyed on embedding
// cosine similarity. Both tiers are optional and independently swappable —
// Executor consults whichever tiers McpParams.CacheStrategy names.
package cache

import (
	"context"
	"time"
)

// ExactEntry is a stored exact-match cache hit.
type ExactEntry struct {
	Response  []byte // JSON-encoded mcp.Response
	Model     string
	Provider  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ExactCache is the exact-match tier contract. Implementations degrade
// gracefully: a backend outage must surface as a miss, never as an error
// that aborts the request.
type ExactCache interface {
	Get(ctx context.Context, key string) (*ExactEntry, bool)
	Set(ctx context.Context, key string, entry *ExactEntry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Stats() Stats
	Close() error
}

// SemanticEntry is a stored semantic cache hit.
type SemanticEntry struct {
	Prompt    string
	Embedding []float32
	Response  []byte
	Model     string
	Provider  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SemanticMatch is the outcome of a successful semantic lookup.
type SemanticMatch struct {
	Entry      *SemanticEntry
	Similarity float64
}

// SemanticCache is the similarity-match tier contract.
type SemanticCache interface {
	Lookup(ctx context.Context, prompt string, minSimilarity float64) (*SemanticMatch, error)
	Store(ctx context.Context, key, prompt string, entry *SemanticEntry, ttl time.Duration) error
	Stats() Stats
	Close() error
}

// Stats is the common accounting surface both tiers expose for
// Pipeline.Stats().
type Stats struct {
	TotalEntries       int
	HitCount           int64
	MissCount          int64
	ExpiredOnLastSweep int
	EstMemoryBytes     int64
}
