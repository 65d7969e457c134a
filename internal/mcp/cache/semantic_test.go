package cache

import (
	"context"
	"testing"
	"time"

	"github.com/nulpointcorp/mcp-gateway/internal/mcp/embed"
)

func TestNativeSemanticCacheMissOnEmpty(t *testing.T) {
	c := NewNativeSemanticCache(embed.NewHashEmbedder(64), 0)
	match, err := c.Lookup(context.Background(), "what is the capital of france", 0.85)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if match != nil {
		t.Fatal("expected no match on an empty cache")
	}
}

func TestNativeSemanticCacheHitsOnIdenticalPrompt(t *testing.T) {
	ctx := context.Background()
	c := NewNativeSemanticCache(embed.NewHashEmbedder(64), 0)

	entry := &SemanticEntry{Prompt: "what is the capital of france", Response: []byte("Paris")}
	if err := c.Store(ctx, "k1", entry.Prompt, entry, time.Minute); err != nil {
		t.Fatalf("store: %v", err)
	}

	match, err := c.Lookup(ctx, "what is the capital of france", 0.9)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if match == nil {
		t.Fatal("expected a hit on an identical prompt")
	}
	if match.Similarity < 0.99 {
		t.Fatalf("similarity = %f, want ~1.0 for an identical prompt", match.Similarity)
	}
}

func TestNativeSemanticCacheMissesBelowThreshold(t *testing.T) {
	ctx := context.Background()
	c := NewNativeSemanticCache(embed.NewHashEmbedder(64), 0)

	_ = c.Store(ctx, "k1", "what is the capital of france", &SemanticEntry{Response: []byte("Paris")}, time.Minute)

	match, err := c.Lookup(ctx, "how do I bake sourdough bread", 0.95)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if match != nil {
		t.Fatalf("expected a miss for an unrelated prompt, got similarity %f", match.Similarity)
	}
}

func TestNativeSemanticCacheExpiredEntryIsEvicted(t *testing.T) {
	ctx := context.Background()
	c := NewNativeSemanticCache(embed.NewHashEmbedder(64), 0)

	_ = c.Store(ctx, "k1", "hello world", &SemanticEntry{Response: []byte("hi")}, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	match, err := c.Lookup(ctx, "hello world", 0.5)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if match != nil {
		t.Fatal("expected expired entry to be evicted from consideration")
	}
	if got := c.Stats().TotalEntries; got != 0 {
		t.Fatalf("TotalEntries = %d, want 0 after sweep-on-lookup", got)
	}
}
