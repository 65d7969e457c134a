// Package embed provides the EmbeddingProvider implementations the
// semantic cache tier uses to turn a prompt into a unit-norm vector for
// cosine-similarity lookup.
package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Provider turns text into a fixed-dimension embedding vector.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// HashEmbedder is a deterministic, dependency-free reference embedder: a
// hashed bag-of-words projected into a fixed-size vector and L2-normalized.
// It is not semantically meaningful across unrelated vocabularies, but it
// is stable, fast, and sufficient for tests and for deployments without an
// embeddings API key configured.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder constructs a HashEmbedder with the given vector
// dimension. dim<=0 defaults to 256.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimension() int { return h.dim }

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		sum := fnv.New32a()
		_, _ = sum.Write([]byte(tok))
		idx := int(sum.Sum32()) % h.dim
		if idx < 0 {
			idx += h.dim
		}
		vec[idx]++
	}
	normalize(vec)
	return vec, nil
}

func normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
}

// CosineSimilarity computes the cosine similarity of two equal-length
// vectors, assuming they are already unit-normalized (dot product suffices).
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
