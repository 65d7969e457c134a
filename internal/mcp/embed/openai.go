package embed

import (
	"context"
	"fmt"

	"github.com/nulpointcorp/mcp-gateway/internal/providers"
)

// OpenAIEmbedder adapts any providers.EmbeddingProvider (in practice the
// OpenAI client, whose text-embedding-3-* models are the corpus's default
// choice for semantic caching) to the embed.Provider contract.
type OpenAIEmbedder struct {
	ep    providers.EmbeddingProvider
	model string
	dim   int
}

// NewOpenAIEmbedder wraps ep. dim must match the configured model's output
// dimension (1536 for text-embedding-3-small, 3072 for -large); it is not
// discoverable from the API response alone without a round trip, so it is
// supplied by configuration.
func NewOpenAIEmbedder(ep providers.EmbeddingProvider, model string, dim int) *OpenAIEmbedder {
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dim <= 0 {
		dim = 1536
	}
	return &OpenAIEmbedder{ep: ep, model: model, dim: dim}
}

func (o *OpenAIEmbedder) Dimension() int { return o.dim }

func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.ep.Embed(ctx, &providers.EmbeddingRequest{
		Input: []string{text},
		Model: o.model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embed: empty response")
	}
	vec := resp.Data[0].Embedding
	normalize(vec)
	return vec, nil
}
