// Package gateway adapts the kept provider clients
// (internal/providers/{openai,anthropic,gemini,mistral,azure,bedrock,
// vertexai,openaicompat}) to the Executor's normalized call shape, and
// classifies every provider failure into one of the typed mcp.ErrorKinds
// the retry/failover logic in internal/mcp/executor understands.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/nulpointcorp/mcp-gateway/internal/mcp"
	"github.com/nulpointcorp/mcp-gateway/internal/providers"
)

// Request is the gateway's normalized call shape, filled in by the
// Executor from an mcp.Request plus the model SmartRouter selected.
type Request struct {
	Model        string
	Prompt       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	RequestID    string
}

// Response is the gateway's normalized result shape.
type Response struct {
	Content string
	Usage   mcp.Usage
}

// Gateway sends a normalized Request to the provider client registered
// under the provider name the caller passes; it does no model-to-provider
// lookup of its own.
type Gateway struct {
	providers map[string]providers.Provider
}

// New builds a Gateway over an already-constructed provider map (keyed by
// provider family name: "openai", "anthropic", "gemini", ...).
func New(provs map[string]providers.Provider) *Gateway {
	return &Gateway{providers: provs}
}

// Providers returns the configured provider family names.
func (g *Gateway) Providers() []string {
	names := make([]string, 0, len(g.providers))
	for name := range g.providers {
		names = append(names, name)
	}
	return names
}

// Has reports whether provider is configured.
func (g *Gateway) Has(provider string) bool {
	_, ok := g.providers[provider]
	return ok
}

// Call dispatches req to provider, converting the result or error into the
// gateway's normalized shapes. Unknown providers are a fatal config error —
// SmartRouter should never select a model whose provider isn't wired.
func (g *Gateway) Call(ctx context.Context, provider string, req *Request) (*Response, *mcp.Error) {
	p, ok := g.providers[provider]
	if !ok {
		return nil, mcp.NewConfigError(fmt.Sprintf("gateway: provider %q is not configured", provider))
	}

	messages := make([]providers.Message, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, providers.Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, providers.Message{Role: "user", Content: req.Prompt})

	resp, err := p.Request(ctx, &providers.ProxyRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		RequestID:   req.RequestID,
	})
	if err != nil {
		return nil, classifyError(provider, err)
	}

	return &Response{
		Content: resp.Content,
		Usage: mcp.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

// HealthCheck proxies to the provider's own health probe.
func (g *Gateway) HealthCheck(ctx context.Context, provider string) error {
	p, ok := g.providers[provider]
	if !ok {
		return fmt.Errorf("gateway: provider %q is not configured", provider)
	}
	return p.HealthCheck(ctx)
}

// classifyError mirrors the teacher's proxy.classifyError: a StatusCoder
// with a 429 is rate-limiting, 5xx/unknown is transient (retry candidate),
// anything else (4xx) is fatal (do not retry).
func classifyError(provider string, err error) *mcp.Error {
	var sc providers.StatusCoder
	if errors.As(err, &sc) {
		status := sc.HTTPStatus()
		switch {
		case status == 429:
			return mcp.NewProviderError(mcp.ErrProviderRateLimited, provider, err.Error(), err)
		case status >= 500:
			return mcp.NewProviderError(mcp.ErrProviderTransient, provider, err.Error(), err)
		default:
			return mcp.NewProviderError(mcp.ErrProviderFatal, provider, err.Error(), err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return mcp.NewTimeoutError(provider)
	}
	// Unknown errors are treated as transient, matching the teacher's
	// isRetryable default — a network blip should not be fatal.
	return mcp.NewProviderError(mcp.ErrProviderTransient, provider, err.Error(), err)
}
