package mcp

import (
	"context"
	"testing"

	"github.com/nulpointcorp/mcp-gateway/internal/config"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/cache"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/embed"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/executor"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/gateway"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/pipeline"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/router"
	"github.com/nulpointcorp/mcp-gateway/internal/providers"
)

type stubProvider struct{}

func (stubProvider) Name() string { return "mock" }
func (stubProvider) Request(ctx context.Context, req *providers.ProxyRequest) (*providers.ProxyResponse, error) {
	return &providers.ProxyResponse{Content: "pong", Usage: providers.Usage{InputTokens: 1, OutputTokens: 1}}, nil
}
func (stubProvider) HealthCheck(ctx context.Context) error { return nil }

func newTestClient(t *testing.T) *Client {
	t.Helper()
	r := router.New()
	r.Override("mock-model", router.ModelMetadata{Provider: "mock", AverageResponseTimeMs: 500})

	exec := executor.New(executor.Options{
		Gateway:       gateway.New(map[string]providers.Provider{"mock": stubProvider{}}),
		Router:        r,
		ExactCache:    cache.NewMemoryExactCache(context.Background(), 0),
		SemanticCache: cache.NewNativeSemanticCache(embed.NewHashEmbedder(64), 0),
		MaxRetries:    1,
	})
	p := pipeline.New(pipeline.Options{
		Executor: exec, Manager: config.NewManager(&config.Config{}),
		QueueCapacity: 8, DispatcherCount: 2,
	})
	c := New(p)
	t.Cleanup(c.Close)
	return c
}

func TestClientCompleteDeliversResponse(t *testing.T) {
	c := newTestClient(t)
	resp, err := c.Complete(context.Background(), &Request{Prompt: "ping", Model: "mock-model"}, PriorityNormal)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !resp.Success || resp.RawText != "pong" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestClientAdminDelegation(t *testing.T) {
	c := newTestClient(t)
	if err := c.SetStrategy("conservative"); err != nil {
		t.Fatalf("SetStrategy: %v", err)
	}
	c.SetPreferredProvider("mock")

	state := c.RuntimeState()
	if state.Strategy != "conservative" || state.PreferredProvider != "mock" {
		t.Fatalf("unexpected runtime state: %+v", state)
	}
}

func TestClientSetStrategyRejectsUnknownName(t *testing.T) {
	c := newTestClient(t)
	if err := c.SetStrategy("does-not-exist"); err == nil {
		t.Fatal("expected an error for an unknown strategy name")
	}
}
