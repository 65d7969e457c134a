// Package mcp is the public library façade over the Model-Completions-
// Protocol pipeline: embed a Client in another Go program the same way the
// HTTP surface embeds a Pipeline, without going through a network hop.
package mcp

import (
	"context"
	"time"

	"github.com/nulpointcorp/mcp-gateway/internal/config"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/pipeline"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/router"
)

// Re-exported types so callers never need to import internal/mcp directly.
type (
	Request         = mcp.Request
	Response        = mcp.Response
	RequestMetadata = mcp.RequestMetadata
	McpParams       = mcp.McpParams
	Priority        = mcp.Priority
	CacheStrategy   = mcp.CacheStrategy
	RouterPriority  = mcp.RouterPriority
	TaskType        = mcp.TaskType
	ComplexityLevel = mcp.ComplexityLevel
)

const (
	PriorityLow    = mcp.PriorityLow
	PriorityNormal = mcp.PriorityNormal
	PriorityHigh   = mcp.PriorityHigh
)

// Client wraps a *pipeline.Pipeline behind the in-process library surface:
// Submit blocks on the routed Request's Future the same way the HTTP
// handler does, minus the JSON marshaling round-trip.
type Client struct {
	pipe *pipeline.Pipeline
}

// New wraps an already-constructed Pipeline. Use internal/app for full
// process wiring (providers, caches, event sinks) — this constructor is for
// embedding the pipeline in another Go binary that builds its own Executor.
func New(pipe *pipeline.Pipeline) *Client {
	return &Client{pipe: pipe}
}

// Complete submits req at the given priority and blocks until a Response is
// delivered or ctx is done.
func (c *Client) Complete(ctx context.Context, req *Request, priority Priority) (*Response, error) {
	future, err := c.pipe.Submit(ctx, req, priority)
	if err != nil {
		return nil, err
	}
	return future.Wait(ctx)
}

// Stats returns the Pipeline's current queue/inflight accounting.
func (c *Client) Stats() pipeline.Stats {
	return c.pipe.Stats()
}

// RuntimeState returns the Pipeline's current admin-mutable state.
func (c *Client) RuntimeState() config.RuntimeState {
	return c.pipe.RuntimeState()
}

// -- admin surface: thin delegation to the underlying Pipeline --

func (c *Client) SetStrategy(name string) error { return c.pipe.SetStrategy(name) }

func (c *Client) UpdateStrategyConfig(name string, preset router.StrategyPreset) {
	c.pipe.UpdateStrategyConfig(name, preset)
}

func (c *Client) SetMultiProviderEnabled(enabled bool) { c.pipe.SetMultiProviderEnabled(enabled) }
func (c *Client) SetPreferredProvider(provider string)  { c.pipe.SetPreferredProvider(provider) }
func (c *Client) SetSemanticCacheEnabled(enabled bool)   { c.pipe.SetSemanticCacheEnabled(enabled) }
func (c *Client) SetSmartRoutingEnabled(enabled bool)    { c.pipe.SetSmartRoutingEnabled(enabled) }
func (c *Client) SetDefaultTTL(ttl time.Duration)        { c.pipe.SetDefaultTTL(ttl) }

// Close stops the underlying Pipeline's dispatcher goroutines.
func (c *Client) Close() { c.pipe.Close() }
