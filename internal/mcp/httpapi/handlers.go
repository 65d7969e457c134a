package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/mcp-gateway/internal/mcp"
	"github.com/nulpointcorp/mcp-gateway/pkg/apierr"
)

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}

// handleComplete is POST /v1/complete: parses the request body into an
// mcp.Request, submits it to the Pipeline, and blocks on the returned
// Future until the request's own deadline expires.
func (s *Server) handleComplete(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	reqID, _ := ctx.UserValue("request_id").(string)

	var body completeRequest
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		apierr.Write(ctx, fasthttp.StatusBadRequest,
			fmt.Sprintf("invalid JSON: %s", err.Error()),
			apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}
	if body.Prompt == "" {
		apierr.Write(ctx, fasthttp.StatusBadRequest,
			"field 'prompt' is required", apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}

	req := buildRequest(body)
	priority := mcp.Priority(s.inferPriority(body.Metadata.Priority, body.Metadata.Type))

	future, err := s.pipe.Submit(ctx, req, priority)
	if err != nil {
		if mcpErr, ok := err.(*mcp.Error); ok {
			apierr.WriteMCPError(ctx, mcpErr)
		} else {
			apierr.Write(ctx, fasthttp.StatusInternalServerError, err.Error(), apierr.TypeServerError, apierr.CodeInternalError)
		}
		return
	}

	resp, err := future.Wait(ctx)
	if err != nil {
		apierr.WriteTimeout(ctx)
		return
	}

	s.log.InfoContext(ctx, "complete",
		slog.String("request_id", reqID),
		slog.String("model", resp.Model),
		slog.String("provider", resp.Provider),
		slog.Bool("from_cache", resp.FromCache),
		slog.String("duration", time.Since(start).String()),
	)

	if !resp.Success && resp.Err != nil {
		apierr.WriteMCPError(ctx, resp.Err)
		return
	}
	writeJSON(ctx, toCompleteResponse(resp))
}

func buildRequest(body completeRequest) *mcp.Request {
	req := &mcp.Request{
		Prompt:       body.Prompt,
		SystemPrompt: body.SystemPrompt,
		Model:        body.Model,
		Temperature:  body.Temperature,
		MaxTokens:    body.MaxTokens,
		TaskType:     mcp.TaskType(orDefault(body.TaskType, string(mcp.TaskGeneral))),
		TimeoutMs:    body.TimeoutMs,
		Metadata: mcp.RequestMetadata{
			Type:                 body.Metadata.Type,
			Priority:             body.Metadata.Priority,
			RequiresReasoning:    body.Metadata.RequiresReasoning,
			RequiresCode:         body.Metadata.RequiresCode,
			RequiresMath:         body.Metadata.RequiresMath,
			RequiresFactual:      body.Metadata.RequiresFactual,
			PromptTokens:         body.Metadata.PromptTokens,
			ExpectedOutputTokens: body.Metadata.ExpectedOutputTokens,
		},
	}
	if body.Complexity != "" {
		req.ComplexityLevel = mcp.ComplexityLevel(body.Complexity)
	}

	p := body.Params
	req.Params = mcp.McpParams{
		CacheStrategy:     mcp.CacheStrategy(orDefault(p.CacheStrategy, string(mcp.CacheHybrid))),
		MinSimilarity:     p.MinSimilarity,
		CacheTTL:          time.Duration(p.CacheTTLSeconds) * time.Second,
		Priority:          mcp.RouterPriority(orDefault(p.RouterPriority, string(mcp.RouterSpeed))),
		StoreResult:       p.StoreResult,
		PreferredProvider: p.PreferredProvider,
	}
	return req
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	stats := s.pipe.Stats()
	status := "ok"
	var providersHealth map[string]string
	var cacheHealth string
	if s.health != nil {
		snap := s.health.snapshot()
		status = snap.Status
		providersHealth = snap.Providers
		cacheHealth = snap.Cache
	}
	writeJSON(ctx, map[string]any{
		"status":           status,
		"uptime_seconds":   int64(time.Since(s.startedAt).Seconds()),
		"providers":        providersHealth,
		"cache":            cacheHealth,
		"queue_depth":      stats.QueueDepth,
		"queue_capacity":   stats.QueueCapacity,
		"inflight_count":   stats.InflightCount,
		"dispatcher_count": stats.DispatcherCount,
	})
}

func (s *Server) handleReadiness(ctx *fasthttp.RequestCtx) {
	if s.health != nil && !s.health.ready() {
		apierr.Write(ctx, fasthttp.StatusServiceUnavailable, "cache backend unreachable", apierr.TypeServerError, apierr.CodeInternalError)
		return
	}
	writeJSON(ctx, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(ctx *fasthttp.RequestCtx) {
	stats := s.pipe.Stats()
	runtime := s.pipe.RuntimeState()
	body := map[string]any{
		"queue":   stats,
		"runtime": runtime,
	}
	if s.recent != nil {
		body["recent"] = s.recent.Recent(50)
	}
	writeJSON(ctx, body)
}

// handleAdminStrategy is POST /admin/strategy: toggles the runtime-mutable
// behavior the Pipeline delegates to config.Manager.
func (s *Server) handleAdminStrategy(ctx *fasthttp.RequestCtx) {
	var body strategyRequest
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		apierr.Write(ctx, fasthttp.StatusBadRequest,
			fmt.Sprintf("invalid JSON: %s", err.Error()),
			apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}

	if body.Strategy != "" {
		if err := s.pipe.SetStrategy(body.Strategy); err != nil {
			if mcpErr, ok := err.(*mcp.Error); ok {
				apierr.WriteMCPError(ctx, mcpErr)
			} else {
				apierr.Write(ctx, fasthttp.StatusBadRequest, err.Error(), apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
			}
			return
		}
	}
	if body.PreferredProvider != "" {
		s.pipe.SetPreferredProvider(body.PreferredProvider)
	}
	if body.MultiProviderEnabled != nil {
		s.pipe.SetMultiProviderEnabled(*body.MultiProviderEnabled)
	}
	if body.SemanticCacheEnabled != nil {
		s.pipe.SetSemanticCacheEnabled(*body.SemanticCacheEnabled)
	}
	if body.SmartRoutingEnabled != nil {
		s.pipe.SetSmartRoutingEnabled(*body.SmartRoutingEnabled)
	}
	if body.DefaultTTLSeconds > 0 {
		s.pipe.SetDefaultTTL(time.Duration(body.DefaultTTLSeconds) * time.Second)
	}

	writeJSON(ctx, s.pipe.RuntimeState())
}
