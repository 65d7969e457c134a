package httpapi

import "github.com/nulpointcorp/mcp-gateway/internal/mcp"

// completeRequest is the POST /v1/complete request body.
type completeRequest struct {
	Prompt       string         `json:"prompt"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Model        string         `json:"model,omitempty"`
	Temperature  float64        `json:"temperature,omitempty"`
	MaxTokens    int            `json:"max_tokens,omitempty"`
	TaskType     string         `json:"task_type,omitempty"`
	Complexity   string         `json:"complexity,omitempty"`
	TimeoutMs    int64          `json:"timeout_ms,omitempty"`
	Metadata     requestMeta    `json:"metadata,omitempty"`
	Params       completeParams `json:"params,omitempty"`
}

type requestMeta struct {
	Type                 string `json:"type,omitempty"`
	Priority             string `json:"priority,omitempty"`
	RequiresReasoning    bool   `json:"requires_reasoning,omitempty"`
	RequiresCode         bool   `json:"requires_code,omitempty"`
	RequiresMath         bool   `json:"requires_math,omitempty"`
	RequiresFactual      bool   `json:"requires_factual,omitempty"`
	PromptTokens         int    `json:"prompt_tokens,omitempty"`
	ExpectedOutputTokens int    `json:"expected_output_tokens,omitempty"`
}

type completeParams struct {
	CacheStrategy     string  `json:"cache_strategy,omitempty"`
	MinSimilarity     float64 `json:"min_similarity,omitempty"`
	CacheTTLSeconds   int64   `json:"cache_ttl_seconds,omitempty"`
	RouterPriority    string  `json:"router_priority,omitempty"`
	StoreResult       bool    `json:"store_result,omitempty"`
	PreferredProvider string  `json:"preferred_provider,omitempty"`
	Strategy          string  `json:"strategy,omitempty"`
}

// completeResponse is the POST /v1/complete response body.
type completeResponse struct {
	Success        bool    `json:"success"`
	Text           string  `json:"text,omitempty"`
	Model          string  `json:"model,omitempty"`
	Provider       string  `json:"provider,omitempty"`
	PromptTokens   int     `json:"prompt_tokens,omitempty"`
	OutputTokens   int     `json:"completion_tokens,omitempty"`
	TotalTokens    int     `json:"total_tokens,omitempty"`
	ProcessingMs   int64   `json:"processing_time_ms"`
	FromCache      bool    `json:"from_cache"`
	CacheSimilarity float64 `json:"cache_similarity,omitempty"`
	SavedTokens    int     `json:"saved_tokens,omitempty"`
	SavedCostUSD   float64 `json:"saved_cost_usd,omitempty"`
}

func toCompleteResponse(resp *mcp.Response) completeResponse {
	return completeResponse{
		Success:         resp.Success,
		Text:            resp.RawText,
		Model:           resp.Model,
		Provider:        resp.Provider,
		PromptTokens:    resp.Usage.PromptTokens,
		OutputTokens:    resp.Usage.CompletionTokens,
		TotalTokens:     resp.Usage.TotalTokens,
		ProcessingMs:    resp.ProcessingTime.Milliseconds(),
		FromCache:       resp.FromCache,
		CacheSimilarity: resp.Similarity,
		SavedTokens:     resp.Savings.Tokens,
		SavedCostUSD:    resp.Savings.Cost,
	}
}

// strategyRequest is the POST /admin/strategy request body.
type strategyRequest struct {
	Strategy             string  `json:"strategy,omitempty"`
	PreferredProvider    string  `json:"preferred_provider,omitempty"`
	MultiProviderEnabled *bool   `json:"multi_provider_enabled,omitempty"`
	SemanticCacheEnabled *bool   `json:"semantic_cache_enabled,omitempty"`
	SmartRoutingEnabled  *bool   `json:"smart_routing_enabled,omitempty"`
	DefaultTTLSeconds    int64   `json:"default_ttl_seconds,omitempty"`
}
