// Package router implements SmartRouter: a static capability/cost table
// over every model the ProviderGateway can reach, and a weighted scoring
// algorithm that picks the best model for a Request's task, complexity,
// and priority.
package router

import "github.com/nulpointcorp/mcp-gateway/internal/mcp"

// ModelMetadata is the static profile SmartRouter scores candidates
// against. Capability scores are on a 0..10 scale, per spec.md §3.
type ModelMetadata struct {
	Model                 string
	Provider              string
	AverageResponseTimeMs float64
	CostPerMillionInput   float64 // USD
	CostPerMillionOut     float64 // USD
	ContextWindow         int
	Capabilities          map[string]float64 // e.g. "code": 8.5, "math": 7.0, on a 0..10 scale
}

// defaultModels seeds the metadata table with the flagship model of every
// provider family the ProviderGateway wires in, mirroring
// providers.ModelAliases' provider membership. Capability scores are
// deliberately coarse — SmartRouter is a heuristic, not a benchmark suite.
func defaultModels() []ModelMetadata {
	return []ModelMetadata{
		{
			Model: "gpt-4o", Provider: "openai",
			AverageResponseTimeMs: 2200, CostPerMillionInput: 2.5, CostPerMillionOut: 10,
			ContextWindow: 128000,
			Capabilities:  map[string]float64{"code": 8.5, "math": 8.0, "reasoning": 8.5, "factual": 8.0},
		},
		{
			Model: "gpt-4o-mini", Provider: "openai",
			AverageResponseTimeMs: 900, CostPerMillionInput: 0.15, CostPerMillionOut: 0.6,
			ContextWindow: 128000,
			Capabilities:  map[string]float64{"code": 6.5, "math": 6.0, "reasoning": 6.0, "factual": 7.0},
		},
		{
			Model: "claude-opus-4", Provider: "anthropic",
			AverageResponseTimeMs: 3200, CostPerMillionInput: 15, CostPerMillionOut: 75,
			ContextWindow: 200000,
			Capabilities:  map[string]float64{"code": 9.2, "math": 8.5, "reasoning": 9.5, "factual": 8.5},
		},
		{
			Model: "claude-sonnet-4", Provider: "anthropic",
			AverageResponseTimeMs: 1600, CostPerMillionInput: 3, CostPerMillionOut: 15,
			ContextWindow: 200000,
			Capabilities:  map[string]float64{"code": 8.8, "math": 7.8, "reasoning": 8.5, "factual": 8.0},
		},
		{
			Model: "gemini-2.5-pro", Provider: "gemini",
			AverageResponseTimeMs: 2600, CostPerMillionInput: 1.25, CostPerMillionOut: 5,
			ContextWindow: 1000000,
			Capabilities:  map[string]float64{"code": 8.2, "math": 8.5, "reasoning": 8.5, "factual": 8.2},
		},
		{
			Model: "gemini-2.5-flash", Provider: "gemini",
			AverageResponseTimeMs: 700, CostPerMillionInput: 0.3, CostPerMillionOut: 1.2,
			ContextWindow: 1000000,
			Capabilities:  map[string]float64{"code": 6.5, "math": 6.5, "reasoning": 6.5, "factual": 7.5},
		},
		{
			Model: "mistral-large-latest", Provider: "mistral",
			AverageResponseTimeMs: 1400, CostPerMillionInput: 2, CostPerMillionOut: 6,
			ContextWindow: 128000,
			Capabilities:  map[string]float64{"code": 7.5, "math": 7.0, "reasoning": 7.5, "factual": 7.0},
		},
		{
			Model: "grok-4", Provider: "xai",
			AverageResponseTimeMs: 2100, CostPerMillionInput: 3, CostPerMillionOut: 15,
			ContextWindow: 256000,
			Capabilities:  map[string]float64{"code": 8.0, "math": 8.0, "reasoning": 8.2, "factual": 7.5},
		},
	}
}

// taskCapabilityWeights returns the capability→weight table SmartRouter
// uses to compute a model's quality score for taskType (spec.md §4.5 step
// 3). Weights within a table sum to 1. "general" is the required fallback
// for task types with no more specific table.
func taskCapabilityWeights(t mcp.TaskType) map[string]float64 {
	switch t {
	case mcp.TaskCode, mcp.TaskCAD:
		return map[string]float64{"code": 0.8, "reasoning": 0.2}
	case mcp.TaskMath:
		return map[string]float64{"math": 0.8, "reasoning": 0.2}
	case mcp.TaskAnalysis:
		return map[string]float64{"reasoning": 0.7, "factual": 0.3}
	case mcp.TaskFactual:
		return map[string]float64{"factual": 0.8, "reasoning": 0.2}
	case mcp.TaskCreative:
		return map[string]float64{"reasoning": 0.6, "factual": 0.4}
	default: // general fallback
		return map[string]float64{"reasoning": 0.4, "factual": 0.3, "code": 0.15, "math": 0.15}
	}
}

// complexityMultiplier is the exact per-level multiplier spec.md §4.5 step
// 3 applies to the quality score.
func complexityMultiplier(level mcp.ComplexityLevel) float64 {
	switch level {
	case mcp.ComplexityLow:
		return 0.7
	case mcp.ComplexityHigh:
		return 1.3
	default: // medium, and unset
		return 1.0
	}
}

// requiredCapabilityThreshold is the per-complexity-level capability gate
// floor spec.md §4.5 step 2 mandates, on the same 0..10 scale as
// ModelMetadata.Capabilities.
func requiredCapabilityThreshold(level mcp.ComplexityLevel) float64 {
	switch level {
	case mcp.ComplexityLow:
		return 3
	case mcp.ComplexityHigh:
		return 8
	default: // medium, and unset
		return 6
	}
}
