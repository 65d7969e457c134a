package router

import (
	"time"

	"github.com/nulpointcorp/mcp-gateway/internal/mcp"
)

// StrategyPreset bundles an McpParams template under a named strategy
// (aggressive, balanced, conservative) so applications pick a strategy
// instead of tuning individual cache/routing knobs by hand.
type StrategyPreset struct {
	Name           string
	CacheStrategy  mcp.CacheStrategy
	MinSimilarity  float64
	CacheTTL       time.Duration
	RouterPriority mcp.RouterPriority
}

// DefaultPresets returns the three named strategies, exactly as spec.md
// §4.5 defines them. Their minSimilarity values are strictly ordered
// (aggressive < balanced < conservative) and conservative is exact-only —
// both are testable invariants other packages assert against.
func DefaultPresets() map[string]StrategyPreset {
	return map[string]StrategyPreset{
		"aggressive": {
			Name: "aggressive", CacheStrategy: mcp.CacheHybrid,
			MinSimilarity: 0.65, CacheTTL: 24 * time.Hour, RouterPriority: mcp.RouterSpeed,
		},
		"balanced": {
			Name: "balanced", CacheStrategy: mcp.CacheSemantic,
			MinSimilarity: 0.80, CacheTTL: 12 * time.Hour, RouterPriority: mcp.RouterQuality,
		},
		"conservative": {
			Name: "conservative", CacheStrategy: mcp.CacheExact,
			MinSimilarity: 0.95, CacheTTL: time.Hour, RouterPriority: mcp.RouterQuality,
		},
	}
}
