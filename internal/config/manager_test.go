package config

import (
	"testing"
	"time"

	"github.com/nulpointcorp/mcp-gateway/internal/mcp"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/router"
)

func TestManagerSnapshotReflectsDefaults(t *testing.T) {
	cfg := &Config{MCP: MCPConfig{DefaultStrategy: "balanced", DefaultCacheTTL: time.Hour}}
	m := NewManager(cfg)

	snap := m.Snapshot()
	if snap.Strategy != "balanced" {
		t.Fatalf("Strategy = %q, want balanced", snap.Strategy)
	}
	if !snap.SemanticCacheEnabled || !snap.SmartRoutingEnabled || !snap.MultiProviderEnabled {
		t.Fatal("expected all toggles enabled by default")
	}
}

func TestManagerSettersAreIsolatedFromSnapshots(t *testing.T) {
	m := NewManager(&Config{})
	before := m.Snapshot()

	if err := m.SetStrategy("conservative"); err != nil {
		t.Fatalf("SetStrategy: %v", err)
	}
	m.SetPreferredProvider("anthropic")
	m.SetSemanticCacheEnabled(false)
	m.SetSmartRoutingEnabled(false)
	m.SetMultiProviderEnabled(false)
	m.SetDefaultTTL(5 * time.Minute)

	if before.Strategy == "conservative" {
		t.Fatal("snapshot taken before mutation must not reflect later changes")
	}

	after := m.Snapshot()
	if after.Strategy != "conservative" || after.PreferredProvider != "anthropic" {
		t.Fatalf("unexpected state after setters: %+v", after)
	}
	if after.SemanticCacheEnabled || after.SmartRoutingEnabled || after.MultiProviderEnabled {
		t.Fatal("expected all toggles disabled")
	}
	if after.DefaultTTL != 5*time.Minute {
		t.Fatalf("DefaultTTL = %v, want 5m", after.DefaultTTL)
	}
}

func TestManagerPresetDefaultsAndOverride(t *testing.T) {
	m := NewManager(&Config{MCP: MCPConfig{DefaultStrategy: "balanced"}})

	balanced := m.Preset("balanced")
	if balanced.CacheStrategy != mcp.CacheSemantic {
		t.Fatalf("balanced.CacheStrategy = %v, want Semantic", balanced.CacheStrategy)
	}

	unknown := m.Preset("does-not-exist")
	if unknown.Name != "balanced" {
		t.Fatalf("unknown preset should fall back to balanced, got %q", unknown.Name)
	}

	m.UpdateStrategyConfig("aggressive", router.StrategyPreset{
		CacheStrategy: mcp.CacheHybrid, MinSimilarity: 0.5, RouterPriority: mcp.RouterSpeed,
	})
	updated := m.Preset("aggressive")
	if updated.CacheStrategy != mcp.CacheHybrid || updated.MinSimilarity != 0.5 {
		t.Fatalf("preset not updated: %+v", updated)
	}
}

// TestSetStrategyRejectsUnknownName is literal scenario S4's error path:
// SetStrategy with an unrecognized name must fail loudly rather than
// silently leave the active strategy pointed at "balanced".
func TestSetStrategyRejectsUnknownName(t *testing.T) {
	m := NewManager(&Config{MCP: MCPConfig{DefaultStrategy: "balanced"}})

	if err := m.SetStrategy("does-not-exist"); err == nil {
		t.Fatal("expected an error for an unknown strategy name")
	}
	if got := m.Snapshot().Strategy; got != "balanced" {
		t.Fatalf("Strategy = %q after a rejected SetStrategy, want unchanged balanced", got)
	}
}

// TestStrategyPresetInvariants is literal scenario S4 plus invariant 8:
// the three built-in presets' minSimilarity values are strictly ordered
// aggressive < balanced < conservative, and conservative is exact-only.
func TestStrategyPresetInvariants(t *testing.T) {
	m := NewManager(&Config{MCP: MCPConfig{DefaultStrategy: "balanced"}})

	aggressive := m.Preset("aggressive")
	balanced := m.Preset("balanced")
	conservative := m.Preset("conservative")

	if aggressive.MinSimilarity != 0.65 {
		t.Fatalf("aggressive.MinSimilarity = %v, want 0.65", aggressive.MinSimilarity)
	}
	if balanced.MinSimilarity != 0.80 {
		t.Fatalf("balanced.MinSimilarity = %v, want 0.80", balanced.MinSimilarity)
	}
	if conservative.MinSimilarity != 0.95 {
		t.Fatalf("conservative.MinSimilarity = %v, want 0.95", conservative.MinSimilarity)
	}
	if !(aggressive.MinSimilarity < balanced.MinSimilarity && balanced.MinSimilarity < conservative.MinSimilarity) {
		t.Fatal("invariant 8 violated: want aggressive < balanced < conservative minSimilarity")
	}
	if conservative.CacheStrategy != mcp.CacheExact {
		t.Fatalf("conservative.CacheStrategy = %v, want exact", conservative.CacheStrategy)
	}
	if aggressive.CacheTTL != 24*time.Hour {
		t.Fatalf("aggressive.CacheTTL = %v, want 24h", aggressive.CacheTTL)
	}
	if balanced.CacheTTL != 12*time.Hour {
		t.Fatalf("balanced.CacheTTL = %v, want 12h", balanced.CacheTTL)
	}
	if conservative.CacheTTL != time.Hour {
		t.Fatalf("conservative.CacheTTL = %v, want 1h", conservative.CacheTTL)
	}

	if err := m.SetStrategy("aggressive"); err != nil {
		t.Fatalf("SetStrategy(aggressive): %v", err)
	}
	if got := m.Preset(m.Snapshot().Strategy).MinSimilarity; got != 0.65 {
		t.Fatalf("active preset MinSimilarity = %v, want ~0.65", got)
	}

	if err := m.SetStrategy("balanced"); err != nil {
		t.Fatalf("SetStrategy(balanced): %v", err)
	}
	if got := m.Preset(m.Snapshot().Strategy).MinSimilarity; got != 0.80 {
		t.Fatalf("active preset MinSimilarity = %v, want ~0.80", got)
	}

	if err := m.SetStrategy("conservative"); err != nil {
		t.Fatalf("SetStrategy(conservative): %v", err)
	}
	active := m.Preset(m.Snapshot().Strategy)
	if active.CacheStrategy != mcp.CacheExact || active.MinSimilarity != 0.95 {
		t.Fatalf("active preset after conservative = %+v, want exact/~0.95", active)
	}
}

func TestInferPriority(t *testing.T) {
	cases := []struct {
		rawPriority, requestType string
		want                     int
	}{
		{"high", "", 2},
		{"urgent", "", 2},
		{"low", "", 0},
		{"background", "", 0},
		{"", "interactive", 2},
		{"", "interactive_chat", 2},
		{"", "message", 2},
		{"", "critical", 2},
		{"", "batch", 0},
		{"", "background_job", 0},
		{"", "analysis", 0},
		{"", "deep_analysis_task", 0},
		{"", "", 1},
		{"", "general", 1},
	}
	for _, c := range cases {
		if got := InferPriority(c.rawPriority, c.requestType); got != c.want {
			t.Errorf("InferPriority(%q, %q) = %d, want %d", c.rawPriority, c.requestType, got, c.want)
		}
	}
}
