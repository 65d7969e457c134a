package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nulpointcorp/mcp-gateway/internal/mcp"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/router"
)

// RuntimeState is the mutable subset of MCP behavior an operator can flip
// at runtime — everything that does not require a process restart, unlike
// the provider credentials and queue sizing loaded once at startup by
// Load(). Strategy and DefaultTTL supply request defaults in
// Pipeline.Submit. MultiProviderEnabled, PreferredProvider,
// SemanticCacheEnabled and SmartRoutingEnabled are stored and reported
// (Snapshot, GET /stats), but request execution does not read them.
type RuntimeState struct {
	Strategy             string
	MultiProviderEnabled bool
	PreferredProvider    string
	SemanticCacheEnabled bool
	SmartRoutingEnabled  bool
	DefaultTTL           time.Duration
}

// Manager guards RuntimeState behind a mutex and exposes the admin
// operations the Pipeline's management surface delegates to: strategy
// switching, provider preference, cache/routing toggles, and TTL tuning.
type Manager struct {
	mu      sync.RWMutex
	state   RuntimeState
	presets map[string]router.StrategyPreset
}

// NewManager seeds a Manager from the statically loaded Config.
func NewManager(cfg *Config) *Manager {
	return &Manager{
		state: RuntimeState{
			Strategy:             cfg.MCP.DefaultStrategy,
			MultiProviderEnabled: true,
			SemanticCacheEnabled: true,
			SmartRoutingEnabled:  true,
			DefaultTTL:           cfg.MCP.DefaultCacheTTL,
		},
		presets: router.DefaultPresets(),
	}
}

// Snapshot returns a copy of the current runtime state.
func (m *Manager) Snapshot() RuntimeState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SetStrategy switches the active strategy preset. It rejects unknown
// names outright rather than silently serving "balanced" in their place —
// a caller that mistypes a preset name must see an error, not a quietly
// wrong cache/routing behavior.
func (m *Manager) SetStrategy(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.presets[name]; !ok {
		return mcp.NewConfigError(fmt.Sprintf("config: unknown strategy preset %q", name))
	}
	m.state.Strategy = name
	return nil
}

func (m *Manager) SetMultiProviderEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.MultiProviderEnabled = enabled
}

func (m *Manager) SetPreferredProvider(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.PreferredProvider = provider
}

func (m *Manager) SetSemanticCacheEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.SemanticCacheEnabled = enabled
}

func (m *Manager) SetSmartRoutingEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.SmartRoutingEnabled = enabled
}

func (m *Manager) SetDefaultTTL(ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.DefaultTTL = ttl
}

// Preset returns the named strategy preset, falling back to the "balanced"
// preset if name is unknown or empty.
func (m *Manager) Preset(name string) router.StrategyPreset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.presets[name]; ok {
		return p
	}
	return m.presets["balanced"]
}

// UpdateStrategyConfig merges preset into the named strategy preset: every
// non-zero field of preset (cache strategy, similarity floor, TTL, router
// priority) overwrites the stored value, and zero fields keep their current
// value. If it is the currently active strategy, the change applies
// immediately. Unlike SetStrategy, which only switches which named preset is
// active, this redefines what a preset name means for every future request
// that selects it.
func (m *Manager) UpdateStrategyConfig(name string, preset router.StrategyPreset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.presets[name]
	if preset.CacheStrategy != "" {
		cur.CacheStrategy = preset.CacheStrategy
	}
	if preset.MinSimilarity != 0 {
		cur.MinSimilarity = preset.MinSimilarity
	}
	if preset.CacheTTL != 0 {
		cur.CacheTTL = preset.CacheTTL
	}
	if preset.RouterPriority != "" {
		cur.RouterPriority = preset.RouterPriority
	}
	cur.Name = name
	m.presets[name] = cur
}

// InferPriority resolves a raw metadata priority hint ("high"/"low"/...)
// plus a request type hint into one of the three priority bands. Per
// spec.md §4.5, the type hint is matched by substring, not equality: any
// type containing "interactive", "message", or "critical" is high; any
// type containing "background", "batch", or "analysis" is low. An
// unrecognized or empty hint defaults to normal — the safe, unsurprising
// middle band.
func InferPriority(rawPriority, requestType string) int {
	switch rawPriority {
	case "high", "urgent":
		return 2
	case "low", "background":
		return 0
	}
	t := strings.ToLower(requestType)
	for _, s := range []string{"interactive", "message", "critical"} {
		if strings.Contains(t, s) {
			return 2
		}
	}
	for _, s := range []string{"background", "batch", "analysis"} {
		if strings.Contains(t, s) {
			return 0
		}
	}
	return 1
}
