package router

import (
	"sort"
	"sync"

	"github.com/nulpointcorp/mcp-gateway/internal/mcp"
)

// costCapUSD is the cost ceiling the request-driven cost score normalizes
// against (spec.md §4.5 step 4): a request projected to cost costCapUSD or
// more scores 0, a free request scores 10.
const costCapUSD = 0.10

// SmartRouter holds the static model capability table and selects the best
// candidate for a Request when no explicit Model is given.
//
// Scoring (spec.md §4.5): each candidate gets a quality score (weighted
// average of its Capabilities for the Request's TaskType, scaled by a
// complexity multiplier), a speed score derived from AverageResponseTimeMs,
// and a cost score derived from the Request's own token estimates. The
// three are combined with priority-dependent weights. Candidates missing a
// RequiredCapabilities entry above the complexity-scaled floor are excluded
// before scoring. Ties are broken deterministically by model ID,
// lexicographically ascending, so router output is reproducible across
// runs and across map-iteration-order-dependent Go versions.
type SmartRouter struct {
	mu     sync.RWMutex
	models map[string]ModelMetadata
}

// New constructs a SmartRouter seeded with the default model table.
func New() *SmartRouter {
	r := &SmartRouter{models: make(map[string]ModelMetadata)}
	for _, m := range defaultModels() {
		r.models[m.Model] = m
	}
	return r
}

// Override replaces or inserts a single model's metadata, e.g. to tune cost
// fields from live billing data or add a newly supported model.
func (r *SmartRouter) Override(model string, meta ModelMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta.Model = model
	r.models[model] = meta
}

// ProviderOf returns the provider family that serves model, and whether it
// is known to the router.
func (r *SmartRouter) ProviderOf(model string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[model]
	return m.Provider, ok
}

// weightsFor returns the exact per-priority weight vectors from spec.md
// §4.5: speed priority favors speed, quality priority favors quality, cost
// priority favors cost. An unset/unknown priority falls back to the
// quality-priority weights, matching RouterQuality being the zero-friendliest
// choice for unconfigured requests.
func weightsFor(priority mcp.RouterPriority) (quality, speed, cost float64) {
	switch priority {
	case mcp.RouterSpeed:
		return 0.3, 0.6, 0.1
	case mcp.RouterCost:
		return 0.2, 0.2, 0.6
	case mcp.RouterQuality:
		return 0.8, 0.1, 0.1
	default:
		return 0.8, 0.1, 0.1
	}
}

// qualityScore computes the weighted-average capability score for taskType,
// scaled by complexity, on the model's native 0..10 scale.
func qualityScore(m ModelMetadata, taskType mcp.TaskType, complexity mcp.ComplexityLevel) float64 {
	weights := taskCapabilityWeights(taskType)
	var sum, weightTotal float64
	for capName, w := range weights {
		sum += m.Capabilities[capName] * w
		weightTotal += w
	}
	if weightTotal == 0 {
		return 0
	}
	score := (sum / weightTotal) * complexityMultiplier(complexity)
	if score > 10 {
		score = 10
	}
	return score
}

// speedScoreFor implements spec.md §4.5's exact speed-score formula,
// clamped to the model's [0,10] scoring range.
func speedScoreFor(m ModelMetadata) float64 {
	score := 10 - m.AverageResponseTimeMs/500
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

// costScoreUnlocked implements spec.md §4.5's request-driven cost score: the
// projected USD cost of this specific request (not a flat per-model
// comparison) normalized against costCapUSD. Callers must hold r.mu.
func (r *SmartRouter) costScoreUnlocked(m ModelMetadata, promptTokens, outputTokens int) float64 {
	cost := r.estimateCostUnlocked(m, promptTokens, outputTokens)
	if cost > costCapUSD {
		cost = costCapUSD
	}
	return 10 - (cost/costCapUSD)*10
}

func (r *SmartRouter) estimateCostUnlocked(m ModelMetadata, promptTokens, outputTokens int) float64 {
	in := float64(promptTokens) / 1_000_000 * m.CostPerMillionInput
	out := float64(outputTokens) / 1_000_000 * m.CostPerMillionOut
	return in + out
}

// Select scores every known model against the Request's task type,
// complexity, required capabilities, and priority bias, and returns the
// highest-scoring model ID. It returns a ConfigError when the table is empty
// or when no model passes the provider and capability filters.
func (r *SmartRouter) Select(req *mcp.Request) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.models) == 0 {
		return "", mcp.NewConfigError("router: no models configured")
	}

	qw, sw, cw := weightsFor(req.Params.Priority)
	floor := requiredCapabilityThreshold(req.ComplexityLevel)

	promptTokens := req.PromptTokenEstimate
	outputTokens := req.OutputTokenEstimate
	if promptTokens == 0 && outputTokens == 0 {
		promptTokens, outputTokens = 500, 500 // advisory default for requests with no token estimate
	}

	type scored struct {
		model string
		score float64
	}
	var candidates []scored

	for id, m := range r.models {
		if req.Params.PreferredProvider != "" && m.Provider != req.Params.PreferredProvider {
			continue
		}
		if !meetsCapabilityFloor(m, req.RequiredCapabilities, floor) {
			continue
		}

		quality := qualityScore(m, req.TaskType, req.ComplexityLevel)
		speed := speedScoreFor(m)
		cost := r.costScoreUnlocked(m, promptTokens, outputTokens)

		score := qw*quality + sw*speed + cw*cost
		candidates = append(candidates, scored{model: id, score: score})
	}

	if len(candidates) == 0 {
		return "", mcp.NewConfigError("router: no candidate model satisfies the requested capabilities/provider")
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].model < candidates[j].model // deterministic tie-break
	})

	return candidates[0].model, nil
}

// meetsCapabilityFloor reports whether m satisfies every required
// capability at or above floor. An empty requirements list is always
// satisfied — capability gating only applies when the caller asks for it.
func meetsCapabilityFloor(m ModelMetadata, required []string, floor float64) bool {
	for _, capName := range required {
		if m.Capabilities[capName] < floor {
			return false
		}
	}
	return true
}

// EstimateCost returns the projected USD cost of a completion given token
// counts, using model's metadata. Unknown models estimate zero cost rather
// than erroring, since cost estimation is advisory.
func (r *SmartRouter) EstimateCost(model string, promptTokens, outputTokens int) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[model]
	if !ok {
		return 0
	}
	return r.estimateCostUnlocked(m, promptTokens, outputTokens)
}

// Models returns a snapshot of the current metadata table.
func (r *SmartRouter) Models() []ModelMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ModelMetadata, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}
