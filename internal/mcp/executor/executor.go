// Package executor implements the Executor component: given a routed
// Request, it consults the cache tiers, calls the provider gateway with
// circuit-breaker gating and bounded exponential-backoff retry/failover,
// stores the result, and enforces the end-to-end deadline set at submit
// time.
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	npcache "github.com/nulpointcorp/mcp-gateway/internal/cache"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/cache"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/eventsink"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/gateway"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/router"
)

// Options configures an Executor.
type Options struct {
	Gateway         *gateway.Gateway
	Router          *router.SmartRouter
	ExactCache      cache.ExactCache  // optional
	SemanticCache   cache.SemanticCache // optional
	Sink            eventsink.Sink    // optional
	MaxRetries      int
	ProviderTimeout time.Duration
	CBConfig        CBConfig
	FallbackOrder   []string // provider names tried after the routed one, in order
	// CacheExclusions, when set, exempts matching models from both cache
	// tiers regardless of the request's own McpParams.CacheStrategy.
	CacheExclusions *npcache.ExclusionList
	Log             *slog.Logger
}

// Executor runs the seven-step completion algorithm for a single Request.
type Executor struct {
	gw            *gateway.Gateway
	router        *router.SmartRouter
	exact         cache.ExactCache
	semantic      cache.SemanticCache
	sink          eventsink.Sink
	cb            *CircuitBreaker
	maxRetries    int
	provTimeout   time.Duration
	fallbackOrder []string
	exclusions    *npcache.ExclusionList
	log           *slog.Logger
}

func New(opts Options) *Executor {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	provTimeout := opts.ProviderTimeout
	if provTimeout <= 0 {
		provTimeout = 30 * time.Second
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		gw:            opts.Gateway,
		router:        opts.Router,
		exact:         opts.ExactCache,
		semantic:      opts.SemanticCache,
		sink:          opts.Sink,
		cb:            NewCircuitBreaker(opts.CBConfig),
		maxRetries:    maxRetries,
		provTimeout:   provTimeout,
		fallbackOrder: opts.FallbackOrder,
		exclusions:    opts.CacheExclusions,
		log:           log,
	}
}

// cacheable reports whether model may use either cache tier. A nil
// exclusion list (the default) allows caching for every model.
func (e *Executor) cacheable(model string) bool {
	return e.exclusions == nil || !e.exclusions.Matches(model)
}

// Execute runs the full algorithm for req and delivers exactly one
// mcp.Response. deadline is the absolute time (submit time + TimeoutMs)
// the whole request — cache lookups, every retry, every failover hop —
// must complete by.
func (e *Executor) Execute(ctx context.Context, req *mcp.Request, deadline time.Time) *mcp.Response {
	start := time.Now()
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	resp := e.execute(ctx, req)
	resp.ProcessingTime = time.Since(start)
	e.emit(req, resp, start)
	return resp
}

func (e *Executor) execute(ctx context.Context, req *mcp.Request) *mcp.Response {
	// Step 1: route.
	model := req.Model
	if model == "" {
		selected, err := e.router.Select(req)
		if err != nil {
			mcpErr, ok := err.(*mcp.Error)
			if !ok {
				mcpErr = mcp.NewConfigError(err.Error())
			}
			return errResponse(mcpErr, model)
		}
		model = selected
	}
	provider, known := e.router.ProviderOf(model)
	if !known {
		return errResponse(mcp.NewConfigError(fmt.Sprintf("executor: model %q is not in the router table", model)), model)
	}
	if req.Params.PreferredProvider != "" {
		provider = req.Params.PreferredProvider
	}

	cacheKey := buildCacheKey(req, model)
	cacheable := e.cacheable(model)

	// Step 2: exact-match lookup.
	if cacheable && req.Params.CacheStrategy.UsesExact() && e.exact != nil {
		if entry, ok := e.exact.Get(ctx, cacheKey); ok {
			return e.fromExactEntry(entry, req)
		}
	}

	// Step 3: semantic lookup.
	if cacheable && req.Params.CacheStrategy.UsesSemantic() && e.semantic != nil {
		minSim := req.Params.MinSimilarity
		if minSim <= 0 {
			minSim = 0.92
		}
		if match, err := e.semantic.Lookup(ctx, req.Prompt, minSim); err == nil && match != nil {
			return e.fromSemanticMatch(match, req)
		}
	}

	// Step 4: provider call, with circuit-breaker gating and bounded
	// retry/failover. The total number of ProviderGateway.Call invocations
	// for this request — across every candidate provider combined — never
	// exceeds maxRetries+1: candidates are cycled with wraparound inside a
	// single shared attempt budget rather than each getting its own retry
	// allowance.
	candidates := e.candidateProviders(provider)
	budget := e.maxRetries + 1
	var lastErr *mcp.Error
	calls := 0
	// safetyBound guards against every candidate being circuit-broken,
	// which would otherwise spin without ever consuming the call budget.
	safetyBound := budget * len(candidates)
	for i := 0; calls < budget && i < safetyBound; i++ {
		candidateProvider := candidates[i%len(candidates)]
		if ctx.Err() != nil {
			return errResponse(mcp.NewTimeoutError(candidateProvider), model)
		}
		if !e.cb.Allow(candidateProvider) {
			lastErr = mcp.NewProviderError(mcp.ErrProviderTransient, candidateProvider, "circuit open", nil)
			continue
		}

		if calls > 0 {
			backoff := time.Duration(math.Pow(2, float64(calls-1))) * 200 * time.Millisecond
			jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return errResponse(mcp.NewTimeoutError(candidateProvider), model)
			}
		}

		callResp, callErr := e.callOnce(ctx, candidateProvider, model, req)
		calls++
		if callErr == nil {
			e.cb.RecordSuccess(candidateProvider)
			resp := &mcp.Response{
				Success: true, RawText: callResp.Content, Model: model,
				Provider: candidateProvider, Usage: callResp.Usage,
			}
			applyParser(resp, req)

			// Step 5: store.
			e.store(ctx, req, cacheKey, model, candidateProvider, resp)
			return resp
		}

		e.cb.RecordFailure(candidateProvider)
		lastErr = callErr
		if !callErr.Retryable() {
			return errResponse(callErr, model)
		}
	}

	if lastErr == nil {
		lastErr = mcp.NewConfigError("executor: no provider candidates available")
	}
	return errResponse(lastErr, model)
}

// candidateProviders returns primary followed by the configured fallback
// order, deduplicated, mirroring the teacher's failover candidate list.
func (e *Executor) candidateProviders(primary string) []string {
	seen := map[string]bool{primary: true}
	out := []string{primary}
	for _, p := range e.fallbackOrder {
		if !seen[p] && e.gw.Has(p) {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// callOnce issues a single ProviderGateway.Call. The caller owns backoff,
// the shared attempt budget, and failover across candidates.
func (e *Executor) callOnce(ctx context.Context, provider, model string, req *mcp.Request) (*gateway.Response, *mcp.Error) {
	return e.gw.Call(ctx, provider, &gateway.Request{
		Model: model, Prompt: req.Prompt, SystemPrompt: req.SystemPrompt,
		Temperature: req.Temperature, MaxTokens: req.MaxTokens,
		RequestID: uuid.NewString(),
	})
}

func (e *Executor) store(ctx context.Context, req *mcp.Request, cacheKey, model, provider string, resp *mcp.Response) {
	if !req.Params.StoreResult || !e.cacheable(model) {
		return
	}
	ttl := req.Params.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}

	if req.Params.CacheStrategy.UsesExact() && e.exact != nil {
		_ = e.exact.Set(ctx, cacheKey, &cache.ExactEntry{
			Response: raw, Model: model, Provider: provider,
			CreatedAt: time.Now(), ExpiresAt: time.Now().Add(ttl),
		}, ttl)
	}
	if req.Params.CacheStrategy.UsesSemantic() && e.semantic != nil {
		_ = e.semantic.Store(ctx, cacheKey, req.Prompt, &cache.SemanticEntry{
			Prompt: req.Prompt, Response: raw, Model: model, Provider: provider,
		}, ttl)
	}
}

func (e *Executor) emit(req *mcp.Request, resp *mcp.Response, start time.Time) {
	if e.sink == nil {
		return
	}
	status := 200
	if resp.Err != nil {
		status = resp.Err.HTTPStatus()
	}
	tier := ""
	if resp.FromCache {
		if resp.Similarity > 0 {
			tier = "semantic"
		} else {
			tier = "exact"
		}
	}
	e.sink.Emit(eventsink.Event{
		ID: uuid.New(), Provider: resp.Provider, Model: resp.Model,
		Priority: mcp.PriorityNormal, Usage: resp.Usage,
		LatencyMs: time.Since(start).Milliseconds(), Status: status,
		FromCache: resp.FromCache, CacheTier: tier, Similarity: resp.Similarity,
		Savings: resp.Savings, CreatedAt: time.Now(),
	})
}

func applyParser(resp *mcp.Response, req *mcp.Request) {
	if req.Parser == nil {
		return
	}
	parsed, err := req.Parser.Parse(resp.RawText)
	if err != nil {
		resp.Err = mcp.NewParseError(err)
		resp.Success = false
		return
	}
	resp.ParsedData = parsed
}

func errResponse(err *mcp.Error, model string) *mcp.Response {
	return &mcp.Response{Success: false, Model: model, Err: err}
}

func (e *Executor) fromExactEntry(entry *cache.ExactEntry, req *mcp.Request) *mcp.Response {
	var resp mcp.Response
	if err := json.Unmarshal(entry.Response, &resp); err != nil {
		return errResponse(mcp.NewParseError(err), entry.Model)
	}
	resp.FromCache = true
	resp.Savings = e.savings(&resp)
	return &resp
}

func (e *Executor) fromSemanticMatch(match *cache.SemanticMatch, req *mcp.Request) *mcp.Response {
	var resp mcp.Response
	if err := json.Unmarshal(match.Entry.Response, &resp); err != nil {
		return errResponse(mcp.NewParseError(err), match.Entry.Model)
	}
	resp.FromCache = true
	resp.Similarity = match.Similarity
	resp.Savings = e.savings(&resp)
	return &resp
}

// averageProviderLatency is the assumed wall-clock cost of a cold provider
// round trip, used only to estimate the time a cache hit avoided; it is not
// measured per-provider so it intentionally stays a rough constant.
const averageProviderLatency = 1500 * time.Millisecond

// savings computes the counterfactual tokens/cost/time a cache hit avoided.
// Per spec.md §4.6, cost is priced from a synthetic 70/30 prompt/completion
// split of the cached response's total token count, not its recorded
// prompt/completion split, and falls back to 500 tokens when the cached
// entry recorded none.
func (e *Executor) savings(resp *mcp.Response) mcp.Savings {
	tokens := resp.Usage.TotalTokens
	if tokens <= 0 {
		tokens = 500
	}
	cost := e.router.EstimateCost(resp.Model, int(float64(tokens)*0.7), int(float64(tokens)*0.3))
	return mcp.Savings{
		Tokens: tokens,
		Cost:   cost,
		TimeMs: averageProviderLatency.Milliseconds(),
	}
}

// buildCacheKey hashes the canonical request shape into a stable exact-tier
// key, following the teacher's SHA-256(workspace+provider+model+...)
// pattern adapted to this protocol's fields (no workspace/API key concept
// here — prompt/system-prompt/model/temperature/max-tokens fully determine
// the response).
func buildCacheKey(req *mcp.Request, model string) string {
	data, _ := json.Marshal(struct {
		M  string  `json:"m"`
		P  string  `json:"p"`
		S  string  `json:"s"`
		T  float64 `json:"t"`
		MT int     `json:"mt"`
	}{model, req.Prompt, req.SystemPrompt, req.Temperature, req.MaxTokens})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
