// Package pipeline wires the PriorityQueue, a pool of dispatcher goroutines,
// and the Executor into the single entry point applications submit Requests
// through: Pipeline.Submit. It also carries the runtime admin surface
// (strategy switching, cache/routing toggles) via internal/config.Manager.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nulpointcorp/mcp-gateway/internal/config"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/executor"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/queue"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/router"
	"github.com/nulpointcorp/mcp-gateway/internal/ratelimit"
)

// defaultTimeout bounds a Request with no explicit TimeoutMs.
const defaultTimeout = 30 * time.Second

// Limiter is the pre-queue admission gate. *ratelimit.RPMLimiter satisfies
// it; nil means no rate limiting is configured.
type Limiter interface {
	Allow(ctx context.Context) (bool, error)
}

// Options configures a Pipeline.
type Options struct {
	Executor        *executor.Executor
	Manager         *config.Manager
	QueueCapacity   int
	DispatcherCount int
	Limiter         Limiter // optional
	Log             *slog.Logger
}

// Stats is a point-in-time snapshot of pipeline load.
type Stats struct {
	QueueDepth      int
	QueueCapacity   int
	InflightCount   int
	DispatcherCount int
}

// Pipeline is the single submission point for completion requests: it
// admission-gates via an optional rate limiter, assigns sequencing and a
// deadline, pushes into the bounded PriorityQueue, and runs a fixed pool of
// dispatcher goroutines that pop items and drive them through the Executor.
type Pipeline struct {
	q         *queue.PriorityQueue
	exec      *executor.Executor
	manager   *config.Manager
	limiter   Limiter
	log       *slog.Logger
	dispCount int

	mu       sync.Mutex
	seq      uint64
	inflight int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs and starts a Pipeline's dispatcher pool. Call Close to stop
// it.
func New(opts Options) *Pipeline {
	capacity := opts.QueueCapacity
	if capacity <= 0 {
		capacity = 10_000
	}
	dispatchers := opts.DispatcherCount
	if dispatchers <= 0 {
		dispatchers = 4
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		q:         queue.New(capacity),
		exec:      opts.Executor,
		manager:   opts.Manager,
		limiter:   opts.Limiter,
		log:       log,
		dispCount: dispatchers,
		cancel:    cancel,
	}

	for i := 0; i < dispatchers; i++ {
		p.wg.Add(1)
		go p.dispatchLoop(ctx, i)
	}
	return p
}

// Submit admission-gates, stamps req with its sequence number and submit
// time, computes its absolute deadline from TimeoutMs, and enqueues it. A
// Request whose McpParams are all zero takes them from the active strategy
// preset; a zero CacheTTL takes the runtime default TTL.
// Submit never blocks on provider work — it returns as soon as the item is
// either queued or rejected.
func (p *Pipeline) Submit(ctx context.Context, req *mcp.Request, priority mcp.Priority) (*mcp.Future, error) {
	if p.limiter != nil {
		allowed, err := p.limiter.Allow(ctx)
		if err == nil && !allowed {
			return nil, mcp.NewQueueFullError()
		}
	}

	p.mu.Lock()
	p.seq++
	req.SequenceNo = p.seq
	p.mu.Unlock()

	req.SubmittedAt = time.Now()
	if req.TimeoutMs <= 0 {
		req.TimeoutMs = defaultTimeout.Milliseconds()
	}
	if p.manager != nil {
		state := p.manager.Snapshot()
		if req.Params == (mcp.McpParams{}) {
			preset := p.manager.Preset(state.Strategy)
			req.Params = mcp.McpParams{
				CacheStrategy: preset.CacheStrategy,
				MinSimilarity: preset.MinSimilarity,
				CacheTTL:      preset.CacheTTL,
				Priority:      preset.RouterPriority,
			}
		}
		if req.Params.CacheTTL <= 0 {
			req.Params.CacheTTL = state.DefaultTTL
		}
	}

	future := mcp.NewFuture()
	if err := p.q.Push(queue.Item{Request: req, Future: future}, priority); err != nil {
		return nil, err
	}
	return future, nil
}

func (p *Pipeline) dispatchLoop(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		item, ok := p.q.Pop(ctx)
		if !ok {
			// Pop only returns false on context cancellation or queue
			// closure — both are terminal for this dispatcher.
			return
		}
		p.run(ctx, item)
	}
}

func (p *Pipeline) run(ctx context.Context, item queue.Item) {
	p.mu.Lock()
	p.inflight++
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inflight--
		p.mu.Unlock()
	}()

	deadline := item.Request.SubmittedAt.Add(time.Duration(item.Request.TimeoutMs) * time.Millisecond)
	resp := p.exec.Execute(ctx, item.Request, deadline)
	item.Future.Deliver(resp)
}

// Stats returns a point-in-time snapshot of queue depth and in-flight work.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	inflight := p.inflight
	p.mu.Unlock()
	return Stats{
		QueueDepth:      p.q.Len(),
		QueueCapacity:   p.q.Capacity(),
		InflightCount:   inflight,
		DispatcherCount: p.dispCount,
	}
}

// Close stops accepting new work and shuts down the dispatcher pool. Items
// still queued are abandoned — their Futures never deliver.
func (p *Pipeline) Close() {
	p.q.Close()
	p.cancel()
	p.wg.Wait()
}

// -- admin surface: thin delegation to config.Manager --

func (p *Pipeline) SetStrategy(name string) error { return p.manager.SetStrategy(name) }

func (p *Pipeline) UpdateStrategyConfig(name string, preset router.StrategyPreset) {
	p.manager.UpdateStrategyConfig(name, preset)
}

func (p *Pipeline) SetMultiProviderEnabled(enabled bool) { p.manager.SetMultiProviderEnabled(enabled) }
func (p *Pipeline) SetPreferredProvider(provider string) { p.manager.SetPreferredProvider(provider) }
func (p *Pipeline) SetSemanticCacheEnabled(enabled bool) { p.manager.SetSemanticCacheEnabled(enabled) }
func (p *Pipeline) SetSmartRoutingEnabled(enabled bool)  { p.manager.SetSmartRoutingEnabled(enabled) }
func (p *Pipeline) SetDefaultTTL(ttl time.Duration)      { p.manager.SetDefaultTTL(ttl) }
func (p *Pipeline) RuntimeState() config.RuntimeState    { return p.manager.Snapshot() }
