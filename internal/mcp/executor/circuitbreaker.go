package executor

import (
	"sync"
	"time"
)

// cbState mirrors the teacher's three-state breaker: closed → normal
// operation, open → requests rejected outright, half_open → a single probe
// is allowed through to test recovery.
type cbState int

const (
	cbClosed cbState = iota
	cbOpen
	cbHalfOpen
)

const (
	defaultErrorThreshold  = 5
	defaultTimeWindow      = 60 * time.Second
	defaultHalfOpenTimeout = 30 * time.Second
)

// CBConfig holds circuit breaker tuning parameters; zero values fall back
// to the defaults above.
type CBConfig struct {
	ErrorThreshold  int
	TimeWindow      time.Duration
	HalfOpenTimeout time.Duration
}

func (c CBConfig) errorThreshold() int {
	if c.ErrorThreshold > 0 {
		return c.ErrorThreshold
	}
	return defaultErrorThreshold
}

func (c CBConfig) timeWindow() time.Duration {
	if c.TimeWindow > 0 {
		return c.TimeWindow
	}
	return defaultTimeWindow
}

func (c CBConfig) halfOpenTimeout() time.Duration {
	if c.HalfOpenTimeout > 0 {
		return c.HalfOpenTimeout
	}
	return defaultHalfOpenTimeout
}

type providerCB struct {
	mu            sync.Mutex
	state         cbState
	errorCount    int
	windowStart   time.Time
	openedAt      time.Time
	probeInflight bool
}

// CircuitBreaker manages one breaker per provider, created lazily on first
// use — unlike the teacher's proxy (which pre-seeds a fixed provider list),
// the gateway's provider set is whatever the application configured, so
// breakers are registered on demand under a write lock.
type CircuitBreaker struct {
	mu       sync.RWMutex
	breakers map[string]*providerCB
	cfg      CBConfig
}

func NewCircuitBreaker(cfg CBConfig) *CircuitBreaker {
	return &CircuitBreaker{breakers: make(map[string]*providerCB), cfg: cfg}
}

func (cb *CircuitBreaker) getOrCreate(provider string) *providerCB {
	cb.mu.RLock()
	pcb, ok := cb.breakers[provider]
	cb.mu.RUnlock()
	if ok {
		return pcb
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if pcb, ok := cb.breakers[provider]; ok {
		return pcb
	}
	pcb = &providerCB{state: cbClosed, windowStart: time.Now()}
	cb.breakers[provider] = pcb
	return pcb
}

// Allow reports whether provider should receive the next request.
func (cb *CircuitBreaker) Allow(provider string) bool {
	pcb := cb.getOrCreate(provider)
	pcb.mu.Lock()
	defer pcb.mu.Unlock()

	switch pcb.state {
	case cbClosed:
		return true
	case cbOpen:
		if time.Since(pcb.openedAt) >= cb.cfg.halfOpenTimeout() {
			pcb.state = cbHalfOpen
			pcb.probeInflight = true
			return true
		}
		return false
	case cbHalfOpen:
		if pcb.probeInflight {
			return false
		}
		pcb.probeInflight = true
		return true
	}
	return true
}

func (cb *CircuitBreaker) RecordSuccess(provider string) {
	pcb := cb.getOrCreate(provider)
	pcb.mu.Lock()
	defer pcb.mu.Unlock()
	pcb.state = cbClosed
	pcb.errorCount = 0
	pcb.probeInflight = false
	pcb.windowStart = time.Now()
}

func (cb *CircuitBreaker) RecordFailure(provider string) {
	pcb := cb.getOrCreate(provider)
	pcb.mu.Lock()
	defer pcb.mu.Unlock()

	now := time.Now()
	if now.Sub(pcb.windowStart) > cb.cfg.timeWindow() {
		pcb.errorCount = 0
		pcb.windowStart = now
	}
	pcb.errorCount++
	pcb.probeInflight = false

	if pcb.errorCount >= cb.cfg.errorThreshold() {
		pcb.state = cbOpen
		pcb.openedAt = now
	}
}

func (cb *CircuitBreaker) StateLabel(provider string) string {
	pcb := cb.getOrCreate(provider)
	pcb.mu.Lock()
	defer pcb.mu.Unlock()
	switch pcb.state {
	case cbOpen:
		return "open"
	case cbHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}
