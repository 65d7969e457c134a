// Package eventsink implements the EventSink component: a non-blocking
// destination for completion events, used for both observability (logs)
// and the recent-activity list that GET /stats returns (ring buffer).
package eventsink

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nulpointcorp/mcp-gateway/internal/logger"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp"
)

// Event is one completed Request's outcome, handed to every configured
// Sink. Construction is the Executor's job; sinks never mutate it.
type Event struct {
	ID         uuid.UUID
	Provider   string
	Model      string
	Priority   mcp.Priority
	Usage      mcp.Usage
	LatencyMs  int64
	Status     int
	FromCache  bool
	CacheTier  string
	Similarity float64
	Savings    mcp.Savings
	CreatedAt  time.Time
}

// Sink receives Events. Emit must never block the caller and must never
// panic on a malformed Event.
type Sink interface {
	Emit(e Event)
	Close() error
}

// LoggerSink adapts the teacher's async batched request logger to the
// Sink contract — this is the default sink, always on.
type LoggerSink struct {
	l *logger.Logger
}

func NewLoggerSink(l *logger.Logger) *LoggerSink { return &LoggerSink{l: l} }

func (s *LoggerSink) Emit(e Event) {
	s.l.Log(logger.RequestLog{
		ID:           e.ID,
		Provider:     e.Provider,
		Model:        e.Model,
		InputTokens:  uint32(e.Usage.PromptTokens),
		OutputTokens: uint32(e.Usage.CompletionTokens),
		LatencyMs:    clampUint16(e.LatencyMs),
		Status:       uint16(e.Status),
		Cached:       e.FromCache,
		CacheTier:    e.CacheTier,
		Similarity:   float32(e.Similarity),
		Priority:     e.Priority.String(),
		SavedTokens:  uint32(e.Savings.Tokens),
		SavedCostUSD: e.Savings.Cost,
		CreatedAt:    e.CreatedAt,
	})
}

func (s *LoggerSink) Close() error { return s.l.Close() }

func clampUint16(ms int64) uint16 {
	if ms < 0 {
		return 0
	}
	if ms > 65535 {
		return 65535
	}
	return uint16(ms)
}

// RingBufferSink retains the most recent N events in memory, backing the
// "recent" list of the HTTP GET /stats response without needing a database.
type RingBufferSink struct {
	mu     sync.Mutex
	buf    []Event
	cap    int
	cursor int
	filled bool
}

func NewRingBufferSink(capacity int) *RingBufferSink {
	if capacity <= 0 {
		capacity = 1000
	}
	return &RingBufferSink{buf: make([]Event, capacity), cap: capacity}
}

func (s *RingBufferSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf[s.cursor] = e
	s.cursor = (s.cursor + 1) % s.cap
	if s.cursor == 0 {
		s.filled = true
	}
}

// Recent returns up to n most-recent events, newest first.
func (s *RingBufferSink) Recent(n int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.cursor
	if s.filled {
		total = s.cap
	}
	if n > total {
		n = total
	}
	out := make([]Event, 0, n)
	idx := s.cursor
	for i := 0; i < n; i++ {
		idx--
		if idx < 0 {
			idx = s.cap - 1
		}
		out = append(out, s.buf[idx])
	}
	return out
}

func (s *RingBufferSink) Close() error { return nil }

// MultiSink fans a single Emit out to every configured sink.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink { return &MultiSink{sinks: sinks} }

func (m *MultiSink) Emit(e Event) {
	for _, s := range m.sinks {
		s.Emit(e)
	}
}

func (m *MultiSink) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
