// Package httpapi exposes the Pipeline over HTTP using the same fasthttp
// server and middleware chain as the teacher's proxy package: completion
// submission, health/readiness probes, queue/cache stats, raw Prometheus
// metrics, and a strategy admin endpoint.
package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/mcp-gateway/internal/mcp/eventsink"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/pipeline"
	"github.com/nulpointcorp/mcp-gateway/internal/metrics"
	"github.com/nulpointcorp/mcp-gateway/internal/providers"
)

// Options configures a Server.
type Options struct {
	Pipeline    *pipeline.Pipeline
	Metrics     *metrics.Registry // optional
	Recent      *eventsink.RingBufferSink // optional, backs GET /stats recent activity
	Log         *slog.Logger
	CORSOrigins []string
	StartedAt   time.Time
	// InferPriority resolves a request's raw priority/type metadata hints
	// into an mcp.Priority band. Defaults to always-normal when nil.
	InferPriority func(rawPriority, requestType string) int

	// Providers and CacheReady feed the background health checker. Both are
	// optional — when Providers is nil, /health reports status from queue
	// stats only.
	Providers  map[string]providers.Provider
	CacheReady func() bool
}

// Server wires a Pipeline to the fasthttp handlers SPEC_FULL.md names:
// POST /v1/complete, GET /health, GET /readiness, GET /stats, GET /metrics,
// POST /admin/strategy.
type Server struct {
	pipe          *pipeline.Pipeline
	metrics       *metrics.Registry
	recent        *eventsink.RingBufferSink
	log           *slog.Logger
	startedAt     time.Time
	corsOrigins   []string
	inferPriority func(rawPriority, requestType string) int
	health        *healthChecker
}

func New(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	startedAt := opts.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	inferPriority := opts.InferPriority
	if inferPriority == nil {
		inferPriority = func(string, string) int { return 1 }
	}
	s := &Server{
		pipe:          opts.Pipeline,
		metrics:       opts.Metrics,
		recent:        opts.Recent,
		log:           log,
		startedAt:     startedAt,
		corsOrigins:   opts.CORSOrigins,
		inferPriority: inferPriority,
	}
	if opts.Providers != nil {
		s.health = newHealthChecker(context.Background(), opts.Providers, opts.CacheReady, opts.Metrics)
	}
	return s
}

// Close stops the background health-probe goroutine, if one was started.
func (s *Server) Close() {
	if s.health != nil {
		s.health.close()
	}
}

// Handler builds the full fasthttp handler chain (routes + middleware),
// without starting a listener — used directly by tests and by Start.
func (s *Server) Handler() fasthttp.RequestHandler {
	r := router.New()
	r.POST("/v1/complete", s.handleComplete)
	r.GET("/health", s.handleHealth)
	r.GET("/readiness", s.handleReadiness)
	r.GET("/stats", s.handleStats)
	r.POST("/admin/strategy", s.handleAdminStrategy)
	if s.metrics != nil {
		r.GET("/metrics", s.metrics.Handler())
	}

	return applyMiddleware(r.Handler,
		recovery,
		requestID,
		timing,
		corsHandler(s.corsOrigins),
		securityHeaders,
	)
}

// Start runs the HTTP server on addr (e.g. ":8090") and blocks until it
// exits (only on error — Close stops it out-of-band via the Pipeline's own
// context, matching the teacher's server lifecycle split).
func (s *Server) Start(addr string) error {
	srv := &fasthttp.Server{
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return srv.ListenAndServe(addr)
}
