// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initInfra     — external connections (Redis when needed)
//  2. initProviders — LLM provider clients
//  3. initServices  — cache tiers, metrics registry, event sinks
//  4. initPipeline  — router, executor, Pipeline, HTTP surface
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/nulpointcorp/mcp-gateway/internal/config"
	"github.com/nulpointcorp/mcp-gateway/internal/logger"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/cache"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/eventsink"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/httpapi"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/pipeline"
	"github.com/nulpointcorp/mcp-gateway/internal/metrics"
	"github.com/nulpointcorp/mcp-gateway/internal/providers"
)

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	// Optional external connections — nil when not configured.
	rdb *redis.Client

	reqLogger *logger.Logger
	prom      *metrics.Registry

	provs map[string]providers.Provider

	exactCache    cache.ExactCache
	semanticCache cache.SemanticCache

	ring   *eventsink.RingBufferSink
	chSink *eventsink.ClickHouseSink
	sink   eventsink.Sink

	pipe   *pipeline.Pipeline
	server *httpapi.Server
}

// New initialises all subsystems and returns a ready-to-run App.
// All resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"providers", a.initProviders},
		{"services", a.initServices},
		{"pipeline", a.initPipeline},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or an error
// occurs. It closes the app gracefully when returning.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Port)

	a.log.Info("starting mcp gateway",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.String("strategy", a.cfg.MCP.DefaultStrategy),
		slog.Int("providers", len(a.provs)),
		slog.Int("dispatchers", a.cfg.MCP.DispatcherCount),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Start(addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Close()
		return nil
	})

	return g.Wait()
}

// Close releases all resources in reverse-init order. Safe to call more than
// once: each resource is released on the first call and then set to nil.
// Calls are not synchronized with one another.
func (a *App) Close() {
	if a.server != nil {
		a.server.Close()
		a.server = nil
	}
	if a.pipe != nil {
		a.pipe.Close()
		a.pipe = nil
	}
	if a.semanticCache != nil {
		if err := a.semanticCache.Close(); err != nil {
			a.log.Error("semantic cache close error", slog.String("error", err.Error()))
		}
		a.semanticCache = nil
	}
	if a.exactCache != nil {
		if err := a.exactCache.Close(); err != nil {
			a.log.Error("exact cache close error", slog.String("error", err.Error()))
		}
		a.exactCache = nil
	}
	if a.sink != nil {
		// Closes the LoggerSink (and its reqLogger), the RingBufferSink, and
		// the optional ClickHouseSink together — MultiSink fans Close out to
		// every sink it wraps.
		if err := a.sink.Close(); err != nil {
			a.log.Error("event sink close error", slog.String("error", err.Error()))
		}
		a.sink = nil
		a.reqLogger = nil
		a.chSink = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis close error", slog.String("error", err.Error()))
		}
		a.rdb = nil
	}
}

// ── Private helpers ──────────────────────────────────────────────────────────

// connectRedis parses the URL and verifies connectivity with a PING.
// Returns an error — callers decide whether to fatal or degrade.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return rdb, nil
}

// redactURL replaces the userinfo portion of a URL with "***" for safe logging.
// e.g. "redis://:secret@localhost:6379" → "redis://***@localhost:6379"
func redactURL(raw string) string {
	for i, c := range raw {
		if c == '@' {
			// Find the scheme end ("://") and keep only scheme + "***" + @host.
			for j := i - 1; j >= 0; j-- {
				if j+2 < len(raw) && raw[j:j+3] == "://" {
					return raw[:j+3] + "***" + raw[i:]
				}
			}
			return "***" + raw[i:]
		}
	}
	return raw
}
