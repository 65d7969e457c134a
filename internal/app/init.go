package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	npcache "github.com/nulpointcorp/mcp-gateway/internal/cache"
	"github.com/nulpointcorp/mcp-gateway/internal/config"
	"github.com/nulpointcorp/mcp-gateway/internal/logger"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/cache"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/embed"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/eventsink"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/executor"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/gateway"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/httpapi"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/pipeline"
	"github.com/nulpointcorp/mcp-gateway/internal/mcp/router"
	"github.com/nulpointcorp/mcp-gateway/internal/metrics"
	"github.com/nulpointcorp/mcp-gateway/internal/providers"
	"github.com/nulpointcorp/mcp-gateway/internal/ratelimit"
)

// initInfra establishes optional external connections. Redis is needed for
// the exact cache in "redis" mode, for the library-redis semantic cache
// backend, and for global rate limiting.
func (a *App) initInfra(ctx context.Context) error {
	needsRedis := a.cfg.Cache.Mode == "redis" ||
		a.cfg.MCP.SemanticBackend == "library-redis" ||
		a.cfg.RateLimit.RPMLimit > 0

	if needsRedis && a.cfg.Redis.URL != "" {
		a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.Redis.URL)))

		rdb, err := connectRedis(ctx, a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		a.log.Info("redis connected")
	}

	return nil
}

// initProviders builds the LLM provider map. At least one provider must be
// configured. config.Load's validate() requires a provider key unless
// ALLOW_CLIENT_API_KEYS is set, so an empty map is rejected here as well.
func (a *App) initProviders(ctx context.Context) error {
	a.provs = gateway.BuildProviders(ctx, a.cfg)
	if len(a.provs) == 0 {
		return fmt.Errorf("no provider API keys configured")
	}

	names := make([]string, 0, len(a.provs))
	for n := range a.provs {
		names = append(names, n)
	}
	a.log.Info("providers loaded", slog.Any("providers", names))

	return nil
}

// initServices creates the cache tiers, the Prometheus metrics registry, and
// the event sink fan-out.
func (a *App) initServices(ctx context.Context) error {
	if err := a.initCaches(ctx); err != nil {
		return err
	}

	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)

	reqLogger, err := logger.New(ctx, a.log)
	if err != nil {
		return fmt.Errorf("request logger: %w", err)
	}
	a.reqLogger = reqLogger
	a.ring = eventsink.NewRingBufferSink(500)

	sinks := []eventsink.Sink{eventsink.NewLoggerSink(a.reqLogger), a.ring}
	if a.cfg.MCP.ClickHouseDSN != "" {
		chSink, err := eventsink.NewClickHouseSink(ctx,
			a.cfg.MCP.ClickHouseDSN, a.cfg.MCP.ClickHouseDatabase,
			a.cfg.MCP.ClickHouseUsername, a.cfg.MCP.ClickHousePassword,
			a.cfg.MCP.ClickHouseTable, a.log)
		if err != nil {
			return fmt.Errorf("clickhouse sink: %w", err)
		}
		a.chSink = chSink
		sinks = append(sinks, chSink)
		a.log.Info("clickhouse event mirror enabled", slog.String("table", a.cfg.MCP.ClickHouseTable))
	}
	a.sink = eventsink.NewMultiSink(sinks...)

	return nil
}

// initCaches builds the exact and semantic cache tiers per
// cfg.MCP.SemanticBackend / cfg.MCP.EmbeddingBackend.
func (a *App) initCaches(ctx context.Context) error {
	switch a.cfg.Cache.Mode {
	case "redis":
		if a.rdb == nil {
			return fmt.Errorf("exact cache: CACHE_MODE=redis requires REDIS_URL")
		}
		a.exactCache = cache.NewRedisExactCacheFromClient(a.rdb)
		a.log.Info("exact cache: redis")
	case "memory":
		a.exactCache = cache.NewMemoryExactCache(ctx, 0)
		a.log.Info("exact cache: memory (in-process)")
	case "none":
		a.log.Info("exact cache: disabled")
	default:
		return fmt.Errorf("unknown cache mode: %s", a.cfg.Cache.Mode)
	}

	switch a.cfg.MCP.SemanticBackend {
	case "native":
		embedder, err := a.buildEmbedder()
		if err != nil {
			return err
		}
		a.semanticCache = cache.NewNativeSemanticCache(embedder, a.cfg.MCP.SemanticCacheMaxEntries)
		a.log.Info("semantic cache: native", slog.String("embedder", a.cfg.MCP.EmbeddingBackend))
	case "library-lru":
		sc, err := cache.NewLibraryLRUSemanticCache(a.cfg.OpenAI.APIKey, a.cfg.MCP.EmbeddingModel, a.cfg.MCP.SemanticCacheMaxEntries)
		if err != nil {
			return fmt.Errorf("semantic cache (library-lru): %w", err)
		}
		a.semanticCache = sc
		a.log.Info("semantic cache: library-lru")
	case "library-redis":
		if a.rdb == nil {
			return fmt.Errorf("semantic cache: library-redis requires REDIS_URL")
		}
		sc, err := cache.NewLibraryRedisSemanticCache(a.cfg.OpenAI.APIKey, a.cfg.MCP.EmbeddingModel, a.cfg.Redis.URL, 0)
		if err != nil {
			return fmt.Errorf("semantic cache (library-redis): %w", err)
		}
		a.semanticCache = sc
		a.log.Info("semantic cache: library-redis")
	default:
		return fmt.Errorf("unknown semantic cache backend: %s", a.cfg.MCP.SemanticBackend)
	}

	return nil
}

// buildEmbedder resolves the embedding backend the native semantic cache
// uses: the dependency-free hash embedder, or an OpenAI-backed one when the
// openai provider is configured.
func (a *App) buildEmbedder() (embed.Provider, error) {
	if a.cfg.MCP.EmbeddingBackend != "openai" {
		return embed.NewHashEmbedder(256), nil
	}
	ep, ok := a.provs["openai"].(providers.EmbeddingProvider)
	if !ok {
		return nil, fmt.Errorf("embedder: MCP_EMBEDDING_BACKEND=openai requires the openai provider to be configured")
	}
	return embed.NewOpenAIEmbedder(ep, a.cfg.MCP.EmbeddingModel, 1536), nil
}

// initPipeline wires the SmartRouter, Executor, Pipeline, and HTTP surface
// together from the subsystems built by the earlier steps.
func (a *App) initPipeline(_ context.Context) error {
	r := router.New()

	var exclusions *npcache.ExclusionList
	if len(a.cfg.Cache.ExcludeExact) > 0 || len(a.cfg.Cache.ExcludePatterns) > 0 {
		el, err := npcache.NewExclusionList(a.cfg.Cache.ExcludeExact, a.cfg.Cache.ExcludePatterns)
		if err != nil {
			return fmt.Errorf("cache exclusions: %w", err)
		}
		exclusions = el
		a.log.Info("cache exclusions loaded", slog.Int("rules", el.Len()))
	}

	exec := executor.New(executor.Options{
		Gateway:         gateway.New(a.provs),
		Router:          r,
		ExactCache:      a.exactCache,
		SemanticCache:   a.semanticCache,
		Sink:            a.sink,
		MaxRetries:      a.cfg.Failover.MaxRetries,
		ProviderTimeout: a.cfg.Failover.ProviderTimeout,
		CBConfig: executor.CBConfig{
			ErrorThreshold:  a.cfg.CircuitBreaker.ErrorThreshold,
			TimeWindow:      a.cfg.CircuitBreaker.TimeWindow,
			HalfOpenTimeout: a.cfg.CircuitBreaker.HalfOpenTimeout,
		},
		FallbackOrder:   providers.DefaultFallbackOrder,
		CacheExclusions: exclusions,
		Log:             a.log,
	})

	manager := config.NewManager(a.cfg)

	var limiter pipeline.Limiter
	if a.rdb != nil && a.cfg.RateLimit.RPMLimit > 0 {
		limiter = ratelimit.NewRPMLimiter(a.rdb, a.cfg.RateLimit.RPMLimit)
		a.log.Info("rate limiting enabled", slog.Int("rpm_limit", a.cfg.RateLimit.RPMLimit))
	}

	a.pipe = pipeline.New(pipeline.Options{
		Executor:        exec,
		Manager:         manager,
		QueueCapacity:   a.cfg.MCP.QueueCapacity,
		DispatcherCount: a.cfg.MCP.DispatcherCount,
		Limiter:         limiter,
		Log:             a.log,
	})

	a.server = httpapi.New(httpapi.Options{
		Pipeline:      a.pipe,
		Metrics:       a.prom,
		Recent:        a.ring,
		Log:           a.log,
		CORSOrigins:   a.cfg.CORSOrigins,
		InferPriority: config.InferPriority,
		Providers:     a.provs,
		CacheReady:    a.cacheReadyProbe(),
	})

	return nil
}

// cacheReadyProbe returns a zero-argument probe function suitable for the
// health checker. A nil Redis client (memory/none cache modes) is always
// considered ready.
func (a *App) cacheReadyProbe() func() bool {
	if a.rdb == nil {
		return func() bool { return true }
	}
	return func() bool {
		pingCtx, cancel := context.WithTimeout(a.baseCtx, time.Second)
		defer cancel()
		return a.rdb.Ping(pingCtx).Err() == nil
	}
}
