// Command cache-server runs the storefront cache engine: the webhook
// invalidation endpoint, health and stats surfaces, and Prometheus metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/velora/storefront-cache/internal/config"
	"github.com/velora/storefront-cache/pkg/cache"
	"github.com/velora/storefront-cache/pkg/domaincache"
	"github.com/velora/storefront-cache/pkg/logging"
	"github.com/velora/storefront-cache/pkg/orderlimit"
	"github.com/velora/storefront-cache/pkg/ratelimit"
	"github.com/velora/storefront-cache/pkg/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.Setup(logging.DefaultConfig())
		fallback.Fatal().Err(err).Msg("load config")
	}

	logCfg := logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: os.Stderr,
	}
	if len(cfg.Log.Components) > 0 {
		logCfg.ComponentLevels = make(map[string]logging.LogLevel, len(cfg.Log.Components))
		for component, level := range cfg.Log.Components {
			logCfg.ComponentLevels[component] = logging.LogLevel(level)
		}
	}
	logger := logging.Setup(logCfg)

	// The remote tier is optional: a missing address or unreachable store
	// runs the engine local-only.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).
				Msg("redis unreachable at startup, continuing with degraded remote tier")
		} else {
			logger.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")
		}
		cancel()
	}

	apiLimiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute, time.Minute)

	manager, err := cache.NewManager(cache.Options{
		Redis:         redisClient,
		RemoteTimeout: cfg.Redis.Timeout,
		LocalCapacity: cfg.Cache.LocalCapacity,
		DefaultTTL:    cfg.Cache.DefaultTTL,
		Limiter:       apiLimiter,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create cache manager")
	}

	domain := domaincache.New(nil)
	domain.Start(cfg.Domain.SweepInterval)
	defer domain.Close()

	limiter := orderlimit.New(orderlimit.Config{
		MaxAttemptsPerHour: cfg.OrderLimits.MaxPerHour,
		MaxAttemptsPerDay:  cfg.OrderLimits.MaxPerDay,
		BlockDuration:      cfg.OrderLimits.BlockDuration,
		WarningThreshold:   cfg.OrderLimits.WarningThreshold,
	}, domain)
	limiter.StartCleanup(cfg.OrderLimits.CleanupInterval)
	defer limiter.Close()

	pipeline := webhook.NewPipeline(cfg.Webhook.Secret, manager, domain, nil)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(manager, domain, limiter, pipeline),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("cache server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
	}
}

func newRouter(manager *cache.Manager, domain *domaincache.Cache, limiter *orderlimit.Limiter, pipeline *webhook.Pipeline) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/webhooks/commerce", pipeline.Handler())
	r.Get("/stats", statsHandler(manager, domain, limiter))

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func statsHandler(manager *cache.Manager, domain *domaincache.Cache, limiter *orderlimit.Limiter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"page_cache":   manager.Stats(),
			"domain_cache": domain.Stats(),
			"order_limits": limiter.Stats(),
		})
	}
}
