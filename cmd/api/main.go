package main

import (
	"context"
	"log"
	"time"

	"catalog-search/config"
	"catalog-search/internal/app"
	"catalog-search/internal/handler"
	"catalog-search/internal/redis"
	"catalog-search/internal/server"
	"catalog-search/internal/tracing"
	"catalog-search/pkg/database"
	"catalog-search/pkg/logger"
)

const serviceName = "catalog-search-api"

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.LogMode, serviceName)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	shutdownTracing, err := tracing.InitTracerProvider(serviceName, cfg.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, l)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	// Serve even when the engine is down; queries fall back to the catalog.
	a.Index.Bootstrap(ctx)

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if err := a.WatchWeights(watchCtx); err != nil {
		l.Warnf("weight change notifications disabled: %v", err)
	}

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Index:  handler.NewIndexHandler(a.Index, a.Sync, a.Archiver),
		Search: handler.NewSearchHandler(a.Search, a.Keywords, a.Weights, l),
		Queue:  handler.NewQueueHandler(a.QueueAdmin),
	}, redis.NewRateLimiter(a.Redis, redis.DefaultRateLimitConfig()), server.Health{
		Checks: []server.HealthCheck{
			{Name: "database", Check: database.HealthCheck},
			{Name: "catalog", Check: a.Catalog.PingContext},
			{Name: "redis", Check: func(ctx context.Context) error { return redis.HealthCheck(ctx, a.Redis) }},
		},
		Degraded: a.Index.Degraded,
	})

	if err := srv.Start(ctx); err != nil {
		l.Errorf("server stopped with error: %v", err)
	}
}
