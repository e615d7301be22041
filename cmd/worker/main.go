package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"catalog-search/config"
	"catalog-search/internal/app"
	"catalog-search/internal/ingest"
	"catalog-search/internal/outbox"
	"catalog-search/internal/queue"
	"catalog-search/internal/tracing"
	"catalog-search/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const serviceName = "catalog-search-worker"

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, l)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	a.Index.Bootstrap(ctx)

	// Only search-sync is processed here; the other managed queues are
	// consumed by their owning services and only administered by this one.
	handlers := map[queue.Name]queue.Handler{
		queue.SearchSync: a.Sync.HandleJob,
	}

	g, ctx := errgroup.WithContext(ctx)
	for name, h := range handlers {
		w := queue.NewWorker(a.Queues[name], h, cfg.ConcurrencyFor(string(name)), cfg.QueuePollInterval, l)
		g.Go(func() error { return w.Run(ctx) })
	}

	recoverer := outbox.DefaultRecoverer(a.Sync, l)
	g.Go(func() error { return recoverer.Run(ctx) })

	if len(cfg.KafkaBrokers) > 0 {
		consumer := ingest.NewConsumer(ingest.NewReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID), a.Sync, l)
		g.Go(func() error { return consumer.Run(ctx) })
		l.Infof("consuming change events from %s", cfg.KafkaTopic)
	}

	if err := g.Wait(); err != nil {
		l.Errorf("worker stopped with error: %v", err)
		return
	}
	l.Infof("worker stopped gracefully")
}
