package app

import (
	"context"
	"fmt"
	"time"

	"catalog-search/config"
	"catalog-search/internal/domain/search"
	"catalog-search/internal/queue"
	"catalog-search/internal/redis"
	"catalog-search/internal/repository"
	"catalog-search/internal/searchindex"
	"catalog-search/internal/services"
	"catalog-search/internal/storage"
	"catalog-search/pkg/database"
	"catalog-search/pkg/events"
	"catalog-search/pkg/logger"

	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
)

const popularCacheTTL = time.Minute

// App holds the wired dependencies shared by the api and worker binaries.
type App struct {
	Config  *config.Config
	Logger  *logger.Logger
	Redis   *goredis.Client
	Catalog *sqlx.DB
	Queues  map[queue.Name]*queue.RedisQueue
	Broker  events.Broker

	Index      *services.IndexService
	Sync       *services.SyncService
	Search     *services.SearchService
	Keywords   *services.KeywordService
	Weights    *services.WeightService
	QueueAdmin *services.QueueAdminService
	Archiver   *services.OutboxArchiver
}

// Build connects every backing store and constructs the services.
func Build(ctx context.Context, cfg *config.Config, l *logger.Logger) (*App, error) {
	if err := database.Connect(cfg); err != nil {
		return nil, err
	}
	catalogDB, err := database.ConnectCatalog(cfg)
	if err != nil {
		database.Close()
		return nil, err
	}

	rdb := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redis.HealthCheck(ctx, rdb); err != nil {
		_ = catalogDB.Close()
		database.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	a := &App{
		Config:  cfg,
		Logger:  l,
		Redis:   rdb,
		Catalog: catalogDB,
		Queues:  map[queue.Name]*queue.RedisQueue{},
		Broker:  events.NewRedisBroker(rdb, l),
	}

	var managed []services.ManagedQueue
	for _, name := range queue.Managed {
		q := queue.NewRedisQueue(rdb, name)
		a.Queues[name] = q
		managed = append(managed, q)
	}

	catalogRepo := repository.NewCatalogRepository(catalogDB)
	outboxRepo := repository.NewOutboxRepository(database.DB)

	engine := searchindex.NewEngine(rdb, searchindex.Options{
		Index:     cfg.SearchIndexName,
		KeyPrefix: cfg.SearchDocPrefix,
		Language:  cfg.SearchLanguage,
	})

	a.Index = services.NewIndexService(engine, catalogRepo, l)
	a.Sync = services.NewSyncService(outboxRepo, a.Queues[queue.SearchSync], a.Index, l)
	a.Weights = services.NewWeightService(repository.NewWeightRepository(database.DB), search.Weights(cfg.DefaultWeights))
	a.Weights.SetPublisher(a.Broker, l)
	a.Search = services.NewSearchService(engine, catalogRepo, repository.NewSearchLogRepository(database.DB), a.Weights, cfg.SearchPrimaryTimeout, l)
	a.Search.SetCache(redis.NewCacheStore(rdb, popularCacheTTL))
	a.Keywords = services.NewKeywordService(
		repository.NewRecentKeywordRepository(database.DB),
		repository.NewPreferenceRepository(database.DB),
		l,
	)
	a.QueueAdmin = services.NewQueueAdminService(managed, l)

	var store services.ObjectStore
	if cfg.S3Bucket != "" {
		client, err := storage.NewClient(ctx, storage.S3Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3Endpoint,
		})
		if err != nil {
			l.Warnf("outbox archive disabled: %v", err)
		} else {
			store = client
		}
	}
	a.Archiver = services.NewOutboxArchiver(outboxRepo, store, l)

	return a, nil
}

// WatchWeights drops cached ranking weights whenever another instance
// changes them.
func (a *App) WatchWeights(ctx context.Context) error {
	return a.Broker.Subscribe(ctx, services.WeightsChannel, a.Weights.HandleEvent)
}

// Close releases every connection opened by Build.
func (a *App) Close() {
	_ = a.Redis.Close()
	_ = a.Catalog.Close()
	database.Close()
}
