package services

import (
	"context"

	"catalog-search/internal/domain/search"
	"catalog-search/internal/queue"
	"catalog-search/internal/searchindex"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("catalog-search/services")

// IndexEngine is the primary search engine. *searchindex.Engine satisfies it.
type IndexEngine interface {
	Name() string
	Exists(ctx context.Context) (bool, error)
	EnsureIndex(ctx context.Context) error
	Upsert(ctx context.Context, doc search.Document) error
	BulkUpsert(ctx context.Context, docs []search.Document) error
	Remove(ctx context.Context, id int64) error
	Search(ctx context.Context, req searchindex.Request) (search.HitPage, error)
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)
	Count(ctx context.Context) (int64, error)
}

// IndexWriter applies one outbox event to the index.
type IndexWriter interface {
	UpsertDocument(ctx context.Context, productID int64) error
	RemoveDocument(ctx context.Context, productID int64) error
}

// JobEnqueuer pushes jobs onto a queue and looks them up again.
type JobEnqueuer interface {
	Add(ctx context.Context, jobName string, payload interface{}, opts queue.JobOptions) (*queue.Job, error)
	GetJob(ctx context.Context, id string) (*queue.Job, error)
}

// ManagedQueue is what the control plane needs from a queue.
// *queue.RedisQueue satisfies it.
type ManagedQueue interface {
	Name() queue.Name
	Counts(ctx context.Context) (queue.Counts, error)
	IsPaused(ctx context.Context) (bool, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	FailedCount(ctx context.Context) (int64, error)
	Failed(ctx context.Context, offset, limit int, newestFirst bool) ([]*queue.Job, error)
	GetJob(ctx context.Context, id string) (*queue.Job, error)
	Retry(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
}

// ObjectStore receives archive uploads. *storage.Client satisfies it.
type ObjectStore interface {
	PutObject(ctx context.Context, name string, body []byte, contentType string) (string, error)
	ObjectURI(key string) string
}

// ResultCache holds short lived read results. *redis.CacheStore satisfies it.
type ResultCache interface {
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
}
