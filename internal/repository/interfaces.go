package repository

import (
	"context"
	"time"

	"catalog-search/internal/domain/catalog"
	"catalog-search/internal/domain/outbox"
	"catalog-search/internal/domain/search"
)

type OutboxRepository interface {
	Create(ctx context.Context, e *outbox.Entry) error
	GetByID(ctx context.Context, id uint64) (outbox.Entry, error)
	// MarkProcessing flips the row to PROCESSING and bumps attempt_count.
	MarkProcessing(ctx context.Context, id uint64) error
	MarkCompleted(ctx context.Context, id uint64, at time.Time) error
	MarkFailed(ctx context.Context, id uint64, lastError string) error
	CountByStatus(ctx context.Context) (map[outbox.Status]int64, error)
	// ListFailed returns FAILED rows, most recently updated first.
	ListFailed(ctx context.Context, limit int) ([]outbox.Entry, error)
	// ResetToPending moves a FAILED row back to PENDING and clears last_error.
	ResetToPending(ctx context.Context, id uint64) error
	// ListTerminalBefore pages COMPLETED/FAILED rows updated before a cutoff, by id.
	ListTerminalBefore(ctx context.Context, before time.Time, afterID uint64, limit int) ([]outbox.Entry, error)
	// ListStale returns PENDING/PROCESSING rows untouched since before, oldest id first.
	ListStale(ctx context.Context, before time.Time, limit int) ([]outbox.Entry, error)
	// TouchPending puts a PENDING/PROCESSING row back to PENDING with a fresh updated_at.
	TouchPending(ctx context.Context, id uint64) error
	// SetJobID records the queue job carrying the row. updated_at is left alone.
	SetJobID(ctx context.Context, id uint64, jobID string) error
}

type SearchLogRepository interface {
	Create(ctx context.Context, l *search.Log) error
	PopularSince(ctx context.Context, since time.Time, limit int) ([]search.KeywordCount, error)
	RelatedKeywords(ctx context.Context, keyword string, limit int) ([]search.KeywordCount, error)
	KeywordsWithPrefix(ctx context.Context, prefix string, limit int) ([]search.KeywordCount, error)
}

type RecentKeywordRepository interface {
	// Upsert refreshes last_searched_at, reviving a retired row if needed.
	Upsert(ctx context.Context, userID int64, keyword string, at time.Time) error
	// TrimToLatest retires every live row beyond the keep newest.
	TrimToLatest(ctx context.Context, userID int64, keep int) (int64, error)
	ListLive(ctx context.Context, userID int64, limit int) ([]search.RecentKeyword, error)
	Retire(ctx context.Context, userID int64, keyword string) error
	RetireAll(ctx context.Context, userID int64) (int64, error)
}

type PreferenceRepository interface {
	// Get returns the stored preference or the default when the user has none.
	Get(ctx context.Context, userID int64) (search.Preference, error)
	SetRecentSearchEnabled(ctx context.Context, userID int64, enabled bool) (search.Preference, error)
}

type WeightRepository interface {
	GetOrCreate(ctx context.Context, name string, defaults search.Weights) (search.WeightSetting, error)
	Replace(ctx context.Context, name string, weights search.Weights) (search.WeightSetting, error)
}

// CatalogRepository reads the product read model owned by the primary store.
type CatalogRepository interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
	GetProducts(ctx context.Context, ids []int64) ([]catalog.Product, error)
	// ListProducts pages by id for full reindexing.
	ListProducts(ctx context.Context, afterID int64, limit int) ([]catalog.Product, error)
	AvailableSellerIDs(ctx context.Context, productIDs []int64) (map[int64][]int64, error)
	SearchProducts(ctx context.Context, keyword string, f catalog.Filter, offset, limit int) ([]catalog.Product, int64, error)
	NamesWithPrefix(ctx context.Context, prefix string, limit int) ([]string, error)
	Ping(ctx context.Context) error
}
