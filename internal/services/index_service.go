package services

import (
	"context"
	"sync/atomic"

	"catalog-search/internal/domain/catalog"
	"catalog-search/internal/domain/search"
	"catalog-search/internal/repository"
	"catalog-search/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
)

const (
	EngineKind       = "redisearch"
	reindexBatchSize = 500
)

// IndexStatus is reported by the status endpoint and health check.
type IndexStatus struct {
	Engine        string `json:"engine"`
	Index         string `json:"index"`
	DocumentCount int64  `json:"documentCount"`
	Exists        bool   `json:"exists"`
	Degraded      bool   `json:"degraded"`
	Error         string `json:"error,omitempty"`
}

// IndexService projects catalog products into the index engine.
type IndexService struct {
	engine   IndexEngine
	catalog  repository.CatalogRepository
	logger   *logger.Logger
	degraded atomic.Bool
}

func NewIndexService(engine IndexEngine, catalog repository.CatalogRepository, l *logger.Logger) *IndexService {
	return &IndexService{engine: engine, catalog: catalog, logger: logger.OrNop(l)}
}

// Bootstrap ensures the index at startup. Failure only flips the service
// into degraded mode; queries keep working through the fallback path.
func (s *IndexService) Bootstrap(ctx context.Context) {
	if err := s.EnsureIndex(ctx); err != nil {
		s.logger.Ctx(ctx).Errorf("search index bootstrap failed, running degraded: %v", err)
	}
}

// EnsureIndex creates the index if needed and records the outcome.
func (s *IndexService) EnsureIndex(ctx context.Context) error {
	err := s.engine.EnsureIndex(ctx)
	s.degraded.Store(err != nil)
	return err
}

func (s *IndexService) Degraded() bool {
	return s.degraded.Load()
}

func toDocument(p catalog.Product, sellerIDs []int64) search.Document {
	if sellerIDs == nil {
		sellerIDs = []int64{}
	}
	return search.Document{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		CategoryID:      p.CategoryID,
		LowestPrice:     p.LowestPrice,
		AverageRating:   p.AverageRating,
		PopularityScore: p.PopularityScore,
		SellerIDs:       sellerIDs,
		Suggest: search.Suggest{
			Input:  p.Name,
			Weight: search.SuggestWeight(p.PopularityScore),
		},
	}
}

// UpsertDocument rebuilds the document of one product from the catalog.
func (s *IndexService) UpsertDocument(ctx context.Context, productID int64) error {
	ctx, span := tracer.Start(ctx, "IndexService.UpsertDocument")
	defer span.End()
	span.SetAttributes(attribute.Int64("product.id", productID))

	p, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	sellers, err := s.catalog.AvailableSellerIDs(ctx, []int64{productID})
	if err != nil {
		return err
	}
	return s.engine.Upsert(ctx, toDocument(p, sellers[productID]))
}

// BulkUpsert writes many products with one seller lookup and one engine write.
func (s *IndexService) BulkUpsert(ctx context.Context, products []catalog.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]int64, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	sellers, err := s.catalog.AvailableSellerIDs(ctx, ids)
	if err != nil {
		return err
	}
	docs := make([]search.Document, len(products))
	for i, p := range products {
		docs[i] = toDocument(p, sellers[p.ID])
	}
	return s.engine.BulkUpsert(ctx, docs)
}

// RemoveDocument deletes a document. Absent documents are not an error.
func (s *IndexService) RemoveDocument(ctx context.Context, productID int64) error {
	return s.engine.Remove(ctx, productID)
}

// ReindexAll rewrites every catalog product, in id order.
func (s *IndexService) ReindexAll(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "IndexService.ReindexAll")
	defer span.End()

	if err := s.EnsureIndex(ctx); err != nil {
		return 0, err
	}

	var (
		total   int
		afterID int64
	)
	for {
		batch, err := s.catalog.ListProducts(ctx, afterID, reindexBatchSize)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			break
		}
		if err := s.BulkUpsert(ctx, batch); err != nil {
			return total, err
		}
		total += len(batch)
		afterID = batch[len(batch)-1].ID
		if len(batch) < reindexBatchSize {
			break
		}
	}

	span.SetAttributes(attribute.Int("reindex.count", total))
	s.logger.Ctx(ctx).Infof("reindexed %d products into %s", total, s.engine.Name())
	return total, nil
}

// ReindexOne rewrites a single product. A missing product is ErrNotFound.
func (s *IndexService) ReindexOne(ctx context.Context, productID int64) error {
	if err := s.EnsureIndex(ctx); err != nil {
		return err
	}
	return s.UpsertDocument(ctx, productID)
}

// Status never fails; engine errors are reported in the payload.
func (s *IndexService) Status(ctx context.Context) IndexStatus {
	st := IndexStatus{
		Engine:   EngineKind,
		Index:    s.engine.Name(),
		Degraded: s.degraded.Load(),
	}
	exists, err := s.engine.Exists(ctx)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Exists = exists
	if !exists {
		return st
	}
	count, err := s.engine.Count(ctx)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.DocumentCount = count
	return st
}
