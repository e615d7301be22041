package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"catalog-search/internal/domain/catalog"
	"catalog-search/internal/domain/search"
	"catalog-search/internal/repository"
	"catalog-search/internal/searchindex"
	catalog_errors "catalog-search/pkg/errors"
	"catalog-search/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPopularLimit = 10
	maxPopularLimit     = 100
)

// SearchService answers queries from the index engine and falls back to the
// catalog store whenever the engine fails.
type SearchService struct {
	engine         IndexEngine
	catalog        repository.CatalogRepository
	logs           repository.SearchLogRepository
	weights        *WeightService
	cache          ResultCache
	primaryTimeout time.Duration
	logger         *logger.Logger
	now            func() time.Time
}

func NewSearchService(
	engine IndexEngine,
	catalog repository.CatalogRepository,
	logs repository.SearchLogRepository,
	weights *WeightService,
	primaryTimeout time.Duration,
	l *logger.Logger,
) *SearchService {
	return &SearchService{
		engine:         engine,
		catalog:        catalog,
		logs:           logs,
		weights:        weights,
		primaryTimeout: primaryTimeout,
		logger:         logger.OrNop(l),
		now:            time.Now,
	}
}

// SetCache enables caching of popular keyword rankings.
func (s *SearchService) SetCache(c ResultCache) {
	s.cache = c
}

func (s *SearchService) primaryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.primaryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.primaryTimeout)
}

// Search never surfaces an engine error; only a failing catalog store does.
func (s *SearchService) Search(ctx context.Context, q search.Query) (search.Result, error) {
	q = q.Normalize()
	q.Keyword = strings.TrimSpace(q.Keyword)

	ctx, span := tracer.Start(ctx, "SearchService.Search")
	defer span.End()

	weights, err := s.weights.Current(ctx)
	if err != nil {
		s.logger.Ctx(ctx).Warnf("load search weights, using defaults: %v", err)
		weights = s.weights.defaults
	}

	res, err := s.primarySearch(ctx, q, weights)
	if err != nil {
		span.AddEvent("fallback", trace.WithAttributes(attribute.String("cause", err.Error())))
		s.logger.Ctx(ctx).Warnf("primary search failed, using fallback: %v", err)
		res, err = s.fallbackSearch(ctx, q)
		if err != nil {
			return search.Result{}, err
		}
	}
	span.SetAttributes(attribute.String("search.engine", res.Engine))

	s.record(ctx, q, res)
	res.RelatedKeywords = s.related(ctx, q.Keyword)
	return res, nil
}

func (s *SearchService) primarySearch(ctx context.Context, q search.Query, weights search.Weights) (search.Result, error) {
	pctx, cancel := s.primaryContext(ctx)
	defer cancel()

	page, err := s.engine.Search(pctx, searchindex.Request{
		Keyword: q.Keyword,
		Filter:  q.Filter,
		Weights: weights,
		Offset:  q.Offset(),
		Limit:   q.Limit,
	})
	if err != nil {
		return search.Result{}, fmt.Errorf("%v: %w", err, catalog_errors.ErrEngineUnavailable)
	}

	ids := make([]int64, len(page.Hits))
	for i, h := range page.Hits {
		ids[i] = h.ID
	}
	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return search.Result{}, err
	}
	byID := make(map[int64]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	items := make([]catalog.Product, 0, len(ids))
	for _, id := range ids {
		// documents can outlive their product until the delete event lands
		if p, ok := byID[id]; ok {
			items = append(items, p)
		}
	}

	return search.Result{
		Items:    items,
		PageMeta: search.NewPageMeta(q.Page, q.Limit, page.Total),
		Engine:   search.EnginePrimary,
	}, nil
}

func (s *SearchService) fallbackSearch(ctx context.Context, q search.Query) (search.Result, error) {
	items, total, err := s.catalog.SearchProducts(ctx, q.Keyword, q.Filter, q.Offset(), q.Limit)
	if err != nil {
		return search.Result{}, err
	}
	if items == nil {
		items = []catalog.Product{}
	}
	return search.Result{
		Items:    items,
		PageMeta: search.NewPageMeta(q.Page, q.Limit, total),
		Engine:   search.EngineFallback,
	}, nil
}

func (s *SearchService) record(ctx context.Context, q search.Query, res search.Result) {
	if q.Keyword == "" {
		return
	}
	entry := &search.Log{
		Keyword:     catalog_errors.Truncate(q.Keyword, 200),
		ResultCount: int(res.PageMeta.Total),
		UserID:      q.UserID,
		Filters:     q.Filter.Snapshot(),
		Engine:      res.Engine,
		CreatedAt:   s.now(),
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		s.logger.Ctx(ctx).Warnf("record search log: %v", err)
	}
}

func (s *SearchService) related(ctx context.Context, keyword string) []string {
	out := []string{}
	if keyword == "" {
		return out
	}
	rows, err := s.logs.RelatedKeywords(ctx, keyword, search.RelatedKeywordLimit)
	if err != nil {
		s.logger.Ctx(ctx).Warnf("related keywords: %v", err)
		return out
	}
	for _, r := range rows {
		out = append(out, r.Keyword)
	}
	return out
}

// Autocomplete suggests completions for prefix with the match highlighted.
func (s *SearchService) Autocomplete(ctx context.Context, prefix string, limit int) (search.SuggestionResult, error) {
	prefix = strings.TrimSpace(prefix)
	if limit < 1 {
		limit = search.DefaultSuggestLimit
	}
	if limit > search.MaxSuggestLimit {
		limit = search.MaxSuggestLimit
	}
	if prefix == "" {
		return search.SuggestionResult{Suggestions: []search.Suggestion{}, Engine: search.EnginePrimary}, nil
	}

	ctx, span := tracer.Start(ctx, "SearchService.Autocomplete")
	defer span.End()

	pctx, cancel := s.primaryContext(ctx)
	texts, err := s.engine.Suggest(pctx, prefix, limit)
	cancel()
	engine := search.EnginePrimary
	if err != nil {
		s.logger.Ctx(ctx).Warnf("primary autocomplete failed, using fallback: %v", err)
		texts, err = s.fallbackSuggest(ctx, prefix, limit)
		if err != nil {
			return search.SuggestionResult{}, err
		}
		engine = search.EngineFallback
	}
	span.SetAttributes(attribute.String("search.engine", engine))

	texts = dedupeFold(texts, limit)
	suggestions := make([]search.Suggestion, len(texts))
	for i, t := range texts {
		suggestions[i] = search.Suggestion{Text: t, Highlighted: highlight(t, prefix)}
	}
	return search.SuggestionResult{Suggestions: suggestions, Engine: engine}, nil
}

func (s *SearchService) fallbackSuggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	names, err := s.catalog.NamesWithPrefix(ctx, prefix, limit)
	if err != nil {
		return nil, err
	}
	logged, err := s.logs.KeywordsWithPrefix(ctx, prefix, limit)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(names)+len(logged))
	out = append(out, names...)
	for _, k := range logged {
		out = append(out, k.Keyword)
	}
	return out, nil
}

// dedupeFold keeps the first occurrence of each case insensitive value.
func dedupeFold(values []string, limit int) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out
}

// highlight wraps the first case insensitive occurrence of prefix in <em>.
// Fuzzy matches without an exact occurrence are returned unchanged.
func highlight(text, prefix string) string {
	tr := []rune(text)
	n := len([]rune(prefix))
	if n == 0 {
		return text
	}
	for i := 0; i+n <= len(tr); i++ {
		if strings.EqualFold(string(tr[i:i+n]), prefix) {
			return string(tr[:i]) + "<em>" + string(tr[i:i+n]) + "</em>" + string(tr[i+n:])
		}
	}
	return text
}

// PopularKeywords ranks the most searched keywords of the trailing week.
func (s *SearchService) PopularKeywords(ctx context.Context, limit int) ([]search.PopularKeyword, error) {
	if limit < 1 {
		limit = defaultPopularLimit
	}
	if limit > maxPopularLimit {
		limit = maxPopularLimit
	}

	key := fmt.Sprintf("cache:popular-keywords:%d", limit)
	if s.cache != nil {
		var cached []search.PopularKeyword
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached, nil
		} else if err != nil {
			s.logger.Ctx(ctx).Warnf("popular keyword cache read failed: %v", err)
		}
	}

	since := s.now().AddDate(0, 0, -search.PopularKeywordWindowDays)
	rows, err := s.logs.PopularSince(ctx, since, limit)
	if err != nil {
		return nil, err
	}
	out := make([]search.PopularKeyword, len(rows))
	for i, r := range rows {
		out[i] = search.PopularKeyword{Rank: i + 1, Keyword: r.Keyword, Count: r.Count}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, out); err != nil {
			s.logger.Ctx(ctx).Warnf("popular keyword cache write failed: %v", err)
		}
	}
	return out, nil
}
