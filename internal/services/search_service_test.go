package services

import (
	"context"
	"testing"
	"time"

	"catalog-search/internal/domain/catalog"
	"catalog-search/internal/domain/search"
	"catalog-search/internal/repository"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func memCatalog(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	schema := `
	CREATE TABLE products(
	  id INTEGER PRIMARY KEY,
	  name TEXT NOT NULL,
	  description TEXT,
	  category_id INTEGER NOT NULL,
	  lowest_price REAL,
	  average_rating REAL,
	  popularity_score REAL
	);
	CREATE TABLE product_prices(
	  product_id INTEGER NOT NULL,
	  seller_id INTEGER NOT NULL,
	  price REAL NOT NULL,
	  is_available BOOLEAN NOT NULL
	);
	INSERT INTO products(id, name, description, category_id, lowest_price, average_rating, popularity_score) VALUES
	  (1, 'Budget Laptop', '', 1, 400, 3.9, 1),
	  (2, 'Laptop Pro', '', 1, 1900, 4.8, 10),
	  (3, 'Laptop Air', '', 1, 1200, 4.5, 5),
	  (4, 'Phone X', 'flagship phone', 2, 999, 4.7, 50),
	  (5, 'Phone Case', 'fits phone x', 3, 19, 4.1, 8);
	INSERT INTO product_prices(product_id, seller_id, price, is_available) VALUES
	  (4, 1, 999, 1),
	  (5, 2, 19, 1);
	`
	_, err = db.Exec(schema)
	require.NoError(t, err)
	return db
}

type searchFixture struct {
	engine *fakeEngine
	logs   *fakeLogRepo
	svc    *SearchService
}

func newSearchFixture(cat repository.CatalogRepository) *searchFixture {
	f := &searchFixture{engine: newFakeEngine(), logs: &fakeLogRepo{}}
	weights := NewWeightService(&fakeWeightRepo{}, nil)
	f.svc = NewSearchService(f.engine, cat, f.logs, weights, 50*time.Millisecond, nil)
	return f
}

func productIDs(items []catalog.Product) []int64 {
	out := make([]int64, len(items))
	for i, p := range items {
		out[i] = p.ID
	}
	return out
}

func TestSearchService_FallbackOrdersByPopularity(t *testing.T) {
	f := newSearchFixture(repository.NewCatalogRepository(memCatalog(t)))
	f.engine.err = errEngineDown

	res, err := f.svc.Search(context.Background(), search.Query{Keyword: "laptop"})
	require.NoError(t, err)

	assert.Equal(t, search.EngineFallback, res.Engine)
	assert.Equal(t, []int64{2, 3, 1}, productIDs(res.Items))
	var scores []float64
	for _, p := range res.Items {
		scores = append(scores, p.PopularityScore)
	}
	assert.Equal(t, []float64{10, 5, 1}, scores)
	assert.Equal(t, search.PageMeta{Page: 1, Limit: search.DefaultPageLimit, Total: 3, TotalPages: 1}, res.PageMeta)

	require.Len(t, f.logs.logs, 1)
	assert.Equal(t, search.EngineFallback, f.logs.logs[0].Engine)
	assert.Equal(t, 3, f.logs.logs[0].ResultCount)
}

func TestSearchService_FallbackMatchesDirectRelationalFilter(t *testing.T) {
	cat := repository.NewCatalogRepository(memCatalog(t))
	f := newSearchFixture(cat)
	f.engine.err = errEngineDown

	minRating := 4.5
	filter := catalog.Filter{MinRating: &minRating}
	res, err := f.svc.Search(context.Background(), search.Query{Keyword: "phone", Filter: filter})
	require.NoError(t, err)

	direct, total, err := cat.SearchProducts(context.Background(), "phone", filter, 0, search.DefaultPageLimit)
	require.NoError(t, err)
	assert.Equal(t, search.EngineFallback, res.Engine)
	assert.Equal(t, direct, res.Items)
	assert.Equal(t, total, res.PageMeta.Total)
	assert.Equal(t, map[string]interface{}{"minRating": 4.5}, map[string]interface{}(f.logs.logs[0].Filters))
}

func TestSearchService_PrimaryPreservesEngineOrder(t *testing.T) {
	f := newSearchFixture(newFakeCatalog(
		catalog.Product{ID: 1, Name: "a"},
		catalog.Product{ID: 2, Name: "b"},
		catalog.Product{ID: 3, Name: "c"},
	))
	f.engine.hits = search.HitPage{
		Total: 4,
		Hits:  []search.Hit{{ID: 2, Score: 9}, {ID: 99, Score: 5}, {ID: 1, Score: 4}, {ID: 3, Score: 1}},
	}
	f.logs.logs = []search.Log{{Keyword: "gaming phone"}, {Keyword: "phone case"}, {Keyword: "phone case"}, {Keyword: "phone"}}

	uid := int64(8)
	res, err := f.svc.Search(context.Background(), search.Query{Keyword: " phone ", Page: 2, Limit: 2, UserID: &uid})
	require.NoError(t, err)

	assert.Equal(t, search.EnginePrimary, res.Engine)
	assert.Equal(t, []int64{2, 1, 3}, productIDs(res.Items))
	assert.Equal(t, []string{"phone case", "gaming phone"}, res.RelatedKeywords)
	assert.Equal(t, 2, f.engine.lastRequest.Offset)
	assert.Equal(t, "phone", f.engine.lastRequest.Keyword)
	assert.Equal(t, search.DefaultWeights(), f.engine.lastRequest.Weights)

	last := f.logs.logs[len(f.logs.logs)-1]
	assert.Equal(t, "phone", last.Keyword)
	assert.Equal(t, &uid, last.UserID)
	assert.Equal(t, search.EnginePrimary, last.Engine)
}

func TestSearchService_EmptyKeywordIsNotLogged(t *testing.T) {
	f := newSearchFixture(newFakeCatalog())
	res, err := f.svc.Search(context.Background(), search.Query{Limit: 500})
	require.NoError(t, err)
	assert.Empty(t, f.logs.logs)
	assert.Empty(t, res.RelatedKeywords)
	assert.Equal(t, search.MaxPageLimit, res.PageMeta.Limit)
}

func TestSearchService_AutocompletePrimaryHighlights(t *testing.T) {
	f := newSearchFixture(newFakeCatalog())
	f.engine.suggestions = []string{"Laptop Pro", "laptop pro", "Gaming Laptop", "Lapdesk"}

	res, err := f.svc.Autocomplete(context.Background(), "lapt", 10)
	require.NoError(t, err)
	assert.Equal(t, search.EnginePrimary, res.Engine)
	assert.Equal(t, []search.Suggestion{
		{Text: "Laptop Pro", Highlighted: "<em>Lapt</em>op Pro"},
		{Text: "Gaming Laptop", Highlighted: "Gaming <em>Lapt</em>op"},
		{Text: "Lapdesk", Highlighted: "Lapdesk"},
	}, res.Suggestions)
}

func TestSearchService_AutocompleteFallbackUnion(t *testing.T) {
	f := newSearchFixture(newFakeCatalog(
		catalog.Product{ID: 1, Name: "Phone X", PopularityScore: 50},
		catalog.Product{ID: 2, Name: "Phone Case", PopularityScore: 8},
	))
	f.engine.err = errEngineDown
	f.logs.logs = []search.Log{{Keyword: "phone x"}, {Keyword: "phone charger"}, {Keyword: "phone charger"}, {Keyword: "tv"}}

	res, err := f.svc.Autocomplete(context.Background(), "pho", 3)
	require.NoError(t, err)
	assert.Equal(t, search.EngineFallback, res.Engine)

	var texts []string
	for _, s := range res.Suggestions {
		texts = append(texts, s.Text)
	}
	assert.Equal(t, []string{"Phone X", "Phone Case", "phone charger"}, texts)
	assert.Equal(t, "<em>pho</em>ne charger", res.Suggestions[2].Highlighted)
}

func TestSearchService_AutocompleteEmptyPrefix(t *testing.T) {
	f := newSearchFixture(newFakeCatalog())
	f.engine.err = errEngineDown
	res, err := f.svc.Autocomplete(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, res.Suggestions)
	assert.NotNil(t, res.Suggestions)
}

func TestSearchService_PopularKeywordsWindow(t *testing.T) {
	f := newSearchFixture(newFakeCatalog())
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }
	f.logs.logs = []search.Log{
		{Keyword: "tv", CreatedAt: now.Add(-time.Hour)},
		{Keyword: "tv", CreatedAt: now.Add(-48 * time.Hour)},
		{Keyword: "phone", CreatedAt: now.Add(-time.Hour)},
		{Keyword: "radio", CreatedAt: now.AddDate(0, 0, -8)},
		{Keyword: "radio", CreatedAt: now.AddDate(0, 0, -9)},
	}

	got, err := f.svc.PopularKeywords(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []search.PopularKeyword{
		{Rank: 1, Keyword: "tv", Count: 2},
		{Rank: 2, Keyword: "phone", Count: 1},
	}, got)
}
