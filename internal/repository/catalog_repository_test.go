package repository

import (
	"context"
	"testing"

	"catalog-search/internal/domain/catalog"
	catalog_errors "catalog-search/pkg/errors"

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
	  (1, 'Laptop Pro 15', 'fast laptop', 10, 1500, 4.5, 90),
	  (2, 'Gaming Laptop', 'rgb keyboard', 10, 2000, 4.0, 120),
	  (3, 'Laptop Stand', 'aluminium', 20, 40, 3.5, 30),
	  (4, 'Desk Lamp', 'warm light for the laptop desk', 20, NULL, NULL, 10),
	  (5, '100% Cotton Shirt', NULL, 30, 25, 4.9, 5);
	INSERT INTO product_prices(product_id, seller_id, price, is_available) VALUES
	  (1, 7, 1500, 1),
	  (1, 8, 1600, 0),
	  (2, 8, 2000, 1),
	  (2, 9, 2100, 1),
	  (3, 7, 40, 1);
	`
	_, err = db.Exec(schema)
	require.NoError(t, err)
	return db
}

func ids(products []catalog.Product) []int64 {
	out := make([]int64, 0, len(products))
	for _, p := range products {
		out = append(out, p.ID)
	}
	return out
}

func TestCatalogRepository_GetProduct(t *testing.T) {
	repo := NewCatalogRepository(memCatalog(t))
	ctx := context.Background()

	p, err := repo.GetProduct(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "Desk Lamp", p.Name)
	assert.Nil(t, p.LowestPrice)
	assert.Zero(t, p.AverageRating)

	_, err = repo.GetProduct(ctx, 99)
	assert.ErrorIs(t, err, catalog_errors.ErrNotFound)
}

func TestCatalogRepository_SearchOrdersByPopularity(t *testing.T) {
	repo := NewCatalogRepository(memCatalog(t))

	got, total, err := repo.SearchProducts(context.Background(), "LAPTOP", catalog.Filter{}, 0, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Equal(t, []int64{2, 1, 3, 4}, ids(got))
}

func TestCatalogRepository_SearchFilters(t *testing.T) {
	repo := NewCatalogRepository(memCatalog(t))
	ctx := context.Background()

	cat := int64(10)
	maxPrice := 1800.0
	got, total, err := repo.SearchProducts(ctx, "laptop", catalog.Filter{CategoryID: &cat, MaxPrice: &maxPrice}, 0, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, []int64{1}, ids(got))

	seller := int64(7)
	got, _, err = repo.SearchProducts(ctx, "", catalog.Filter{SellerID: &seller}, 0, 20)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids(got))

	minRating := 4.2
	got, _, err = repo.SearchProducts(ctx, "", catalog.Filter{MinRating: &minRating}, 0, 20)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 5}, ids(got))
}

func TestCatalogRepository_SearchPagingAndEscaping(t *testing.T) {
	repo := NewCatalogRepository(memCatalog(t))
	ctx := context.Background()

	got, total, err := repo.SearchProducts(ctx, "laptop", catalog.Filter{}, 2, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Equal(t, []int64{3, 4}, ids(got))

	got, total, err = repo.SearchProducts(ctx, "100%", catalog.Filter{}, 0, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, []int64{5}, ids(got))

	got, total, err = repo.SearchProducts(ctx, "nothing matches", catalog.Filter{}, 0, 20)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, got)
}

func TestCatalogRepository_AvailableSellerIDs(t *testing.T) {
	repo := NewCatalogRepository(memCatalog(t))

	got, err := repo.AvailableSellerIDs(context.Background(), []int64{1, 2, 4})
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, got[1])
	assert.Equal(t, []int64{8, 9}, got[2])
	assert.Empty(t, got[4])
}

func TestCatalogRepository_ListAndPrefix(t *testing.T) {
	repo := NewCatalogRepository(memCatalog(t))
	ctx := context.Background()

	page, err := repo.ListProducts(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, ids(page))

	many, err := repo.GetProducts(ctx, []int64{5, 1, 42})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 5}, ids(many))

	names, err := repo.NamesWithPrefix(ctx, "lap", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Laptop Pro 15", "Laptop Stand"}, names)
}
