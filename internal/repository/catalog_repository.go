package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"catalog-search/internal/domain/catalog"
	catalog_errors "catalog-search/pkg/errors"

	"github.com/jmoiron/sqlx"
)

const productColumns = `id, name, COALESCE(description, '') AS description, category_id,
    lowest_price, COALESCE(average_rating, 0) AS average_rating,
    COALESCE(popularity_score, 0) AS popularity_score`

// SQLCatalogRepository reads products and seller offers with plain SQL.
// Queries are written with ? placeholders and rebound for the driver.
type SQLCatalogRepository struct {
	db *sqlx.DB
}

func NewCatalogRepository(db *sqlx.DB) CatalogRepository {
	return &SQLCatalogRepository{db: db}
}

func (r *SQLCatalogRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLCatalogRepository) GetProduct(ctx context.Context, id int64) (catalog.Product, error) {
	var p catalog.Product
	err := r.db.GetContext(ctx, &p, r.db.Rebind(`
  SELECT `+productColumns+`
  FROM products
  WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Product{}, catalog_errors.ErrNotFound
		}
		return catalog.Product{}, err
	}
	return p, nil
}

// GetProducts returns the rows that exist, in no particular order.
func (r *SQLCatalogRepository) GetProducts(ctx context.Context, ids []int64) ([]catalog.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
  SELECT `+productColumns+`
  FROM products
  WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}

	var out []catalog.Product
	err = r.db.SelectContext(ctx, &out, r.db.Rebind(query), args...)
	return out, err
}

func (r *SQLCatalogRepository) ListProducts(ctx context.Context, afterID int64, limit int) ([]catalog.Product, error) {
	var out []catalog.Product
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
  SELECT `+productColumns+`
  FROM products
  WHERE id > ?
  ORDER BY id ASC
  LIMIT ?`), afterID, limit)
	return out, err
}

func (r *SQLCatalogRepository) AvailableSellerIDs(ctx context.Context, productIDs []int64) (map[int64][]int64, error) {
	out := make(map[int64][]int64, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`
  SELECT DISTINCT product_id, seller_id
  FROM product_prices
  WHERE product_id IN (?) AND is_available = ?
  ORDER BY product_id, seller_id`, productIDs, true)
	if err != nil {
		return nil, err
	}

	var offers []catalog.SellerOffer
	if err := r.db.SelectContext(ctx, &offers, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, o := range offers {
		out[o.ProductID] = append(out[o.ProductID], o.SellerID)
	}
	return out, nil
}

// SearchProducts is the relational fallback. It matches the keyword as a
// case insensitive substring of name or description and orders by popularity.
func (r *SQLCatalogRepository) SearchProducts(ctx context.Context, keyword string, f catalog.Filter, offset, limit int) ([]catalog.Product, int64, error) {
	conds := []string{"1 = 1"}
	args := []any{}
	if kw := strings.TrimSpace(keyword); kw != "" {
		conds = append(conds, `(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(COALESCE(description, '')) LIKE ? ESCAPE '\')`)
		args = append(args, containsPattern(kw), containsPattern(kw))
	}
	if f.CategoryID != nil {
		conds = append(conds, "category_id = ?")
		args = append(args, *f.CategoryID)
	}
	if f.MinPrice != nil {
		conds = append(conds, "lowest_price >= ?")
		args = append(args, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		conds = append(conds, "lowest_price <= ?")
		args = append(args, *f.MaxPrice)
	}
	if f.MinRating != nil {
		conds = append(conds, "average_rating >= ?")
		args = append(args, *f.MinRating)
	}
	if f.SellerID != nil {
		conds = append(conds, `EXISTS (
      SELECT 1 FROM product_prices pp
      WHERE pp.product_id = products.id AND pp.seller_id = ? AND pp.is_available = ?)`)
		args = append(args, *f.SellerID, true)
	}
	where := strings.Join(conds, " AND ")

	var total int64
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM products WHERE `+where), args...); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []catalog.Product{}, 0, nil
	}

	query := `
  SELECT ` + productColumns + `
  FROM products
  WHERE ` + where + `
  ORDER BY popularity_score DESC, id ASC
  LIMIT ? OFFSET ?`
	pageArgs := append(append([]any{}, args...), limit, offset)

	var out []catalog.Product
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(query), pageArgs...); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *SQLCatalogRepository) NamesWithPrefix(ctx context.Context, prefix string, limit int) ([]string, error) {
	var out []string
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
  SELECT name
  FROM products
  WHERE LOWER(name) LIKE ? ESCAPE '\'
  ORDER BY popularity_score DESC, id ASC
  LIMIT ?`), prefixPattern(prefix), limit)
	return out, err
}
