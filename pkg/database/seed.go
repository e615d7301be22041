package database

import (
	"context"
	"fmt"
	"log"
	"math/rand"

	"github.com/jmoiron/sqlx"
)

// SeedConfig holds configuration for seeding a development catalog
type SeedConfig struct {
	ProductCount int
	SellerCount  int
	CategoryIDs  []int64
	RandSeed     int64
}

// DefaultSeedConfig returns default seed configuration
func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		ProductCount: 200,
		SellerCount:  12,
		CategoryIDs:  []int64{1, 2, 3, 4, 5},
		RandSeed:     42,
	}
}

// SeedResult holds the result of the seeding operation
type SeedResult struct {
	Products int
	Offers   int
}

type seedProduct struct {
	ID              int64    `db:"id"`
	Name            string   `db:"name"`
	Description     string   `db:"description"`
	CategoryID      int64    `db:"category_id"`
	LowestPrice     *float64 `db:"lowest_price"`
	AverageRating   float64  `db:"average_rating"`
	PopularityScore float64  `db:"popularity_score"`
}

type seedOffer struct {
	ProductID   int64   `db:"product_id"`
	SellerID    int64   `db:"seller_id"`
	Price       float64 `db:"price"`
	IsAvailable bool    `db:"is_available"`
}

var (
	seedBrands    = []string{"Nova", "Apex", "Lumen", "Orbit", "Vertex", "Kite"}
	seedNouns     = []string{"Laptop", "Phone", "Headphones", "Monitor", "Keyboard", "Camera", "Tablet", "Speaker"}
	seedModifiers = []string{"Pro", "Air", "Mini", "Max", "Lite", "Plus"}
)

const (
	upsertProductSQL = `INSERT INTO products (id, name, description, category_id, lowest_price, average_rating, popularity_score)
		VALUES (:id, :name, :description, :category_id, :lowest_price, :average_rating, :popularity_score)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category_id = excluded.category_id,
			lowest_price = excluded.lowest_price,
			average_rating = excluded.average_rating,
			popularity_score = excluded.popularity_score`
	upsertOfferSQL = `INSERT INTO product_prices (product_id, seller_id, price, is_available)
		VALUES (:product_id, :seller_id, :price, :is_available)
		ON CONFLICT (product_id, seller_id) DO UPDATE SET
			price = excluded.price,
			is_available = excluded.is_available`
)

// generateCatalog builds a deterministic product set for cfg.
func generateCatalog(cfg *SeedConfig) ([]seedProduct, []seedOffer) {
	rng := rand.New(rand.NewSource(cfg.RandSeed))
	products := make([]seedProduct, 0, cfg.ProductCount)
	var offers []seedOffer

	for i := 1; i <= cfg.ProductCount; i++ {
		noun := seedNouns[rng.Intn(len(seedNouns))]
		p := seedProduct{
			ID:              int64(i),
			Name:            fmt.Sprintf("%s %s %s %d", seedBrands[rng.Intn(len(seedBrands))], noun, seedModifiers[rng.Intn(len(seedModifiers))], i),
			Description:     fmt.Sprintf("A %s for everyday use", noun),
			CategoryID:      cfg.CategoryIDs[rng.Intn(len(cfg.CategoryIDs))],
			AverageRating:   float64(rng.Intn(41)+10) / 10,
			PopularityScore: float64(rng.Intn(1000)),
		}

		sellers := rng.Perm(cfg.SellerCount)[:1+rng.Intn(3)]
		for _, s := range sellers {
			offer := seedOffer{
				ProductID:   p.ID,
				SellerID:    int64(s + 1),
				Price:       float64(rng.Intn(200000)+1000) / 100,
				IsAvailable: rng.Intn(5) != 0,
			}
			if offer.IsAvailable && (p.LowestPrice == nil || offer.Price < *p.LowestPrice) {
				price := offer.Price
				p.LowestPrice = &price
			}
			offers = append(offers, offer)
		}
		products = append(products, p)
	}
	return products, offers
}

// SeedCatalog fills the catalog read model with generated products. It is
// safe to run repeatedly.
func SeedCatalog(ctx context.Context, db *sqlx.DB, cfg *SeedConfig) (*SeedResult, error) {
	if cfg == nil {
		cfg = DefaultSeedConfig()
	}
	if cfg.ProductCount <= 0 || cfg.SellerCount <= 0 || len(cfg.CategoryIDs) == 0 {
		return nil, fmt.Errorf("seed config needs products, sellers and categories")
	}

	log.Println("Starting catalog seeding...")
	products, offers := generateCatalog(cfg)

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range products {
		if _, err := tx.NamedExecContext(ctx, upsertProductSQL, p); err != nil {
			return nil, fmt.Errorf("failed to seed product %d: %w", p.ID, err)
		}
	}
	for _, o := range offers {
		if _, err := tx.NamedExecContext(ctx, upsertOfferSQL, o); err != nil {
			return nil, fmt.Errorf("failed to seed offer %d/%d: %w", o.ProductID, o.SellerID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("Catalog seeding completed: %d products, %d offers", len(products), len(offers))
	return &SeedResult{Products: len(products), Offers: len(offers)}, nil
}
