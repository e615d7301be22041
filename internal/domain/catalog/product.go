package catalog

// Product is the primary store's view of a sellable item. This service only
// reads it.
type Product struct {
	ID              int64    `db:"id" json:"id"`
	Name            string   `db:"name" json:"name"`
	Description     string   `db:"description" json:"description"`
	CategoryID      int64    `db:"category_id" json:"categoryId"`
	LowestPrice     *float64 `db:"lowest_price" json:"lowestPrice"`
	AverageRating   float64  `db:"average_rating" json:"averageRating"`
	PopularityScore float64  `db:"popularity_score" json:"popularityScore"`
}

// SellerOffer links a product to a seller currently offering it.
type SellerOffer struct {
	ProductID int64 `db:"product_id"`
	SellerID  int64 `db:"seller_id"`
}

// Filter holds the structural constraints shared by both query paths.
type Filter struct {
	CategoryID *int64   `json:"categoryId,omitempty"`
	SellerID   *int64   `json:"sellerId,omitempty"`
	MinPrice   *float64 `json:"minPrice,omitempty"`
	MaxPrice   *float64 `json:"maxPrice,omitempty"`
	MinRating  *float64 `json:"minRating,omitempty"`
}

// Snapshot flattens the filter for search log storage.
func (f Filter) Snapshot() map[string]interface{} {
	out := map[string]interface{}{}
	if f.CategoryID != nil {
		out["categoryId"] = *f.CategoryID
	}
	if f.SellerID != nil {
		out["sellerId"] = *f.SellerID
	}
	if f.MinPrice != nil {
		out["minPrice"] = *f.MinPrice
	}
	if f.MaxPrice != nil {
		out["maxPrice"] = *f.MaxPrice
	}
	if f.MinRating != nil {
		out["minRating"] = *f.MinRating
	}
	return out
}
