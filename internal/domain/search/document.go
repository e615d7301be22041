package search

import "math"

// Document is the projection written to the index engine. ID always equals
// the product id, so writing the same product twice yields the same document.
type Document struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	CategoryID      int64    `json:"categoryId"`
	LowestPrice     *float64 `json:"lowestPrice"`
	AverageRating   float64  `json:"averageRating"`
	PopularityScore float64  `json:"popularityScore"`
	SellerIDs       []int64  `json:"sellerIds"`
	Suggest         Suggest  `json:"suggest"`
}

// Suggest is the completion entry for a document.
type Suggest struct {
	Input  string `json:"input"`
	Weight int    `json:"weight"`
}

// SuggestWeight maps a popularity score onto a positive integer weight.
func SuggestWeight(popularity float64) int {
	if popularity <= 0 || math.IsNaN(popularity) {
		return 1
	}
	if popularity > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Ceil(popularity))
}

// Engine names reported with every query response.
const (
	EnginePrimary  = "primary"
	EngineFallback = "fallback"
)
