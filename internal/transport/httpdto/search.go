package httpdto

import (
	"catalog-search/internal/domain/catalog"
	"catalog-search/internal/domain/search"
)

// SearchRequest holds query parameters for GET /search
type SearchRequest struct {
	Keyword    string   `form:"keyword"`
	CategoryID *int64   `form:"categoryId"`
	SellerID   *int64   `form:"sellerId"`
	MinPrice   *float64 `form:"minPrice"`
	MaxPrice   *float64 `form:"maxPrice"`
	MinRating  *float64 `form:"minRating"`
	Page       int      `form:"page"`
	Limit      int      `form:"limit"`
}

// ToQuery converts the request into a search query for userID (nil when
// anonymous).
func (r SearchRequest) ToQuery(userID *int64) search.Query {
	return search.Query{
		Keyword: r.Keyword,
		Filter: catalog.Filter{
			CategoryID: r.CategoryID,
			SellerID:   r.SellerID,
			MinPrice:   r.MinPrice,
			MaxPrice:   r.MaxPrice,
			MinRating:  r.MinRating,
		},
		Page:   r.Page,
		Limit:  r.Limit,
		UserID: userID,
	}
}

// AutocompleteRequest holds query parameters for GET /search/autocomplete
type AutocompleteRequest struct {
	Q     string `form:"q"`
	Limit int    `form:"limit"`
}

// LimitRequest is any endpoint that only takes ?limit=
type LimitRequest struct {
	Limit int `form:"limit"`
}

// SaveKeywordRequest is used for POST /search/recent-keywords
type SaveKeywordRequest struct {
	Keyword string `json:"keyword" binding:"required"`
}

// RecentSettingRequest is used for PUT /search/recent-keywords/settings
type RecentSettingRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// UpdateWeightsRequest is used for PUT /search/weights
type UpdateWeightsRequest struct {
	Weights map[string]float64 `json:"weights" binding:"required"`
}

type RecentKeywordsResponse struct {
	Keywords []search.RecentKeyword `json:"keywords"`
	Enabled  bool                   `json:"enabled"`
}

type PopularKeywordsResponse struct {
	Keywords []search.PopularKeyword `json:"keywords"`
}

type ClearedResponse struct {
	Removed int64 `json:"removed"`
}
