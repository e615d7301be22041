package search

import (
	"catalog-search/internal/domain/catalog"
)

const (
	DefaultPageLimit         = 20
	MaxPageLimit             = 100
	DefaultSuggestLimit      = 10
	MaxSuggestLimit          = 50
	RelatedKeywordLimit      = 5
	PopularKeywordWindowDays = 7
)

// Query is a ranked, filtered keyword search.
type Query struct {
	Keyword string
	Filter  catalog.Filter
	Page    int
	Limit   int
	UserID  *int64
}

// Normalize applies paging defaults and bounds.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	return q
}

// Offset is the zero based index of the first hit on the page.
func (q Query) Offset() int {
	return (q.Page - 1) * q.Limit
}

// PageMeta describes a result page.
type PageMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

func NewPageMeta(page, limit int, total int64) PageMeta {
	pages := int64(0)
	if limit > 0 {
		pages = (total + int64(limit) - 1) / int64(limit)
	}
	return PageMeta{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

// Result is the response shape of both query paths.
type Result struct {
	Items           []catalog.Product `json:"items"`
	PageMeta        PageMeta          `json:"pageMeta"`
	RelatedKeywords []string          `json:"relatedKeywords"`
	Engine          string            `json:"engine"`
}

// Hit is one ranked id returned by the index engine.
type Hit struct {
	ID         int64
	Score      float64
	Popularity float64
}

// HitPage is a page of ranked hits plus the total match count.
type HitPage struct {
	Hits  []Hit
	Total int64
}

// Suggestion is one autocomplete entry.
type Suggestion struct {
	Text        string `json:"text"`
	Highlighted string `json:"highlighted"`
}

// SuggestionResult is the autocomplete response.
type SuggestionResult struct {
	Suggestions []Suggestion `json:"suggestions"`
	Engine      string       `json:"engine"`
}
