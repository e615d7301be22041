package searchindex

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"catalog-search/internal/domain/catalog"
	"catalog-search/internal/domain/search"
)

// Request is one primary path query.
type Request struct {
	Keyword string
	Filter  catalog.Filter
	Weights search.Weights
	Offset  int
	Limit   int
}

const (
	minPrefixLen = 2
	maxPrefixLen = 15
)

// tokenize lower cases s and splits it on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// edgeNGrams expands every word of s into its leading prefixes so a partial
// word matches through the name_prefix field.
func edgeNGrams(s string) string {
	seen := map[string]struct{}{}
	var grams []string
	for _, tok := range tokenize(s) {
		runes := []rune(tok)
		for n := minPrefixLen; n <= len(runes) && n <= maxPrefixLen; n++ {
			g := string(runes[:n])
			if _, ok := seen[g]; ok {
				continue
			}
			seen[g] = struct{}{}
			grams = append(grams, g)
		}
	}
	return strings.Join(grams, " ")
}

// fuzzy wraps a term in Levenshtein markers, scaled by term length.
func fuzzy(tok string) string {
	switch n := len([]rune(tok)); {
	case n < 3:
		return tok
	case n <= 5:
		return "%" + tok + "%"
	default:
		return "%%" + tok + "%%"
	}
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatWeight(w float64) string {
	if w <= 0 {
		// a zero weight still has to parse; keep it negligible
		return "0.0001"
	}
	return formatNum(w)
}

// BuildQuery renders the keyword and filters as a query string.
func BuildQuery(keyword string, f catalog.Filter, w search.Weights) string {
	var parts []string

	if toks := tokenize(keyword); len(toks) > 0 {
		fuzzed := make([]string, len(toks))
		for i, t := range toks {
			fuzzed[i] = fuzzy(t)
		}
		nameW := formatWeight(w.Of(search.FieldName))
		descW := formatWeight(w.Of(search.FieldDescription))
		parts = append(parts, "("+
			"(@name:("+strings.Join(fuzzed, " ")+") => {$weight: "+nameW+"})"+
			" | (@name_prefix:("+strings.Join(toks, " ")+") => {$weight: "+nameW+"})"+
			" | (@description:("+strings.Join(fuzzed, " ")+") => {$weight: "+descW+"})"+
			")")
	}

	if f.CategoryID != nil {
		c := strconv.FormatInt(*f.CategoryID, 10)
		parts = append(parts, "@category_id:["+c+" "+c+"]")
	}
	if f.MinPrice != nil || f.MaxPrice != nil {
		lo, hi := "-inf", "+inf"
		if f.MinPrice != nil {
			lo = formatNum(*f.MinPrice)
		}
		if f.MaxPrice != nil {
			hi = formatNum(*f.MaxPrice)
		}
		parts = append(parts, "@lowest_price:["+lo+" "+hi+"]")
	}
	if f.MinRating != nil {
		parts = append(parts, "@average_rating:["+formatNum(*f.MinRating)+" +inf]")
	}
	if f.SellerID != nil {
		parts = append(parts, "@seller_ids:{"+strconv.FormatInt(*f.SellerID, 10)+"}")
	}

	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

// Rank folds popularity into the text score and orders hits by score, then
// popularity, both descending.
func Rank(hits []search.Hit, w search.Weights) []search.Hit {
	popW := w.Of(search.FieldPopularity)
	for i := range hits {
		if hits[i].Popularity > 0 && popW > 0 {
			hits[i].Score *= 1 + popW*math.Log1p(hits[i].Popularity)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Popularity > hits[j].Popularity
	})
	return hits
}

// docFields flattens a document into hash fields.
func docFields(d search.Document) map[string]interface{} {
	sellers := make([]string, len(d.SellerIDs))
	for i, s := range d.SellerIDs {
		sellers[i] = strconv.FormatInt(s, 10)
	}
	fields := map[string]interface{}{
		"id":               d.ID,
		"name":             d.Name,
		"name_prefix":      edgeNGrams(d.Name),
		"description":      d.Description,
		"category_id":      d.CategoryID,
		"average_rating":   formatNum(d.AverageRating),
		"popularity_score": formatNum(d.PopularityScore),
		"seller_ids":       strings.Join(sellers, ","),
	}
	if d.LowestPrice != nil {
		fields["lowest_price"] = formatNum(*d.LowestPrice)
	}
	return fields
}
