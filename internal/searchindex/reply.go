package searchindex

import (
	"fmt"
	"strconv"
	"strings"

	"catalog-search/internal/domain/search"

	"github.com/pkg/errors"
)

// parseSearchReply decodes a RESP2 FT.SEARCH reply issued with WITHSCORES
// and RETURN 1 popularity_score.
func parseSearchReply(reply interface{}, keyPrefix string) (search.HitPage, error) {
	arr, ok := reply.([]interface{})
	if !ok || len(arr) == 0 {
		return search.HitPage{}, errors.Errorf("unexpected search reply %T", reply)
	}
	total, err := toInt64(arr[0])
	if err != nil {
		return search.HitPage{}, errors.Wrap(err, "search total")
	}

	page := search.HitPage{Total: total}
	for i := 1; i+1 < len(arr); {
		key := toString(arr[i])
		score, err := toFloat(arr[i+1])
		if err != nil {
			return search.HitPage{}, errors.Wrapf(err, "score of %s", key)
		}
		i += 2

		var popularity float64
		if i < len(arr) {
			if fields, ok := arr[i].([]interface{}); ok {
				popularity = fieldFloat(fields, "popularity_score")
				i++
			}
		}

		id, err := strconv.ParseInt(strings.TrimPrefix(key, keyPrefix), 10, 64)
		if err != nil {
			return search.HitPage{}, errors.Wrapf(err, "document key %q", key)
		}
		page.Hits = append(page.Hits, search.Hit{ID: id, Score: score, Popularity: popularity})
	}
	return page, nil
}

// infoValue finds key in a flat FT.INFO reply.
func infoValue(reply interface{}, key string) (interface{}, bool) {
	arr, ok := reply.([]interface{})
	if !ok {
		return nil, false
	}
	for i := 0; i+1 < len(arr); i += 2 {
		if toString(arr[i]) == key {
			return arr[i+1], true
		}
	}
	return nil, false
}

func fieldFloat(fields []interface{}, name string) float64 {
	for i := 0; i+1 < len(fields); i += 2 {
		if toString(fields[i]) == name {
			f, _ := toFloat(fields[i+1])
			return f
		}
	}
	return 0
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func toInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case float64:
		return int64(t), nil
	default:
		f, err := strconv.ParseFloat(toString(v), 64)
		return int64(f), err
	}
}

func toFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int64:
		return float64(t), nil
	default:
		return strconv.ParseFloat(toString(v), 64)
	}
}

func toStrings(reply interface{}) []string {
	arr, ok := reply.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		out = append(out, toString(v))
	}
	return out
}
