// Package searchindex is the primary search engine: a RediSearch index over
// product hashes plus a suggestion dictionary for autocomplete.
package searchindex

import (
	"context"
	"strconv"
	"strings"

	"catalog-search/internal/domain/search"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Options names the index and its documents.
type Options struct {
	Index     string
	KeyPrefix string
	Language  string
}

// Engine issues FT.* commands through go-redis. The client must speak RESP2
// so replies decode as flat arrays.
type Engine struct {
	client goredis.UniversalClient
	opts   Options
}

func NewEngine(client goredis.UniversalClient, opts Options) *Engine {
	if opts.Index == "" {
		opts.Index = "products-idx"
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "product:"
	}
	if opts.Language == "" {
		opts.Language = "english"
	}
	return &Engine{client: client, opts: opts}
}

func (e *Engine) Name() string { return e.opts.Index }

func (e *Engine) suggestKey() string { return e.opts.Index + ":suggest" }

func (e *Engine) docKey(id int64) string {
	return e.opts.KeyPrefix + strconv.FormatInt(id, 10)
}

func isUnknownIndex(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unknown index") || strings.Contains(msg, "no such index")
}

// Exists reports whether the index has been created.
func (e *Engine) Exists(ctx context.Context) (bool, error) {
	err := e.client.Do(ctx, "FT.INFO", e.opts.Index).Err()
	if err == nil {
		return true, nil
	}
	if isUnknownIndex(err) {
		return false, nil
	}
	return false, errors.Wrap(err, "ft.info")
}

func (e *Engine) createArgs() []interface{} {
	return []interface{}{
		"FT.CREATE", e.opts.Index,
		"ON", "HASH",
		"PREFIX", 1, e.opts.KeyPrefix,
		"LANGUAGE", e.opts.Language,
		"SCHEMA",
		"name", "TEXT", "WEIGHT", 3,
		"description", "TEXT",
		"name_prefix", "TEXT", "NOSTEM",
		"category_id", "NUMERIC", "SORTABLE",
		"lowest_price", "NUMERIC", "SORTABLE",
		"average_rating", "NUMERIC", "SORTABLE",
		"popularity_score", "NUMERIC", "SORTABLE",
		"seller_ids", "TAG", "SEPARATOR", ",",
	}
}

// EnsureIndex creates the index when it is missing. Safe to call repeatedly.
func (e *Engine) EnsureIndex(ctx context.Context) error {
	ok, err := e.Exists(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	err = e.client.Do(ctx, e.createArgs()...).Err()
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "index already exists") {
		return errors.Wrap(err, "ft.create")
	}
	return nil
}

// Upsert overwrites the document stored under the product id.
func (e *Engine) Upsert(ctx context.Context, doc search.Document) error {
	return e.BulkUpsert(ctx, []search.Document{doc})
}

// BulkUpsert writes all documents in one pipeline. Stale suggestions of
// renamed products are dropped.
func (e *Engine) BulkUpsert(ctx context.Context, docs []search.Document) error {
	if len(docs) == 0 {
		return nil
	}

	previous := make([]*goredis.StringCmd, len(docs))
	_, err := e.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, d := range docs {
			previous[i] = p.HGet(ctx, e.docKey(d.ID), "name")
		}
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return errors.Wrap(err, "read previous names")
	}

	_, err = e.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		for i, d := range docs {
			key := e.docKey(d.ID)
			if old, err := previous[i].Result(); err == nil && old != "" && old != d.Suggest.Input {
				p.Do(ctx, "FT.SUGDEL", e.suggestKey(), old)
			}
			p.Del(ctx, key)
			p.HSet(ctx, key, docFields(d))
			if d.Suggest.Input != "" {
				p.Do(ctx, "FT.SUGADD", e.suggestKey(), d.Suggest.Input, d.Suggest.Weight)
			}
		}
		return nil
	})
	return errors.Wrap(err, "write documents")
}

// Remove deletes the document. A missing document is not an error.
func (e *Engine) Remove(ctx context.Context, id int64) error {
	key := e.docKey(id)
	name, err := e.client.HGet(ctx, key, "name").Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return errors.Wrap(err, "read document")
	}
	if err := e.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, "delete document")
	}
	if name != "" {
		// suggestion cleanup is best effort
		_ = e.client.Do(ctx, "FT.SUGDEL", e.suggestKey(), name).Err()
	}
	return nil
}

// MaxResultWindow bounds offset+limit for keyword queries. Pages past it
// come back empty with the real total.
const MaxResultWindow = 10000

// Search runs a ranked query and returns one page of hits. Keyword queries
// fetch every hit up to the end of the page and rank them together, since
// the engine alone orders by raw text score.
func (e *Engine) Search(ctx context.Context, req Request) (search.HitPage, error) {
	byPopularity := strings.TrimSpace(req.Keyword) == ""
	from, size := req.Offset, req.Limit
	if !byPopularity {
		from, size = 0, req.Offset+req.Limit
		if size > MaxResultWindow {
			size = 0
		}
	}

	args := []interface{}{
		"FT.SEARCH", e.opts.Index, BuildQuery(req.Keyword, req.Filter, req.Weights),
		"WITHSCORES",
		"RETURN", 1, "popularity_score",
	}
	if byPopularity {
		args = append(args, "SORTBY", "popularity_score", "DESC")
	}
	args = append(args, "LIMIT", from, size, "DIALECT", 2)

	reply, err := e.client.Do(ctx, args...).Result()
	if err != nil {
		return search.HitPage{}, errors.Wrap(err, "ft.search")
	}
	page, err := parseSearchReply(reply, e.opts.KeyPrefix)
	if err != nil {
		return search.HitPage{}, err
	}
	if byPopularity {
		return page, nil
	}
	page.Hits = pageOf(Rank(page.Hits, req.Weights), req.Offset, req.Limit)
	return page, nil
}

func pageOf(hits []search.Hit, offset, limit int) []search.Hit {
	if offset >= len(hits) {
		return []search.Hit{}
	}
	end := offset + limit
	if end > len(hits) {
		end = len(hits)
	}
	return hits[offset:end]
}

// Suggest returns completion candidates for prefix, best first.
func (e *Engine) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	reply, err := e.client.Do(ctx, "FT.SUGGET", e.suggestKey(), prefix, "FUZZY", "MAX", limit).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "ft.sugget")
	}
	return toStrings(reply), nil
}

// Count returns the number of indexed documents.
func (e *Engine) Count(ctx context.Context) (int64, error) {
	reply, err := e.client.Do(ctx, "FT.INFO", e.opts.Index).Result()
	if err != nil {
		return 0, errors.Wrap(err, "ft.info")
	}
	v, ok := infoValue(reply, "num_docs")
	if !ok {
		return 0, errors.New("ft.info: num_docs missing")
	}
	n, err := toInt64(v)
	return n, errors.Wrap(err, "ft.info: num_docs")
}
