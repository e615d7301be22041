package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"catalog-search/internal/domain/catalog"
	"catalog-search/internal/domain/outbox"
	"catalog-search/internal/domain/search"
	"catalog-search/internal/queue"
	"catalog-search/internal/searchindex"
	catalog_errors "catalog-search/pkg/errors"

	"gorm.io/datatypes"
)

var errEngineDown = errors.New("dial tcp: connection refused")

type fakeOutboxRepo struct {
	mu     sync.Mutex
	rows   map[uint64]*outbox.Entry
	nextID uint64
	clock  func() time.Time
}

func newFakeOutboxRepo() *fakeOutboxRepo {
	return &fakeOutboxRepo{rows: map[uint64]*outbox.Entry{}, clock: time.Now}
}

func (r *fakeOutboxRepo) Create(_ context.Context, e *outbox.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = r.nextID
	e.CreatedAt = r.clock()
	e.UpdatedAt = e.CreatedAt
	cp := *e
	r.rows[e.ID] = &cp
	return nil
}

func (r *fakeOutboxRepo) GetByID(_ context.Context, id uint64) (outbox.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok {
		return outbox.Entry{}, catalog_errors.ErrNotFound
	}
	return *e, nil
}

func (r *fakeOutboxRepo) mutate(id uint64, fn func(e *outbox.Entry) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok || !fn(e) {
		return catalog_errors.ErrNotFound
	}
	e.UpdatedAt = r.clock()
	return nil
}

func (r *fakeOutboxRepo) MarkProcessing(_ context.Context, id uint64) error {
	return r.mutate(id, func(e *outbox.Entry) bool {
		e.Status = outbox.StatusProcessing
		e.AttemptCount++
		return true
	})
}

func (r *fakeOutboxRepo) MarkCompleted(_ context.Context, id uint64, at time.Time) error {
	return r.mutate(id, func(e *outbox.Entry) bool {
		e.Status = outbox.StatusCompleted
		e.ProcessedAt = &at
		e.LastError = nil
		return true
	})
}

func (r *fakeOutboxRepo) MarkFailed(_ context.Context, id uint64, lastError string) error {
	return r.mutate(id, func(e *outbox.Entry) bool {
		msg := catalog_errors.Truncate(lastError, outbox.MaxErrorLength)
		e.Status = outbox.StatusFailed
		e.LastError = &msg
		return true
	})
}

func (r *fakeOutboxRepo) CountByStatus(_ context.Context) (map[outbox.Status]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[outbox.Status]int64{}
	for _, e := range r.rows {
		out[e.Status]++
	}
	return out, nil
}

func (r *fakeOutboxRepo) ListFailed(_ context.Context, limit int) ([]outbox.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []outbox.Entry
	for _, e := range r.rows {
		if e.Status == outbox.StatusFailed {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeOutboxRepo) ResetToPending(_ context.Context, id uint64) error {
	return r.mutate(id, func(e *outbox.Entry) bool {
		if e.Status != outbox.StatusFailed {
			return false
		}
		e.Status = outbox.StatusPending
		e.LastError = nil
		return true
	})
}

func (r *fakeOutboxRepo) ListTerminalBefore(_ context.Context, before time.Time, afterID uint64, limit int) ([]outbox.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []outbox.Entry
	for _, e := range r.rows {
		terminal := e.Status == outbox.StatusCompleted || e.Status == outbox.StatusFailed
		if terminal && e.UpdatedAt.Before(before) && e.ID > afterID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeOutboxRepo) ListStale(_ context.Context, before time.Time, limit int) ([]outbox.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []outbox.Entry
	for _, e := range r.rows {
		open := e.Status == outbox.StatusPending || e.Status == outbox.StatusProcessing
		if open && e.UpdatedAt.Before(before) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeOutboxRepo) TouchPending(_ context.Context, id uint64) error {
	now := r.clock()
	return r.mutate(id, func(e *outbox.Entry) bool {
		if e.Status != outbox.StatusPending && e.Status != outbox.StatusProcessing {
			return false
		}
		e.Status = outbox.StatusPending
		e.UpdatedAt = now
		return true
	})
}

func (r *fakeOutboxRepo) SetJobID(_ context.Context, id uint64, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok {
		return catalog_errors.ErrNotFound
	}
	e.JobID = jobID
	return nil
}

// fakeEnqueuer hands out ids job-1, job-2, ... in order. Jobs start waiting;
// tests move them with setState or drop them with forget.
type fakeEnqueuer struct {
	mu     sync.Mutex
	jobs   []outbox.JobPayload
	opts   []queue.JobOptions
	states map[string]queue.JobState
	err    error
}

func (f *fakeEnqueuer) Add(_ context.Context, name string, payload interface{}, opts queue.JobOptions) (*queue.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.jobs = append(f.jobs, payload.(outbox.JobPayload))
	f.opts = append(f.opts, opts)
	if f.states == nil {
		f.states = map[string]queue.JobState{}
	}
	id := fmt.Sprintf("job-%d", len(f.jobs))
	f.states[id] = queue.StateWaiting
	return &queue.Job{ID: id, Name: name, Opts: opts, State: queue.StateWaiting}, nil
}

func (f *fakeEnqueuer) GetJob(_ context.Context, id string) (*queue.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[id]
	if !ok {
		return nil, queue.ErrJobNotFound
	}
	return &queue.Job{ID: id, State: state}, nil
}

func (f *fakeEnqueuer) setState(id string, state queue.JobState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[id] = state
}

func (f *fakeEnqueuer) forget(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, id)
}

type fakeEngine struct {
	mu          sync.Mutex
	docs        map[int64]search.Document
	suggestions []string
	hits        search.HitPage
	err         error
	ensureErr   error
	lastRequest searchindex.Request
	writes      int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{docs: map[int64]search.Document{}}
}

func (f *fakeEngine) Name() string { return "products-idx" }

func (f *fakeEngine) Exists(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.ensureErr == nil, nil
}

func (f *fakeEngine) EnsureIndex(context.Context) error { return f.ensureErr }

func (f *fakeEngine) Upsert(ctx context.Context, doc search.Document) error {
	return f.BulkUpsert(ctx, []search.Document{doc})
}

func (f *fakeEngine) BulkUpsert(_ context.Context, docs []search.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.writes++
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return nil
}

func (f *fakeEngine) Remove(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.docs, id)
	return nil
}

func (f *fakeEngine) Search(_ context.Context, req searchindex.Request) (search.HitPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRequest = req
	if f.err != nil {
		return search.HitPage{}, f.err
	}
	return f.hits, nil
}

func (f *fakeEngine) Suggest(_ context.Context, _ string, limit int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.suggestions) > limit {
		return f.suggestions[:limit], nil
	}
	return f.suggestions, nil
}

func (f *fakeEngine) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.docs)), f.err
}

type fakeCatalog struct {
	products map[int64]catalog.Product
	sellers  map[int64][]int64
	sellerQs int
}

func newFakeCatalog(products ...catalog.Product) *fakeCatalog {
	c := &fakeCatalog{products: map[int64]catalog.Product{}, sellers: map[int64][]int64{}}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *fakeCatalog) Ping(context.Context) error { return nil }

func (c *fakeCatalog) GetProduct(_ context.Context, id int64) (catalog.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return catalog.Product{}, catalog_errors.ErrNotFound
	}
	return p, nil
}

func (c *fakeCatalog) GetProducts(_ context.Context, ids []int64) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out = append(out, p)
		}
	}
	// store order is unspecified
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (c *fakeCatalog) sorted() []catalog.Product {
	out := make([]catalog.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *fakeCatalog) ListProducts(_ context.Context, afterID int64, limit int) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range c.sorted() {
		if p.ID > afterID && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *fakeCatalog) AvailableSellerIDs(_ context.Context, ids []int64) (map[int64][]int64, error) {
	c.sellerQs++
	out := map[int64][]int64{}
	for _, id := range ids {
		if s, ok := c.sellers[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (c *fakeCatalog) SearchProducts(_ context.Context, keyword string, _ catalog.Filter, offset, limit int) ([]catalog.Product, int64, error) {
	var match []catalog.Product
	for _, p := range c.sorted() {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(keyword)) {
			match = append(match, p)
		}
	}
	sort.SliceStable(match, func(i, j int) bool { return match[i].PopularityScore > match[j].PopularityScore })
	total := int64(len(match))
	if offset > len(match) {
		offset = len(match)
	}
	match = match[offset:]
	if len(match) > limit {
		match = match[:limit]
	}
	return match, total, nil
}

func (c *fakeCatalog) NamesWithPrefix(_ context.Context, prefix string, limit int) ([]string, error) {
	var out []string
	for _, p := range c.sorted() {
		if strings.HasPrefix(strings.ToLower(p.Name), strings.ToLower(prefix)) && len(out) < limit {
			out = append(out, p.Name)
		}
	}
	return out, nil
}

type fakeLogRepo struct {
	mu   sync.Mutex
	logs []search.Log
}

func (r *fakeLogRepo) Create(_ context.Context, l *search.Log) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *l)
	return nil
}

func (r *fakeLogRepo) grouped(keep func(search.Log) bool, limit int) []search.KeywordCount {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[string]int64{}
	for _, l := range r.logs {
		if keep(l) {
			counts[l.Keyword]++
		}
	}
	out := make([]search.KeywordCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, search.KeywordCount{Keyword: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Keyword < out[j].Keyword
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *fakeLogRepo) PopularSince(_ context.Context, since time.Time, limit int) ([]search.KeywordCount, error) {
	return r.grouped(func(l search.Log) bool { return !l.CreatedAt.Before(since) }, limit), nil
}

func (r *fakeLogRepo) RelatedKeywords(_ context.Context, keyword string, limit int) ([]search.KeywordCount, error) {
	kw := strings.ToLower(keyword)
	return r.grouped(func(l search.Log) bool {
		lk := strings.ToLower(l.Keyword)
		return strings.Contains(lk, kw) && lk != kw
	}, limit), nil
}

func (r *fakeLogRepo) KeywordsWithPrefix(_ context.Context, prefix string, limit int) ([]search.KeywordCount, error) {
	p := strings.ToLower(prefix)
	return r.grouped(func(l search.Log) bool { return strings.HasPrefix(strings.ToLower(l.Keyword), p) }, limit), nil
}

type recentRow struct {
	at      time.Time
	retired bool
}

type fakeRecentRepo struct {
	rows map[int64]map[string]*recentRow
}

func newFakeRecentRepo() *fakeRecentRepo {
	return &fakeRecentRepo{rows: map[int64]map[string]*recentRow{}}
}

func (r *fakeRecentRepo) Upsert(_ context.Context, userID int64, keyword string, at time.Time) error {
	if r.rows[userID] == nil {
		r.rows[userID] = map[string]*recentRow{}
	}
	r.rows[userID][keyword] = &recentRow{at: at}
	return nil
}

func (r *fakeRecentRepo) live(userID int64) []search.RecentKeyword {
	var out []search.RecentKeyword
	for kw, row := range r.rows[userID] {
		if !row.retired {
			out = append(out, search.RecentKeyword{UserID: userID, Keyword: kw, LastSearchedAt: row.at})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSearchedAt.After(out[j].LastSearchedAt) })
	return out
}

func (r *fakeRecentRepo) TrimToLatest(_ context.Context, userID int64, keep int) (int64, error) {
	live := r.live(userID)
	var n int64
	for i := keep; i < len(live); i++ {
		r.rows[userID][live[i].Keyword].retired = true
		n++
	}
	return n, nil
}

func (r *fakeRecentRepo) ListLive(_ context.Context, userID int64, limit int) ([]search.RecentKeyword, error) {
	live := r.live(userID)
	if len(live) > limit {
		live = live[:limit]
	}
	return live, nil
}

func (r *fakeRecentRepo) Retire(_ context.Context, userID int64, keyword string) error {
	row, ok := r.rows[userID][keyword]
	if !ok || row.retired {
		return catalog_errors.ErrNotFound
	}
	row.retired = true
	return nil
}

func (r *fakeRecentRepo) RetireAll(_ context.Context, userID int64) (int64, error) {
	var n int64
	for _, row := range r.rows[userID] {
		if !row.retired {
			row.retired = true
			n++
		}
	}
	return n, nil
}

type fakePrefRepo struct {
	prefs map[int64]search.Preference
}

func (r *fakePrefRepo) Get(_ context.Context, userID int64) (search.Preference, error) {
	if p, ok := r.prefs[userID]; ok {
		return p, nil
	}
	return search.Preference{UserID: userID, RecentSearchEnabled: true}, nil
}

func (r *fakePrefRepo) SetRecentSearchEnabled(_ context.Context, userID int64, enabled bool) (search.Preference, error) {
	if r.prefs == nil {
		r.prefs = map[int64]search.Preference{}
	}
	p := search.Preference{UserID: userID, RecentSearchEnabled: enabled}
	r.prefs[userID] = p
	return p, nil
}

type fakeWeightRepo struct {
	mu      sync.Mutex
	setting *search.WeightSetting
	creates int
}

func (r *fakeWeightRepo) GetOrCreate(_ context.Context, name string, defaults search.Weights) (search.WeightSetting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setting == nil {
		r.creates++
		r.setting = &search.WeightSetting{ID: 1, Name: name, Weights: datatypes.NewJSONType(defaults)}
	}
	return *r.setting, nil
}

func (r *fakeWeightRepo) Replace(ctx context.Context, name string, weights search.Weights) (search.WeightSetting, error) {
	if _, err := r.GetOrCreate(ctx, name, weights); err != nil {
		return search.WeightSetting{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setting.Weights = datatypes.NewJSONType(weights)
	return *r.setting, nil
}
