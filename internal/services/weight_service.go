package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"catalog-search/internal/domain/search"
	"catalog-search/internal/repository"
	catalog_errors "catalog-search/pkg/errors"
	"catalog-search/pkg/events"
	"catalog-search/pkg/logger"
)

// WeightsChannel carries weight change notifications between instances.
const WeightsChannel = "events:search-weights"

// EventWeightsUpdated tells other instances to drop their cached weights.
const EventWeightsUpdated = "weights.updated"

// weightCacheTTL bounds staleness when a change notification is missed.
const weightCacheTTL = 30 * time.Second

type WeightService struct {
	repo      repository.WeightRepository
	defaults  search.Weights
	publisher events.Publisher
	logger    *logger.Logger

	mu       sync.RWMutex
	cached   search.Weights
	loadedAt time.Time
	now      func() time.Time
}

// NewWeightService falls back to the built in defaults when defaults is empty.
func NewWeightService(repo repository.WeightRepository, defaults search.Weights) *WeightService {
	if len(defaults.Sanitized()) == 0 {
		defaults = search.DefaultWeights()
	}
	return &WeightService{
		repo:     repo,
		defaults: defaults.Sanitized(),
		logger:   logger.NewNop(),
		now:      time.Now,
	}
}

// SetPublisher enables change notifications on WeightsChannel.
func (s *WeightService) SetPublisher(p events.Publisher, l *logger.Logger) {
	s.publisher = p
	s.logger = logger.OrNop(l)
}

// GetWeights returns the live row, creating it with defaults on first use.
func (s *WeightService) GetWeights(ctx context.Context) (search.WeightSetting, error) {
	return s.repo.GetOrCreate(ctx, search.DefaultWeightSettingName, s.defaults)
}

// Current returns only the weight map. It is served from memory for up to
// weightCacheTTL.
func (s *WeightService) Current(ctx context.Context) (search.Weights, error) {
	s.mu.RLock()
	if s.cached != nil && s.now().Sub(s.loadedAt) < weightCacheTTL {
		w := copyWeights(s.cached)
		s.mu.RUnlock()
		return w, nil
	}
	s.mu.RUnlock()

	setting, err := s.GetWeights(ctx)
	if err != nil {
		return nil, err
	}
	w := setting.Weights.Data()
	s.store(w)
	return copyWeights(w), nil
}

func (s *WeightService) store(w search.Weights) {
	s.mu.Lock()
	s.cached = copyWeights(w)
	s.loadedAt = s.now()
	s.mu.Unlock()
}

// Invalidate drops the cached map.
func (s *WeightService) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// HandleEvent is the WeightsChannel subscriber.
func (s *WeightService) HandleEvent(_ context.Context, e events.Event) error {
	if e.Type == EventWeightsUpdated {
		s.Invalidate()
	}
	return nil
}

// UpdateWeights replaces the whole map. Negative and non finite values are
// dropped; nothing left is rejected.
func (s *WeightService) UpdateWeights(ctx context.Context, weights search.Weights) (search.WeightSetting, error) {
	clean := weights.Sanitized()
	if len(clean) == 0 {
		return search.WeightSetting{}, fmt.Errorf("weights must contain at least one finite non-negative value: %w", catalog_errors.ErrInvalidInput)
	}
	setting, err := s.repo.Replace(ctx, search.DefaultWeightSettingName, clean)
	if err != nil {
		return search.WeightSetting{}, err
	}
	s.store(setting.Weights.Data())

	if s.publisher != nil {
		ev := events.NewEvent(EventWeightsUpdated, clean)
		if err := s.publisher.Publish(ctx, WeightsChannel, ev); err != nil {
			s.logger.Ctx(ctx).Warnf("publish weight change: %v", err)
		}
	}
	return setting, nil
}

func copyWeights(w search.Weights) search.Weights {
	out := make(search.Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
