package services

import (
	"context"
	"math"
	"testing"
	"time"

	"catalog-search/internal/domain/search"
	catalog_errors "catalog-search/pkg/errors"
	"catalog-search/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightService_CreatesDefaultsOnce(t *testing.T) {
	repo := &fakeWeightRepo{}
	svc := NewWeightService(repo, nil)
	ctx := context.Background()

	first, err := svc.GetWeights(ctx)
	require.NoError(t, err)
	_, err = svc.GetWeights(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.creates)
	assert.Equal(t, search.DefaultWeightSettingName, first.Name)
	assert.Equal(t, search.DefaultWeights(), first.Weights.Data())
}

func TestWeightService_UpdateValidation(t *testing.T) {
	svc := NewWeightService(&fakeWeightRepo{}, nil)
	ctx := context.Background()

	_, err := svc.UpdateWeights(ctx, search.Weights{"bad": -1})
	assert.ErrorIs(t, err, catalog_errors.ErrInvalidInput)

	_, err = svc.UpdateWeights(ctx, search.Weights{"name": math.Inf(1), "x": math.NaN()})
	assert.ErrorIs(t, err, catalog_errors.ErrInvalidInput)

	_, err = svc.UpdateWeights(ctx, search.Weights{"name": 2, "description": -3})
	require.NoError(t, err)

	current, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, search.Weights{"name": 2}, current)
}

func TestWeightService_ConfiguredDefaults(t *testing.T) {
	svc := NewWeightService(&fakeWeightRepo{}, search.Weights{"name": 5, "description": -1})
	current, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, search.Weights{"name": 5}, current)
}

type recordingPublisher struct {
	channels []string
	events   []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, e events.Event) error {
	p.channels = append(p.channels, channel)
	p.events = append(p.events, e)
	return nil
}

func TestWeightService_CachesUntilInvalidated(t *testing.T) {
	repo := &fakeWeightRepo{}
	svc := NewWeightService(repo, nil)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.Current(ctx)
	require.NoError(t, err)

	// Another instance writes directly.
	_, err = repo.Replace(ctx, search.DefaultWeightSettingName, search.Weights{"name": 9})
	require.NoError(t, err)

	cached, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, search.DefaultWeights(), cached)

	require.NoError(t, svc.HandleEvent(ctx, events.Event{Type: EventWeightsUpdated}))
	fresh, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, search.Weights{"name": 9}, fresh)

	_, err = repo.Replace(ctx, search.DefaultWeightSettingName, search.Weights{"name": 4})
	require.NoError(t, err)
	now = now.Add(weightCacheTTL)
	expired, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, search.Weights{"name": 4}, expired)
}

func TestWeightService_UpdatePublishesChange(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewWeightService(&fakeWeightRepo{}, nil)
	svc.SetPublisher(pub, nil)

	_, err := svc.UpdateWeights(context.Background(), search.Weights{"name": 2})
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	assert.Equal(t, WeightsChannel, pub.channels[0])
	assert.Equal(t, EventWeightsUpdated, pub.events[0].Type)
}
