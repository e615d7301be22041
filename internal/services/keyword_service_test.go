package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	catalog_errors "catalog-search/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeywordFixture() (*KeywordService, *fakeRecentRepo, *fakePrefRepo) {
	recent := newFakeRecentRepo()
	prefs := &fakePrefRepo{}
	svc := NewKeywordService(recent, prefs, nil)
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	return svc, recent, prefs
}

func TestKeywordService_CapsAtTenNewest(t *testing.T) {
	svc, _, _ := newKeywordFixture()
	ctx := context.Background()

	for i := 1; i <= 11; i++ {
		require.NoError(t, svc.SaveRecentKeyword(ctx, 1, fmt.Sprintf("kw-%02d", i)))
	}

	live, err := svc.RecentKeywords(ctx, 1)
	require.NoError(t, err)
	require.Len(t, live, 10)
	assert.Equal(t, "kw-11", live[0].Keyword)
	for _, k := range live {
		assert.NotEqual(t, "kw-01", k.Keyword)
	}
}

func TestKeywordService_ResavingRevivesAndRefreshes(t *testing.T) {
	svc, _, _ := newKeywordFixture()
	ctx := context.Background()

	require.NoError(t, svc.SaveRecentKeyword(ctx, 1, "phone"))
	require.NoError(t, svc.SaveRecentKeyword(ctx, 1, "tv"))
	require.NoError(t, svc.RemoveRecentKeyword(ctx, 1, "phone"))
	require.NoError(t, svc.SaveRecentKeyword(ctx, 1, "  phone "))

	live, err := svc.RecentKeywords(ctx, 1)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, "phone", live[0].Keyword)
}

func TestKeywordService_DisabledPreferenceRejectsSave(t *testing.T) {
	svc, recent, _ := newKeywordFixture()
	ctx := context.Background()

	_, err := svc.SetRecentSearchEnabled(ctx, 3, false)
	require.NoError(t, err)

	err = svc.SaveRecentKeyword(ctx, 3, "phone")
	assert.ErrorIs(t, err, catalog_errors.ErrInvalidInput)
	assert.Empty(t, recent.rows[3])
}

func TestKeywordService_Validation(t *testing.T) {
	svc, _, _ := newKeywordFixture()
	ctx := context.Background()

	assert.ErrorIs(t, svc.SaveRecentKeyword(ctx, 0, "x"), catalog_errors.ErrInvalidInput)
	assert.ErrorIs(t, svc.SaveRecentKeyword(ctx, 1, "  "), catalog_errors.ErrInvalidInput)
	assert.ErrorIs(t, svc.RemoveRecentKeyword(ctx, 1, "never saved"), catalog_errors.ErrNotFound)
}

func TestKeywordService_Clear(t *testing.T) {
	svc, _, _ := newKeywordFixture()
	ctx := context.Background()

	require.NoError(t, svc.SaveRecentKeyword(ctx, 1, "a"))
	require.NoError(t, svc.SaveRecentKeyword(ctx, 1, "b"))

	n, err := svc.ClearRecentKeywords(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	live, err := svc.RecentKeywords(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, live)
}
