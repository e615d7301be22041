package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"catalog-search/internal/domain/search"
	"catalog-search/internal/repository"
	catalog_errors "catalog-search/pkg/errors"
	"catalog-search/pkg/logger"
)

const maxKeywordLength = 200

type KeywordService struct {
	recent repository.RecentKeywordRepository
	prefs  repository.PreferenceRepository
	logger *logger.Logger
	now    func() time.Time
}

func NewKeywordService(recent repository.RecentKeywordRepository, prefs repository.PreferenceRepository, l *logger.Logger) *KeywordService {
	return &KeywordService{
		recent: recent,
		prefs:  prefs,
		logger: logger.OrNop(l),
		now:    time.Now,
	}
}

func validateUser(userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("user id must be positive: %w", catalog_errors.ErrInvalidInput)
	}
	return nil
}

func normalizeKeyword(keyword string) (string, error) {
	kw := strings.TrimSpace(keyword)
	if kw == "" {
		return "", fmt.Errorf("keyword is required: %w", catalog_errors.ErrInvalidInput)
	}
	if utf8.RuneCountInString(kw) > maxKeywordLength {
		return "", fmt.Errorf("keyword longer than %d characters: %w", maxKeywordLength, catalog_errors.ErrInvalidInput)
	}
	return kw, nil
}

// SaveRecentKeyword records keyword for the user and keeps only the newest
// entries live.
func (s *KeywordService) SaveRecentKeyword(ctx context.Context, userID int64, keyword string) error {
	if err := validateUser(userID); err != nil {
		return err
	}
	kw, err := normalizeKeyword(keyword)
	if err != nil {
		return err
	}

	pref, err := s.prefs.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !pref.RecentSearchEnabled {
		return fmt.Errorf("recent search is disabled for this user: %w", catalog_errors.ErrInvalidInput)
	}

	if err := s.recent.Upsert(ctx, userID, kw, s.now()); err != nil {
		return err
	}
	retired, err := s.recent.TrimToLatest(ctx, userID, search.MaxRecentKeywords)
	if err != nil {
		return err
	}
	if retired > 0 {
		s.logger.Ctx(ctx).Debugf("retired %d recent keywords for user %d", retired, userID)
	}
	return nil
}

func (s *KeywordService) RecentKeywords(ctx context.Context, userID int64) ([]search.RecentKeyword, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	return s.recent.ListLive(ctx, userID, search.MaxRecentKeywords)
}

func (s *KeywordService) RemoveRecentKeyword(ctx context.Context, userID int64, keyword string) error {
	if err := validateUser(userID); err != nil {
		return err
	}
	kw, err := normalizeKeyword(keyword)
	if err != nil {
		return err
	}
	return s.recent.Retire(ctx, userID, kw)
}

func (s *KeywordService) ClearRecentKeywords(ctx context.Context, userID int64) (int64, error) {
	if err := validateUser(userID); err != nil {
		return 0, err
	}
	return s.recent.RetireAll(ctx, userID)
}

func (s *KeywordService) Preference(ctx context.Context, userID int64) (search.Preference, error) {
	if err := validateUser(userID); err != nil {
		return search.Preference{}, err
	}
	return s.prefs.Get(ctx, userID)
}

func (s *KeywordService) SetRecentSearchEnabled(ctx context.Context, userID int64, enabled bool) (search.Preference, error) {
	if err := validateUser(userID); err != nil {
		return search.Preference{}, err
	}
	return s.prefs.SetRecentSearchEnabled(ctx, userID, enabled)
}
