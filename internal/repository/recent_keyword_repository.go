package repository

import (
	"context"
	"errors"
	"time"

	"catalog-search/internal/domain/search"
	catalog_errors "catalog-search/pkg/errors"

	"gorm.io/gorm"
)

type PostgresRecentKeywordRepository struct {
	db *gorm.DB
}

func NewRecentKeywordRepository(db *gorm.DB) RecentKeywordRepository {
	return &PostgresRecentKeywordRepository{db: db}
}

func (r *PostgresRecentKeywordRepository) Upsert(ctx context.Context, userID int64, keyword string, at time.Time) error {
	revive := func() (int64, error) {
		res := r.db.WithContext(ctx).
			Unscoped().
			Model(&search.RecentKeyword{}).
			Where("user_id = ? AND keyword = ?", userID, keyword).
			Updates(map[string]interface{}{
				"last_searched_at": at,
				"deleted_at":       nil,
			})
		return res.RowsAffected, res.Error
	}

	n, err := revive()
	if err != nil || n > 0 {
		return err
	}

	err = r.db.WithContext(ctx).Create(&search.RecentKeyword{
		UserID:         userID,
		Keyword:        keyword,
		LastSearchedAt: at,
	}).Error
	if err != nil && (isUniqueViolation(err) || errors.Is(err, gorm.ErrDuplicatedKey)) {
		// lost a race with a concurrent save of the same keyword
		_, err = revive()
	}
	return err
}

func (r *PostgresRecentKeywordRepository) TrimToLatest(ctx context.Context, userID int64, keep int) (int64, error) {
	var stale []uint64
	err := r.db.WithContext(ctx).
		Model(&search.RecentKeyword{}).
		Where("user_id = ?", userID).
		Order("last_searched_at DESC, id DESC").
		Offset(keep).
		Pluck("id", &stale).Error
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	res := r.db.WithContext(ctx).
		Where("id IN ?", stale).
		Delete(&search.RecentKeyword{})
	return res.RowsAffected, res.Error
}

func (r *PostgresRecentKeywordRepository) ListLive(ctx context.Context, userID int64, limit int) ([]search.RecentKeyword, error) {
	var rows []search.RecentKeyword
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_searched_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *PostgresRecentKeywordRepository) Retire(ctx context.Context, userID int64, keyword string) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND keyword = ?", userID, keyword).
		Delete(&search.RecentKeyword{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return catalog_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresRecentKeywordRepository) RetireAll(ctx context.Context, userID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&search.RecentKeyword{})
	return res.RowsAffected, res.Error
}
