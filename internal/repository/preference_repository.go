package repository

import (
	"context"
	"errors"
	"time"

	"catalog-search/internal/domain/search"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresPreferenceRepository struct {
	db *gorm.DB
}

func NewPreferenceRepository(db *gorm.DB) PreferenceRepository {
	return &PostgresPreferenceRepository{db: db}
}

func (r *PostgresPreferenceRepository) Get(ctx context.Context, userID int64) (search.Preference, error) {
	var p search.Preference
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return search.Preference{UserID: userID, RecentSearchEnabled: true}, nil
		}
		return search.Preference{}, err
	}
	return p, nil
}

func (r *PostgresPreferenceRepository) SetRecentSearchEnabled(ctx context.Context, userID int64, enabled bool) (search.Preference, error) {
	p := search.Preference{
		UserID:              userID,
		RecentSearchEnabled: enabled,
		UpdatedAt:           time.Now(),
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"recent_search_enabled", "updated_at"}),
		}).
		Create(&p).Error
	return p, err
}
