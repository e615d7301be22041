package repository

import (
	"context"
	"time"

	"catalog-search/internal/domain/search"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresWeightRepository struct {
	db *gorm.DB
}

func NewWeightRepository(db *gorm.DB) WeightRepository {
	return &PostgresWeightRepository{db: db}
}

// GetOrCreate reads the named row, inserting defaults first if it is missing.
// Concurrent first reads race on the unique name and both see one row.
func (r *PostgresWeightRepository) GetOrCreate(ctx context.Context, name string, defaults search.Weights) (search.WeightSetting, error) {
	row := search.WeightSetting{
		Name:    name,
		Weights: datatypes.NewJSONType(defaults),
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).
		Create(&row).Error
	if err != nil {
		return search.WeightSetting{}, err
	}

	var out search.WeightSetting
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&out).Error; err != nil {
		return search.WeightSetting{}, err
	}
	return out, nil
}

func (r *PostgresWeightRepository) Replace(ctx context.Context, name string, weights search.Weights) (search.WeightSetting, error) {
	if _, err := r.GetOrCreate(ctx, name, weights); err != nil {
		return search.WeightSetting{}, err
	}

	err := r.db.WithContext(ctx).
		Model(&search.WeightSetting{}).
		Where("name = ?", name).
		Updates(map[string]interface{}{
			"weights":    datatypes.NewJSONType(weights),
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return search.WeightSetting{}, err
	}

	var out search.WeightSetting
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&out).Error; err != nil {
		return search.WeightSetting{}, err
	}
	return out, nil
}
