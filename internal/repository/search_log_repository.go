package repository

import (
	"context"
	"strings"
	"time"

	"catalog-search/internal/domain/search"

	"gorm.io/gorm"
)

type PostgresSearchLogRepository struct {
	db *gorm.DB
}

func NewSearchLogRepository(db *gorm.DB) SearchLogRepository {
	return &PostgresSearchLogRepository{db: db}
}

func (r *PostgresSearchLogRepository) Create(ctx context.Context, l *search.Log) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *PostgresSearchLogRepository) PopularSince(ctx context.Context, since time.Time, limit int) ([]search.KeywordCount, error) {
	return r.grouped(r.db.WithContext(ctx).
		Model(&search.Log{}).
		Where("created_at >= ? AND keyword <> ''", since), limit)
}

func (r *PostgresSearchLogRepository) RelatedKeywords(ctx context.Context, keyword string, limit int) ([]search.KeywordCount, error) {
	return r.grouped(r.db.WithContext(ctx).
		Model(&search.Log{}).
		Where(`LOWER(keyword) LIKE ? ESCAPE '\' AND LOWER(keyword) <> ?`,
			containsPattern(keyword), strings.ToLower(keyword)), limit)
}

func (r *PostgresSearchLogRepository) KeywordsWithPrefix(ctx context.Context, prefix string, limit int) ([]search.KeywordCount, error) {
	return r.grouped(r.db.WithContext(ctx).
		Model(&search.Log{}).
		Where(`LOWER(keyword) LIKE ? ESCAPE '\'`, prefixPattern(prefix)), limit)
}

func (r *PostgresSearchLogRepository) grouped(q *gorm.DB, limit int) ([]search.KeywordCount, error) {
	var rows []search.KeywordCount
	err := q.Select("keyword, COUNT(*) AS count").
		Group("keyword").
		Order("count DESC, keyword ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}
