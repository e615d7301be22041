package repository

import (
	"context"
	"errors"
	"time"

	"catalog-search/internal/domain/outbox"
	catalog_errors "catalog-search/pkg/errors"

	"gorm.io/gorm"
)

type PostgresOutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &PostgresOutboxRepository{db: db}
}

func (r *PostgresOutboxRepository) Create(ctx context.Context, e *outbox.Entry) error {
	if e.Status == "" {
		e.Status = outbox.StatusPending
	}
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *PostgresOutboxRepository) GetByID(ctx context.Context, id uint64) (outbox.Entry, error) {
	var e outbox.Entry
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return outbox.Entry{}, catalog_errors.ErrNotFound
		}
		return outbox.Entry{}, err
	}
	return e, nil
}

func (r *PostgresOutboxRepository) MarkProcessing(ctx context.Context, id uint64) error {
	return updateOne(r.db.WithContext(ctx).Model(&outbox.Entry{}).Where("id = ?", id), map[string]interface{}{
		"status":        outbox.StatusProcessing,
		"attempt_count": gorm.Expr("attempt_count + 1"),
		"updated_at":    time.Now(),
	})
}

func (r *PostgresOutboxRepository) MarkCompleted(ctx context.Context, id uint64, at time.Time) error {
	return updateOne(r.db.WithContext(ctx).Model(&outbox.Entry{}).Where("id = ?", id), map[string]interface{}{
		"status":       outbox.StatusCompleted,
		"processed_at": at,
		"last_error":   nil,
		"updated_at":   at,
	})
}

func (r *PostgresOutboxRepository) MarkFailed(ctx context.Context, id uint64, lastError string) error {
	return updateOne(r.db.WithContext(ctx).Model(&outbox.Entry{}).Where("id = ?", id), map[string]interface{}{
		"status":     outbox.StatusFailed,
		"last_error": catalog_errors.Truncate(lastError, outbox.MaxErrorLength),
		"updated_at": time.Now(),
	})
}

func (r *PostgresOutboxRepository) CountByStatus(ctx context.Context) (map[outbox.Status]int64, error) {
	var rows []struct {
		Status outbox.Status
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&outbox.Entry{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[outbox.Status]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func (r *PostgresOutboxRepository) ListFailed(ctx context.Context, limit int) ([]outbox.Entry, error) {
	var entries []outbox.Entry
	err := r.db.WithContext(ctx).
		Where("status = ?", outbox.StatusFailed).
		Order("updated_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *PostgresOutboxRepository) ResetToPending(ctx context.Context, id uint64) error {
	return updateOne(r.db.WithContext(ctx).Model(&outbox.Entry{}).Where("id = ? AND status = ?", id, outbox.StatusFailed), map[string]interface{}{
		"status":     outbox.StatusPending,
		"last_error": nil,
		"updated_at": time.Now(),
	})
}

func (r *PostgresOutboxRepository) ListTerminalBefore(ctx context.Context, before time.Time, afterID uint64, limit int) ([]outbox.Entry, error) {
	var entries []outbox.Entry
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ? AND id > ?",
			[]outbox.Status{outbox.StatusCompleted, outbox.StatusFailed}, before, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *PostgresOutboxRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]outbox.Entry, error) {
	var entries []outbox.Entry
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]outbox.Status{outbox.StatusPending, outbox.StatusProcessing}, before).
		Order("id ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *PostgresOutboxRepository) TouchPending(ctx context.Context, id uint64) error {
	return updateOne(r.db.WithContext(ctx).Model(&outbox.Entry{}).
		Where("id = ? AND status IN ?", id, []outbox.Status{outbox.StatusPending, outbox.StatusProcessing}),
		map[string]interface{}{
			"status":     outbox.StatusPending,
			"updated_at": time.Now(),
		})
}

func (r *PostgresOutboxRepository) SetJobID(ctx context.Context, id uint64, jobID string) error {
	res := r.db.WithContext(ctx).Model(&outbox.Entry{}).
		Where("id = ?", id).
		UpdateColumn("job_id", jobID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return catalog_errors.ErrNotFound
	}
	return nil
}

func updateOne(q *gorm.DB, values map[string]interface{}) error {
	res := q.Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return catalog_errors.ErrNotFound
	}
	return nil
}
