package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"catalog-search/internal/repository"
	catalog_errors "catalog-search/pkg/errors"
	"catalog-search/pkg/logger"
)

const archiveBatchSize = 1000

type ArchiveResult struct {
	Cutoff  time.Time `json:"cutoff"`
	Entries int       `json:"entries"`
	Objects []string  `json:"objects"`
}

// OutboxArchiver exports terminal outbox rows as NDJSON objects. Rows stay
// in the table.
type OutboxArchiver struct {
	repo   repository.OutboxRepository
	store  ObjectStore
	logger *logger.Logger
	now    func() time.Time
}

func NewOutboxArchiver(repo repository.OutboxRepository, store ObjectStore, l *logger.Logger) *OutboxArchiver {
	return &OutboxArchiver{repo: repo, store: store, logger: logger.OrNop(l), now: time.Now}
}

// Archive uploads every COMPLETED or FAILED row last touched more than
// olderThanDays days ago, one object per batch.
func (a *OutboxArchiver) Archive(ctx context.Context, olderThanDays int) (ArchiveResult, error) {
	if a.store == nil {
		return ArchiveResult{}, fmt.Errorf("archive storage is not configured: %w", catalog_errors.ErrServiceUnavailable)
	}
	if olderThanDays < 1 {
		return ArchiveResult{}, fmt.Errorf("olderThanDays must be at least 1: %w", catalog_errors.ErrInvalidInput)
	}

	cutoff := a.now().UTC().AddDate(0, 0, -olderThanDays)
	res := ArchiveResult{Cutoff: cutoff, Objects: []string{}}

	var afterID uint64
	for {
		batch, err := a.repo.ListTerminalBefore(ctx, cutoff, afterID, archiveBatchSize)
		if err != nil {
			return res, err
		}
		if len(batch) == 0 {
			break
		}

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, e := range batch {
			if err := enc.Encode(e); err != nil {
				return res, err
			}
		}

		first, last := batch[0].ID, batch[len(batch)-1].ID
		name := fmt.Sprintf("outbox/%s/%d-%d.ndjson", cutoff.Format("2006/01/02"), first, last)
		key, err := a.store.PutObject(ctx, name, buf.Bytes(), "application/x-ndjson")
		if err != nil {
			return res, fmt.Errorf("upload %s: %w", name, err)
		}
		res.Objects = append(res.Objects, a.store.ObjectURI(key))
		res.Entries += len(batch)
		afterID = last

		if len(batch) < archiveBatchSize {
			break
		}
	}

	a.logger.Ctx(ctx).Infof("archived %d outbox entries into %d objects", res.Entries, len(res.Objects))
	return res, nil
}
