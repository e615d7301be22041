package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalog-search/internal/domain/outbox"
	"catalog-search/internal/queue"
	"catalog-search/internal/repository"
	catalog_errors "catalog-search/pkg/errors"
	"catalog-search/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SyncJobName names jobs on the search-sync queue.
const SyncJobName = "sync-outbox"

const (
	defaultRequeueLimit = 100
	maxRequeueLimit     = 1000
)

// SyncJobOptions is the bounded retry policy of every sync job.
var SyncJobOptions = queue.JobOptions{
	Attempts:         3,
	Backoff:          5 * time.Second,
	RemoveOnComplete: true,
}

type eventHandler func(ctx context.Context, e outbox.Entry) error

// SyncService moves outbox entries into the index through the sync queue.
type SyncService struct {
	outbox   repository.OutboxRepository
	queue    JobEnqueuer
	handlers map[outbox.EventType]eventHandler
	logger   *logger.Logger
	now      func() time.Time
}

func NewSyncService(repo repository.OutboxRepository, q JobEnqueuer, writer IndexWriter, l *logger.Logger) *SyncService {
	upsert := func(ctx context.Context, e outbox.Entry) error {
		return writer.UpsertDocument(ctx, e.AggregateID)
	}
	return &SyncService{
		outbox: repo,
		queue:  q,
		handlers: map[outbox.EventType]eventHandler{
			outbox.EventUpsert:       upsert,
			outbox.EventPriceChanged: upsert,
			outbox.EventDelete: func(ctx context.Context, e outbox.Entry) error {
				return writer.RemoveDocument(ctx, e.AggregateID)
			},
		},
		logger: logger.OrNop(l),
		now:    time.Now,
	}
}

// Enqueue records a change and schedules its sync. It returns as soon as the
// job is queued.
func (s *SyncService) Enqueue(ctx context.Context, eventType outbox.EventType, aggregateID int64, payload map[string]interface{}) (uint64, error) {
	if aggregateID <= 0 {
		return 0, fmt.Errorf("aggregate id must be a positive integer: %w", catalog_errors.ErrInvalidInput)
	}
	if _, ok := s.handlers[eventType]; !ok {
		return 0, fmt.Errorf("unknown event type %q: %w", eventType, catalog_errors.ErrInvalidInput)
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}

	entry := &outbox.Entry{
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     payload,
		Status:      outbox.StatusPending,
	}
	if err := s.outbox.Create(ctx, entry); err != nil {
		return 0, err
	}
	// The stored row is the commitment. A failed push leaves it PENDING for
	// the stale sweep.
	if err := s.schedule(ctx, entry.ID); err != nil {
		s.logger.Ctx(ctx).Warnf("outbox %d stored but not queued: %v", entry.ID, err)
	}
	return entry.ID, nil
}

// schedule pushes the sync job and records its id on the row.
func (s *SyncService) schedule(ctx context.Context, id uint64) error {
	job, err := s.queue.Add(ctx, SyncJobName, outbox.JobPayload{OutboxID: id}, SyncJobOptions)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox %d: %w", id, err)
	}
	if err := s.outbox.SetJobID(ctx, id, job.ID); err != nil {
		s.logger.Ctx(ctx).Warnf("outbox %d: record job id %s: %v", id, job.ID, err)
	}
	return nil
}

// jobInFlight reports whether the row's last job is still queued or running.
func (s *SyncService) jobInFlight(ctx context.Context, e outbox.Entry) (bool, error) {
	if e.JobID == "" {
		return false, nil
	}
	job, err := s.queue.GetJob(ctx, e.JobID)
	if errors.Is(err, queue.ErrJobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch job.State {
	case queue.StateWaiting, queue.StateDelayed, queue.StateActive:
		return true, nil
	}
	return false, nil
}

// HandleJob is the search-sync queue handler.
func (s *SyncService) HandleJob(ctx context.Context, job *queue.Job) error {
	var p outbox.JobPayload
	if err := job.Decode(&p); err != nil {
		return fmt.Errorf("decode job %s: %w", job.ID, err)
	}
	return s.ProcessOutbox(ctx, p.OutboxID)
}

// ProcessOutbox applies one entry to the index. A missing row was already
// handled elsewhere and counts as success. Errors are returned so the queue
// retries.
func (s *SyncService) ProcessOutbox(ctx context.Context, id uint64) error {
	ctx, span := tracer.Start(ctx, "SyncService.ProcessOutbox")
	defer span.End()
	span.SetAttributes(attribute.Int64("outbox.id", int64(id)))

	entry, err := s.outbox.GetByID(ctx, id)
	if errors.Is(err, catalog_errors.ErrNotFound) {
		s.logger.Ctx(ctx).Debugf("outbox %d not found, skipping", id)
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.outbox.MarkProcessing(ctx, id); err != nil {
		return err
	}

	err = s.dispatch(ctx, entry)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if markErr := s.outbox.MarkFailed(ctx, id, err.Error()); markErr != nil {
			s.logger.Ctx(ctx).Errorf("outbox %d: mark failed: %v", id, markErr)
		}
		s.logger.Ctx(ctx).Warnf("outbox %d (%s %d) failed: %v", id, entry.EventType, entry.AggregateID, err)
		return err
	}

	return s.outbox.MarkCompleted(ctx, id, s.now())
}

func (s *SyncService) dispatch(ctx context.Context, e outbox.Entry) error {
	h, ok := s.handlers[e.EventType]
	if !ok {
		return fmt.Errorf("no handler for event type %q", e.EventType)
	}
	return h(ctx, e)
}

func (s *SyncService) OutboxSummary(ctx context.Context) (outbox.Summary, error) {
	counts, err := s.outbox.CountByStatus(ctx)
	if err != nil {
		return outbox.Summary{}, err
	}
	return outbox.Summary{
		Pending:    counts[outbox.StatusPending],
		Processing: counts[outbox.StatusProcessing],
		Completed:  counts[outbox.StatusCompleted],
		Failed:     counts[outbox.StatusFailed],
	}, nil
}

// RequeueFailed resets up to limit FAILED rows, newest first, and schedules
// each again. It returns how many were requeued.
func (s *SyncService) RequeueFailed(ctx context.Context, limit int) (int, error) {
	if limit < 0 {
		return 0, fmt.Errorf("limit must not be negative: %w", catalog_errors.ErrInvalidInput)
	}
	if limit == 0 {
		limit = defaultRequeueLimit
	}
	if limit > maxRequeueLimit {
		limit = maxRequeueLimit
	}

	failed, err := s.outbox.ListFailed(ctx, limit)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, e := range failed {
		if err := s.outbox.ResetToPending(ctx, e.ID); err != nil {
			if errors.Is(err, catalog_errors.ErrNotFound) {
				continue
			}
			return requeued, err
		}
		if err := s.schedule(ctx, e.ID); err != nil {
			return requeued, err
		}
		requeued++
	}
	s.logger.Ctx(ctx).Infof("requeued %d of %d failed outbox entries", requeued, len(failed))
	return requeued, nil
}

// RecoverStale reschedules PENDING or PROCESSING rows that nothing has
// touched for olderThan and whose job is gone or finished. Rows still
// waiting behind a paused or backlogged queue are left alone.
func (s *SyncService) RecoverStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if olderThan <= 0 || limit <= 0 {
		return 0, fmt.Errorf("olderThan and limit must be positive: %w", catalog_errors.ErrInvalidInput)
	}

	stale, err := s.outbox.ListStale(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, e := range stale {
		inFlight, err := s.jobInFlight(ctx, e)
		if err != nil {
			return recovered, err
		}
		if inFlight {
			continue
		}
		if err := s.outbox.TouchPending(ctx, e.ID); err != nil {
			if errors.Is(err, catalog_errors.ErrNotFound) {
				continue
			}
			return recovered, err
		}
		if err := s.schedule(ctx, e.ID); err != nil {
			return recovered, err
		}
		recovered++
	}
	if recovered > 0 {
		s.logger.Ctx(ctx).Infof("rescheduled %d stale outbox entries", recovered)
	}
	return recovered, nil
}
