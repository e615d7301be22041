package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"catalog-search/internal/domain/search"
	"catalog-search/internal/queue"
	catalog_errors "catalog-search/pkg/errors"
	"catalog-search/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const (
	stackFramesShown       = 5
	defaultFailedPageLimit = 20
	maxFailedPageLimit     = 100
	defaultRetryLimit      = 50
	defaultAutoPerQueue    = 50
	defaultAutoMaxTotal    = 200
)

type QueueStats struct {
	Name   queue.Name   `json:"name"`
	Paused bool         `json:"paused"`
	Counts queue.Counts `json:"counts"`
}

// FailedJob is the operator view of a failed job.
type FailedJob struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Data         json.RawMessage `json:"data"`
	Timestamp    time.Time       `json:"timestamp"`
	ProcessedOn  *time.Time      `json:"processedOn,omitempty"`
	FinishedOn   *time.Time      `json:"finishedOn,omitempty"`
	AttemptsMade int             `json:"attemptsMade"`
	FailedReason string          `json:"failedReason"`
	Stacktrace   []string        `json:"stacktrace"`
}

type FailedJobPage struct {
	Queue    queue.Name      `json:"queue"`
	Jobs     []FailedJob     `json:"jobs"`
	PageMeta search.PageMeta `json:"pageMeta"`
}

type RetryOutcome struct {
	Attempted int      `json:"attempted"`
	Retried   int      `json:"retried"`
	JobIDs    []string `json:"jobIds"`
}

type QueueRetryReport struct {
	Queue      queue.Name `json:"queue"`
	Candidates int        `json:"candidates"`
	Retried    int        `json:"retried"`
	JobIDs     []string   `json:"jobIds"`
	Error      string     `json:"error,omitempty"`
}

type AutoRetryReport struct {
	Queues []QueueRetryReport `json:"queues"`
	Total  int                `json:"total"`
}

// QueueAdminService operates on the managed queues only.
type QueueAdminService struct {
	queues map[queue.Name]ManagedQueue
	order  []queue.Name
	logger *logger.Logger
}

func NewQueueAdminService(queues []ManagedQueue, l *logger.Logger) *QueueAdminService {
	byName := make(map[queue.Name]ManagedQueue, len(queues))
	for _, q := range queues {
		byName[q.Name()] = q
	}
	var order []queue.Name
	for _, name := range queue.Managed {
		if _, ok := byName[name]; ok {
			order = append(order, name)
		}
	}
	return &QueueAdminService{queues: byName, order: order, logger: logger.OrNop(l)}
}

func (s *QueueAdminService) resolve(name string) (ManagedQueue, error) {
	n, err := queue.ParseName(name)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, catalog_errors.ErrInvalidInput)
	}
	q, ok := s.queues[n]
	if !ok {
		return nil, fmt.Errorf("queue %q is not registered: %w", name, catalog_errors.ErrInvalidInput)
	}
	return q, nil
}

func mapJobError(err error) error {
	switch {
	case errors.Is(err, queue.ErrJobNotFound):
		return fmt.Errorf("%v: %w", err, catalog_errors.ErrNotFound)
	case errors.Is(err, queue.ErrJobNotFailed):
		return fmt.Errorf("%v: %w", err, catalog_errors.ErrInvalidInput)
	default:
		return err
	}
}

func statsOf(ctx context.Context, q ManagedQueue) (QueueStats, error) {
	paused, err := q.IsPaused(ctx)
	if err != nil {
		return QueueStats{}, err
	}
	counts, err := q.Counts(ctx)
	if err != nil {
		return QueueStats{}, err
	}
	return QueueStats{Name: q.Name(), Paused: paused, Counts: counts}, nil
}

// QueueStats reports every managed queue, in managed order.
func (s *QueueAdminService) QueueStats(ctx context.Context) ([]QueueStats, error) {
	out := make([]QueueStats, len(s.order))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range s.order {
		i, q := i, s.queues[name]
		g.Go(func() error {
			st, err := statsOf(gctx, q)
			if err != nil {
				return fmt.Errorf("stats of %s: %w", q.Name(), err)
			}
			out[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *QueueAdminService) QueueStatsFor(ctx context.Context, name string) (QueueStats, error) {
	q, err := s.resolve(name)
	if err != nil {
		return QueueStats{}, err
	}
	return statsOf(ctx, q)
}

// SetPaused pauses or resumes a queue. Workers stop taking new jobs from a
// paused queue; active jobs finish.
func (s *QueueAdminService) SetPaused(ctx context.Context, name string, paused bool) (QueueStats, error) {
	q, err := s.resolve(name)
	if err != nil {
		return QueueStats{}, err
	}
	if paused {
		err = q.Pause(ctx)
	} else {
		err = q.Resume(ctx)
	}
	if err != nil {
		return QueueStats{}, err
	}
	s.logger.Infof("queue %s paused=%t", q.Name(), paused)
	return statsOf(ctx, q)
}

func lastFrames(stack []string, n int) []string {
	if len(stack) <= n {
		return append([]string{}, stack...)
	}
	return append([]string{}, stack[len(stack)-n:]...)
}

func (s *QueueAdminService) FailedJobs(ctx context.Context, name string, page, limit int, newestFirst bool) (FailedJobPage, error) {
	q, err := s.resolve(name)
	if err != nil {
		return FailedJobPage{}, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultFailedPageLimit
	}
	if limit > maxFailedPageLimit {
		limit = maxFailedPageLimit
	}

	total, err := q.FailedCount(ctx)
	if err != nil {
		return FailedJobPage{}, err
	}
	jobs, err := q.Failed(ctx, (page-1)*limit, limit, newestFirst)
	if err != nil {
		return FailedJobPage{}, err
	}

	out := FailedJobPage{
		Queue:    q.Name(),
		Jobs:     make([]FailedJob, 0, len(jobs)),
		PageMeta: search.NewPageMeta(page, limit, total),
	}
	for _, j := range jobs {
		out.Jobs = append(out.Jobs, FailedJob{
			ID:           j.ID,
			Name:         j.Name,
			Data:         j.Data,
			Timestamp:    j.Timestamp,
			ProcessedOn:  j.ProcessedOn,
			FinishedOn:   j.FinishedOn,
			AttemptsMade: j.AttemptsMade,
			FailedReason: j.FailedReason,
			Stacktrace:   lastFrames(j.Stacktrace, stackFramesShown),
		})
	}
	return out, nil
}

// RetryJob re-queues a failed job. Any other state is rejected.
func (s *QueueAdminService) RetryJob(ctx context.Context, name, jobID string) error {
	q, err := s.resolve(name)
	if err != nil {
		return err
	}
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return mapJobError(err)
	}
	if job.State != queue.StateFailed {
		return fmt.Errorf("job %s is %s, only failed jobs can be retried: %w", jobID, job.State, catalog_errors.ErrInvalidInput)
	}
	if err := q.Retry(ctx, jobID); err != nil {
		return mapJobError(err)
	}
	s.logger.Ctx(ctx).Infof("retried job %s on %s", jobID, q.Name())
	return nil
}

func (s *QueueAdminService) RemoveJob(ctx context.Context, name, jobID string) error {
	q, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := q.Remove(ctx, jobID); err != nil {
		return mapJobError(err)
	}
	s.logger.Ctx(ctx).Infof("removed job %s from %s", jobID, q.Name())
	return nil
}

// retryBatch retries up to budget of the given jobs; individual failures are
// skipped.
func (s *QueueAdminService) retryBatch(ctx context.Context, q ManagedQueue, jobs []*queue.Job, budget int) (int, []string) {
	ids := []string{}
	attempted := 0
	for _, j := range jobs {
		if len(ids) >= budget {
			break
		}
		attempted++
		if err := q.Retry(ctx, j.ID); err != nil {
			s.logger.Ctx(ctx).Debugf("skip retry of %s on %s: %v", j.ID, q.Name(), err)
			continue
		}
		ids = append(ids, j.ID)
	}
	return attempted, ids
}

// RetryFailedJobs retries up to limit failed jobs of one queue, oldest first.
func (s *QueueAdminService) RetryFailedJobs(ctx context.Context, name string, limit int) (RetryOutcome, error) {
	q, err := s.resolve(name)
	if err != nil {
		return RetryOutcome{}, err
	}
	if limit < 0 {
		return RetryOutcome{}, fmt.Errorf("limit must not be negative: %w", catalog_errors.ErrInvalidInput)
	}
	if limit == 0 {
		limit = defaultRetryLimit
	}

	jobs, err := q.Failed(ctx, 0, limit, false)
	if err != nil {
		return RetryOutcome{}, err
	}
	attempted, ids := s.retryBatch(ctx, q, jobs, limit)
	return RetryOutcome{Attempted: attempted, Retried: len(ids), JobIDs: ids}, nil
}

// AutoRetryFailed sweeps the managed queues in order and stops as soon as
// maxTotal retries have succeeded.
func (s *QueueAdminService) AutoRetryFailed(ctx context.Context, perQueueLimit, maxTotal int) (AutoRetryReport, error) {
	if perQueueLimit < 0 || maxTotal < 0 {
		return AutoRetryReport{}, fmt.Errorf("limits must not be negative: %w", catalog_errors.ErrInvalidInput)
	}
	if perQueueLimit == 0 {
		perQueueLimit = defaultAutoPerQueue
	}
	if maxTotal == 0 {
		maxTotal = defaultAutoMaxTotal
	}

	report := AutoRetryReport{Queues: []QueueRetryReport{}}
	for _, name := range s.order {
		if report.Total >= maxTotal {
			break
		}
		q := s.queues[name]
		entry := QueueRetryReport{Queue: name, JobIDs: []string{}}

		jobs, err := q.Failed(ctx, 0, perQueueLimit, false)
		if err != nil {
			entry.Error = err.Error()
			report.Queues = append(report.Queues, entry)
			continue
		}
		entry.Candidates = len(jobs)
		_, entry.JobIDs = s.retryBatch(ctx, q, jobs, maxTotal-report.Total)
		entry.Retried = len(entry.JobIDs)
		report.Total += entry.Retried
		report.Queues = append(report.Queues, entry)
	}
	s.logger.Ctx(ctx).Infof("auto retry issued %d retries", report.Total)
	return report, nil
}
