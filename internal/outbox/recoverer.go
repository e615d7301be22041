package outbox

import (
	"context"
	"time"

	"catalog-search/pkg/logger"
)

// Rescheduler re-queues outbox rows that lost their job.
// *services.SyncService satisfies it.
type Rescheduler interface {
	RecoverStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// Recoverer periodically sweeps the outbox for stale PENDING/PROCESSING rows.
type Recoverer struct {
	sync       Rescheduler
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	logger     *logger.Logger
}

func NewRecoverer(sync Rescheduler, interval, staleAfter time.Duration, batchSize int, l *logger.Logger) *Recoverer {
	return &Recoverer{
		sync:       sync,
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		logger:     logger.OrNop(l),
	}
}

// DefaultRecoverer sweeps every minute for rows idle longer than the
// longest sync job retry schedule.
func DefaultRecoverer(sync Rescheduler, l *logger.Logger) *Recoverer {
	return NewRecoverer(sync, time.Minute, 10*time.Minute, 100, l)
}

// Run sweeps until ctx is cancelled.
func (r *Recoverer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep drains stale rows batch by batch. Errors are logged and retried on
// the next tick.
func (r *Recoverer) sweep(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		n, err := r.sync.RecoverStale(ctx, r.staleAfter, r.batchSize)
		total += n
		if err != nil {
			r.logger.Ctx(ctx).Errorf("outbox recovery failed: %v", err)
			break
		}
		if n < r.batchSize {
			break
		}
	}
	return total
}
