package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"catalog-search/pkg/logger"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// maxStoredFrames bounds the stack kept on a failed job.
const maxStoredFrames = 20

// DefaultStalledAfter is how long a job may stay active before it is
// considered abandoned.
const DefaultStalledAfter = 5 * time.Minute

// Handler processes one job. A returned error counts as a failed attempt.
type Handler func(ctx context.Context, job *Job) error

// Worker pulls jobs from one queue. Each slot handles one job at a time.
type Worker struct {
	queue        *RedisQueue
	handler      Handler
	concurrency  int
	pollInterval time.Duration
	stalledAfter time.Duration
	logger       *logger.Logger
}

func NewWorker(q *RedisQueue, handler Handler, concurrency int, pollInterval time.Duration, l *logger.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Worker{
		queue:        q,
		handler:      handler,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		stalledAfter: DefaultStalledAfter,
		logger:       logger.OrNop(l),
	}
}

// SetStalledAfter overrides DefaultStalledAfter. It must be longer than any
// healthy job takes.
func (w *Worker) SetStalledAfter(d time.Duration) {
	if d > 0 {
		w.stalledAfter = d
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Infof("worker for queue %s started with %d slots", w.queue.Name(), w.concurrency)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			w.loop(ctx)
			return nil
		})
	}
	g.Go(func() error {
		w.reapLoop(ctx)
		return nil
	})
	err := g.Wait()
	w.logger.Infof("worker for queue %s stopped", w.queue.Name())
	return err
}

func (w *Worker) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		handled, err := w.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.Errorf("queue %s: %v", w.queue.Name(), err)
		}
		if handled {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *Worker) reapLoop(ctx context.Context) {
	interval := w.stalledAfter / 4
	if interval < w.pollInterval {
		interval = w.pollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.queue.ReapStalled(ctx, w.stalledAfter)
			if err != nil && ctx.Err() == nil {
				w.logger.Errorf("queue %s: reap stalled: %v", w.queue.Name(), err)
			}
			if n > 0 {
				w.logger.Warnf("queue %s: reaped %d stalled jobs", w.queue.Name(), n)
			}
		}
	}
}

// ProcessNext promotes due delayed jobs and runs at most one waiting job.
// It reports whether a job was handled.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	paused, err := w.queue.IsPaused(ctx)
	if err != nil {
		return false, err
	}
	if paused {
		return false, nil
	}
	if _, err := w.queue.promoteDelayed(ctx); err != nil {
		return false, fmt.Errorf("promote delayed: %w", err)
	}
	job, err := w.queue.next(ctx)
	if err != nil {
		return false, fmt.Errorf("fetch next: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if herr := w.run(ctx, job); herr != nil {
		reason, stack := describe(herr)
		state, err := w.queue.fail(ctx, job, reason, stack)
		if err != nil {
			return true, fmt.Errorf("record failure of job %s: %w", job.ID, err)
		}
		w.logger.Warnf("queue %s: job %s attempt %d/%d failed (%s): %s",
			w.queue.Name(), job.ID, job.AttemptsMade+1, job.Opts.Attempts, state, reason)
		return true, nil
	}
	if err := w.queue.complete(ctx, job); err != nil {
		return true, fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) run(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return w.handler(ctx, job)
}

// describe splits an error into its message and the stack frames recorded
// by github.com/pkg/errors, adding one at this call site if none exist.
func describe(err error) (string, []string) {
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}
	var st stackTracer
	if !errors.As(err, &st) {
		st = errors.WithStack(err).(stackTracer)
	}
	var frames []string
	for _, f := range st.StackTrace() {
		frames = append(frames, strings.TrimSpace(fmt.Sprintf("%+v", f)))
	}
	if len(frames) > maxStoredFrames {
		frames = frames[:maxStoredFrames]
	}
	return err.Error(), frames
}
