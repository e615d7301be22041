package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Key layout for a queue named q:
// - queue:{q}:job:{id} - hash holding the job
// - queue:{q}:wait     - list, LPUSH in / RPOP out
// - queue:{q}:active   - list of jobs being processed
// - queue:{q}:delayed  - zset scored by the time the job becomes ready (ms)
// - queue:{q}:completed, queue:{q}:failed - zsets scored by finish time (ms)
// - queue:{q}:paused   - flag key
type RedisQueue struct {
	client goredis.UniversalClient
	name   Name
	clock  func() time.Time
}

func NewRedisQueue(client goredis.UniversalClient, name Name) *RedisQueue {
	return &RedisQueue{client: client, name: name, clock: time.Now}
}

func (q *RedisQueue) Name() Name {
	return q.name
}

func (q *RedisQueue) key(suffix string) string {
	return fmt.Sprintf("queue:%s:%s", q.name, suffix)
}

func (q *RedisQueue) jobKey(id string) string {
	return q.key("job:" + id)
}

func (q *RedisQueue) nowMs() int64 {
	return q.clock().UnixMilli()
}

// Add stores a new waiting job and returns it.
func (q *RedisQueue) Add(ctx context.Context, jobName string, payload interface{}, opts JobOptions) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	opts = opts.normalized()
	rawOpts, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}

	now := q.nowMs()
	id := uuid.NewString()
	_, err = q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, q.jobKey(id),
			fieldName, jobName,
			fieldData, string(data),
			fieldOpts, string(rawOpts),
			fieldState, StateWaiting.String(),
			fieldAttemptsMade, 0,
			fieldTimestamp, now,
		)
		pipe.LPush(ctx, q.key("wait"), id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Job{
		ID:        id,
		Queue:     q.name,
		Name:      jobName,
		Data:      data,
		Opts:      opts,
		State:     StateWaiting,
		Timestamp: time.UnixMilli(now),
	}, nil
}

// GetJob loads a job with its current state.
func (q *RedisQueue) GetJob(ctx context.Context, id string) (*Job, error) {
	h, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, err
	}
	return jobFromHash(q.name, id, h)
}

func (q *RedisQueue) Counts(ctx context.Context) (Counts, error) {
	var (
		wait, active               *goredis.IntCmd
		delayed, completed, failed *goredis.IntCmd
	)
	_, err := q.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		wait = pipe.LLen(ctx, q.key("wait"))
		active = pipe.LLen(ctx, q.key("active"))
		delayed = pipe.ZCard(ctx, q.key("delayed"))
		completed = pipe.ZCard(ctx, q.key("completed"))
		failed = pipe.ZCard(ctx, q.key("failed"))
		return nil
	})
	if err != nil {
		return Counts{}, err
	}
	return Counts{
		Waiting:   wait.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

func (q *RedisQueue) IsPaused(ctx context.Context) (bool, error) {
	n, err := q.client.Exists(ctx, q.key("paused")).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (q *RedisQueue) Pause(ctx context.Context) error {
	return q.client.Set(ctx, q.key("paused"), "1", 0).Err()
}

func (q *RedisQueue) Resume(ctx context.Context) error {
	return q.client.Del(ctx, q.key("paused")).Err()
}

func (q *RedisQueue) FailedCount(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.key("failed")).Result()
}

// Failed lists failed jobs ordered by finish time.
func (q *RedisQueue) Failed(ctx context.Context, offset, limit int, newestFirst bool) ([]*Job, error) {
	if limit <= 0 {
		return []*Job{}, nil
	}
	start, stop := int64(offset), int64(offset+limit-1)
	var (
		ids []string
		err error
	)
	if newestFirst {
		ids, err = q.client.ZRevRange(ctx, q.key("failed"), start, stop).Result()
	} else {
		ids, err = q.client.ZRange(ctx, q.key("failed"), start, stop).Result()
	}
	if err != nil {
		return nil, err
	}
	return q.loadJobs(ctx, ids)
}

func (q *RedisQueue) loadJobs(ctx context.Context, ids []string) ([]*Job, error) {
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	_, err := q.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, q.jobKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(ids))
	for i, id := range ids {
		job, err := jobFromHash(q.name, id, cmds[i].Val())
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Retry moves a failed job back to waiting with a fresh attempt budget.
// Removing the id from the failed set is the claim: if another caller got
// there first the job is no longer failed.
func (q *RedisQueue) Retry(ctx context.Context, id string) error {
	removed, err := q.client.ZRem(ctx, q.key("failed"), id).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		exists, err := q.client.Exists(ctx, q.jobKey(id)).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return ErrJobNotFound
		}
		return ErrJobNotFailed
	}
	_, err = q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, q.jobKey(id),
			fieldState, StateWaiting.String(),
			fieldAttemptsMade, 0,
			fieldFailedReason, "",
			fieldFinishedOn, 0,
		)
		pipe.HDel(ctx, q.jobKey(id), fieldStacktrace)
		pipe.LPush(ctx, q.key("wait"), id)
		return nil
	})
	return err
}

// Remove deletes a job from whatever state it is in.
func (q *RedisQueue) Remove(ctx context.Context, id string) error {
	exists, err := q.client.Exists(ctx, q.jobKey(id)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrJobNotFound
	}
	_, err = q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LRem(ctx, q.key("wait"), 0, id)
		pipe.LRem(ctx, q.key("active"), 0, id)
		pipe.ZRem(ctx, q.key("delayed"), id)
		pipe.ZRem(ctx, q.key("completed"), id)
		pipe.ZRem(ctx, q.key("failed"), id)
		pipe.Del(ctx, q.jobKey(id))
		return nil
	})
	return err
}

// promoteDelayed moves delayed jobs whose backoff has elapsed to waiting.
func (q *RedisQueue) promoteDelayed(ctx context.Context) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.key("delayed"), &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.nowMs(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, q.key("delayed"), id).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		_, err = q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, q.jobKey(id), fieldState, StateWaiting.String())
			pipe.LPush(ctx, q.key("wait"), id)
			return nil
		})
		if err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// next moves the oldest waiting job to active. Returns nil when the queue is empty.
func (q *RedisQueue) next(ctx context.Context) (*Job, error) {
	id, err := q.client.LMove(ctx, q.key("wait"), q.key("active"), "RIGHT", "LEFT").Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	now := q.nowMs()
	if err := q.client.HSet(ctx, q.jobKey(id), fieldState, StateActive.String(), fieldProcessedOn, now).Err(); err != nil {
		return nil, err
	}
	job, err := q.GetJob(ctx, id)
	if errors.Is(err, ErrJobNotFound) {
		// removed between the move and the read
		q.client.LRem(ctx, q.key("active"), 0, id)
		return nil, nil
	}
	return job, err
}

// complete finishes an active job successfully.
func (q *RedisQueue) complete(ctx context.Context, job *Job) error {
	removed, err := q.client.LRem(ctx, q.key("active"), 0, job.ID).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return nil
	}
	now := q.nowMs()
	_, err = q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if job.Opts.RemoveOnComplete {
			pipe.Del(ctx, q.jobKey(job.ID))
			return nil
		}
		pipe.HSet(ctx, q.jobKey(job.ID),
			fieldState, StateCompleted.String(),
			fieldAttemptsMade, job.AttemptsMade+1,
			fieldFinishedOn, now,
		)
		pipe.ZAdd(ctx, q.key("completed"), goredis.Z{Score: float64(now), Member: job.ID})
		return nil
	})
	return err
}

// fail records a failed attempt. The job is delayed for another attempt
// while its budget lasts, otherwise it lands in the failed set.
func (q *RedisQueue) fail(ctx context.Context, job *Job, reason string, stack []string) (JobState, error) {
	removed, err := q.client.LRem(ctx, q.key("active"), 0, job.ID).Result()
	if err != nil {
		return StateUnknown, err
	}
	if removed == 0 {
		return StateUnknown, nil
	}
	attempts := job.AttemptsMade + 1
	now := q.nowMs()
	rawStack, _ := json.Marshal(stack)

	next := StateFailed
	if attempts < job.Opts.Attempts {
		next = StateDelayed
	}
	_, err = q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, q.jobKey(job.ID),
			fieldState, next.String(),
			fieldAttemptsMade, attempts,
			fieldFailedReason, reason,
			fieldStacktrace, string(rawStack),
		)
		if next == StateDelayed {
			readyAt := now + job.Opts.Backoff.Milliseconds()
			pipe.ZAdd(ctx, q.key("delayed"), goredis.Z{Score: float64(readyAt), Member: job.ID})
			return nil
		}
		pipe.HSet(ctx, q.jobKey(job.ID), fieldFinishedOn, now)
		pipe.ZAdd(ctx, q.key("failed"), goredis.Z{Score: float64(now), Member: job.ID})
		return nil
	})
	return next, err
}

// ReapStalled fails active jobs that have been running longer than
// stalledAfter, typically because their worker died. They then retry or land
// in the failed set like any other failed attempt. A worker that is merely
// slow finds its job already reaped and its result is dropped.
func (q *RedisQueue) ReapStalled(ctx context.Context, stalledAfter time.Duration) (int, error) {
	ids, err := q.client.LRange(ctx, q.key("active"), 0, -1).Result()
	if err != nil {
		return 0, err
	}
	cutoff := q.clock().Add(-stalledAfter)
	reaped := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			if err := q.client.LRem(ctx, q.key("active"), 0, id).Err(); err != nil {
				return reaped, err
			}
			continue
		}
		if err != nil {
			return reaped, err
		}
		// processedOn is missing when the worker died right after the move.
		started := job.Timestamp
		if job.ProcessedOn != nil {
			started = *job.ProcessedOn
		}
		if started.After(cutoff) {
			continue
		}
		state, err := q.fail(ctx, job, "job stalled: no result within "+stalledAfter.String(), nil)
		if err != nil {
			return reaped, err
		}
		if state != StateUnknown {
			reaped++
		}
	}
	return reaped, nil
}
