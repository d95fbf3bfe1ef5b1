package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const promoteBatchSize = 100

type redisQueueOptions struct {
	now func() time.Time
}

// RedisQueueOption configures a RedisQueue.
type RedisQueueOption func(*redisQueueOptions)

// WithClock replaces the time source used for scheduling.
func WithClock(now func() time.Time) RedisQueueOption {
	return func(o *redisQueueOptions) {
		o.now = now
	}
}

// RedisQueue is a durable delayed-job queue stored in Redis.
//
// Layout under "queue:<name>:": a hash per job ("job:<id>"), the "waiting"
// and "active" lists, and the "delayed", "completed" and "failed" sorted
// sets scored by ready/finish time in milliseconds.
type RedisQueue struct {
	client redis.UniversalClient
	name   string
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisQueue creates the queue called name on client.
func NewRedisQueue(client redis.UniversalClient, name string, logger *zap.Logger, opts ...RedisQueueOption) *RedisQueue {
	options := &redisQueueOptions{now: time.Now}
	for _, o := range opts {
		o(options)
	}
	return &RedisQueue{
		client: client,
		name:   name,
		logger: logger.With(zap.String("queue", name)),
		now:    options.now,
	}
}

// Name returns the queue name.
func (q *RedisQueue) Name() string {
	return q.name
}

func (q *RedisQueue) prefix() string {
	return "queue:" + q.name + ":"
}

func (q *RedisQueue) jobPrefix() string {
	return q.prefix() + "job:"
}

func (q *RedisQueue) jobKey(id string) string {
	return q.jobPrefix() + id
}

func (q *RedisQueue) stateKey(state State) string {
	return q.prefix() + string(state)
}

// Enqueue schedules a job of kind carrying payload. When opts.JobID already
// exists the existing job is returned unchanged.
func (q *RedisQueue) Enqueue(ctx context.Context, kind string, payload any, opts EnqueueOptions) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	id := opts.JobID
	if id == "" {
		id = uuid.NewString()
	}
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}

	now := q.now()
	job := &Job{
		ID:        id,
		Kind:      kind,
		Payload:   data,
		State:     StateWaiting,
		Attempts:  attempts,
		Backoff:   opts.Backoff,
		Delay:     opts.Delay,
		CreatedAt: time.UnixMilli(now.UnixMilli()),
	}
	var readyAt int64
	if opts.Delay > 0 {
		job.State = StateDelayed
		readyAt = now.Add(opts.Delay).UnixMilli()
	}

	args := append([]any{id, readyAt}, job.fields()...)
	created, err := enqueueScript.Run(ctx, q.client,
		[]string{q.jobKey(id), q.stateKey(StateWaiting), q.stateKey(StateDelayed)},
		args...,
	).Int()
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", id, err)
	}
	if created == 0 {
		q.logger.Debug("duplicate job merged", zap.String("job_id", id))
		return q.FindJob(ctx, id)
	}
	q.logger.Debug("job enqueued", zap.String("job_id", id), zap.String("kind", kind), zap.Duration("delay", opts.Delay))
	return job, nil
}

// FindJob loads a job by id.
func (q *RedisQueue) FindJob(ctx context.Context, id string) (*Job, error) {
	h, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(h) == 0 {
		return nil, ErrJobNotFound
	}
	return jobFromHash(h), nil
}

// Cancel removes a waiting or delayed job. Jobs that are running or
// finished are left untouched and false is returned.
func (q *RedisQueue) Cancel(ctx context.Context, id string) (bool, error) {
	removed, err := cancelScript.Run(ctx, q.client,
		[]string{q.jobKey(id), q.stateKey(StateWaiting), q.stateKey(StateDelayed)},
		id,
	).Int()
	if err != nil {
		return false, fmt.Errorf("cancel %s: %w", id, err)
	}
	return removed == 1, nil
}

// Counts returns the number of jobs in each state.
func (q *RedisQueue) Counts(ctx context.Context) (map[State]int64, error) {
	cmds := make(map[State]*redis.IntCmd, len(States))
	_, err := q.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, state := range States {
			if isListState(state) {
				cmds[state] = p.LLen(ctx, q.stateKey(state))
			} else {
				cmds[state] = p.ZCard(ctx, q.stateKey(state))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	counts := make(map[State]int64, len(cmds))
	for state, cmd := range cmds {
		counts[state] = cmd.Val()
	}
	return counts, nil
}

// ListByState returns up to limit jobs in state; limit <= 0 means all.
func (q *RedisQueue) ListByState(ctx context.Context, state State, limit int) ([]*Job, error) {
	stop := int64(limit) - 1
	if limit <= 0 {
		stop = -1
	}
	var (
		ids []string
		err error
	)
	if isListState(state) {
		ids, err = q.client.LRange(ctx, q.stateKey(state), 0, stop).Result()
	} else {
		ids, err = q.client.ZRange(ctx, q.stateKey(state), 0, stop).Result()
	}
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*Job{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = q.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, q.jobKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(ids))
	for _, cmd := range cmds {
		if h := cmd.Val(); len(h) > 0 {
			jobs = append(jobs, jobFromHash(h))
		}
	}
	return jobs, nil
}

// PromoteDue moves delayed jobs whose time has come to waiting.
func (q *RedisQueue) PromoteDue(ctx context.Context) (int, error) {
	return promoteScript.Run(ctx, q.client,
		[]string{q.stateKey(StateDelayed), q.stateKey(StateWaiting)},
		q.now().UnixMilli(), q.jobPrefix(), promoteBatchSize,
	).Int()
}

// Dequeue claims the oldest waiting job and marks it active. It returns
// nil when nothing is waiting.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	id, err := dequeueScript.Run(ctx, q.client,
		[]string{q.stateKey(StateWaiting), q.stateKey(StateActive)},
		q.jobPrefix(), q.now().UnixMilli(),
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return q.FindJob(ctx, id)
}

// Complete records a successful run of an active job.
func (q *RedisQueue) Complete(ctx context.Context, job *Job, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return completeScript.Run(ctx, q.client,
		[]string{q.jobKey(job.ID), q.stateKey(StateActive), q.stateKey(StateCompleted)},
		job.ID, q.now().UnixMilli(), string(data),
	).Err()
}

// Fail records a failed run of an active job. The job is rescheduled with
// its backoff while attempts remain, unless cause is unrecoverable. It
// reports whether a retry was scheduled.
func (q *RedisQueue) Fail(ctx context.Context, job *Job, cause error) (bool, error) {
	now := q.now()
	attempt := job.AttemptsMade + 1
	var retryAt int64
	if !IsUnrecoverable(cause) && attempt < job.Attempts {
		retryAt = now.Add(job.Backoff.delayFor(attempt)).UnixMilli()
	}
	retried, err := failScript.Run(ctx, q.client,
		[]string{q.jobKey(job.ID), q.stateKey(StateActive), q.stateKey(StateDelayed), q.stateKey(StateFailed)},
		job.ID, now.UnixMilli(), cause.Error(), retryAt,
	).Int()
	if err != nil {
		return false, err
	}
	return retried == 1, nil
}

func isListState(state State) bool {
	return state == StateWaiting || state == StateActive
}

// Release puts an active job back at the head of waiting without spending
// an attempt. It reports false when the job was no longer active.
func (q *RedisQueue) Release(ctx context.Context, job *Job) (bool, error) {
	released, err := releaseScript.Run(ctx, q.client,
		[]string{q.jobKey(job.ID), q.stateKey(StateActive), q.stateKey(StateWaiting)},
		job.ID,
	).Int()
	if err != nil {
		return false, fmt.Errorf("release %s: %w", job.ID, err)
	}
	return released == 1, nil
}

// RequeueStalled moves jobs that have been active for longer than timeout
// back to waiting. It returns how many were moved.
func (q *RedisQueue) RequeueStalled(ctx context.Context, timeout time.Duration) (int, error) {
	return requeueStalledScript.Run(ctx, q.client,
		[]string{q.stateKey(StateActive), q.stateKey(StateWaiting)},
		q.jobPrefix(), q.now().Add(-timeout).UnixMilli(),
	).Int()
}
