package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/ticketdesk/internal/observability"
)

// Handler executes a job and returns its result.
type Handler interface {
	Process(ctx context.Context, job *Job) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *Job) (any, error)

func (f HandlerFunc) Process(ctx context.Context, job *Job) (any, error) {
	return f(ctx, job)
}

type workerOptions struct {
	concurrency  int
	pollInterval time.Duration
	stallTimeout time.Duration
	metrics      *observability.Metrics
}

// WorkerOption configures a Worker.
type WorkerOption func(*workerOptions)

// WithConcurrency sets the number of jobs processed in parallel.
func WithConcurrency(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithPollInterval sets how long an idle worker sleeps between polls.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithStallTimeout sets how long a job may stay active before it is
// considered abandoned and returned to waiting.
func WithStallTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.stallTimeout = d
		}
	}
}

// WithWorkerMetrics records job outcomes on metrics.
func WithWorkerMetrics(metrics *observability.Metrics) WorkerOption {
	return func(o *workerOptions) {
		o.metrics = metrics
	}
}

// Worker consumes jobs from a RedisQueue. Several workers, in one process
// or many, may consume the same queue. Jobs left active by a worker that
// died are returned to waiting once the stall timeout has passed.
type Worker struct {
	queue   *RedisQueue
	handler Handler
	logger  *zap.Logger
	options *workerOptions
}

// NewWorker creates a worker running handler for jobs of queue.
func NewWorker(queue *RedisQueue, handler Handler, logger *zap.Logger, opts ...WorkerOption) *Worker {
	options := &workerOptions{concurrency: 1, pollInterval: time.Second, stallTimeout: 5 * time.Minute}
	for _, o := range opts {
		o(options)
	}
	return &Worker{
		queue:   queue,
		handler: handler,
		logger:  logger.With(zap.String("queue", queue.Name())),
		options: options,
	}
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", zap.Int("concurrency", w.options.concurrency))
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		ticker := time.NewTicker(w.options.pollInterval)
		defer ticker.Stop()
		for {
			if n, err := w.queue.RequeueStalled(ctx, w.options.stallTimeout); err != nil && ctx.Err() == nil {
				w.logger.Error("requeue stalled jobs", zap.Error(err))
			} else if n > 0 {
				w.logger.Warn("stalled jobs returned to waiting", zap.Int("count", n))
			}
			if _, err := w.queue.PromoteDue(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("promote delayed jobs", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
	for i := 0; i < w.options.concurrency; i++ {
		eg.Go(func() error {
			for ctx.Err() == nil {
				processed, err := w.ProcessNext(ctx)
				if err != nil && ctx.Err() == nil {
					w.logger.Error("process job", zap.Error(err))
				}
				if processed && err == nil {
					continue
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(w.options.pollInterval):
				}
			}
			return nil
		})
	}
	err := eg.Wait()
	w.logger.Info("worker stopped")
	return err
}

// ProcessNext claims and runs one waiting job. It reports whether a job
// was found.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	log := w.logger.With(zap.String("job_id", job.ID), zap.String("kind", job.Kind), zap.Int("attempt", job.AttemptsMade+1))
	result, procErr := w.run(ctx, job)

	// The outcome must reach Redis even when ctx was cancelled mid-run.
	finishCtx := context.WithoutCancel(ctx)
	if procErr != nil && ctx.Err() != nil && errors.Is(procErr, ctx.Err()) {
		if _, err := w.queue.Release(finishCtx, job); err != nil {
			return true, err
		}
		log.Info("job interrupted by shutdown; returned to waiting")
		return true, nil
	}
	if procErr == nil {
		w.options.metrics.RecordJob(finishCtx, job.Kind, "completed")
		log.Debug("job completed")
		return true, w.queue.Complete(finishCtx, job, result)
	}

	retried, err := w.queue.Fail(finishCtx, job, procErr)
	if err != nil {
		return true, err
	}
	if retried {
		w.options.metrics.RecordJob(finishCtx, job.Kind, "retried")
		log.Warn("job failed; retry scheduled", zap.Error(procErr))
		return true, nil
	}
	w.options.metrics.RecordJob(finishCtx, job.Kind, "failed")
	log.Error("job failed permanently", zap.Error(procErr))
	return true, nil
}

func (w *Worker) run(ctx context.Context, job *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Unrecoverable(fmt.Errorf("panic: %v", r))
		}
	}()
	return w.handler.Process(ctx, job)
}
