package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/observability"
)

// HandlerFunc processes one job. Returning an error retries the job unless it is Permanent.
type HandlerFunc func(ctx context.Context, job *Job) error

// ErrUnknownJobType is recorded on jobs no handler is registered for.
var ErrUnknownJobType = errors.New("no handler for job type")

// Worker drains queues with a pool of consumers.
type Worker struct {
	queue       Queue
	maxAttempts int
	pollTimeout time.Duration
	logger      *zap.Logger
	metrics     *observability.Metrics

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewWorker builds a worker over q.
func NewWorker(q Queue, cfg config.QueueConfig, logger *zap.Logger, metrics *observability.Metrics) *Worker {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &Worker{
		queue:       q,
		maxAttempts: maxAttempts,
		pollTimeout: pollTimeout,
		logger:      logger.Named("worker"),
		metrics:     metrics,
		handlers:    make(map[string]HandlerFunc),
	}
}

// Handle registers fn for jobType, replacing any previous handler.
func (w *Worker) Handle(jobType string, fn HandlerFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = fn
}

func (w *Worker) handler(jobType string) (HandlerFunc, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	fn, ok := w.handlers[jobType]
	return fn, ok
}

// Run consumes queueName with concurrency consumers until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, queueName string, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	w.logger.Info("consuming queue", zap.String("queue", queueName), zap.Int("concurrency", concurrency))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := i
		g.Go(func() error {
			return w.consume(gctx, queueName, consumer)
		})
	}
	return g.Wait()
}

func (w *Worker) consume(ctx context.Context, queueName string, consumer int) error {
	logger := w.logger.With(zap.String("queue", queueName), zap.Int("consumer", consumer))
	for {
		if ctx.Err() != nil {
			return nil
		}

		job, err := w.queue.Dequeue(ctx, queueName, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}

		w.Process(ctx, queueName, job)
	}
}

// Process runs one job and retries or parks it on failure.
func (w *Worker) Process(ctx context.Context, queueName string, job *Job) {
	job.Attempts++
	logger := w.logger.With(
		zap.String("queue", queueName),
		zap.String("job_id", job.ID),
		zap.String("job_type", job.Type),
		zap.Int("attempt", job.Attempts),
	)

	fn, ok := w.handler(job.Type)
	if !ok {
		logger.Error("unknown job type; parking")
		w.park(ctx, queueName, job, ErrUnknownJobType)
		return
	}

	err := w.safeRun(ctx, fn, job)
	if err == nil {
		w.metrics.RecordJob(job.Type, "ok")
		logger.Debug("job done")
		return
	}

	if IsPermanent(err) || job.Attempts >= w.maxAttempts {
		logger.Error("job failed; parking", zap.Error(err))
		w.park(ctx, queueName, job, err)
		return
	}

	logger.Warn("job failed; retrying", zap.Error(err))
	w.metrics.RecordJob(job.Type, "retry")
	job.LastError = err.Error()
	if err := w.queue.Enqueue(ctx, queueName, *job); err != nil {
		logger.Error("requeue failed", zap.Error(err))
	}
}

func (w *Worker) safeRun(ctx context.Context, fn HandlerFunc, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx, job)
}

func (w *Worker) park(ctx context.Context, queueName string, job *Job, cause error) {
	w.metrics.RecordJob(job.Type, "failed")
	job.LastError = cause.Error()
	if err := w.queue.Enqueue(ctx, FailedQueue(queueName), *job); err != nil {
		w.logger.Error("park failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}
