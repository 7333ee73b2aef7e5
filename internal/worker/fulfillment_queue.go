// Package worker runs carrier dispatch off the request path.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matchaleaf/storefront/internal/logging"
	"github.com/matchaleaf/storefront/internal/observability"
)

var (
	ErrQueueFull   = errors.New("fulfillment queue is full")
	ErrQueueClosed = errors.New("fulfillment queue is closed")
)

const (
	defaultWorkers         = 2
	defaultQueueSize       = 256
	defaultMaxAttempts     = 5
	defaultBackoff         = 2 * time.Second
	defaultMaxBackoff      = 5 * time.Minute
	defaultDispatchTimeout = 30 * time.Second
)

// Dispatcher is satisfied by *services.FulfillmentService.
type Dispatcher interface {
	DispatchOrder(ctx context.Context, orderID uuid.UUID) error
	Retryable(err error) bool
}

type Options struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	// Backoff is the delay before the first retry; it doubles per attempt
	// up to MaxBackoff.
	Backoff         time.Duration
	MaxBackoff      time.Duration
	DispatchTimeout time.Duration
}

type job struct {
	orderID uuid.UUID
	attempt int
}

// FulfillmentQueue is a bounded in-process queue drained by a fixed set of
// workers. Retryable dispatch errors are re-queued with exponential backoff.
type FulfillmentQueue struct {
	dispatcher Dispatcher
	opts       Options
	metrics    *observability.Metrics
	logger     *slog.Logger

	mu          sync.RWMutex
	jobs        chan job
	closed      bool
	started     bool
	cancel      context.CancelFunc
	group       *errgroup.Group
	retryCtx    context.Context
	stopRetries context.CancelFunc
	retries     sync.WaitGroup
}

func NewFulfillmentQueue(dispatcher Dispatcher, opts Options, metrics *observability.Metrics, logger *slog.Logger) *FulfillmentQueue {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff < opts.Backoff {
		opts.MaxBackoff = max(defaultMaxBackoff, opts.Backoff)
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = defaultDispatchTimeout
	}

	return &FulfillmentQueue{
		dispatcher: dispatcher,
		opts:       opts,
		metrics:    metrics,
		logger:     logging.FromContext(context.Background(), logger).With("component", "fulfillment_queue"),
		jobs:       make(chan job, opts.QueueSize),
	}
}

// Start launches the workers. Calling Start twice is a no-op.
func (q *FulfillmentQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.retryCtx, q.stopRetries = context.WithCancel(runCtx)
	group, groupCtx := errgroup.WithContext(runCtx)
	q.group = group

	for i := 0; i < q.opts.Workers; i++ {
		worker := i + 1
		group.Go(func() error {
			q.work(groupCtx, worker)
			return nil
		})
	}
	q.logger.Info("fulfillment workers started", "workers", q.opts.Workers, "queue_size", q.opts.QueueSize)
}

// Enqueue never blocks.
func (q *FulfillmentQueue) Enqueue(orderID uuid.UUID) error {
	return q.push(job{orderID: orderID, attempt: 1})
}

func (q *FulfillmentQueue) push(j job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- j:
		q.metrics.FulfillmentQueueDepth(len(q.jobs))
		return nil
	default:
		return ErrQueueFull
	}
}

// Len reports how many orders are waiting for a worker.
func (q *FulfillmentQueue) Len() int {
	return len(q.jobs)
}

// Stop refuses new work and lets the workers drain what is queued. When ctx
// ends first, in-flight dispatches are cancelled. Pending retries are dropped.
func (q *FulfillmentQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	group, cancel := q.group, q.cancel
	q.mu.Unlock()

	if group == nil {
		return nil
	}
	q.stopRetries()

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		q.retries.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		q.logger.Info("fulfillment workers stopped")
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		q.logger.Warn("fulfillment workers stopped before the queue drained", "dropped", len(q.jobs))
		return ctx.Err()
	}
}

func (q *FulfillmentQueue) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q.jobs:
			if !ok {
				return
			}
			q.metrics.FulfillmentQueueDepth(len(q.jobs))
			q.handle(ctx, worker, j)
		}
	}
}

func (q *FulfillmentQueue) handle(ctx context.Context, worker int, j job) {
	logger := q.logger.With("order_id", j.orderID, "attempt", j.attempt, "worker", worker)
	dispatchCtx, cancel := context.WithTimeout(logging.WithLogger(ctx, logger), q.opts.DispatchTimeout)
	defer cancel()

	err := q.dispatcher.DispatchOrder(dispatchCtx, j.orderID)
	if err == nil {
		return
	}
	if !q.dispatcher.Retryable(err) {
		logger.Warn("fulfillment failed; not retrying", "error", err)
		return
	}
	if j.attempt >= q.opts.MaxAttempts {
		logger.Error("fulfillment failed after final attempt", "error", err)
		return
	}

	delay := q.backoff(j.attempt)
	logger.Warn("fulfillment failed; retry scheduled", "error", err, "retry_in", delay)
	q.scheduleRetry(job{orderID: j.orderID, attempt: j.attempt + 1}, delay)
}

func (q *FulfillmentQueue) scheduleRetry(j job, delay time.Duration) {
	ctx := q.retryCtx
	q.retries.Add(1)
	go func() {
		defer q.retries.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := q.push(j); err != nil {
			q.logger.Warn("dropping fulfillment retry", "order_id", j.orderID, "attempt", j.attempt, "error", err)
		}
	}()
}

// backoff for the retry that follows attempt.
func (q *FulfillmentQueue) backoff(attempt int) time.Duration {
	delay := q.opts.Backoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= q.opts.MaxBackoff {
			return q.opts.MaxBackoff
		}
	}
	return delay
}
