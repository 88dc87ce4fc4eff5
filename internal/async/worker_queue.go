package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/labreports/internal/common"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
	defaultTimeout   = 5 * time.Minute
)

// WorkerQueue feeds jobs to a fixed pool of workers. Every job runs under its
// own timeout with the thread id on the context.
type WorkerQueue struct {
	handle  Handler
	logger  *slog.Logger
	workers int
	timeout time.Duration
	jobs    chan Job

	// mu guards closed; senders hold it shared so Shutdown never closes
	// jobs under an in-flight send.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ Queue = (*WorkerQueue)(nil)

type Option func(*WorkerQueue)

func WithWorkers(n int) Option {
	return func(q *WorkerQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *WorkerQueue) {
		if n > 0 {
			q.jobs = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *WorkerQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// NewWorkerQueue starts the workers immediately.
func NewWorkerQueue(handle Handler, logger *slog.Logger, opts ...Option) *WorkerQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &WorkerQueue{
		handle:  handle,
		logger:  logger,
		workers: defaultWorkers,
		timeout: defaultTimeout,
		jobs:    make(chan Job, defaultQueueSize),
	}
	for _, o := range opts {
		o(q)
	}
	q.wg.Add(q.workers)
	for id := 1; id <= q.workers; id++ {
		go q.work(id)
	}
	return q
}

func (q *WorkerQueue) work(id int) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.run(id, job)
	}
}

func (q *WorkerQueue) run(worker int, job Job) {
	ctx, cancel := context.WithTimeout(common.WithThreadID(context.Background(), job.ThreadID), q.timeout)
	defer cancel()

	t0 := time.Now()
	log := q.logger.With("worker", worker, "thread_id", job.ThreadID)
	if err := q.handle(ctx, job); err != nil {
		log.Error("queue.job.failed", "path", job.Path, "err", err, "elapsed_ms", time.Since(t0).Milliseconds())
		return
	}
	log.Info("queue.job.done",
		"queued_ms", t0.Sub(job.SubmittedAt).Milliseconds(),
		"elapsed_ms", time.Since(t0).Milliseconds(),
	)
}

// Enqueue blocks while the buffer is full, until ctx is done.
func (q *WorkerQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		q.logger.Warn("queue.enqueue.abandoned", "thread_id", job.ThreadID, "err", ctx.Err())
		return ctx.Err()
	}
}

// Shutdown refuses new jobs, then waits for the queued ones or for ctx.
func (q *WorkerQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		q.logger.Info("queue.shutdown.drained")
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted", "err", ctx.Err())
	}
}
