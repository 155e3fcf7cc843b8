package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tobi-adeyemi/invoice-pipeline/internal/entity"
)

// ErrQueueClosed is returned by Enqueue after Shutdown has begun.
var ErrQueueClosed = errors.New("queue is shut down")

// Job is the smallest useful unit: one document to push through the pipeline.
type Job struct {
	Ref         entity.DocumentRef
	SubmittedAt time.Time
	TraceID     string
}

// Processor runs one document to a terminal outcome. *pipeline.Service
// satisfies this.
type Processor interface {
	Run(ctx context.Context, ref entity.DocumentRef) (*entity.Outcome, error)
}

type Queue struct {
	proc    Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// mu guards closed and fences sends against close(ch): producers hold
	// the read side for the duration of a send, Shutdown takes the write
	// side before closing. Producers never serialize each other.
	mu     sync.RWMutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithJobTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueue(proc Processor, logger *slog.Logger, opts ...Option) *Queue {
	q := &Queue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 5 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					outcome, err := q.proc.Run(ctx, job.Ref)
					cancel()

					if err != nil {
						q.logger.Error("processing failed", "worker_id", workerID, "document_id", job.Ref.ID, "error", err)
					} else {
						q.logger.Info("document processed", "worker_id", workerID,
							"document_id", job.Ref.ID, "kind", outcome.Kind, "attempts", len(outcome.Attempts))
					}
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *Queue) Enqueue(_ context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "document_id", job.Ref.ID)
		return ErrQueueClosed
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued document for processing", "document_id", job.Ref.ID)
	default:
		q.logger.Warn("queue full, applying backpressure", "document_id", job.Ref.ID)
		q.ch <- job
	}
	return nil
}

// Shutdown closes the queue and waits for in-flight jobs, bounded by ctx.
func (q *Queue) Shutdown(ctx context.Context) {
	// the write lock waits out any in-flight Enqueue before the close
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
