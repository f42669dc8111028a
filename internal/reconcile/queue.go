// Package reconcile repairs leaderboard projections that drifted from the
// ledger: when an entry upsert fails after a ledger commit, the award path
// queues a repair job here instead of surfacing the failure. Jobs recompute
// the projection from the authoritative ledger state; drift is self-healing
// and never dropped silently.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/roamly/xpledger/pkg/metrics"
)

const defaultQueueCapacity = 4096

// Job identifies a projection to recompute from the ledger.
type Job struct {
	UserID    string
	PeriodKey string
	Attempts  int
	QueuedAt  time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue for repair
// jobs.
type Queue interface {
	// Enqueue adds a job. Returns false when the queue is full or closed;
	// the caller decides whether that is tolerable.
	Enqueue(ctx context.Context, j Job) bool

	// Dequeue returns the channel workers consume from. Closed when the
	// queue closes.
	Dequeue() <-chan Job

	// Len returns the number of queued jobs.
	Len() int

	// Close stops accepting jobs and closes the dequeue channel.
	Close() error
}

// InMemoryQueue implements Queue over a buffered channel.
type InMemoryQueue struct {
	jobs   chan Job
	mu     sync.RWMutex
	closed bool
}

// QueueOption applies a configuration option to the queue.
type QueueOption func(*queueConfig)

type queueConfig struct {
	capacity int
}

// WithCapacity bounds the queue.
func WithCapacity(n int) QueueOption {
	return func(c *queueConfig) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// NewInMemoryQueue creates a bounded in-memory repair queue.
func NewInMemoryQueue(opts ...QueueOption) *InMemoryQueue {
	cfg := queueConfig{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &InMemoryQueue{jobs: make(chan Job, cfg.capacity)}
}

// Enqueue adds a repair job without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}
	if j.QueuedAt.IsZero() {
		j.QueuedAt = time.Now()
	}
	select {
	case q.jobs <- j:
		metrics.UpdateReconcileQueueSize(len(q.jobs))
		return true
	default:
		metrics.RecordReconcileJob("queue_full")
		return false
	}
}

// Dequeue returns the channel workers consume from.
func (q *InMemoryQueue) Dequeue() <-chan Job {
	return q.jobs
}

// Len returns the number of queued jobs.
func (q *InMemoryQueue) Len() int {
	return len(q.jobs)
}

// Close stops accepting jobs and closes the dequeue channel.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.jobs)
	return nil
}
