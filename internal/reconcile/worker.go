package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/roamly/xpledger/internal/domain/model"
	"github.com/roamly/xpledger/pkg/logger"
	"github.com/roamly/xpledger/pkg/metrics"
)

const (
	defaultWorkers     = 2
	defaultMaxAttempts = 5
	defaultRetryDelay  = 250 * time.Millisecond
)

// LedgerSource is the slice of the ledger a repair needs: the authoritative
// state to project from and the projection write itself.
type LedgerSource interface {
	UserState(ctx context.Context, userID string) (model.UserXPState, int64, error)
	UpsertEntry(ctx context.Context, e model.LeaderboardEntry) error
}

// Pool consumes repair jobs and rewrites drifted projections from the
// ledger. Repairs are idempotent; replaying a job that already converged
// rewrites the same document.
type Pool struct {
	queue  Queue
	ledger LedgerSource
	log    logger.Logger

	workers     int
	maxAttempts int
	retryDelay  time.Duration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// PoolOption applies a configuration option to the pool.
type PoolOption func(*Pool)

// WithWorkers sets the number of concurrent repair workers.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithMaxAttempts bounds how often a failing job is retried before it is
// abandoned.
func WithMaxAttempts(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the pause before a failed job is requeued.
func WithRetryDelay(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.retryDelay = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) PoolOption {
	return func(p *Pool) {
		if log != nil {
			p.log = log
		}
	}
}

// NewPool creates a repair worker pool over a queue and a ledger.
func NewPool(queue Queue, ledger LedgerSource, opts ...PoolOption) *Pool {
	p := &Pool{
		queue:       queue,
		ledger:      ledger,
		workers:     defaultWorkers,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. The pool runs until Stop or until the queue
// closes.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
	return nil
}

// Stop cancels the workers and waits for in-flight repairs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.queue.Dequeue():
			if !ok {
				return
			}
			metrics.UpdateReconcileQueueSize(p.queue.Len())
			p.repair(ctx, job)
		}
	}
}

func (p *Pool) repair(ctx context.Context, job Job) {
	st, _, err := p.ledger.UserState(ctx, job.UserID)
	if err == nil {
		err = p.ledger.UpsertEntry(ctx, model.EntryFromState(st, job.PeriodKey))
	}
	if err == nil {
		metrics.RecordReconcileJob("repaired")
		if p.log != nil {
			p.log.Debug(ctx, "projection repaired",
				logger.String("userID", job.UserID),
				logger.String("periodKey", job.PeriodKey),
				logger.Int("attempts", job.Attempts+1),
			)
		}
		return
	}

	job.Attempts++
	if job.Attempts >= p.maxAttempts {
		metrics.RecordReconcileJob("abandoned")
		if p.log != nil {
			p.log.Error(ctx, "projection repair abandoned",
				logger.String("userID", job.UserID),
				logger.String("periodKey", job.PeriodKey),
				logger.Int("attempts", job.Attempts),
				logger.Error(err),
			)
		}
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(p.retryDelay):
	}
	if !p.queue.Enqueue(ctx, job) {
		metrics.RecordReconcileJob("abandoned")
		if p.log != nil {
			p.log.Error(ctx, "projection repair dropped on requeue",
				logger.String("userID", job.UserID),
				logger.String("periodKey", job.PeriodKey),
				logger.Error(err),
			)
		}
		return
	}
	metrics.RecordReconcileJob("requeued")
}
