package app

import (
	"time"

	"github.com/roamly/xpledger/internal/adapters/docstore"
	"github.com/roamly/xpledger/pkg/logger"
)

const (
	defaultDedupeSize           = 50000
	defaultReconcileQueueSize   = 4096
	defaultReconcileWorkers     = 2
	defaultReconcileMaxAttempts = 5
	defaultMaxLeaderboardLimit  = 100
	defaultConflictRetries      = 5
	defaultTransientRetries     = 3
	defaultRetryBackoff         = 50 * time.Millisecond
)

type config struct {
	log  logger.Logger
	docs docstore.Store

	clock                func() time.Time
	dedupeSize           int
	reconcileQueueSize   int
	reconcileWorkers     int
	reconcileMaxAttempts int
	maxLeaderboardLimit  int
	conflictRetries      int
	transientRetries     int
	retryBackoff         time.Duration
}

func defaultConfig() config {
	return config{
		clock:                time.Now,
		dedupeSize:           defaultDedupeSize,
		reconcileQueueSize:   defaultReconcileQueueSize,
		reconcileWorkers:     defaultReconcileWorkers,
		reconcileMaxAttempts: defaultReconcileMaxAttempts,
		maxLeaderboardLimit:  defaultMaxLeaderboardLimit,
		conflictRetries:      defaultConflictRetries,
		transientRetries:     defaultTransientRetries,
		retryBackoff:         defaultRetryBackoff,
	}
}

// Option applies a configuration option to the Service.
type Option func(*config)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// WithDocStore sets the backing document store. Defaults to an in-memory
// store.
func WithDocStore(docs docstore.Store) Option {
	return func(c *config) {
		if docs != nil {
			c.docs = docs
		}
	}
}

// WithClock replaces the time source.
func WithClock(clock func() time.Time) Option {
	return func(c *config) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithDedupeSize bounds the idempotency receipt cache.
func WithDedupeSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.dedupeSize = n
		}
	}
}

// WithReconcileQueueSize bounds the projection repair queue.
func WithReconcileQueueSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.reconcileQueueSize = n
		}
	}
}

// WithReconcileWorkers sets the repair worker count.
func WithReconcileWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.reconcileWorkers = n
		}
	}
}

// WithReconcileMaxAttempts bounds retries per repair job.
func WithReconcileMaxAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.reconcileMaxAttempts = n
		}
	}
}

// WithMaxLeaderboardLimit caps leaderboard page sizes.
func WithMaxLeaderboardLimit(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxLeaderboardLimit = n
		}
	}
}

// WithConflictRetries bounds award revision-conflict retries.
func WithConflictRetries(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.conflictRetries = n
		}
	}
}

// WithTransientRetries bounds award transient-error retries.
func WithTransientRetries(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.transientRetries = n
		}
	}
}

// WithRetryBackoff sets the award retry pause.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.retryBackoff = d
		}
	}
}
