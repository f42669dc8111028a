package award

import (
	"time"

	"github.com/roamly/xpledger/pkg/logger"
)

const (
	defaultConflictRetries  = 5
	defaultTransientRetries = 3
	defaultRetryBackoff     = 50 * time.Millisecond
)

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// WithDriftQueue routes failed projection writes to a repair queue.
func WithDriftQueue(q DriftQueue) Option {
	return func(c *Coordinator) {
		c.drift = q
	}
}

// WithNotifier routes award signals to a subscriber.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) {
		c.notifier = n
	}
}

// WithClock replaces the time source.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithIDGenerator replaces the event id source.
func WithIDGenerator(gen func() string) Option {
	return func(c *Coordinator) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// WithConflictRetries bounds how many revision conflicts an award survives.
func WithConflictRetries(n int) Option {
	return func(c *Coordinator) {
		if n >= 0 {
			c.maxConflictRetries = n
		}
	}
}

// WithTransientRetries bounds retries of store errors other than conflicts.
func WithTransientRetries(n int) Option {
	return func(c *Coordinator) {
		if n >= 0 {
			c.maxTransientRetries = n
		}
	}
}

// WithRetryBackoff sets the pause between transient retries.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.retryBackoff = d
		}
	}
}
