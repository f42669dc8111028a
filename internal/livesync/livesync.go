// Package livesync mirrors a user's remote ledger document into memory.
//
// Sync is push-based: the store notifies on every document change and the
// controller replaces its local snapshot wholesale. Local state is never
// merged with a notification; the remote document is the truth and the
// previous snapshot is discarded.
package livesync

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/roamly/xpledger/internal/adapters/docstore"
	"github.com/roamly/xpledger/internal/domain/model"
	"github.com/roamly/xpledger/pkg/logger"
	"github.com/roamly/xpledger/pkg/metrics"
)

const updateBuffer = 64

// Ledger is the slice of the ledger store a controller needs.
type Ledger interface {
	SubscribeUser(ctx context.Context, userID string, fn func(model.UserXPState, bool)) (docstore.Subscription, error)
	InitUserState(ctx context.Context, userID string) error
}

// Controller keeps one user's ledger snapshot current.
type Controller struct {
	ledger Ledger
	userID string
	log    logger.Logger

	mu      sync.Mutex
	started bool
	sub     docstore.Subscription
	updates chan model.UserXPState

	current  atomic.Pointer[model.UserXPState]
	initOnce atomic.Bool
}

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates a sync controller for one user.
func New(ledger Ledger, userID string, opts ...Option) *Controller {
	c := &Controller{
		ledger: ledger,
		userID: userID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start subscribes to the user's ledger document. The first notification
// arrives before any awaited change: either the current document or its
// absence, in which case a zero-valued document is created exactly once.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}

	c.updates = make(chan model.UserXPState, updateBuffer)
	sub, err := c.ledger.SubscribeUser(ctx, c.userID, func(st model.UserXPState, exists bool) {
		c.onChange(ctx, st, exists)
	})
	if err != nil {
		return err
	}

	c.sub = sub
	c.started = true
	metrics.UpdateActiveSyncControllers(1)
	return nil
}

// Stop unsubscribes. The updates channel is closed; the last snapshot stays
// readable through Current.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}
	c.started = false
	c.sub.Close()
	c.sub = nil
	close(c.updates)
	metrics.UpdateActiveSyncControllers(-1)
}

// Current returns the latest synced snapshot, if any has arrived.
func (c *Controller) Current() (model.UserXPState, bool) {
	if p := c.current.Load(); p != nil {
		return *p, true
	}
	return model.UserXPState{}, false
}

// Updates returns the channel of replaced snapshots. Slow consumers lose
// intermediate snapshots, never the latest one.
func (c *Controller) Updates() <-chan model.UserXPState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updates
}

func (c *Controller) onChange(ctx context.Context, st model.UserXPState, exists bool) {
	metrics.RecordSyncNotification()

	if !exists {
		// New user on this device. Create the zero document once; the
		// write's own change notification delivers the snapshot.
		if c.initOnce.CompareAndSwap(false, true) {
			metrics.RecordSyncZeroInit()
			if err := c.ledger.InitUserState(ctx, c.userID); err != nil && c.log != nil {
				c.log.Error(ctx, "zero-state init failed",
					logger.String("userID", c.userID),
					logger.Error(err),
				)
			}
		}
		return
	}

	snapshot := st
	c.current.Store(&snapshot)
	metrics.RecordSyncReplacement()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	for {
		select {
		case c.updates <- snapshot:
			return
		default:
			// Full buffer: drop the oldest snapshot so the newest lands.
			select {
			case <-c.updates:
			default:
			}
		}
	}
}
