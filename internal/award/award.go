// Package award runs the XP award path: append an event to the user's
// ledger under optimistic concurrency, then project the result into the
// period leaderboard. The ledger write is the commit point; everything after
// it is best-effort and repaired asynchronously when it fails.
package award

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roamly/xpledger/internal/adapters/docstore"
	"github.com/roamly/xpledger/internal/domain/dedupe"
	"github.com/roamly/xpledger/internal/domain/level"
	"github.com/roamly/xpledger/internal/domain/model"
	"github.com/roamly/xpledger/internal/domain/window"
	"github.com/roamly/xpledger/internal/reconcile"
	"github.com/roamly/xpledger/pkg/logger"
	"github.com/roamly/xpledger/pkg/metrics"
)

// Ledger is the slice of the ledger store the award path needs.
type Ledger interface {
	UserState(ctx context.Context, userID string) (model.UserXPState, int64, error)
	PutUserState(ctx context.Context, st model.UserXPState, expected int64) error
	UpsertEntry(ctx context.Context, e model.LeaderboardEntry) error
}

// DriftQueue accepts repair jobs for projections that failed to update.
type DriftQueue interface {
	Enqueue(ctx context.Context, j reconcile.Job) bool
}

// Notifier receives domain signals emitted by committed and failed awards.
type Notifier interface {
	Notify(s model.Signal)
}

// Request describes one XP award.
type Request struct {
	UserID     string
	Amount     int64
	Kind       string
	SubjectRef string
	Details    string

	// EventID is the optional idempotency key. Retrying with the same id
	// returns the original receipt instead of granting twice. Empty means
	// a fresh id is generated and the award is never deduplicated.
	EventID string
}

// Result is the outcome of a committed (or deduplicated) award.
type Result struct {
	EventID   string
	NewXP     int64
	NewLevel  int
	LeveledUp bool
	Duplicate bool
}

// Coordinator serializes award semantics over a ledger.
type Coordinator struct {
	ledger   Ledger
	dedupe   dedupe.Deduper
	drift    DriftQueue
	notifier Notifier
	log      logger.Logger

	clock func() time.Time
	newID func() string

	maxConflictRetries  int
	maxTransientRetries int
	retryBackoff        time.Duration
}

// New creates a Coordinator with configuration options.
func New(ledger Ledger, deduper dedupe.Deduper, opts ...Option) *Coordinator {
	c := &Coordinator{
		ledger:              ledger,
		dedupe:              deduper,
		clock:               time.Now,
		newID:               uuid.NewString,
		maxConflictRetries:  defaultConflictRetries,
		maxTransientRetries: defaultTransientRetries,
		retryBackoff:        defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Award appends an XP event and returns the committed totals. The award is
// atomic: either the event is in the ledger with every derived field updated
// in the same write, or nothing changed.
func (c *Coordinator) Award(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	if req.Amount <= 0 {
		metrics.RecordAwardRejected("non_positive_amount")
		return Result{}, fmt.Errorf("award %d xp to %s: %w", req.Amount, req.UserID, ErrNonPositiveAmount)
	}
	if req.UserID == "" {
		metrics.RecordAwardRejected("missing_user")
		return Result{}, fmt.Errorf("award: %w", ErrMissingUser)
	}

	eventID := req.EventID
	if eventID == "" {
		eventID = c.newID()
	}

	switch c.dedupe.Begin(ctx, eventID) {
	case dedupe.StatusCommitted:
		metrics.RecordDuplicateAward()
		if r, ok := c.dedupe.Lookup(ctx, eventID); ok {
			return Result{
				EventID:   r.EventID,
				NewXP:     r.NewXP,
				NewLevel:  r.NewLevel,
				LeveledUp: r.LeveledUp,
				Duplicate: true,
			}, nil
		}
		// Receipt evicted between Begin and Lookup. The award is still
		// recorded, so report the duplicate without totals.
		return Result{EventID: eventID, Duplicate: true}, nil
	case dedupe.StatusInFlight:
		metrics.RecordDuplicateAward()
		return Result{EventID: eventID, Duplicate: true}, fmt.Errorf("award %s: %w", eventID, ErrInFlight)
	}

	res, st, err := c.commit(ctx, req, eventID)
	if err != nil {
		c.dedupe.Abort(ctx, eventID)
		c.notify(model.AwardFailed{UserID: req.UserID, EventID: eventID, Err: err})
		return Result{}, err
	}

	// The ledger write is durable. Cancellation no longer applies to the
	// follow-up steps; abandoning them would leave the receipt and the
	// projection behind.
	pctx := context.WithoutCancel(ctx)

	c.dedupe.Commit(pctx, eventID, dedupe.Receipt{
		EventID:   res.EventID,
		UserID:    req.UserID,
		NewXP:     res.NewXP,
		NewLevel:  res.NewLevel,
		LeveledUp: res.LeveledUp,
	})

	metrics.RecordAward(req.Amount)
	if res.LeveledUp {
		metrics.RecordLevelUp()
	}
	metrics.RecordAwardLatency(float64(time.Since(start).Milliseconds()))

	c.project(pctx, st)

	c.notify(model.XPGained{UserID: req.UserID, Amount: req.Amount, Kind: req.Kind})
	if res.LeveledUp {
		c.notify(model.LevelUp{UserID: req.UserID, NewLevel: res.NewLevel})
	}
	return res, nil
}

// commit runs the optimistic-concurrency loop: read fresh state, apply the
// event, write conditionally, and start over on a revision mismatch.
func (c *Coordinator) commit(ctx context.Context, req Request, eventID string) (Result, model.UserXPState, error) {
	transient := 0

	for conflicts := 0; conflicts <= c.maxConflictRetries; {
		st, rev, err := c.ledger.UserState(ctx, req.UserID)
		if err != nil {
			if transient++; transient > c.maxTransientRetries {
				return Result{}, model.UserXPState{}, fmt.Errorf("award %s: %w", eventID, err)
			}
			if err := c.backoff(ctx); err != nil {
				return Result{}, model.UserXPState{}, err
			}
			continue
		}

		now := c.clock()
		next, res := apply(st, req, eventID, now)

		if err := ctx.Err(); err != nil {
			return Result{}, model.UserXPState{}, fmt.Errorf("award %s: %w", eventID, err)
		}

		err = c.ledger.PutUserState(ctx, next, rev)
		switch {
		case err == nil:
			return res, next, nil
		case err == docstore.ErrRevisionMismatch:
			metrics.RecordAwardConflict()
			metrics.RecordAwardRetry()
			conflicts++
			if c.log != nil {
				c.log.Debug(ctx, "award lost a write race, retrying with fresh state",
					logger.String("userID", req.UserID),
					logger.String("eventID", eventID),
					logger.Int("conflicts", conflicts),
				)
			}
		default:
			if transient++; transient > c.maxTransientRetries {
				return Result{}, model.UserXPState{}, fmt.Errorf("award %s: %w", eventID, err)
			}
			metrics.RecordAwardRetry()
			if err := c.backoff(ctx); err != nil {
				return Result{}, model.UserXPState{}, err
			}
		}
	}

	metrics.RecordAwardRejected("conflict_retries_exhausted")
	return Result{}, model.UserXPState{}, fmt.Errorf("award %s after %d conflicts: %w", eventID, c.maxConflictRetries, ErrRetriesExhausted)
}

// apply computes the successor state for one event. Pure; safe to recompute
// on every conflict retry.
func apply(st model.UserXPState, req Request, eventID string, now time.Time) (model.UserXPState, Result) {
	ev := model.XPEvent{
		ID:         eventID,
		Kind:       req.Kind,
		Amount:     req.Amount,
		Timestamp:  now,
		SubjectRef: req.SubjectRef,
		Details:    req.Details,
	}

	history := make([]model.XPEvent, 0, len(st.History)+1)
	history = append(history, ev)
	history = append(history, st.History...)

	next := st
	next.CurrentXP = st.CurrentXP + req.Amount
	next.Level = level.Level(next.CurrentXP)
	next.History = history
	next.WeeklyXP = window.WeeklySum(history, now)
	next.LastUpdate = now

	return next, Result{
		EventID:   eventID,
		NewXP:     next.CurrentXP,
		NewLevel:  next.Level,
		LeveledUp: next.Level > st.Level,
	}
}

// project upserts the period leaderboard document. Failure is drift, not an
// award failure: the ledger already committed, so the entry is queued for
// reconciliation and the caller never sees the error.
func (c *Coordinator) project(ctx context.Context, st model.UserXPState) {
	periodKey := window.PeriodKey(st.LastUpdate)
	err := c.ledger.UpsertEntry(ctx, model.EntryFromState(st, periodKey))
	if err == nil {
		return
	}
	if c.log != nil {
		c.log.Warn(ctx, "leaderboard projection drifted",
			logger.String("userID", st.UserID),
			logger.String("periodKey", periodKey),
			logger.Error(err),
		)
	}

	metrics.RecordProjectionDrift()
	if c.drift != nil {
		c.drift.Enqueue(ctx, reconcile.Job{UserID: st.UserID, PeriodKey: periodKey})
	}
}

func (c *Coordinator) notify(s model.Signal) {
	if c.notifier != nil {
		c.notifier.Notify(s)
	}
}

func (c *Coordinator) backoff(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.retryBackoff):
		return nil
	}
}
