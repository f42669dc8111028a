// Package app assembles the engine: ledger store, award coordinator,
// query-time ranking, projection reconciliation and per-user live sync
// behind one service facade.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roamly/xpledger/internal/adapters/docstore"
	"github.com/roamly/xpledger/internal/adapters/docstore/memstore"
	"github.com/roamly/xpledger/internal/award"
	"github.com/roamly/xpledger/internal/domain/dedupe"
	"github.com/roamly/xpledger/internal/domain/model"
	"github.com/roamly/xpledger/internal/domain/window"
	"github.com/roamly/xpledger/internal/ledger"
	"github.com/roamly/xpledger/internal/livesync"
	"github.com/roamly/xpledger/internal/rank"
	"github.com/roamly/xpledger/internal/reconcile"
	"github.com/roamly/xpledger/pkg/logger"
)

// Service is the engine facade consumed by transports.
type Service struct {
	log   logger.Logger
	docs  docstore.Store
	store *ledger.Store

	deduper dedupe.Deduper
	coord   *award.Coordinator
	ranker  *rank.Ranker
	queue   *reconcile.InMemoryQueue
	pool    *reconcile.Pool
	signals *broadcaster

	clock               func() time.Time
	maxLeaderboardLimit int
	ownsDocs            bool

	mu      sync.Mutex
	started bool
	syncs   map[string]*livesync.Controller
}

// New assembles a Service with configuration options.
func New(opts ...Option) *Service {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Service{
		log:                 cfg.log,
		docs:                cfg.docs,
		clock:               cfg.clock,
		maxLeaderboardLimit: cfg.maxLeaderboardLimit,
		signals:             newBroadcaster(),
		syncs:               make(map[string]*livesync.Controller),
	}
	if s.docs == nil {
		s.docs = memstore.New()
		s.ownsDocs = true
	}

	s.store = ledger.New(s.docs, ledger.WithLogger(s.log))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.dedupeSize))
	s.ranker = rank.New(s.store)
	s.queue = reconcile.NewInMemoryQueue(reconcile.WithCapacity(cfg.reconcileQueueSize))
	s.pool = reconcile.NewPool(s.queue, s.store,
		reconcile.WithWorkers(cfg.reconcileWorkers),
		reconcile.WithMaxAttempts(cfg.reconcileMaxAttempts),
		reconcile.WithLogger(s.log),
	)
	s.coord = award.New(s.store, s.deduper,
		award.WithLogger(s.log),
		award.WithDriftQueue(s.queue),
		award.WithNotifier(s.signals),
		award.WithClock(s.clock),
		award.WithConflictRetries(cfg.conflictRetries),
		award.WithTransientRetries(cfg.transientRetries),
		award.WithRetryBackoff(cfg.retryBackoff),
	)
	return s
}

// Start launches the background reconciliation workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if err := s.pool.Start(ctx); err != nil {
		return err
	}
	s.started = true
	if s.log != nil {
		s.log.Info(ctx, "engine started")
	}
	return nil
}

// Stop tears the engine down: sync controllers, workers, signal
// subscribers and finally the document store.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	syncs := s.syncs
	s.syncs = make(map[string]*livesync.Controller)
	s.mu.Unlock()

	for _, ctrl := range syncs {
		ctrl.Stop()
	}
	s.pool.Stop()
	s.queue.Close()
	s.signals.closeAll()

	// An injected store may be shared with other services; only a store
	// this service created is closed here.
	if s.ownsDocs {
		s.docs.Close()
	}
}

// AwardXP records one XP award and returns the committed totals.
func (s *Service) AwardXP(ctx context.Context, req award.Request) (award.Result, error) {
	return s.coord.Award(ctx, req)
}

// CurrentState reads a user's ledger state. The rolling weekly total is
// recomputed against the read instant, not the last award.
func (s *Service) CurrentState(ctx context.Context, userID string) (model.UserXPState, error) {
	st, _, err := s.store.UserState(ctx, userID)
	if err != nil {
		return model.UserXPState{}, err
	}
	st.WeeklyXP = window.WeeklySum(st.History, s.clock())
	return st, nil
}

// GlobalLeaderboard ranks a period's projections. An empty period key means
// the current month; limit 0 means the configured maximum.
func (s *Service) GlobalLeaderboard(ctx context.Context, periodKey string, limit int) ([]model.LeaderboardEntry, error) {
	if periodKey == "" {
		periodKey = window.PeriodKey(s.clock())
	}
	if limit <= 0 || limit > s.maxLeaderboardLimit {
		limit = s.maxLeaderboardLimit
	}
	return s.ranker.Global(ctx, periodKey, limit)
}

// FriendsLeaderboard ranks a period within a caller-supplied id set.
func (s *Service) FriendsLeaderboard(ctx context.Context, periodKey string, friendIDs []string) ([]model.LeaderboardEntry, error) {
	if periodKey == "" {
		periodKey = window.PeriodKey(s.clock())
	}
	return s.ranker.Friends(ctx, periodKey, friendIDs)
}

// StartSync begins live-syncing a user's ledger document and returns the
// controller. Starting an already-synced user returns the running controller.
func (s *Service) StartSync(ctx context.Context, userID string) (*livesync.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil, ErrNotStarted
	}
	if ctrl, ok := s.syncs[userID]; ok {
		return ctrl, nil
	}

	ctrl := livesync.New(s.store, userID, livesync.WithLogger(s.log))
	if err := ctrl.Start(ctx); err != nil {
		return nil, fmt.Errorf("start sync %s: %w", userID, err)
	}
	s.syncs[userID] = ctrl
	return ctrl, nil
}

// StopSync stops a user's live sync, if running.
func (s *Service) StopSync(userID string) {
	s.mu.Lock()
	ctrl, ok := s.syncs[userID]
	delete(s.syncs, userID)
	s.mu.Unlock()

	if ok {
		ctrl.Stop()
	}
}

// Signals subscribes to award signals. The cancel func releases the
// subscription.
func (s *Service) Signals() (<-chan model.Signal, func()) {
	return s.signals.subscribe()
}

// Stats reports engine gauges for the introspection endpoint.
func (s *Service) Stats(ctx context.Context) map[string]any {
	s.mu.Lock()
	activeSyncs := len(s.syncs)
	s.mu.Unlock()

	return map[string]any{
		"dedupe_receipts":      s.deduper.Size(),
		"reconcile_queue_size": s.queue.Len(),
		"active_syncs":         activeSyncs,
		"current_period":       window.PeriodKey(s.clock()),
	}
}
