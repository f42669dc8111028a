// Package ledger translates award and read operations into remote document
// reads and writes: one ledger document per user, one leaderboard document
// per user per period. The user document is the source of truth; leaderboard
// documents are eventually-consistent projections of it.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/roamly/xpledger/internal/adapters/docstore"
	"github.com/roamly/xpledger/internal/domain/level"
	"github.com/roamly/xpledger/internal/domain/model"
	"github.com/roamly/xpledger/pkg/logger"
	"github.com/roamly/xpledger/pkg/metrics"
)

// Collections and path construction for the consumed store.
const (
	UsersCollection       = "users"
	LeaderboardCollection = "leaderboard"
)

// UserPath returns the ledger document path for a user.
func UserPath(userID string) string {
	return UsersCollection + "/" + userID
}

// EntryPath returns the leaderboard document path for a user and period.
func EntryPath(periodKey, userID string) string {
	return LeaderboardCollection + "/" + periodKey + "_" + userID
}

// Store adapts the document store to ledger-shaped operations.
type Store struct {
	docs docstore.Store
	log  logger.Logger
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a ledger store over a document store.
func New(docs docstore.Store, opts ...Option) *Store {
	s := &Store{docs: docs}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UserState reads the ledger document for a user. An absent document yields
// a zero-valued state with revision 0, ready for a create-only write. A
// persisted level that disagrees with the XP total is repaired here; the
// stored value is never trusted.
func (s *Store) UserState(ctx context.Context, userID string) (model.UserXPState, int64, error) {
	doc, err := s.docs.Get(ctx, UserPath(userID))
	if err == docstore.ErrNotFound {
		return zeroState(userID), 0, nil
	}
	if err != nil {
		return model.UserXPState{}, 0, fmt.Errorf("read ledger %s: %w", userID, err)
	}

	st, repaired := decodeUserState(userID, doc.Fields)
	if repaired {
		metrics.RecordCorruptionRepair()
		if s.log != nil {
			s.log.Warn(ctx, "repaired corrupt level on read",
				logger.String("userID", userID),
				logger.Int64("currentXP", st.CurrentXP),
				logger.Int("level", st.Level),
			)
		}
	}
	return st, doc.Revision, nil
}

// PutUserState writes the full ledger document as a conditional replace.
// expected 0 creates the document; a concurrent writer surfaces as
// docstore.ErrRevisionMismatch.
func (s *Store) PutUserState(ctx context.Context, st model.UserXPState, expected int64) error {
	if err := s.docs.SetWithRevision(ctx, UserPath(st.UserID), encodeUserState(st), expected); err != nil {
		if err == docstore.ErrRevisionMismatch {
			return err
		}
		return fmt.Errorf("write ledger %s: %w", st.UserID, err)
	}
	return nil
}

// InitUserState creates a zero-valued ledger document if none exists.
// Losing the create race to another device means the document exists, which
// is the desired outcome, so a mismatch is not an error.
func (s *Store) InitUserState(ctx context.Context, userID string) error {
	err := s.PutUserState(ctx, zeroState(userID), 0)
	if err == docstore.ErrRevisionMismatch {
		return nil
	}
	return err
}

// UpsertEntry writes a leaderboard projection document. Unconditional:
// projections are last-writer-wins and repaired by reconciliation.
func (s *Store) UpsertEntry(ctx context.Context, e model.LeaderboardEntry) error {
	if err := s.docs.Set(ctx, EntryPath(e.PeriodKey, e.UserID), encodeEntry(e)); err != nil {
		return fmt.Errorf("write leaderboard %s/%s: %w", e.PeriodKey, e.UserID, err)
	}
	return nil
}

// EntriesForPeriod fetches the period's projection documents ordered by XP
// descending. limit 0 fetches all.
func (s *Store) EntriesForPeriod(ctx context.Context, periodKey string, limit int) ([]model.LeaderboardEntry, error) {
	docs, err := s.docs.Query(ctx, LeaderboardCollection,
		[]docstore.Filter{{Field: "periodKey", Op: docstore.OpEqual, Value: periodKey}},
		&docstore.Order{Field: "currentXP", Descending: true}, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard %s: %w", periodKey, err)
	}
	return decodeEntries(docs), nil
}

// EntriesForUsers fetches projections for an explicit id set within one
// period. The set must respect the store's membership arity; callers with
// more ids batch above this layer.
func (s *Store) EntriesForUsers(ctx context.Context, periodKey string, userIDs []string) ([]model.LeaderboardEntry, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	if len(userIDs) > docstore.MaxInArity {
		return nil, fmt.Errorf("query leaderboard %s: %w", periodKey, docstore.ErrInvalidQuery)
	}
	docs, err := s.docs.Query(ctx, LeaderboardCollection, []docstore.Filter{
		{Field: "periodKey", Op: docstore.OpEqual, Value: periodKey},
		{Field: "userId", Op: docstore.OpIn, Value: userIDs},
	}, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard %s: %w", periodKey, err)
	}
	return decodeEntries(docs), nil
}

// SubscribeUser registers a change listener on a user's ledger document.
// The callback receives the decoded state and whether the document exists.
func (s *Store) SubscribeUser(ctx context.Context, userID string, fn func(model.UserXPState, bool)) (docstore.Subscription, error) {
	sub, err := s.docs.Subscribe(ctx, UserPath(userID), func(c docstore.Change) {
		if c.Doc == nil {
			fn(model.UserXPState{}, false)
			return
		}
		st, repaired := decodeUserState(userID, c.Doc.Fields)
		if repaired {
			metrics.RecordCorruptionRepair()
		}
		fn(st, true)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe ledger %s: %w", userID, err)
	}
	return sub, nil
}

func zeroState(userID string) model.UserXPState {
	return model.UserXPState{
		UserID: userID,
		Level:  level.Level(0),
	}
}

func decodeEntries(docs []docstore.Document) []model.LeaderboardEntry {
	out := make([]model.LeaderboardEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, decodeEntry(d.Fields))
	}
	return out
}

// --- document codec ---
//
// Field values pass through backend-specific encodings (the Redis backend
// JSON round-trips them), so decoding accepts both native and JSON kinds.

func encodeUserState(st model.UserXPState) map[string]any {
	history := make([]any, 0, len(st.History))
	for _, e := range st.History {
		history = append(history, map[string]any{
			"id":         e.ID,
			"kind":       e.Kind,
			"amount":     e.Amount,
			"timestamp":  e.Timestamp,
			"subjectRef": e.SubjectRef,
			"details":    e.Details,
		})
	}
	return map[string]any{
		"userId":      st.UserID,
		"displayName": st.DisplayName,
		"avatarRef":   st.AvatarRef,
		"currentXP":   st.CurrentXP,
		"level":       int64(st.Level),
		"weeklyXP":    st.WeeklyXP,
		"lastUpdate":  st.LastUpdate,
		"history":     history,
	}
}

func decodeUserState(userID string, fields map[string]any) (model.UserXPState, bool) {
	st := model.UserXPState{
		UserID:      userID,
		DisplayName: strField(fields, "displayName"),
		AvatarRef:   strField(fields, "avatarRef"),
		CurrentXP:   intField(fields, "currentXP"),
		WeeklyXP:    intField(fields, "weeklyXP"),
		LastUpdate:  timeField(fields, "lastUpdate"),
	}
	if raw, ok := fields["history"].([]any); ok {
		st.History = make([]model.XPEvent, 0, len(raw))
		for _, item := range raw {
			ev, ok := item.(map[string]any)
			if !ok {
				continue
			}
			st.History = append(st.History, model.XPEvent{
				ID:         strField(ev, "id"),
				Kind:       strField(ev, "kind"),
				Amount:     intField(ev, "amount"),
				Timestamp:  timeField(ev, "timestamp"),
				SubjectRef: strField(ev, "subjectRef"),
				Details:    strField(ev, "details"),
			})
		}
	}

	want := level.Level(st.CurrentXP)
	repaired := int(intField(fields, "level")) != want
	st.Level = want
	return st, repaired
}

func encodeEntry(e model.LeaderboardEntry) map[string]any {
	return map[string]any{
		"userId":      e.UserID,
		"displayName": e.DisplayName,
		"currentXP":   e.CurrentXP,
		"level":       int64(e.Level),
		"avatarRef":   e.AvatarRef,
		"lastUpdated": e.LastUpdated,
		"periodKey":   e.PeriodKey,
	}
}

func decodeEntry(fields map[string]any) model.LeaderboardEntry {
	return model.LeaderboardEntry{
		UserID:      strField(fields, "userId"),
		DisplayName: strField(fields, "displayName"),
		CurrentXP:   intField(fields, "currentXP"),
		Level:       int(intField(fields, "level")),
		AvatarRef:   strField(fields, "avatarRef"),
		LastUpdated: timeField(fields, "lastUpdated"),
		PeriodKey:   strField(fields, "periodKey"),
	}
}

func strField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func intField(fields map[string]any, key string) int64 {
	switch n := fields[key].(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func timeField(fields map[string]any, key string) time.Time {
	switch t := fields[key].(type) {
	case time.Time:
		return t
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}
		}
		return parsed
	default:
		return time.Time{}
	}
}
