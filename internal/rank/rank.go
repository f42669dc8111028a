// Package rank produces ordered leaderboards from period projection
// documents at query time. Rank is never persisted; it is assigned fresh on
// every query over whatever snapshot the store returns, which may mix
// entries of different recency.
package rank

import (
	"context"
	"fmt"
	"sort"

	"github.com/roamly/xpledger/internal/adapters/docstore"
	"github.com/roamly/xpledger/internal/domain/model"
)

// friendsBatchSize matches the store's bounded membership-query arity.
const friendsBatchSize = docstore.MaxInArity

// EntrySource supplies projection entries for a period.
type EntrySource interface {
	EntriesForPeriod(ctx context.Context, periodKey string, limit int) ([]model.LeaderboardEntry, error)
	// EntriesForUsers accepts at most docstore.MaxInArity ids per call.
	EntriesForUsers(ctx context.Context, periodKey string, userIDs []string) ([]model.LeaderboardEntry, error)
}

// Ranker ranks period leaderboards globally or within a friend set.
type Ranker struct {
	source EntrySource
}

// New creates a Ranker over an entry source.
func New(source EntrySource) *Ranker {
	return &Ranker{source: source}
}

// Global returns the top entries of a period by XP descending.
func (r *Ranker) Global(ctx context.Context, periodKey string, limit int) ([]model.LeaderboardEntry, error) {
	if limit < 0 {
		return nil, ErrInvalidLimit
	}
	entries, err := r.source.EntriesForPeriod(ctx, periodKey, limit)
	if err != nil {
		return nil, fmt.Errorf("global leaderboard %s: %w", periodKey, err)
	}
	sortEntries(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	assignRanks(entries)
	return entries, nil
}

// Friends returns the ranking restricted to a caller-supplied id set. An
// empty set is an empty leaderboard, not an error, and issues no query.
// Larger sets are fetched in batches of the store's membership arity.
func (r *Ranker) Friends(ctx context.Context, periodKey string, friendIDs []string) ([]model.LeaderboardEntry, error) {
	if len(friendIDs) == 0 {
		return nil, nil
	}

	var entries []model.LeaderboardEntry
	for start := 0; start < len(friendIDs); start += friendsBatchSize {
		end := start + friendsBatchSize
		if end > len(friendIDs) {
			end = len(friendIDs)
		}
		batch, err := r.source.EntriesForUsers(ctx, periodKey, friendIDs[start:end])
		if err != nil {
			return nil, fmt.Errorf("friends leaderboard %s: %w", periodKey, err)
		}
		entries = append(entries, batch...)
	}

	sortEntries(entries)
	assignRanks(entries)
	return entries, nil
}

// sortEntries orders by XP descending. Ties order by earliest LastUpdated
// first (the entry that reached the score first), then userId ascending as
// the final deterministic key.
func sortEntries(entries []model.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CurrentXP != entries[j].CurrentXP {
			return entries[i].CurrentXP > entries[j].CurrentXP
		}
		if !entries[i].LastUpdated.Equal(entries[j].LastUpdated) {
			return entries[i].LastUpdated.Before(entries[j].LastUpdated)
		}
		return entries[i].UserID < entries[j].UserID
	})
}

// assignRanks assigns strict 1-based ranks in sorted order. Tied XP totals
// occupy consecutive ranks in tie-break order rather than sharing one.
func assignRanks(entries []model.LeaderboardEntry) {
	for i := range entries {
		entries[i].Rank = i + 1
	}
}
