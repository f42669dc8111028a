// Package model contains domain models passed between layers.
package model

import "time"

// XPEvent is a single append-only entry in a user's scoring history.
// Events are created exactly once at award time and never mutated.
type XPEvent struct {
	ID         string    // unique id, also the idempotency key for retries
	Kind       string    // free-form label, e.g. "visit", "mission-complete"
	Amount     int64     // signed XP delta; awards are currently always positive
	Timestamp  time.Time // instant the award was recorded
	SubjectRef string    // optional place/mission identifier
	Details    string    // optional free text
}

// UserXPState is the authoritative per-user ledger aggregate.
// Level must always equal the pure function of CurrentXP; persisted
// state violating that is repaired on read, never trusted.
type UserXPState struct {
	UserID      string
	DisplayName string
	AvatarRef   string
	CurrentXP   int64
	Level       int
	History     []XPEvent // newest first
	WeeklyXP    int64
	LastUpdate  time.Time
}

// LeaderboardEntry is the denormalized per-user-per-period projection of a
// UserXPState at the moment of the last award. Rank is assigned at query
// time only and is never persisted as authoritative.
type LeaderboardEntry struct {
	Rank        int       `json:"rank"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	CurrentXP   int64     `json:"current_xp"`
	Level       int       `json:"level"`
	AvatarRef   string    `json:"avatar_ref,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
	PeriodKey   string    `json:"period_key"`
}

// EntryFromState projects a ledger state into the leaderboard document for a
// period. Rank is left zero; it is assigned at query time.
func EntryFromState(st UserXPState, periodKey string) LeaderboardEntry {
	return LeaderboardEntry{
		UserID:      st.UserID,
		DisplayName: st.DisplayName,
		CurrentXP:   st.CurrentXP,
		Level:       st.Level,
		AvatarRef:   st.AvatarRef,
		LastUpdated: st.LastUpdate,
		PeriodKey:   periodKey,
	}
}

// Signal is a discrete event delivered to UI-side subscribers.
type Signal interface {
	signal()
}

// XPGained is emitted after every committed award for transient feedback.
type XPGained struct {
	UserID string
	Amount int64
	Kind   string
}

// LevelUp is emitted when an award crosses a level boundary.
type LevelUp struct {
	UserID   string
	NewLevel int
}

// AwardFailed is emitted when an award exhausts its retries. The caller-facing
// signal must distinguish "recorded" from "not recorded".
type AwardFailed struct {
	UserID  string
	EventID string
	Err     error
}

func (XPGained) signal()    {}
func (LevelUp) signal()     {}
func (AwardFailed) signal() {}
