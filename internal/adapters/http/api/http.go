// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/roamly/xpledger/internal/award"
	"github.com/roamly/xpledger/internal/domain/model"
)

// Dependencies required by HTTP handlers. The interface bundle keeps the
// handler layer loosely coupled to the engine facade.
type Dependencies interface {
	AwardXP(ctx context.Context, req award.Request) (award.Result, error)
	CurrentState(ctx context.Context, userID string) (model.UserXPState, error)
	GlobalLeaderboard(ctx context.Context, periodKey string, limit int) ([]model.LeaderboardEntry, error)
	FriendsLeaderboard(ctx context.Context, periodKey string, friendIDs []string) ([]model.LeaderboardEntry, error)
	Stats(ctx context.Context) map[string]any
}

// Server wires HTTP routes for the engine API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	awardsHandler      *AwardsHandler
	stateHandler       *StateHandler
	leaderboardHandler *LeaderboardHandler
}

// NewServer creates an API server with all handlers.
func NewServer(deps Dependencies, maxLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		awardsHandler:      NewAwardsHandler(deps),
		stateHandler:       NewStateHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/awards", MetricsMiddleware(s.awardsHandler.HandlePostAward, "awards"))
	mux.HandleFunc("/state/", MetricsMiddleware(s.stateHandler.HandleGetState, "state"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetGlobal, "leaderboard"))
	mux.HandleFunc("/leaderboard/friends", MetricsMiddleware(s.leaderboardHandler.HandleGetFriends, "leaderboard_friends"))
}

// awardRequest mirrors the JSON schema for POST /awards.
type awardRequest struct {
	UserID     string `json:"user_id"`
	Amount     int64  `json:"amount"`
	Kind       string `json:"kind"`
	SubjectRef string `json:"subject_ref,omitempty"`
	Details    string `json:"details,omitempty"`
	EventID    string `json:"event_id,omitempty"`
}

type awardResponse struct {
	EventID   string `json:"event_id"`
	NewXP     int64  `json:"new_xp"`
	NewLevel  int    `json:"new_level"`
	LeveledUp bool   `json:"leveled_up"`
	Duplicate bool   `json:"duplicate"`
}

type eventResponse struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Amount     int64     `json:"amount"`
	Timestamp  time.Time `json:"timestamp"`
	SubjectRef string    `json:"subject_ref,omitempty"`
	Details    string    `json:"details,omitempty"`
}

type stateResponse struct {
	UserID      string          `json:"user_id"`
	DisplayName string          `json:"display_name,omitempty"`
	AvatarRef   string          `json:"avatar_ref,omitempty"`
	CurrentXP   int64           `json:"current_xp"`
	Level       int             `json:"level"`
	XPToNext    int64           `json:"xp_to_next"`
	Progress    float64         `json:"progress"`
	WeeklyXP    int64           `json:"weekly_xp"`
	LastUpdate  time.Time       `json:"last_update"`
	History     []eventResponse `json:"history"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
