// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/roamly/xpledger/internal/domain/model"
)

// periodPattern validates the "YYYY-MM" leaderboard segment key.
var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// LeaderboardDependencies defines the interface for leaderboard queries.
type LeaderboardDependencies interface {
	GlobalLeaderboard(ctx context.Context, periodKey string, limit int) ([]model.LeaderboardEntry, error)
	FriendsLeaderboard(ctx context.Context, periodKey string, friendIDs []string) ([]model.LeaderboardEntry, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetGlobal handles GET /leaderboard?period=YYYY-MM&limit=N requests.
// Both parameters are optional: period defaults to the current month and
// limit to the configured maximum.
func (h *LeaderboardHandler) HandleGetGlobal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	period, ok := parsePeriod(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_period", ErrBadRequest)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_limit", ErrBadRequest)
			return
		}
		if n > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", ErrBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.deps.GlobalLeaderboard(r.Context(), period, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleGetFriends handles GET /leaderboard/friends?period=YYYY-MM&ids=a,b,c
// requests. An empty id set yields an empty leaderboard.
func (h *LeaderboardHandler) HandleGetFriends(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	period, ok := parsePeriod(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_period", ErrBadRequest)
		return
	}

	var ids []string
	if raw := r.URL.Query().Get("ids"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	entries, err := h.deps.FriendsLeaderboard(r.Context(), period, ids)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func parsePeriod(r *http.Request) (string, bool) {
	period := r.URL.Query().Get("period")
	if period == "" {
		return "", true
	}
	return period, periodPattern.MatchString(period)
}
