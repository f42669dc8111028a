// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/roamly/xpledger/internal/domain/level"
	"github.com/roamly/xpledger/internal/domain/model"
)

// StateDependencies defines the interface for state reads.
type StateDependencies interface {
	CurrentState(ctx context.Context, userID string) (model.UserXPState, error)
}

// StateHandler handles user state requests.
type StateHandler struct {
	deps StateDependencies
}

// NewStateHandler creates a new state handler.
func NewStateHandler(deps StateDependencies) *StateHandler {
	return &StateHandler{deps: deps}
}

// HandleGetState handles GET /state/{userID} requests.
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	userID := strings.TrimPrefix(r.URL.Path, "/state/")
	if userID == "" || strings.Contains(userID, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	st, err := h.deps.CurrentState(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}

	history := make([]eventResponse, 0, len(st.History))
	for _, e := range st.History {
		history = append(history, eventResponse{
			ID:         e.ID,
			Kind:       e.Kind,
			Amount:     e.Amount,
			Timestamp:  e.Timestamp,
			SubjectRef: e.SubjectRef,
			Details:    e.Details,
		})
	}
	writeJSON(w, http.StatusOK, stateResponse{
		UserID:      st.UserID,
		DisplayName: st.DisplayName,
		AvatarRef:   st.AvatarRef,
		CurrentXP:   st.CurrentXP,
		Level:       st.Level,
		XPToNext:    level.XPToNext(st.CurrentXP),
		Progress:    level.Progress(st.CurrentXP),
		WeeklyXP:    st.WeeklyXP,
		LastUpdate:  st.LastUpdate,
		History:     history,
	})
}
