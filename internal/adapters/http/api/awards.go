// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/roamly/xpledger/internal/award"
)

// AwardDependencies defines the interface for the award operation.
type AwardDependencies interface {
	AwardXP(ctx context.Context, req award.Request) (award.Result, error)
}

// AwardsHandler handles award requests.
type AwardsHandler struct {
	deps AwardDependencies
}

// NewAwardsHandler creates a new awards handler.
func NewAwardsHandler(deps AwardDependencies) *AwardsHandler {
	return &AwardsHandler{deps: deps}
}

func (a awardRequest) validate() error {
	switch {
	case strings.TrimSpace(a.UserID) == "":
		return errors.New("missing user_id")
	case a.Amount <= 0:
		return errors.New("amount must be positive")
	case strings.TrimSpace(a.Kind) == "":
		return errors.New("missing kind")
	}
	return nil
}

// HandlePostAward handles POST /awards requests.
func (h *AwardsHandler) HandlePostAward(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req awardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	res, err := h.deps.AwardXP(r.Context(), award.Request{
		UserID:     req.UserID,
		Amount:     req.Amount,
		Kind:       req.Kind,
		SubjectRef: req.SubjectRef,
		Details:    req.Details,
		EventID:    req.EventID,
	})
	switch {
	case err == nil:
	case errors.Is(err, award.ErrNonPositiveAmount), errors.Is(err, award.ErrMissingUser):
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	case errors.Is(err, award.ErrInFlight):
		writeError(w, http.StatusConflict, "in_flight", err)
		return
	case errors.Is(err, award.ErrRetriesExhausted):
		writeError(w, http.StatusServiceUnavailable, "contended", err)
		return
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, awardResponse{
		EventID:   res.EventID,
		NewXP:     res.NewXP,
		NewLevel:  res.NewLevel,
		LeveledUp: res.LeveledUp,
		Duplicate: res.Duplicate,
	})
}
