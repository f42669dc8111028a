package award

import "errors"

// Sentinel kinds for award errors.
var (
	// ErrNonPositiveAmount rejects zero and negative awards.
	ErrNonPositiveAmount = errors.New("award amount must be positive")

	// ErrMissingUser rejects awards without a subject user.
	ErrMissingUser = errors.New("award user id is required")

	// ErrInFlight reports that an award with the same event id is currently
	// running; the caller should wait for its outcome instead of retrying.
	ErrInFlight = errors.New("award already in flight")

	// ErrRetriesExhausted reports that the award gave up after repeated
	// write conflicts. Nothing was recorded.
	ErrRetriesExhausted = errors.New("award retries exhausted")
)
