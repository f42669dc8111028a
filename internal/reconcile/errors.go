package reconcile

import "errors"

// Sentinel kinds for reconciliation errors.
var (
	ErrAlreadyStarted = errors.New("reconcile pool already started")
)
