package livesync

import "errors"

// Sentinel kinds for sync errors.
var (
	ErrAlreadyStarted = errors.New("sync controller already started")
)
