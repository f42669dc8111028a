package app

import "errors"

// Sentinel kinds for service lifecycle errors.
var (
	ErrAlreadyStarted = errors.New("engine already started")
	ErrNotStarted     = errors.New("engine not started")
)
