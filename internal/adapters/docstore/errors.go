package docstore

import "errors"

// Sentinel kinds for document store errors.
var (
	ErrNotFound         = errors.New("document not found")
	ErrRevisionMismatch = errors.New("document revision mismatch")
	ErrInvalidQuery     = errors.New("invalid query")
	ErrClosed           = errors.New("store closed")
)
