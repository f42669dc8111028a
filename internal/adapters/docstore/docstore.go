// Package docstore defines the contract the engine consumes from the remote
// document store: per-document atomic writes, equality/membership queries,
// and a subscribe-for-changes primitive.
//
// The conditional write (SetWithRevision) is the one deliberate departure
// from the upstream store surface: ledger read-modify-write cycles must be
// compare-and-swap on a revision token, never independent read then write.
package docstore

import (
	"context"
	"time"
)

// MaxInArity is the bounded arity of the store's membership query. Callers
// with larger id sets must batch.
const MaxInArity = 10

// Document is a stored record plus its concurrency token.
type Document struct {
	Path       string
	Fields     map[string]any
	Revision   int64
	UpdateTime time.Time
}

// Op is a query filter operator.
type Op string

const (
	OpEqual          Op = "=="
	OpIn             Op = "in"
	OpGreaterOrEqual Op = ">="
)

// Filter restricts a query to documents whose field matches value under op.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Order sorts query results by a single field.
type Order struct {
	Field      string
	Descending bool
}

// Change is delivered to subscribers whenever the watched document is
// written. Doc is nil when the document does not exist.
type Change struct {
	Path string
	Doc  *Document
}

// Subscription is a live change feed registration. Close must always be
// paired with the Subscribe that produced it; a leaked subscription keeps
// its delivery goroutine alive.
type Subscription interface {
	Close()
}

// Store is the remote document store surface the engine depends on.
type Store interface {
	// Get returns the document at path, or ErrNotFound.
	Get(ctx context.Context, path string) (*Document, error)

	// Set overwrites the document at path unconditionally, creating it if
	// absent. Used for last-writer-wins projections.
	Set(ctx context.Context, path string, fields map[string]any) error

	// SetWithRevision overwrites the document only if its current revision
	// equals expected; expected 0 means "create, must not exist". Returns
	// ErrRevisionMismatch when the document moved underneath the caller.
	SetWithRevision(ctx context.Context, path string, fields map[string]any, expected int64) error

	// UpdateFields merges partial fields into an existing document.
	UpdateFields(ctx context.Context, path string, fields map[string]any) error

	// ArrayUnion appends values to an array field with set semantics.
	ArrayUnion(ctx context.Context, path, field string, values ...any) error

	// Query returns documents in collection matching every filter. An OpIn
	// filter accepts at most MaxInArity values.
	Query(ctx context.Context, collection string, filters []Filter, orderBy *Order, limit int) ([]Document, error)

	// Subscribe registers a change listener for a single document path. The
	// current state is delivered immediately, then every subsequent write.
	Subscribe(ctx context.Context, path string, fn func(Change)) (Subscription, error)

	// Close releases the store's resources.
	Close() error
}
