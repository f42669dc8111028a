// Package dedupe tracks award idempotency receipts.
//
// An event id moves through three states: unknown, in-flight, committed.
// Re-submitting a committed id is answered from its receipt without touching
// the store; an in-flight id is reported as a duplicate so a concurrent
// retry cannot double-credit. Aborting an in-flight id frees it for retry.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/roamly/xpledger/pkg/metrics"
)

// Status of an event id within the deduper.
type Status int

const (
	// StatusNew means the id was unknown and is now recorded as in-flight.
	StatusNew Status = iota
	// StatusInFlight means another award with this id is currently running.
	StatusInFlight
	// StatusCommitted means an award with this id already committed.
	StatusCommitted
)

// Receipt is the committed outcome attached to an event id.
type Receipt struct {
	EventID   string
	UserID    string
	NewXP     int64
	NewLevel  int
	LeveledUp bool
}

// Deduper records event ids to keep award retries idempotent.
type Deduper interface {
	// Begin atomically records id as in-flight if it is unknown and returns
	// the prior status. StatusNew means the caller owns the award attempt.
	Begin(ctx context.Context, id string) Status

	// Commit attaches the committed receipt to an in-flight id.
	Commit(ctx context.Context, id string, r Receipt)

	// Abort removes an in-flight id so the award can be retried.
	Abort(ctx context.Context, id string)

	// Lookup returns the receipt for a committed id.
	Lookup(ctx context.Context, id string) (Receipt, bool)

	// Size returns the number of ids currently tracked.
	Size() int64
}

// entry is a node in the eviction list. Oldest committed receipts are
// evicted first once maxSize is reached; in-flight ids are never evicted.
type entry struct {
	id        string
	committed bool
	receipt   Receipt
	next      *entry
	prev      *entry
}

type inMemoryDeduper struct {
	mu      sync.Mutex
	byID    map[string]*entry
	head    *entry // most recently added
	tail    *entry // eviction candidate
	maxSize int    // 0 or negative = unbounded
	size    atomic.Int64
}

// NewInMemoryDeduper creates an in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50000,
		byID:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) Begin(ctx context.Context, id string) Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.byID[id]; ok {
		if e.committed {
			return StatusCommitted
		}
		return StatusInFlight
	}

	if d.maxSize > 0 && len(d.byID) >= d.maxSize {
		d.evictOldestCommitted()
	}

	e := &entry{id: id}
	d.pushFront(e)
	d.byID[id] = e
	d.size.Add(1)
	metrics.UpdateDedupeSize(d.size.Load())
	return StatusNew
}

func (d *inMemoryDeduper) Commit(ctx context.Context, id string, r Receipt) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.byID[id]; ok {
		e.committed = true
		e.receipt = r
	}
}

func (d *inMemoryDeduper) Abort(ctx context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.byID[id]
	if !ok || e.committed {
		return
	}
	d.unlink(e)
	delete(d.byID, id)
	d.size.Add(-1)
	metrics.UpdateDedupeSize(d.size.Load())
}

func (d *inMemoryDeduper) Lookup(ctx context.Context, id string) (Receipt, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.byID[id]; ok && e.committed {
		return e.receipt, true
	}
	return Receipt{}, false
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}

func (d *inMemoryDeduper) pushFront(e *entry) {
	e.next = d.head
	if d.head != nil {
		d.head.prev = e
	}
	d.head = e
	if d.tail == nil {
		d.tail = e
	}
}

func (d *inMemoryDeduper) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		d.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		d.tail = e.prev
	}
	e.next, e.prev = nil, nil
}

// evictOldestCommitted drops the oldest committed receipt. Must be called
// with d.mu held.
func (d *inMemoryDeduper) evictOldestCommitted() {
	for e := d.tail; e != nil; e = e.prev {
		if !e.committed {
			continue
		}
		d.unlink(e)
		delete(d.byID, e.id)
		d.size.Add(-1)
		return
	}
}
