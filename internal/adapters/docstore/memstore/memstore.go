// Package memstore provides an in-memory docstore.Store. It backs local
// development and tests, and doubles as the reference semantics for the
// remote store: per-document revisions, replace-style writes, and change
// fanout to subscribers.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roamly/xpledger/internal/adapters/docstore"
)

const subscriberBuffer = 256

type storedDoc struct {
	fields  map[string]any
	rev     int64
	updated time.Time
}

// MemStore implements docstore.Store over a mutex-guarded map.
type MemStore struct {
	mu        sync.RWMutex
	docs      map[string]*storedDoc
	subs      map[string]map[int]*subscription
	nextSubID int
	closed    bool
	clock     func() time.Time
}

// Option applies a configuration option to the MemStore.
type Option func(*MemStore)

// WithClock overrides the time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(s *MemStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New creates an empty in-memory store.
func New(opts ...Option) *MemStore {
	s := &MemStore{
		docs:  make(map[string]*storedDoc),
		subs:  make(map[string]map[int]*subscription),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the document at path.
func (s *MemStore) Get(ctx context.Context, path string) (*docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, docstore.ErrClosed
	}
	d, ok := s.docs[path]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return s.toDocument(path, d), nil
}

// Set overwrites the document at path unconditionally.
func (s *MemStore) Set(ctx context.Context, path string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return docstore.ErrClosed
	}
	d, ok := s.docs[path]
	if !ok {
		d = &storedDoc{}
		s.docs[path] = d
	}
	d.fields = docstore.CopyFields(fields)
	d.rev++
	d.updated = s.clock()
	s.notifyLocked(path, d)
	return nil
}

// SetWithRevision overwrites the document only when its revision matches.
func (s *MemStore) SetWithRevision(ctx context.Context, path string, fields map[string]any, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return docstore.ErrClosed
	}
	d, ok := s.docs[path]
	switch {
	case !ok && expected != 0:
		return docstore.ErrRevisionMismatch
	case ok && d.rev != expected:
		return docstore.ErrRevisionMismatch
	case !ok:
		d = &storedDoc{}
		s.docs[path] = d
	}
	d.fields = docstore.CopyFields(fields)
	d.rev++
	d.updated = s.clock()
	s.notifyLocked(path, d)
	return nil
}

// UpdateFields merges partial fields into an existing document.
func (s *MemStore) UpdateFields(ctx context.Context, path string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return docstore.ErrClosed
	}
	d, ok := s.docs[path]
	if !ok {
		return docstore.ErrNotFound
	}
	for k, v := range docstore.CopyFields(fields) {
		d.fields[k] = v
	}
	d.rev++
	d.updated = s.clock()
	s.notifyLocked(path, d)
	return nil
}

// ArrayUnion appends values to an array field with set semantics.
func (s *MemStore) ArrayUnion(ctx context.Context, path, field string, values ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return docstore.ErrClosed
	}
	d, ok := s.docs[path]
	if !ok {
		return docstore.ErrNotFound
	}
	existing, _ := d.fields[field].([]any)
	for _, v := range values {
		present := false
		for _, e := range existing {
			if docstore.CompareValues(e, v) == 0 {
				present = true
				break
			}
		}
		if !present {
			existing = append(existing, v)
		}
	}
	d.fields[field] = existing
	d.rev++
	d.updated = s.clock()
	s.notifyLocked(path, d)
	return nil
}

// Query returns documents in collection matching every filter.
func (s *MemStore) Query(ctx context.Context, collection string, filters []docstore.Filter, orderBy *docstore.Order, limit int) ([]docstore.Document, error) {
	for _, f := range filters {
		if f.Op == docstore.OpIn {
			if vals, ok := f.Value.([]string); ok && len(vals) > docstore.MaxInArity {
				return nil, docstore.ErrInvalidQuery
			}
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, docstore.ErrClosed
	}

	prefix := collection + "/"
	var out []docstore.Document
	for path, d := range s.docs {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		if !docstore.MatchFields(d.fields, filters) {
			continue
		}
		out = append(out, *s.toDocument(path, d))
	}

	if orderBy != nil {
		sort.SliceStable(out, func(i, j int) bool {
			c := docstore.CompareValues(out[i].Fields[orderBy.Field], out[j].Fields[orderBy.Field])
			if orderBy.Descending {
				return c > 0
			}
			return c < 0
		})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Subscribe registers a change listener for a single document path.
func (s *MemStore) Subscribe(ctx context.Context, path string, fn func(docstore.Change)) (docstore.Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, docstore.ErrClosed
	}

	s.nextSubID++
	sub := &subscription{
		store: s,
		path:  path,
		id:    s.nextSubID,
		ch:    make(chan docstore.Change, subscriberBuffer),
		done:  make(chan struct{}),
	}
	if s.subs[path] == nil {
		s.subs[path] = make(map[int]*subscription)
	}
	s.subs[path][sub.id] = sub

	// Initial delivery: current state, nil doc when absent.
	initial := docstore.Change{Path: path}
	if d, ok := s.docs[path]; ok {
		initial.Doc = s.toDocument(path, d)
	}
	sub.push(initial)
	s.mu.Unlock()

	go sub.pump(fn)
	return sub, nil
}

// Close tears down the store and every live subscription.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	for _, byID := range s.subs {
		for _, sub := range byID {
			close(sub.done)
		}
	}
	s.subs = make(map[string]map[int]*subscription)
	return nil
}

// notifyLocked fans a write out to subscribers of path. Must be called with
// s.mu held for writing.
func (s *MemStore) notifyLocked(path string, d *storedDoc) {
	byID := s.subs[path]
	if len(byID) == 0 {
		return
	}
	change := docstore.Change{Path: path, Doc: s.toDocument(path, d)}
	for _, sub := range byID {
		sub.push(change)
	}
}

func (s *MemStore) toDocument(path string, d *storedDoc) *docstore.Document {
	return &docstore.Document{
		Path:       path,
		Fields:     docstore.CopyFields(d.fields),
		Revision:   d.rev,
		UpdateTime: d.updated,
	}
}

type subscription struct {
	store *MemStore
	path  string
	id    int
	ch    chan docstore.Change
	done  chan struct{}
	once  sync.Once
}

// push enqueues a change, dropping the oldest pending one when the
// subscriber is too slow. Notifications are replace-style so a dropped
// intermediate state is superseded by the one that evicted it.
func (s *subscription) push(c docstore.Change) {
	select {
	case s.ch <- c:
	default:
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- c:
		default:
		}
	}
}

func (s *subscription) pump(fn func(docstore.Change)) {
	for {
		select {
		case <-s.done:
			return
		case c := <-s.ch:
			fn(c)
		}
	}
}

// Close unregisters the subscription and stops its delivery goroutine.
func (s *subscription) Close() {
	s.once.Do(func() {
		s.store.mu.Lock()
		if byID, ok := s.store.subs[s.path]; ok {
			delete(byID, s.id)
			if len(byID) == 0 {
				delete(s.store.subs, s.path)
			}
		}
		s.store.mu.Unlock()
		close(s.done)
	})
}

