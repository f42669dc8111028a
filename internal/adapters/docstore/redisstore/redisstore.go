// Package redisstore provides a Redis-backed docstore.Store. Documents are
// JSON envelopes at keys, collections keep a membership index set, the
// revision compare-and-swap runs as a Lua script, and change notification
// rides Redis pub/sub.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roamly/xpledger/internal/adapters/docstore"
	"github.com/roamly/xpledger/pkg/logger"
	"github.com/roamly/xpledger/pkg/metrics"
)

// Key layout.
const (
	docKeyPrefix     = "xpl:doc:"
	colKeyPrefix     = "xpl:col:"
	channelKeyPrefix = "xpl:chg:"
)

// lwwRetries bounds the internal CAS loop behind unconditional writes.
const lwwRetries = 8

// casScript compares the stored envelope's revision against ARGV[1] and
// replaces the document, indexes it and publishes the new envelope when they
// match. Returns the new revision, or -1 on mismatch.
var casScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
local expected = tonumber(ARGV[1])
local rev = 0
if cur then
  rev = tonumber(cjson.decode(cur)['rev'])
end
if rev ~= expected then
  return -1
end
redis.call('SET', KEYS[1], ARGV[2])
redis.call('SADD', KEYS[2], ARGV[3])
redis.call('PUBLISH', KEYS[3], ARGV[2])
return rev + 1
`)

// envelope is the stored wire form of a document.
type envelope struct {
	Rev     int64          `json:"rev"`
	Updated time.Time      `json:"updated"`
	Fields  map[string]any `json:"fields"`
}

// RedisStore implements docstore.Store on a go-redis client.
type RedisStore struct {
	client *redis.Client
	clock  func() time.Time
	log    logger.Logger

	mu     sync.Mutex
	closed bool
}

// Option applies a configuration option to the RedisStore.
type Option func(*RedisStore)

// WithClock overrides the time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(s *RedisStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(s *RedisStore) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a store over an existing Redis client.
func New(client *redis.Client, opts ...Option) *RedisStore {
	s := &RedisStore{
		client: client,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the document at path.
func (s *RedisStore) Get(ctx context.Context, path string) (*docstore.Document, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOpLatency("get", float64(time.Since(start).Milliseconds())) }()

	raw, err := s.client.Get(ctx, docKeyPrefix+path).Result()
	if errors.Is(err, redis.Nil) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		metrics.RecordStoreError("get")
		return nil, fmt.Errorf("redis get %s: %w", path, err)
	}
	return decodeEnvelope(path, []byte(raw))
}

// Set overwrites the document at path unconditionally. Implemented as a
// short CAS loop so concurrent writers still settle last-writer-wins.
func (s *RedisStore) Set(ctx context.Context, path string, fields map[string]any) error {
	for i := 0; i < lwwRetries; i++ {
		rev := int64(0)
		if doc, err := s.Get(ctx, path); err == nil {
			rev = doc.Revision
		} else if !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		err := s.SetWithRevision(ctx, path, fields, rev)
		if errors.Is(err, docstore.ErrRevisionMismatch) {
			continue
		}
		return err
	}
	metrics.RecordStoreError("set")
	if s.log != nil {
		s.log.Warn(ctx, "unconditional set lost every write race", logger.String("path", path), logger.Int("retries", lwwRetries))
	}
	return fmt.Errorf("redis set %s: %w", path, docstore.ErrRevisionMismatch)
}

// SetWithRevision overwrites the document only when its revision matches.
func (s *RedisStore) SetWithRevision(ctx context.Context, path string, fields map[string]any, expected int64) error {
	start := time.Now()
	defer func() { metrics.RecordStoreOpLatency("set", float64(time.Since(start).Milliseconds())) }()

	env := envelope{
		Rev:     expected + 1,
		Updated: s.clock(),
		Fields:  docstore.CopyFields(fields),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	keys := []string{docKeyPrefix + path, colKeyPrefix + collectionOf(path), channelKeyPrefix + path}
	res, err := casScript.Run(ctx, s.client, keys, expected, string(payload), path).Int64()
	if err != nil {
		metrics.RecordStoreError("set")
		return fmt.Errorf("redis cas %s: %w", path, err)
	}
	if res < 0 {
		return docstore.ErrRevisionMismatch
	}
	return nil
}

// UpdateFields merges partial fields into an existing document.
func (s *RedisStore) UpdateFields(ctx context.Context, path string, fields map[string]any) error {
	for i := 0; i < lwwRetries; i++ {
		doc, err := s.Get(ctx, path)
		if err != nil {
			return err
		}
		merged := docstore.CopyFields(doc.Fields)
		for k, v := range fields {
			merged[k] = v
		}
		err = s.SetWithRevision(ctx, path, merged, doc.Revision)
		if errors.Is(err, docstore.ErrRevisionMismatch) {
			continue
		}
		return err
	}
	metrics.RecordStoreError("update")
	return fmt.Errorf("redis update %s: %w", path, docstore.ErrRevisionMismatch)
}

// ArrayUnion appends values to an array field with set semantics.
func (s *RedisStore) ArrayUnion(ctx context.Context, path, field string, values ...any) error {
	for i := 0; i < lwwRetries; i++ {
		doc, err := s.Get(ctx, path)
		if err != nil {
			return err
		}
		merged := docstore.CopyFields(doc.Fields)
		existing, _ := merged[field].([]any)
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
		merged[field] = existing
		err = s.SetWithRevision(ctx, path, merged, doc.Revision)
		if errors.Is(err, docstore.ErrRevisionMismatch) {
			continue
		}
		return err
	}
	metrics.RecordStoreError("array_union")
	return fmt.Errorf("redis array union %s: %w", path, docstore.ErrRevisionMismatch)
}

// Query fetches every indexed document of a collection and filters, orders
// and limits client-side. Collections here are period-scoped and modest in
// size; the index set keeps the scan bounded.
func (s *RedisStore) Query(ctx context.Context, collection string, filters []docstore.Filter, orderBy *docstore.Order, limit int) ([]docstore.Document, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOpLatency("query", float64(time.Since(start).Milliseconds())) }()

	for _, f := range filters {
		if f.Op == docstore.OpIn {
			if vals, ok := f.Value.([]string); ok && len(vals) > docstore.MaxInArity {
				return nil, docstore.ErrInvalidQuery
			}
		}
	}

	paths, err := s.client.SMembers(ctx, colKeyPrefix+collection).Result()
	if err != nil {
		metrics.RecordStoreError("query")
		return nil, fmt.Errorf("redis smembers %s: %w", collection, err)
	}
	if len(paths) == 0 {
		return nil, nil
	}

	keys := make([]string, len(paths))
	for i, p := range paths {
		keys[i] = docKeyPrefix + p
	}
	raws, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		metrics.RecordStoreError("query")
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	var out []docstore.Document
	for i, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue // expired or deleted underneath the index
		}
		doc, err := decodeEnvelope(paths[i], []byte(str))
		if err != nil {
			continue
		}
		if !docstore.MatchFields(doc.Fields, filters) {
			continue
		}
		out = append(out, *doc)
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

// Subscribe registers a pub/sub listener for a single document path.
func (s *RedisStore) Subscribe(ctx context.Context, path string, fn func(docstore.Change)) (docstore.Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, docstore.ErrClosed
	}
	s.mu.Unlock()

	pubsub := s.client.Subscribe(ctx, channelKeyPrefix+path)
	// Force the subscription onto the wire before the initial read so no
	// write can slip between them unnoticed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", path, err)
	}

	// Initial delivery: current state, nil doc when absent.
	initial := docstore.Change{Path: path}
	if doc, err := s.Get(ctx, path); err == nil {
		initial.Doc = doc
	} else if !errors.Is(err, docstore.ErrNotFound) {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &subscription{pubsub: pubsub}
	go func() {
		fn(initial)
		for msg := range pubsub.Channel() {
			doc, err := decodeEnvelope(path, []byte(msg.Payload))
			if err != nil {
				continue
			}
			fn(docstore.Change{Path: path, Doc: doc})
		}
	}()
	return sub, nil
}

// Close shuts the underlying client down.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

type subscription struct {
	pubsub *redis.PubSub
	once   sync.Once
}

func (s *subscription) Close() {
	s.once.Do(func() {
		_ = s.pubsub.Close()
	})
}

func decodeEnvelope(path string, raw []byte) (*docstore.Document, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &docstore.Document{
		Path:       path,
		Fields:     env.Fields,
		Revision:   env.Rev,
		UpdateTime: env.Updated,
	}, nil
}

// collectionOf extracts the collection segment of a document path.
func collectionOf(path string) string {
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return path
}
