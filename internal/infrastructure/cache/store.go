// Package cache implements the process-wide resource cache: a keyed store of
// fetched server state with request de-duplication, staleness tracking, and
// subscription-based change notification.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spacehub/core/internal/domain/resource"
)

const defaultFetchTimeout = 15 * time.Second

// Metrics receives cache observations. Implemented by the telemetry layer;
// a nil Metrics disables recording.
type Metrics interface {
	RecordCacheHit(ctx context.Context, t resource.Type)
	RecordCacheMiss(ctx context.Context, t resource.Type)
	RecordFetch(ctx context.Context, t resource.Type, d time.Duration, err error)
}

// slot is the store-owned state for one cache key.
type slot struct {
	key           resource.Key
	value         json.RawMessage
	status        resource.Status
	lastFetchedAt time.Time
	err           error
	// done is closed when the in-flight fetch settles; nil when none is
	// in flight.
	done chan struct{}
}

// Store implements resource.Cache. It is an explicit, constructible object
// with injected lifecycle: built when a session starts, discarded on logout.
// All state transitions happen under one mutex, so a multi-key write is
// atomic from any reader's perspective; fetches are the only operations that
// run outside it.
type Store struct {
	mu      sync.Mutex
	entries map[string]*slot
	subs    map[string]map[int]resource.SubscriptionFunc
	nextSub int

	remote       resource.Remote
	logger       *zap.Logger
	metrics      Metrics
	freshFor     time.Duration
	fetchTimeout time.Duration

	hits   int64
	misses int64
}

// StoreOption is a functional option for configuring the store
type StoreOption func(*Store)

// WithLogger sets the logger for the store
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics sink for the store
func WithMetrics(m Metrics) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithFreshFor sets how long a fetched value counts as fresh before a read
// treats it as stale. Zero means values stay fresh until invalidated.
func WithFreshFor(d time.Duration) StoreOption {
	return func(s *Store) {
		s.freshFor = d
	}
}

// WithFetchTimeout bounds the remote call issued by a triggered fetch.
func WithFetchTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		s.fetchTimeout = d
	}
}

// NewStore creates a resource cache backed by the given remote collaborator.
func NewStore(remote resource.Remote, opts ...StoreOption) *Store {
	s := &Store{
		entries:      make(map[string]*slot),
		subs:         make(map[string]map[int]resource.SubscriptionFunc),
		remote:       remote,
		logger:       zap.NewNop(),
		fetchTimeout: defaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read returns the current entry snapshot. An absent or stale entry triggers
// exactly one asynchronous fetch; concurrent readers of the same key share
// it.
func (s *Store) Read(key resource.Key) resource.Entry {
	canon := key.String()

	s.mu.Lock()
	sl, ok := s.entries[canon]
	if !ok {
		sl = &slot{key: key, status: resource.StatusIdle}
		s.entries[canon] = sl
	}

	if sl.status == resource.StatusFresh || sl.status == resource.StatusStale {
		atomic.AddInt64(&s.hits, 1)
		if s.metrics != nil {
			s.metrics.RecordCacheHit(context.Background(), key.Type)
		}
	} else {
		atomic.AddInt64(&s.misses, 1)
		if s.metrics != nil {
			s.metrics.RecordCacheMiss(context.Background(), key.Type)
		}
	}

	s.expireLocked(sl)
	var notify func()
	if s.needsFetchLocked(sl) {
		s.startFetchLocked(sl, canon)
		notify = s.notifierLocked(canon, s.snapshotLocked(sl))
	}
	entry := s.snapshotLocked(sl)
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
	return entry
}

// ReadWait behaves like Read but blocks until the entry holds a usable value
// or its fetch fails. Used by application services that need data rather
// than a render snapshot.
func (s *Store) ReadWait(ctx context.Context, key resource.Key) (resource.Entry, error) {
	for {
		entry := s.Read(key)
		switch entry.Status {
		case resource.StatusFresh, resource.StatusStale:
			return entry, nil
		case resource.StatusError:
			return entry, entry.Err
		}

		s.mu.Lock()
		sl := s.entries[key.String()]
		var done chan struct{}
		if sl != nil {
			done = sl.done
		}
		s.mu.Unlock()

		if done == nil {
			// The fetch settled between the read and the lock; loop to
			// observe the outcome.
			continue
		}
		select {
		case <-done:
		case <-ctx.Done():
			return entry, ctx.Err()
		}
	}
}

// Write replaces the entry value and marks it fresh. Used by settled fetches
// and by the optimistic mutation protocol.
func (s *Store) Write(key resource.Key, value json.RawMessage) {
	s.WriteAll([]resource.WritePair{{Key: key, Value: value}})
}

// WriteAll applies every pair under a single lock; no reader can observe a
// half-applied multi-key write.
func (s *Store) WriteAll(pairs []resource.WritePair) {
	notifiers := make([]func(), 0, len(pairs))

	s.mu.Lock()
	for _, p := range pairs {
		canon := p.Key.String()
		sl, ok := s.entries[canon]
		if !ok {
			sl = &slot{key: p.Key}
			s.entries[canon] = sl
		}
		sl.value = bytes.Clone(p.Value)
		sl.status = resource.StatusFresh
		sl.lastFetchedAt = time.Now()
		sl.err = nil
		notifiers = append(notifiers, s.notifierLocked(canon, s.snapshotLocked(sl)))
	}
	s.mu.Unlock()

	for _, notify := range notifiers {
		notify()
	}
}

// Drop removes an entry outright. Subscribers observe an idle, valueless
// entry.
func (s *Store) Drop(key resource.Key) {
	canon := key.String()

	s.mu.Lock()
	sl, existed := s.entries[canon]
	if existed && sl.done != nil {
		// Release ReadWait callers parked on an in-flight fetch; the
		// settling fetch finds the slot gone and has nothing to close.
		close(sl.done)
		sl.done = nil
	}
	delete(s.entries, canon)
	var notify func()
	if existed {
		notify = s.notifierLocked(canon, resource.Entry{Key: key, Status: resource.StatusIdle})
	}
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Invalidate marks every entry matching the pattern stale. Values are kept
// (stale-while-revalidate): stale data stays visible until the next fetch
// resolves. Entries with a fetch already in flight are left alone; the
// settling fetch delivers a fresh value anyway.
func (s *Store) Invalidate(pattern resource.Key) int {
	var notifiers []func()
	marked := 0

	s.mu.Lock()
	for canon, sl := range s.entries {
		if !sl.key.Matches(pattern) {
			continue
		}
		if sl.status != resource.StatusFresh && sl.status != resource.StatusError {
			continue
		}
		sl.status = resource.StatusStale
		marked++
		notifiers = append(notifiers, s.notifierLocked(canon, s.snapshotLocked(sl)))
	}
	s.mu.Unlock()

	for _, notify := range notifiers {
		notify()
	}
	s.logger.Debug("cache entries invalidated",
		zap.String("pattern", pattern.String()),
		zap.Int("marked", marked))
	return marked
}

// Subscribe registers a callback for entry transitions on one key. The
// returned cancel function must be called on teardown; leaking callbacks is
// the one way views can break this layer.
func (s *Store) Subscribe(key resource.Key, fn resource.SubscriptionFunc) resource.CancelFunc {
	canon := key.String()

	s.mu.Lock()
	if s.subs[canon] == nil {
		s.subs[canon] = make(map[int]resource.SubscriptionFunc)
	}
	id := s.nextSub
	s.nextSub++
	s.subs[canon][id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		if m := s.subs[canon]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(s.subs, canon)
			}
		}
		s.mu.Unlock()
	}
}

// Stats returns the cumulative hit/miss counters.
func (s *Store) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&s.hits), atomic.LoadInt64(&s.misses)
}

// Len returns the number of entries currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// expireLocked demotes a fresh entry to stale once its freshness window has
// elapsed.
func (s *Store) expireLocked(sl *slot) {
	if s.freshFor <= 0 || sl.status != resource.StatusFresh {
		return
	}
	if time.Since(sl.lastFetchedAt) > s.freshFor {
		sl.status = resource.StatusStale
	}
}

// needsFetchLocked reports whether a read of this slot should trigger a
// fetch. Errored entries do not retry on their own; the view layer decides.
func (s *Store) needsFetchLocked(sl *slot) bool {
	return sl.status == resource.StatusIdle || sl.status == resource.StatusStale
}

func (s *Store) startFetchLocked(sl *slot, canon string) {
	sl.status = resource.StatusFetching
	sl.done = make(chan struct{})
	go s.fetch(sl.key, canon)
}

// fetch performs the remote call for one key and settles the slot. It is the
// only code path that runs outside the store mutex.
func (s *Store) fetch(key resource.Key, canon string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
	defer cancel()

	started := time.Now()
	value, err := s.fetchValue(ctx, key)
	if s.metrics != nil {
		s.metrics.RecordFetch(ctx, key.Type, time.Since(started), err)
	}

	var notify func()
	s.mu.Lock()
	sl, ok := s.entries[canon]
	if !ok {
		// Dropped while the fetch was in flight; nothing to settle.
		s.mu.Unlock()
		return
	}
	if sl.done != nil {
		close(sl.done)
		sl.done = nil
	}
	if err != nil {
		// Keep the last good value: an error state never clobbers data.
		sl.status = resource.StatusError
		sl.err = err
	} else {
		sl.value = value
		sl.status = resource.StatusFresh
		sl.lastFetchedAt = time.Now()
		sl.err = nil
	}
	notify = s.notifierLocked(canon, s.snapshotLocked(sl))
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("resource fetch failed",
			zap.String("key", canon),
			zap.Error(err))
	} else {
		s.logger.Debug("resource fetched",
			zap.String("key", canon),
			zap.Duration("elapsed", time.Since(started)))
	}
	notify()
}

func (s *Store) fetchValue(ctx context.Context, key resource.Key) (json.RawMessage, error) {
	if id, ok := key.ID(); ok {
		return s.remote.FetchOne(ctx, key.Type, id)
	}
	list, err := s.remote.FetchList(ctx, key.Type, key.Filters())
	if err != nil {
		return nil, err
	}
	return list.Encode()
}

// snapshotLocked copies slot state into a caller-owned Entry.
func (s *Store) snapshotLocked(sl *slot) resource.Entry {
	return resource.Entry{
		Key:           sl.key,
		Value:         bytes.Clone(sl.value),
		Status:        sl.status,
		LastFetchedAt: sl.lastFetchedAt,
		Err:           sl.err,
	}
}

// notifierLocked captures the subscriber set for a key and returns a closure
// that delivers the snapshot outside the lock.
func (s *Store) notifierLocked(canon string, entry resource.Entry) func() {
	m := s.subs[canon]
	if len(m) == 0 {
		return func() {}
	}
	fns := make([]resource.SubscriptionFunc, 0, len(m))
	for _, fn := range m {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(entry)
		}
	}
}

// Ensure Store implements resource.Cache
var _ resource.Cache = (*Store)(nil)
