// Package querycache holds the last fetched value of each named query and
// keeps active subscribers in step with the server after invalidation.
//
// Values are immutable snapshots: a refresh replaces the whole value and
// nothing patches a cached value in place.
package querycache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"gtodo/internal/logging"
	"gtodo/internal/observability"
)

// Key identifies a cached query.
type Key string

// Fetcher loads the current value of a query from the server.
type Fetcher[T any] func(ctx context.Context) (T, error)

// State is the cached record of one query.
type State[T any] struct {
	Value     T
	Loaded    bool // at least one fetch (or Set) has completed
	Loading   bool // first fetch in flight
	Stale     bool // invalidated and not yet refreshed
	Err       error
	UpdatedAt time.Time
}

type entry[T any] struct {
	state State[T]
	fetch Fetcher[T]
	gen   uint64 // drawn from Store.gen, unique across entry lifetimes
	subs  map[uint64]*Subscription[T]
}

// Store is a keyed query cache with reference-counted entries.
type Store[T any] struct {
	mu      sync.Mutex
	entries map[Key]*entry[T]
	nextSub uint64
	gen     uint64
	flight  singleflight.Group

	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Option configures a Store.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records fetches and invalidations.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides time.Now (for testing).
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates an empty Store.
func New[T any](opts ...Option) *Store[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[T]{
		entries: make(map[Key]*entry[T]),
		logger:  logging.OrDiscard(o.logger),
		metrics: o.metrics,
		now:     o.now,
	}
}

// Get returns the cached state for key. It reports false when the entry
// does not exist or has neither loaded nor started loading.
func (s *Store[T]) Get(key Key) (State[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || (!e.state.Loaded && !e.state.Loading) {
		return State[T]{}, false
	}
	return e.state, true
}

// Set replaces the cached value for key and notifies subscribers.
// Any fetch still in flight for the previous value is discarded.
func (s *Store[T]) Set(key Key, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key)
	e.gen = s.nextGenLocked()
	e.state = State[T]{
		Value:     value,
		Loaded:    true,
		UpdatedAt: s.now(),
	}
	e.notifyLocked()
}

// Invalidate marks key stale. When the entry has subscribers it is
// re-fetched before Invalidate returns; otherwise the next subscriber
// triggers the fetch.
func (s *Store[T]) Invalidate(ctx context.Context, key Key) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	e.gen = s.nextGenLocked()
	e.state.Stale = true
	active := len(e.subs) > 0 && e.fetch != nil
	s.mu.Unlock()

	s.metrics.Invalidated(string(key))
	s.logger.Debug("query invalidated", "key", key, "refetch", active)

	if active {
		s.refetch(ctx, key)
	}
}

// Subscribe registers interest in key. The first subscriber of an
// unloaded (or stale) entry starts a fetch with fetch; ctx supplies only
// request-scoped values to it, not cancellation. Later subscribers
// share the entry. The subscription receives the current state, if any,
// followed by every change. Close the subscription to release the entry.
func (s *Store[T]) Subscribe(ctx context.Context, key Key, fetch Fetcher[T]) *Subscription[T] {
	s.mu.Lock()
	e := s.entryLocked(key)
	if fetch != nil {
		e.fetch = fetch
	}

	s.nextSub++
	sub := &Subscription[T]{
		store: s,
		key:   key,
		id:    s.nextSub,
		ch:    make(chan State[T], 1),
	}
	e.subs[sub.id] = sub

	needFetch := e.fetch != nil && !e.state.Loading && (!e.state.Loaded || e.state.Stale)
	if needFetch && !e.state.Loaded {
		e.state.Loading = true
		e.state.Err = nil
	}
	if e.state.Loaded || e.state.Loading {
		sub.push(e.state)
	}
	s.mu.Unlock()

	if needFetch {
		go s.refetch(ctx, key)
	}
	return sub
}

// Subscribers returns the number of active subscriptions for key.
func (s *Store[T]) Subscribers(key Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return len(e.subs)
	}
	return 0
}

func (s *Store[T]) entryLocked(key Key) *entry[T] {
	e, ok := s.entries[key]
	if !ok {
		e = &entry[T]{gen: s.nextGenLocked(), subs: make(map[uint64]*Subscription[T])}
		s.entries[key] = e
	}
	return e
}

func (s *Store[T]) nextGenLocked() uint64 {
	s.gen++
	return s.gen
}

// refetch runs the entry's fetcher once per generation. Concurrent callers
// at the same generation share one fetch. The fetch outlives the caller's
// cancellation because its result belongs to every subscriber; the
// transport timeout bounds it.
func (s *Store[T]) refetch(ctx context.Context, key Key) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok || e.fetch == nil {
		s.mu.Unlock()
		return
	}
	gen, fetch := e.gen, e.fetch
	s.mu.Unlock()

	_, _, _ = s.flight.Do(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		v, err := fetch(ctx)
		s.apply(key, gen, v, err)
		return nil, nil
	})
}

func (s *Store[T]) apply(key Key, gen uint64, v T, err error) {
	outcome := observability.OutcomeSuccess
	if err != nil {
		outcome = observability.OutcomeError
		s.logger.Warn("query fetch failed", "key", key, "error", err)
	}
	s.metrics.FetchDone(string(key), outcome)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.gen != gen {
		// torn down, or superseded by a later invalidation or Set
		return
	}
	if err != nil {
		var zero T
		v = zero
	}
	e.state = State[T]{
		Value:     v,
		Loaded:    true,
		Err:       err,
		UpdatedAt: s.now(),
	}
	e.notifyLocked()
}

func (e *entry[T]) notifyLocked() {
	for _, sub := range e.subs {
		sub.push(e.state)
	}
}

func (s *Store[T]) unsubscribe(sub *Subscription[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sub.key]
	if !ok {
		return
	}
	if _, ok := e.subs[sub.id]; !ok {
		return
	}
	delete(e.subs, sub.id)
	close(sub.ch)
	if len(e.subs) == 0 {
		delete(s.entries, sub.key)
	}
}
