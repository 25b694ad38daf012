// Package reconciler exposes the cached todo collection as a render-ready
// sequence of states that follows every invalidation.
package reconciler

import (
	"context"
	"iter"
	"log/slog"

	"gtodo/internal/logging"
	"gtodo/internal/querycache"
	"gtodo/internal/service"
)

// TodosKey is the cache key of the full collection.
const TodosKey querycache.Key = "todos"

// State is what a list renderer needs. Items is never nil; a failed fetch
// yields an empty Items with Err set.
type State struct {
	Loading bool
	Items   []service.Item
	Err     error
}

// Reconciler derives list states from the collection query.
type Reconciler struct {
	svc    service.Service
	store  *querycache.Store[[]service.Item]
	logger *slog.Logger
}

// New creates a Reconciler reading from svc through store.
func New(svc service.Service, store *querycache.Store[[]service.Item], logger *slog.Logger) *Reconciler {
	return &Reconciler{
		svc:    svc,
		store:  store,
		logger: logging.OrDiscard(logger),
	}
}

func (r *Reconciler) fetch(ctx context.Context) ([]service.Item, error) {
	items, err := r.svc.List(ctx)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("collection fetched", "items", len(items))
	if items == nil {
		items = []service.Item{}
	}
	return service.CloneItems(items), nil
}

// Subscribe starts following the collection. The first subscriber triggers
// the initial fetch; cancelling ctx does not abort it. Close the
// subscription when done.
func (r *Reconciler) Subscribe(ctx context.Context) *Subscription {
	return &Subscription{sub: r.store.Subscribe(ctx, TodosKey, r.fetch)}
}

// States returns a lazy sequence of list states. Iteration subscribes on
// start and unsubscribes when the loop exits or ctx is done, so the same
// sequence can be ranged over again.
func (r *Reconciler) States(ctx context.Context) iter.Seq[State] {
	return func(yield func(State) bool) {
		sub := r.Subscribe(ctx)
		defer sub.Close()
		for {
			st, ok := sub.Next(ctx)
			if !ok || !yield(st) {
				return
			}
		}
	}
}

// Current returns the latest cached state without subscribing.
func (r *Reconciler) Current() State {
	st, ok := r.store.Get(TodosKey)
	if !ok {
		return State{Items: []service.Item{}}
	}
	return derive(st)
}

func derive(st querycache.State[[]service.Item]) State {
	items := st.Value
	if items == nil {
		items = []service.Item{}
	}
	return State{
		Loading: st.Loading,
		Items:   items,
		Err:     st.Err,
	}
}

// Subscription is an active interest in the collection.
type Subscription struct {
	sub *querycache.Subscription[[]service.Item]
}

// Next blocks for the next state. It reports false once the subscription
// is closed or ctx is done.
func (s *Subscription) Next(ctx context.Context) (State, bool) {
	select {
	case st, ok := <-s.sub.Updates():
		if !ok {
			return State{}, false
		}
		return derive(st), true
	case <-ctx.Done():
		return State{}, false
	}
}

// Settled blocks until a state that is not loading arrives.
func (s *Subscription) Settled(ctx context.Context) (State, bool) {
	for {
		st, ok := s.Next(ctx)
		if !ok || !st.Loading {
			return st, ok
		}
	}
}

// Close releases the subscription.
func (s *Subscription) Close() {
	s.sub.Close()
}
