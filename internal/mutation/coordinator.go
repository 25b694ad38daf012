// Package mutation runs create, toggle and delete against the remote
// collection and tracks their pending and error state.
//
// State is kept twice: once per kind, where the last invocation to settle
// decides what is visible, and once per invocation, keyed by a ULID, so
// concurrent invocations of the same kind stay individually observable.
package mutation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"gtodo/internal/logging"
	"gtodo/internal/observability"
	"gtodo/internal/querycache"
	"gtodo/internal/service"
)

// Kind names a mutation.
type Kind string

const (
	KindCreate Kind = "create"
	KindToggle Kind = "toggle"
	KindDelete Kind = "delete"
)

// Kinds lists every mutation kind in display order.
var Kinds = []Kind{KindCreate, KindToggle, KindDelete}

// historyLimit bounds how many settled invocations are remembered.
const historyLimit = 256

// State is the observable status of one mutation kind.
type State struct {
	Pending    bool
	Err        error
	Invocation ulid.ULID // last invocation to start or settle
}

// Invocation is the status of a single call.
type Invocation struct {
	ID        ulid.ULID
	Kind      Kind
	Arg       string
	Pending   bool
	Err       error
	StartedAt time.Time
	SettledAt time.Time
}

// Event is delivered to watchers on every state transition.
type Event struct {
	Kind       Kind
	State      State
	Invocation Invocation
}

// Coordinator wraps each write to the remote service.
type Coordinator struct {
	svc   service.Service
	store *querycache.Store[[]service.Item]
	key   querycache.Key

	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu          sync.Mutex
	states      map[Kind]State
	invocations map[ulid.ULID]*Invocation
	history     []ulid.ULID
	watchers    map[int]chan Event
	nextWatcher int

	wg sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logging.OrDiscard(l) }
}

// WithMetrics records mutation counts and latency.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock overrides time.Now (for testing).
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a Coordinator whose successful writes invalidate key in store.
// Every kind starts idle with no error.
func New(svc service.Service, store *querycache.Store[[]service.Item], key querycache.Key, opts ...Option) *Coordinator {
	c := &Coordinator{
		svc:         svc,
		store:       store,
		key:         key,
		logger:      logging.Discard(),
		now:         time.Now,
		states:      make(map[Kind]State, len(Kinds)),
		invocations: make(map[ulid.ULID]*Invocation),
		watchers:    make(map[int]chan Event),
	}
	for _, k := range Kinds {
		c.states[k] = State{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create sends text to the server and waits for the outcome.
func (c *Coordinator) Create(ctx context.Context, text string) error {
	return c.finish(ctx, c.begin(KindCreate, text), c.createCall(text))
}

// Toggle marks id completed and waits for the outcome.
func (c *Coordinator) Toggle(ctx context.Context, id string) error {
	return c.finish(ctx, c.begin(KindToggle, id), c.toggleCall(id))
}

// Delete removes id and waits for the outcome.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	return c.finish(ctx, c.begin(KindDelete, id), c.deleteCall(id))
}

// InvokeCreate starts a create without waiting. The outcome is observed
// through State, Invocation or Watch.
func (c *Coordinator) InvokeCreate(text string) ulid.ULID {
	return c.invoke(KindCreate, text, c.createCall(text))
}

// InvokeToggle starts a toggle without waiting.
func (c *Coordinator) InvokeToggle(id string) ulid.ULID {
	return c.invoke(KindToggle, id, c.toggleCall(id))
}

// InvokeDelete starts a delete without waiting.
func (c *Coordinator) InvokeDelete(id string) ulid.ULID {
	return c.invoke(KindDelete, id, c.deleteCall(id))
}

// Wait blocks until every invocation started with Invoke* has settled.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) createCall(text string) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := c.svc.Create(ctx, text)
		return err
	}
}

func (c *Coordinator) toggleCall(id string) func(context.Context) error {
	return func(ctx context.Context) error {
		// Completion is one-directional; a cached completed item never
		// reaches the network.
		if st, ok := c.store.Get(c.key); ok {
			if it, found := service.FindItem(st.Value, id); found && it.Completed {
				return service.AlreadyCompletedError(id)
			}
		}
		_, err := c.svc.Toggle(ctx, id)
		return err
	}
}

func (c *Coordinator) deleteCall(id string) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := c.svc.Delete(ctx, id)
		return err
	}
}

// invoke runs call on its own goroutine. No cancellation is offered: the
// transport timeout bounds the call.
func (c *Coordinator) invoke(kind Kind, arg string, call func(context.Context) error) ulid.ULID {
	inv := c.begin(kind, arg)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = c.finish(context.Background(), inv, call)
	}()
	return inv.ID
}

func (c *Coordinator) begin(kind Kind, arg string) Invocation {
	c.mu.Lock()
	defer c.mu.Unlock()

	inv := &Invocation{
		ID:        ulid.Make(),
		Kind:      kind,
		Arg:       arg,
		Pending:   true,
		StartedAt: c.now(),
	}
	c.invocations[inv.ID] = inv
	c.history = append(c.history, inv.ID)
	c.states[kind] = State{Pending: true, Invocation: inv.ID}
	c.metrics.MutationStarted(string(kind))
	c.logger.Debug("mutation started", "kind", kind, "invocation", inv.ID, "arg", arg)
	c.emitLocked(kind, *inv)
	return *inv
}

func (c *Coordinator) finish(ctx context.Context, inv Invocation, call func(context.Context) error) error {
	err := call(ctx)
	if err == nil {
		c.store.Invalidate(ctx, c.key)
	}
	c.settle(inv, err)
	return err
}

func (c *Coordinator) settle(snapshot Invocation, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inv, ok := c.invocations[snapshot.ID]
	if !ok {
		inv = &snapshot
	}
	inv.Pending = false
	inv.Err = err
	inv.SettledAt = c.now()

	// Last to settle wins the per-kind slot.
	c.states[inv.Kind] = State{Pending: false, Err: err, Invocation: inv.ID}

	outcome := observability.OutcomeSuccess
	switch {
	case errors.Is(err, service.ErrAlreadyCompleted):
		outcome = observability.OutcomeSkipped
	case err != nil:
		outcome = observability.OutcomeError
	}
	c.metrics.MutationSettled(string(inv.Kind), outcome, inv.SettledAt.Sub(inv.StartedAt))
	if err != nil {
		c.logger.Info("mutation failed", "kind", inv.Kind, "invocation", inv.ID, "error", err)
	} else {
		c.logger.Debug("mutation settled", "kind", inv.Kind, "invocation", inv.ID)
	}

	c.emitLocked(inv.Kind, *inv)
	c.pruneLocked()
}

func (c *Coordinator) pruneLocked() {
	if len(c.history) <= historyLimit {
		return
	}
	kept := c.history[:0]
	excess := len(c.history) - historyLimit
	for _, id := range c.history {
		inv := c.invocations[id]
		if excess > 0 && inv != nil && !inv.Pending {
			delete(c.invocations, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	c.history = kept
}

// State returns the visible state of kind.
func (c *Coordinator) State(kind Kind) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[kind]
}

// Invocation returns the state of one call.
func (c *Coordinator) Invocation(id ulid.ULID) (Invocation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inv, ok := c.invocations[id]
	if !ok {
		return Invocation{}, false
	}
	return *inv, true
}

// InFlight returns the number of unsettled invocations of kind.
func (c *Coordinator) InFlight(kind Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, inv := range c.invocations {
		if inv.Kind == kind && inv.Pending {
			n++
		}
	}
	return n
}

// Watch returns a channel of state transitions and a function that stops
// delivery. Events are dropped when the reader falls behind.
func (c *Coordinator) Watch() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextWatcher
	c.nextWatcher++
	ch := make(chan Event, 32)
	c.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.watchers, id)
			close(ch)
		})
	}
}

func (c *Coordinator) emitLocked(kind Kind, inv Invocation) {
	ev := Event{Kind: kind, State: c.states[kind], Invocation: inv}
	for _, ch := range c.watchers {
		select {
		case ch <- ev:
		default:
			c.logger.Debug("mutation event dropped", "kind", kind)
		}
	}
}
