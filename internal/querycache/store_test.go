package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey Key = "todos"

type countingFetcher struct {
	calls  atomic.Int32
	values []string
	err    error
}

func (f *countingFetcher) fetch(ctx context.Context) ([]string, error) {
	n := int(f.calls.Add(1))
	if f.err != nil {
		return nil, f.err
	}
	if n > len(f.values) {
		n = len(f.values)
	}
	return []string{f.values[n-1]}, nil
}

func next[T any](t *testing.T, sub *Subscription[T]) State[T] {
	t.Helper()
	select {
	case st, ok := <-sub.Updates():
		require.True(t, ok, "subscription closed")
		return st
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for state")
	}
	return State[T]{}
}

func settled[T any](t *testing.T, sub *Subscription[T]) State[T] {
	t.Helper()
	for {
		st := next(t, sub)
		if !st.Loading {
			return st
		}
	}
}

func TestGetAbsentBeforeSubscribe(t *testing.T) {
	s := New[[]string]()
	_, ok := s.Get(testKey)
	assert.False(t, ok)
}

func TestSubscribeTriggersInitialFetch(t *testing.T) {
	s := New[[]string]()
	f := &countingFetcher{values: []string{"v1"}}

	sub := s.Subscribe(context.Background(), testKey, f.fetch)
	defer sub.Close()

	st := next(t, sub)
	assert.True(t, st.Loading || st.Loaded)
	if st.Loading {
		st = settled(t, sub)
	}
	require.True(t, st.Loaded)
	assert.NoError(t, st.Err)
	assert.Equal(t, []string{"v1"}, st.Value)
	assert.Equal(t, int32(1), f.calls.Load())

	got, ok := s.Get(testKey)
	require.True(t, ok)
	assert.Equal(t, []string{"v1"}, got.Value)
}

func TestSecondSubscriberSharesLoadedEntry(t *testing.T) {
	s := New[[]string]()
	f := &countingFetcher{values: []string{"v1"}}

	a := s.Subscribe(context.Background(), testKey, f.fetch)
	defer a.Close()
	settled(t, a)

	b := s.Subscribe(context.Background(), testKey, f.fetch)
	defer b.Close()
	st := next(t, b)

	assert.Equal(t, []string{"v1"}, st.Value)
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, 2, s.Subscribers(testKey))
}

func TestInvalidateRefetchesActiveEntry(t *testing.T) {
	s := New[[]string]()
	f := &countingFetcher{values: []string{"v1", "v2"}}

	sub := s.Subscribe(context.Background(), testKey, f.fetch)
	defer sub.Close()
	settled(t, sub)

	s.Invalidate(context.Background(), testKey)

	// refetch has completed by the time Invalidate returns
	got, ok := s.Get(testKey)
	require.True(t, ok)
	assert.Equal(t, []string{"v2"}, got.Value)
	assert.False(t, got.Stale)
	assert.Equal(t, int32(2), f.calls.Load())

	st := next(t, sub)
	assert.Equal(t, []string{"v2"}, st.Value)
}

func TestInvalidateWithoutSubscribersDefersFetch(t *testing.T) {
	s := New[[]string]()
	f := &countingFetcher{values: []string{"v1", "v2"}}

	s.Set(testKey, []string{"seed"})
	s.Invalidate(context.Background(), testKey)
	assert.Equal(t, int32(0), f.calls.Load())

	got, ok := s.Get(testKey)
	require.True(t, ok)
	assert.True(t, got.Stale)

	sub := s.Subscribe(context.Background(), testKey, f.fetch)
	defer sub.Close()

	require.Eventually(t, func() bool {
		st, _ := s.Get(testKey)
		return !st.Stale && len(st.Value) == 1 && st.Value[0] == "v1"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestInvalidateUnknownKeyIsNoop(t *testing.T) {
	s := New[[]string]()
	s.Invalidate(context.Background(), "nothing")
	_, ok := s.Get("nothing")
	assert.False(t, ok)
}

func TestFetchErrorRecordsErrorWithZeroValue(t *testing.T) {
	s := New[[]string]()
	boom := errors.New("unreachable")
	f := &countingFetcher{err: boom}

	sub := s.Subscribe(context.Background(), testKey, f.fetch)
	defer sub.Close()

	st := settled(t, sub)
	assert.True(t, st.Loaded)
	assert.ErrorIs(t, st.Err, boom)
	assert.Nil(t, st.Value)
}

func TestCloseLastSubscriberTearsDownEntry(t *testing.T) {
	s := New[[]string]()
	f := &countingFetcher{values: []string{"v1"}}

	sub := s.Subscribe(context.Background(), testKey, f.fetch)
	settled(t, sub)
	sub.Close()
	sub.Close()

	assert.Equal(t, 0, s.Subscribers(testKey))
	_, ok := s.Get(testKey)
	assert.False(t, ok)

	_, open := <-sub.Updates()
	assert.False(t, open)
}

func TestSetReplacesValueAndNotifies(t *testing.T) {
	s := New[[]string]()
	f := &countingFetcher{values: []string{"v1"}}

	sub := s.Subscribe(context.Background(), testKey, f.fetch)
	defer sub.Close()
	settled(t, sub)

	s.Set(testKey, []string{"manual"})
	st := next(t, sub)
	assert.Equal(t, []string{"manual"}, st.Value)
}

func TestSupersededFetchIsDiscarded(t *testing.T) {
	s := New[[]string]()
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	fetch := func(ctx context.Context) ([]string, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			return []string{"old"}, nil
		}
		return []string{"new"}, nil
	}

	sub := s.Subscribe(context.Background(), testKey, fetch)
	defer sub.Close()
	<-started

	s.Invalidate(context.Background(), testKey)
	close(release)

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	got, ok := s.Get(testKey)
	require.True(t, ok)
	assert.Equal(t, []string{"new"}, got.Value)
}

func TestClockIsUsedForUpdatedAt(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := New[[]string](WithClock(func() time.Time { return fixed }))
	s.Set(testKey, []string{"x"})

	got, ok := s.Get(testKey)
	require.True(t, ok)
	assert.Equal(t, fixed, got.UpdatedAt)
}

func TestRecreatedEntryIgnoresFetchFromTornDownEntry(t *testing.T) {
	s := New[[]string]()
	var mu sync.Mutex
	server := "old"
	started := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan struct{})
	var calls atomic.Int32

	fetch := func(ctx context.Context) ([]string, error) {
		mu.Lock()
		v := server
		mu.Unlock()
		if calls.Add(1) == 1 {
			defer close(firstDone)
			close(started)
			<-release
		}
		return []string{v}, nil
	}

	first := s.Subscribe(context.Background(), testKey, fetch)
	<-started
	first.Close()

	// A write confirmed while no entry exists.
	mu.Lock()
	server = "new"
	mu.Unlock()

	second := s.Subscribe(context.Background(), testKey, fetch)
	defer second.Close()
	st := settled(t, second)
	assert.Equal(t, []string{"new"}, st.Value)

	close(release)
	<-firstDone

	got, ok := s.Get(testKey)
	require.True(t, ok)
	assert.Equal(t, []string{"new"}, got.Value)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCancelledSubscriberDoesNotFailSharedFetch(t *testing.T) {
	s := New[[]string]()
	started := make(chan struct{})
	release := make(chan struct{})

	fetch := func(ctx context.Context) ([]string, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []string{"v1"}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := s.Subscribe(ctx, testKey, fetch)
	defer a.Close()
	<-started

	b := s.Subscribe(context.Background(), testKey, fetch)
	defer b.Close()

	cancel()
	close(release)

	st := settled(t, b)
	assert.NoError(t, st.Err)
	assert.Equal(t, []string{"v1"}, st.Value)
}

func TestInvalidateSurvivesCancelledCaller(t *testing.T) {
	s := New[[]string]()
	f := &countingFetcher{values: []string{"v1", "v2"}}
	fetch := func(ctx context.Context) ([]string, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return f.fetch(ctx)
	}

	sub := s.Subscribe(context.Background(), testKey, fetch)
	defer sub.Close()
	settled(t, sub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Invalidate(ctx, testKey)

	got, ok := s.Get(testKey)
	require.True(t, ok)
	assert.NoError(t, got.Err)
	assert.Equal(t, []string{"v2"}, got.Value)
}
