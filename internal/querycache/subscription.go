package querycache

import "sync"

// Subscription delivers state changes for one key. Delivery is
// latest-wins: a slow reader only ever sees the newest state.
type Subscription[T any] struct {
	store *Store[T]
	key   Key
	id    uint64
	ch    chan State[T]
	once  sync.Once
}

// Updates returns the delivery channel. It is closed by Close.
func (s *Subscription[T]) Updates() <-chan State[T] {
	return s.ch
}

// Key returns the subscribed key.
func (s *Subscription[T]) Key() Key {
	return s.key
}

// Close releases the subscription. The entry is torn down when its last
// subscription closes. Close is idempotent.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		s.store.unsubscribe(s)
	})
}

// push must be called with the store lock held.
func (s *Subscription[T]) push(st State[T]) {
	select {
	case <-s.ch:
	default:
	}
	s.ch <- st
}
