package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"gtodo/internal/service"
)

// MemoryStore keeps items in insertion order.
type MemoryStore struct {
	mu    sync.RWMutex
	items []service.Item
	newID func() string
}

// NewMemoryStore creates an empty store that assigns UUIDv4 ids.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{newID: uuid.NewString}
}

func (s *MemoryStore) List(_ context.Context) ([]service.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := service.CloneItems(s.items)
	if out == nil {
		out = []service.Item{}
	}
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, text string) (service.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := service.Item{ID: s.newID(), Text: text}
	s.items = append(s.items, item)
	return item, nil
}

func (s *MemoryStore) Complete(_ context.Context, id string) (service.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return service.Item{}, ErrNotFound
	}
	if s.items[i].Completed {
		return service.Item{}, ErrAlreadyCompleted
	}
	s.items[i].Completed = true
	return s.items[i], nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}

func (s *MemoryStore) Mode() string { return "in-memory" }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) indexOf(id string) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}
