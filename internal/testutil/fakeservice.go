// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"gtodo/internal/service"
)

// FakeService is an in-memory implementation of service.Service for testing.
// It enforces the same contract as the collection endpoint and counts calls.
type FakeService struct {
	mu     sync.RWMutex
	items  []service.Item
	nextID int
	calls  map[string]int

	// Error injection for testing
	ListErr   error
	CreateErr error
	ToggleErr error
	DeleteErr error

	// BeforeCall, if set, runs before every operation with the op name.
	// Tests use it to hold a call open.
	BeforeCall func(op string)
}

// NewFakeService creates an empty FakeService.
func NewFakeService() *FakeService {
	return &FakeService{calls: make(map[string]int)}
}

// AddItem seeds an item directly, bypassing the call counters.
func (f *FakeService) AddItem(id, text string, completed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, service.Item{ID: id, Text: text, Completed: completed})
}

// Items returns a copy of the server-side collection.
func (f *FakeService) Items() []service.Item {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]service.Item, len(f.items))
	copy(out, f.items)
	return out
}

// Calls returns how many times op was invoked.
func (f *FakeService) Calls(op string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.calls[op]
}

func (f *FakeService) enter(op string) {
	f.mu.Lock()
	f.calls[op]++
	hook := f.BeforeCall
	f.mu.Unlock()
	if hook != nil {
		hook(op)
	}
}

// List implements service.Service.
func (f *FakeService) List(ctx context.Context) ([]service.Item, error) {
	f.enter("list")
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.Items(), nil
}

// Create implements service.Service.
func (f *FakeService) Create(ctx context.Context, text string) (service.Item, error) {
	f.enter("create")
	if f.CreateErr != nil {
		return service.Item{}, f.CreateErr
	}
	if strings.TrimSpace(text) == "" {
		return service.Item{}, service.ValidationError("create", "Todo body cannot be empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	it := service.Item{ID: fmt.Sprintf("t%d", f.nextID), Text: text}
	f.items = append(f.items, it)
	return it, nil
}

// Toggle implements service.Service.
func (f *FakeService) Toggle(ctx context.Context, id string) (service.Item, error) {
	f.enter("toggle")
	if f.ToggleErr != nil {
		return service.Item{}, f.ToggleErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, it := range f.items {
		if it.ID == id {
			if it.Completed {
				return service.Item{}, service.ConflictError("toggle", "Todo is already completed")
			}
			f.items[i].Completed = true
			return f.items[i], nil
		}
	}
	return service.Item{}, service.NotFoundError("toggle", "Todo not found")
}

// Delete implements service.Service.
func (f *FakeService) Delete(ctx context.Context, id string) (string, error) {
	f.enter("delete")
	if f.DeleteErr != nil {
		return "", f.DeleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, it := range f.items {
		if it.ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return id, nil
		}
	}
	return "", service.NotFoundError("delete", "Todo not found")
}
