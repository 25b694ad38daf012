// Package store persists the todo collection served by the reference server.
package store

import (
	"context"
	"errors"
	"strings"

	"gtodo/internal/service"
)

var (
	// ErrNotFound is returned when no item has the requested id.
	ErrNotFound = errors.New("todo not found")

	// ErrAlreadyCompleted is returned when toggling a completed item.
	ErrAlreadyCompleted = errors.New("todo is already completed")
)

// Store holds the server-side item collection.
type Store interface {
	List(ctx context.Context) ([]service.Item, error)
	Create(ctx context.Context, text string) (service.Item, error)
	Complete(ctx context.Context, id string) (service.Item, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	Mode() string
	Close() error
}

// New returns a PostgreSQL store when databaseURL is set, otherwise an
// in-memory one.
func New(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
