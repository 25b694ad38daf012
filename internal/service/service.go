// Package service defines the backend-agnostic interface for todo operations.
package service

import "context"

// Service defines the interface for the remote todo collection.
// Every call is one round trip and never retries, except where a method
// documents otherwise.
// Commands and the sync layer never import a backend SDK directly.
type Service interface {
	// List returns the full collection in server order.
	List(ctx context.Context) ([]Item, error)

	// Create creates a new item with the given text and returns it.
	// Fails with a validation error if the server rejects the text.
	Create(ctx context.Context, text string) (Item, error)

	// Toggle marks an item completed and returns the updated item.
	// Fails with a conflict error if it is already completed and a
	// not-found error if the id does not exist. Backends whose API cannot
	// refuse a completed item (googletasks) read it first, making two
	// round trips.
	Toggle(ctx context.Context, id string) (Item, error)

	// Delete removes an item and returns the confirmed id.
	Delete(ctx context.Context, id string) (string, error)
}
