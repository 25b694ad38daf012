// Package service defines the backend-agnostic interface for todo operations.
package service

// Item represents a single todo record as confirmed by the remote service.
type Item struct {
	ID        string `json:"id"`
	Text      string `json:"body"`
	Completed bool   `json:"completed"`
}

// CloneItems returns a copy of items so callers can hold it as a snapshot.
func CloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// FindItem returns the item with the given id.
func FindItem(items []Item, id string) (Item, bool) {
	for _, it := range items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}
