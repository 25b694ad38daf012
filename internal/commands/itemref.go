package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"gtodo/internal/service"
)

// ItemRef identifies an item either by its 1-based position in the listed
// collection or by its server id.
type ItemRef struct {
	Num int    // 0 if ID is set
	ID  string // empty if Num is set
}

// ErrItemRefRequired indicates no item reference was provided.
var ErrItemRefRequired = errors.New("item reference required")

// ParseItemRef parses a single item reference.
// All digits → position; anything else → id.
func ParseItemRef(args []string) (ItemRef, error) {
	if len(args) == 0 {
		return ItemRef{}, ErrItemRefRequired
	}
	if len(args) > 1 {
		return ItemRef{}, fmt.Errorf("too many arguments: %s", strings.Join(args[1:], " "))
	}

	raw := strings.TrimSpace(args[0])
	if raw == "" {
		return ItemRef{}, ErrItemRefRequired
	}
	if isAllDigits(raw) {
		num, err := strconv.Atoi(raw)
		if err != nil {
			return ItemRef{}, fmt.Errorf("invalid item reference: %s", raw)
		}
		if num < 1 {
			return ItemRef{}, fmt.Errorf("item number out of range: %d", num)
		}
		return ItemRef{Num: num}, nil
	}
	return ItemRef{ID: raw}, nil
}

// Resolve returns the id the reference points at within items.
// Ids are passed through unchecked and the service judges them: an
// unknown id is a not-found error, but the rest server rejects an id that
// is not a UUID as invalid input (validation error) before looking it up.
func (r ItemRef) Resolve(items []service.Item) (service.Item, error) {
	if r.ID != "" {
		if it, ok := service.FindItem(items, r.ID); ok {
			return it, nil
		}
		return service.Item{ID: r.ID}, nil
	}
	if r.Num > len(items) {
		return service.Item{}, fmt.Errorf("item number out of range: %d", r.Num)
	}
	return items[r.Num-1], nil
}

// isAllDigits returns true if s consists only of ASCII digits and is non-empty.
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
