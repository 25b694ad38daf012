// Package output provides formatters for CLI output.
package output

import (
	"fmt"
	"io"
	"strings"

	"gtodo/internal/mutation"
	"gtodo/internal/reconciler"
	"gtodo/internal/service"
)

const (
	// ListSeparator is the separator line for list sections.
	ListSeparator = "------------"

	// EmptyList is printed when the collection has no items.
	EmptyList = "no tasks found"
)

// FormatItem formats an item line.
// Format: "{N:>4}  [x] {TEXT}\n" (4-wide right-aligned number, two spaces,
// completion box, text)
func FormatItem(w io.Writer, num int, item service.Item) {
	box := "[ ]"
	if item.Completed {
		box = "[x]"
	}
	fmt.Fprintf(w, "%4d  %s %s\n", num, box, normalizeText(item.Text))
}

// FormatItems formats every item, numbered from 1.
func FormatItems(w io.Writer, items []service.Item) {
	for i, it := range items {
		FormatItem(w, i+1, it)
	}
}

// FormatListState renders one reconciler state inside separators.
func FormatListState(w io.Writer, st reconciler.State) {
	fmt.Fprintln(w, ListSeparator)
	switch {
	case st.Loading:
		fmt.Fprintln(w, "loading...")
	case len(st.Items) == 0:
		fmt.Fprintln(w, EmptyList)
	default:
		FormatItems(w, st.Items)
	}
	if st.Err != nil {
		fmt.Fprintf(w, "error: %v\n", st.Err)
	}
	fmt.Fprintln(w, ListSeparator)
}

// FormatMutation renders a per-kind state change, e.g. "create: pending".
func FormatMutation(w io.Writer, kind mutation.Kind, st mutation.State) {
	switch {
	case st.Pending:
		fmt.Fprintf(w, "%s: pending\n", kind)
	case st.Err != nil:
		fmt.Fprintf(w, "%s: error: %v\n", kind, st.Err)
	default:
		fmt.Fprintf(w, "%s: ok\n", kind)
	}
}

// normalizeText normalizes item text for display.
// - Empty or whitespace-only text becomes "(untitled)"
// - Newlines are replaced with spaces
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r", " ")
	text = strings.ReplaceAll(text, "\n", " ")

	if strings.TrimSpace(text) == "" {
		return "(untitled)"
	}
	return text
}
