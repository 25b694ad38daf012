package output

import (
	"bytes"
	"errors"
	"testing"

	"gtodo/internal/mutation"
	"gtodo/internal/reconciler"
	"gtodo/internal/service"
	"gtodo/internal/testutil"
)

func TestFormatItem(t *testing.T) {
	var buf bytes.Buffer
	FormatItem(&buf, 1, service.Item{ID: "t1", Text: "buy milk"})
	FormatItem(&buf, 12, service.Item{ID: "t2", Text: "two\nlines", Completed: true})
	FormatItem(&buf, 3, service.Item{ID: "t3", Text: "  "})

	want := "   1  [ ] buy milk\n  12  [x] two lines\n   3  [ ] (untitled)\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestFormatListState(t *testing.T) {
	var buf bytes.Buffer
	FormatListState(&buf, reconciler.State{Loading: true, Items: []service.Item{}})
	FormatListState(&buf, reconciler.State{Items: []service.Item{{ID: "t1", Text: "a", Completed: true}}})
	FormatListState(&buf, reconciler.State{Items: []service.Item{}, Err: errors.New("list: request failed: refused")})

	testutil.GoldenString(t, "list_states", buf.String())
}

func TestFormatMutation(t *testing.T) {
	var buf bytes.Buffer
	FormatMutation(&buf, mutation.KindCreate, mutation.State{Pending: true})
	FormatMutation(&buf, mutation.KindToggle, mutation.State{Err: service.AlreadyCompletedError("t1")})
	FormatMutation(&buf, mutation.KindDelete, mutation.State{})

	want := "create: pending\ntoggle: error: Todo is already completed\ndelete: ok\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
