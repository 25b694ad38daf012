package commands

import (
	"context"
	"fmt"
	"io"

	"gtodo/internal/app"
	"gtodo/internal/exitcode"
	"gtodo/internal/reconciler"
)

// openList subscribes to the collection and waits for the first settled
// state. The caller keeps the subscription open for the rest of the command
// so mutations refresh a live entry.
func openList(ctx context.Context, a *app.App) (*reconciler.Subscription, reconciler.State, error) {
	sub := a.Lists.Subscribe(ctx)
	st, ok := sub.Settled(ctx)
	if !ok {
		sub.Close()
		return nil, reconciler.State{}, ctx.Err()
	}
	return sub, st, nil
}

// report prints err and returns the matching exit code.
func report(errOut io.Writer, err error) int {
	fmt.Fprintf(errOut, "error: %v\n", err)
	return exitcode.For(err)
}
