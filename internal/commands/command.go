// Package commands implements the gtodo subcommands.
package commands

import (
	"context"
	"flag"
	"io"

	"gtodo/internal/app"
	"gtodo/internal/config"
)

// Command is one gtodo subcommand.
type Command interface {
	Name() string
	Aliases() []string

	// Synopsis and Usage feed the help listing.
	Synopsis() string
	Usage() string

	// NeedsBackend reports whether Run expects a wired *app.App. When it
	// is false the dispatcher passes a nil app and never dials the backend.
	NeedsBackend() bool

	RegisterFlags(fs *flag.FlagSet)

	// Run receives positional args left after flag parsing and returns a
	// process exit code from package exitcode.
	Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int
}
