package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"gtodo/internal/app"
	"gtodo/internal/config"
	"gtodo/internal/exitcode"
	"gtodo/internal/output"
)

func init() {
	Register(&ListCmd{})
}

// ListCmd implements the list command. It also runs for `gtodo` with no args.
type ListCmd struct{}

func (c *ListCmd) Name() string       { return "list" }
func (c *ListCmd) Aliases() []string  { return []string{"ls"} }
func (c *ListCmd) Synopsis() string   { return "List tasks" }
func (c *ListCmd) Usage() string      { return "gtodo list" }
func (c *ListCmd) NeedsBackend() bool { return true }

func (c *ListCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *ListCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintf(errOut, "error: unexpected argument: %s\n", args[0])
		return exitcode.UserError
	}

	sub, st, err := openList(ctx, a)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	}
	defer sub.Close()

	// A failed fetch degrades to an empty list plus the error.
	if st.Err != nil {
		return report(errOut, st.Err)
	}
	if len(st.Items) == 0 {
		if !cfg.Quiet {
			fmt.Fprintln(out, output.EmptyList)
		}
		return exitcode.Success
	}
	output.FormatItems(out, st.Items)
	return exitcode.Success
}
