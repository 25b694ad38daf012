package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"gtodo/internal/app"
	"gtodo/internal/config"
	"gtodo/internal/exitcode"
)

func init() {
	Register(&HelpCmd{})
}

// HelpCmd implements the help command. Usage lines come from the registry
// so new commands show up without editing this file.
type HelpCmd struct {
	registry *Registry
}

// SetRegistry sets the registry to describe (for testing).
func (c *HelpCmd) SetRegistry(r *Registry) {
	c.registry = r
}

func (c *HelpCmd) Name() string       { return "help" }
func (c *HelpCmd) Aliases() []string  { return nil }
func (c *HelpCmd) Synopsis() string   { return "Print usage" }
func (c *HelpCmd) Usage() string      { return "gtodo help" }
func (c *HelpCmd) NeedsBackend() bool { return false }

func (c *HelpCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *HelpCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	reg := c.registry
	if reg == nil {
		reg = DefaultRegistry
	}

	fmt.Fprintln(out, "Usage:")
	fmt.Fprintf(out, "  %-40s %s\n", "gtodo", "List tasks")
	for _, cmd := range reg.All() {
		fmt.Fprintf(out, "  %-40s %s\n", cmd.Usage(), cmd.Synopsis())
	}
	fmt.Fprint(out, commonFlagsText)
	return exitcode.Success
}

const commonFlagsText = `
Common flags:
  --config <dir>   Override config directory
  --quiet          Suppress informational output
  --debug          Print debug logs to stderr

Environment:
  GTODO_BACKEND    rest (default) or google
  GTODO_BASE_URL   Collection endpoint for the rest backend
  GTODO_TIMEOUT    Request timeout, e.g. 5s
`
