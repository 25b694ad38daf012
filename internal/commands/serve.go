package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"gtodo/internal/app"
	"gtodo/internal/config"
	"gtodo/internal/exitcode"
	"gtodo/internal/logging"
	"gtodo/internal/observability"
	"gtodo/internal/server"
	"gtodo/internal/server/store"
)

func init() {
	Register(&ServeCmd{})
}

// ServeCmd runs the reference todo collection endpoint.
type ServeCmd struct {
	addr string
}

// SetAddr sets the listen address (for testing).
func (c *ServeCmd) SetAddr(addr string) {
	c.addr = addr
}

func (c *ServeCmd) Name() string       { return "serve" }
func (c *ServeCmd) Aliases() []string  { return nil }
func (c *ServeCmd) Synopsis() string   { return "Run the todo collection server" }
func (c *ServeCmd) Usage() string      { return "gtodo serve [--addr <host:port>]" }
func (c *ServeCmd) NeedsBackend() bool { return false }

func (c *ServeCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.addr, "addr", "", "")
}

func (c *ServeCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	srvCfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}
	if c.addr != "" {
		srvCfg.Addr = c.addr
	}

	// The server logs at Info unless --quiet.
	logger := logging.New(errOut, cfg.Debug)
	if !cfg.Debug && !cfg.Quiet {
		logger = logging.NewLevel(errOut, logging.LevelInfo)
	}

	st, err := store.New(ctx, srvCfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	}
	defer st.Close()

	metrics := observability.NewMetrics(srvCfg.MetricsNamespace)
	srv := server.New(st, metrics, logger)
	if err := srv.ListenAndServe(ctx, srvCfg.Addr, srvCfg.ShutdownTimeout); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	}
	return exitcode.Success
}
