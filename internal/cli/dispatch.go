// Package cli parses the command line and dispatches to commands.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gtodo/internal/app"
	"gtodo/internal/commands"
	"gtodo/internal/config"
	"gtodo/internal/exitcode"
	"gtodo/internal/logging"
	"gtodo/internal/observability"
	"gtodo/internal/service"
)

// ServiceFactory creates a Service from config.
// Used to inject the backend during dispatch.
type ServiceFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (service.Service, error)

// Dispatcher handles command-line parsing and dispatch.
type Dispatcher struct {
	registry *commands.Registry
	factory  ServiceFactory
}

// NewDispatcher creates a new dispatcher with the given registry and service
// factory. A nil factory selects DefaultServiceFactory.
func NewDispatcher(registry *commands.Registry, factory ServiceFactory) *Dispatcher {
	if factory == nil {
		factory = DefaultServiceFactory
	}
	return &Dispatcher{
		registry: registry,
		factory:  factory,
	}
}

// Run parses arguments and dispatches to the appropriate command.
// Returns the exit code.
func (d *Dispatcher) Run(ctx context.Context, args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		return d.dispatch(ctx, "list", nil, out, errOut)
	}
	// Global flags go after the command name.
	if strings.HasPrefix(args[0], "-") {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", args[0])
		return exitcode.UserError
	}
	return d.dispatch(ctx, args[0], args[1:], out, errOut)
}

func (d *Dispatcher) dispatch(ctx context.Context, cmdName string, args []string, out, errOut io.Writer) int {
	cmd, ok := d.registry.Find(cmdName)
	if !ok {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", cmdName)
		return exitcode.UserError
	}
	return d.dispatchCommand(ctx, cmd, args, out, errOut)
}

// globalFlags are accepted by every command after its name.
type globalFlags struct {
	configDir string
	quiet     bool
	debug     bool
}

func (g *globalFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&g.configDir, "config", "", "")
	fs.BoolVar(&g.quiet, "quiet", false, "")
	fs.BoolVar(&g.debug, "debug", false, "")
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, cmd commands.Command, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var global globalFlags
	global.register(fs)
	cmd.RegisterFlags(fs)

	if err := fs.Parse(args); err != nil {
		return reportFlagError(errOut, err)
	}

	// flag stops at the first positional; a later "-x" is a misplaced flag.
	positional := fs.Args()
	if len(positional) > 0 && strings.HasPrefix(positional[0], "-") {
		fmt.Fprintf(errOut, "error: unknown flag: %s\n", positional[0])
		return exitcode.UserError
	}

	cfg, err := config.New(global.configDir)
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}
	cfg.Quiet = global.quiet
	cfg.Debug = global.debug

	logger := logging.New(errOut, cfg.Debug)
	logger.Debug("dispatch", "command", cmd.Name(), "backend", cfg.Backend, "config_dir", cfg.Dir)

	var a *app.App
	if cmd.NeedsBackend() {
		if a, err = d.connect(ctx, cfg, logger); err != nil {
			return reportBackendError(errOut, err)
		}
	}
	return cmd.Run(ctx, cfg, a, positional, out, errOut)
}

// connect builds the backend and wraps it in the sync layer.
func (d *Dispatcher) connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app.App, error) {
	svc, err := d.factory(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return app.New(svc, logger, observability.NewMetrics(config.AppName)), nil
}

func reportBackendError(errOut io.Writer, err error) int {
	if errors.Is(err, service.ErrAuth) {
		fmt.Fprintf(errOut, "error: auth error: %s\n", err)
		return exitcode.AuthError
	}
	fmt.Fprintf(errOut, "error: backend error: %s\n", err)
	return exitcode.BackendError
}

func reportFlagError(errOut io.Writer, err error) int {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "flag needs an argument"):
		fmt.Fprintf(errOut, "error: flag needs an argument: %s\n", strings.TrimSpace(msg[strings.LastIndex(msg, ":")+1:]))
	case strings.HasPrefix(msg, "flag provided but not defined: "):
		fmt.Fprintf(errOut, "error: unknown flag: %s\n", strings.TrimPrefix(msg, "flag provided but not defined: "))
	default:
		fmt.Fprintf(errOut, "error: %s\n", msg)
	}
	return exitcode.UserError
}
