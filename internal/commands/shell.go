package commands

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"gtodo/internal/app"
	"gtodo/internal/config"
	"gtodo/internal/exitcode"
	"gtodo/internal/mutation"
	"gtodo/internal/output"
)

func init() {
	Register(&ShellCmd{})
}

// ShellCmd runs an interactive loop. Mutations are fired without waiting;
// list refreshes and per-kind mutation state are printed as they arrive.
type ShellCmd struct {
	in io.Reader
}

// SetInput sets the input reader (for testing). Defaults to stdin.
func (c *ShellCmd) SetInput(r io.Reader) {
	c.in = r
}

func (c *ShellCmd) Name() string       { return "shell" }
func (c *ShellCmd) Aliases() []string  { return nil }
func (c *ShellCmd) Synopsis() string   { return "Interactive session" }
func (c *ShellCmd) Usage() string      { return "gtodo shell" }
func (c *ShellCmd) NeedsBackend() bool { return true }

func (c *ShellCmd) RegisterFlags(fs *flag.FlagSet) {}

// lockedWriter serializes writes from the render goroutines and the loop.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// do runs fn with exclusive access so multi-line blocks stay together.
func (l *lockedWriter) do(fn func(w io.Writer)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.w)
}

func (c *ShellCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	in := c.in
	if in == nil {
		in = os.Stdin
	}
	prompt := isTerminal(in) && !cfg.Quiet
	w := &lockedWriter{w: out}

	renderCtx, stopRender := context.WithCancel(ctx)
	defer stopRender()
	sub := a.Lists.Subscribe(ctx)
	defer sub.Close()

	// Input that refers to items by number needs the first load.
	st, ok := sub.Settled(ctx)
	if !ok {
		fmt.Fprintln(errOut, "error: cancelled")
		return exitcode.UserError
	}
	output.FormatListState(w, st)

	events, stopEvents := a.Mutations.Watch()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			st, ok := sub.Next(renderCtx)
			if !ok {
				return
			}
			if !st.Loading {
				w.do(func(w io.Writer) { output.FormatListState(w, st) })
			}
		}
	}()
	go func() {
		defer wg.Done()
		for ev := range events {
			w.do(func(w io.Writer) { output.FormatMutation(w, ev.Kind, ev.State) })
		}
	}()

	code := c.loop(ctx, a, in, w, prompt)

	// Let in-flight invocations settle so their results are printed.
	a.Mutations.Wait()
	stopEvents()
	stopRender()
	wg.Wait()

	output.FormatListState(w, a.Lists.Current())
	return code
}

func (c *ShellCmd) loop(ctx context.Context, a *app.App, in io.Reader, w *lockedWriter, prompt bool) int {
	scanner := bufio.NewScanner(in)
	for {
		if prompt {
			fmt.Fprint(w, "gtodo> ")
		}
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			return exitcode.Success
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, rest := fields[0], fields[1:]

		switch cmd {
		case "quit", "exit":
			return exitcode.Success
		case "help":
			fmt.Fprint(w, shellHelpText)
		case "add":
			text := strings.TrimSpace(strings.Join(rest, " "))
			if text == "" {
				fmt.Fprintln(w, "error: text required")
				continue
			}
			a.Mutations.InvokeCreate(text)
		case "done", "rm":
			ref, err := ParseItemRef(rest)
			if err != nil {
				fmt.Fprintf(w, "error: %v\n", err)
				continue
			}
			item, err := ref.Resolve(a.Lists.Current().Items)
			if err != nil {
				fmt.Fprintf(w, "error: %v\n", err)
				continue
			}
			if cmd == "done" {
				a.Mutations.InvokeToggle(item.ID)
			} else {
				a.Mutations.InvokeDelete(item.ID)
			}
		case "list":
			st := a.Lists.Current()
			w.do(func(w io.Writer) { output.FormatListState(w, st) })
		case "status":
			w.do(func(w io.Writer) {
				for _, k := range mutation.Kinds {
					output.FormatMutation(w, k, a.Mutations.State(k))
				}
			})
		case "wait":
			a.Mutations.Wait()
		default:
			fmt.Fprintf(w, "error: unknown command: %s\n", cmd)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return exitcode.UserError
	}
	return exitcode.Success
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

const shellHelpText = `Commands:
  add <text...>   Create a task
  done <n|id>     Mark a task completed
  rm <n|id>       Delete a task
  list            Print the cached list
  status          Print create/toggle/delete state
  wait            Wait for pending operations
  help            Print this help
  quit            Leave the shell
`
