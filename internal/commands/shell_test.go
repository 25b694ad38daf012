package commands_test

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"gtodo/internal/app"
	"gtodo/internal/commands"
	"gtodo/internal/config"
	"gtodo/internal/exitcode"
	"gtodo/internal/testutil"
)

func runShell(t *testing.T, svc *testutil.FakeService, script string) (string, int) {
	t.Helper()
	cmd := &commands.ShellCmd{}
	cmd.SetInput(strings.NewReader(script))

	var out, errOut bytes.Buffer
	cfg := &config.Config{Dir: t.TempDir()}
	code := cmd.Run(context.Background(), cfg, app.New(svc, nil, nil), nil, &out, &errOut)
	return out.String(), code
}

func TestShellCommand_Session(t *testing.T) {
	svc := testutil.NewFakeService()
	script := "add buy milk\nwait\nadd eggs\nwait\ndone 1\nwait\nrm 2\nquit\n"

	out, code := runShell(t, svc, script)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d", exitcode.Success, code)
	}
	for _, want := range []string{"create: pending", "create: ok", "toggle: ok", "delete: ok"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q:\n%s", want, out)
		}
	}
	if !strings.HasSuffix(out, "------------\n   1  [x] buy milk\n------------\n") {
		t.Errorf("expected final list to show the completed item:\n%s", out)
	}
	if got := len(svc.Items()); got != 1 {
		t.Errorf("expected 1 item on the server, got %d", got)
	}
}

func TestShellCommand_DoubleToggle(t *testing.T) {
	svc := testutil.NewFakeService()
	svc.AddItem("t1", "a", false)
	script := "wait\ndone 1\nwait\ndone 1\nwait\nstatus\n"

	out, code := runShell(t, svc, script)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if !strings.Contains(out, "toggle: error: Todo is already completed") {
		t.Errorf("expected already completed error:\n%s", out)
	}
	if svc.Calls("toggle") != 1 {
		t.Errorf("expected 1 toggle call, got %d", svc.Calls("toggle"))
	}
}

func TestShellCommand_InputErrors(t *testing.T) {
	svc := testutil.NewFakeService()
	script := "add   \ndone\nrm 9\nfrobnicate\nhelp\n"

	out, code := runShell(t, svc, script)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d", exitcode.Success, code)
	}
	for _, want := range []string{
		"error: text required",
		"error: item reference required",
		"error: item number out of range: 9",
		"error: unknown command: frobnicate",
		"Commands:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q:\n%s", want, out)
		}
	}
	if svc.Calls("create")+svc.Calls("toggle")+svc.Calls("delete") != 0 {
		t.Error("invalid input reached the service")
	}
}

func TestServeCommand_StopsOnCancel(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GTODO_ADDR", "")
	t.Setenv("GTODO_SHUTDOWN_TIMEOUT", "")

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	cmd := &commands.ServeCmd{}
	cmd.SetAddr(addr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	var out, errOut bytes.Buffer
	go func() {
		done <- cmd.Run(ctx, &config.Config{Dir: t.TempDir(), Quiet: true}, nil, nil, &out, &errOut)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			conn.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never accepted connections: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case code := <-done:
		if code != exitcode.Success {
			t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}
