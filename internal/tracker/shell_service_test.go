// SPDX-License-Identifier: MPL-2.0

package tracker

import (
	"context"
	"errors"
	"io"
	"net"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/scribe/internal/l2l"
	"github.com/invowk/scribe/internal/shell"
)

func quietLogger() *log.Logger { return log.New(io.Discard) }

// pipeClient connects a shell client to a ShellService over an in-memory
// l2l connection.
func pipeClient(t *testing.T, dir string) (*shell.Client, *ShellService, *l2l.Peer) {
	t.Helper()

	a, b := net.Pipe()
	trackerPeer := l2l.NewPeer(a, l2l.Config{ID: shell.TrackerID, Logger: quietLogger()})
	clientPeer := l2l.NewPeer(b, l2l.Config{ID: "client", Logger: quietLogger()})

	svc := NewShellService(dir, quietLogger())
	svc.Install(trackerPeer)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = clientPeer.Close()
		_ = trackerPeer.Close()
	})
	go func() { _ = trackerPeer.Serve(ctx) }()
	go func() { _ = clientPeer.Serve(ctx) }()

	return shell.NewClient(clientPeer, shell.ServicesConfig{Logger: quietLogger()}), svc, trackerPeer
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func requireBinary(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func TestShellServiceExec(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	client, svc, _ := pipeClient(t, dir)
	ctx := testContext(t)

	tests := []struct {
		name       string
		command    string
		in         shell.Instructions
		wantStdout string
		wantStderr string
		wantCode   int
	}{
		{name: "stdout", command: "echo hello", wantStdout: "hello\n"},
		{name: "stderr", command: "echo oops >&2", wantStderr: "oops\n"},
		{name: "exit code", command: "exit 3", wantCode: 3},
		{
			name:       "env",
			command:    `echo "$GREETING"`,
			in:         shell.Instructions{Env: map[string]string{"GREETING": "hi there"}},
			wantStdout: "hi there\n",
		},
		{name: "default dir", command: "pwd", wantStdout: dir + "\n"},
		{
			name:       "stdin at spawn",
			command:    "read a; read b; echo \"$b $a\"",
			in:         shell.Instructions{Stdin: strPtr("one\ntwo\n")},
			wantStdout: "two one\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := client.Exec(ctx, tt.command, tt.in)
			if err != nil {
				t.Fatalf("Exec(%q) error = %v", tt.command, err)
			}
			if cmd.Stdout() != tt.wantStdout {
				t.Errorf("Stdout() = %q, want %q", cmd.Stdout(), tt.wantStdout)
			}
			if cmd.Stderr() != tt.wantStderr {
				t.Errorf("Stderr() = %q, want %q", cmd.Stderr(), tt.wantStderr)
			}
			if code, _ := cmd.ExitCode(); code != tt.wantCode {
				t.Errorf("ExitCode() = %d, want %d", code, tt.wantCode)
			}
		})
	}

	if n := svc.Running(); n != 0 {
		t.Errorf("Running() = %d after all commands exited, want 0", n)
	}
}

func TestShellServiceCwd(t *testing.T) {
	t.Parallel()

	client, _, _ := pipeClient(t, "")
	ctx := testContext(t)
	sub := t.TempDir()

	cmd, err := client.Exec(ctx, "pwd", shell.Instructions{Cwd: sub})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if got := strings.TrimSpace(cmd.Stdout()); got != sub {
		t.Errorf("pwd = %q, want %q", got, sub)
	}

	_, err = client.RunCommand(ctx, "pwd", shell.Instructions{Cwd: filepath.Join(sub, "missing")})
	if !errors.Is(err, shell.ErrRemote) {
		t.Errorf("RunCommand() in missing dir error = %v, want ErrRemote", err)
	}
}

func TestShellServiceSpawnParseError(t *testing.T) {
	t.Parallel()

	client, svc, _ := pipeClient(t, "")
	cmd, err := client.RunCommand(testContext(t), "echo 'unterminated", shell.Instructions{})
	if !errors.Is(err, shell.ErrRemote) {
		t.Fatalf("RunCommand() error = %v, want ErrRemote", err)
	}
	if cmd.SpawnError() == nil {
		t.Error("SpawnError() = nil, want the parse failure")
	}
	if svc.Running() != 0 {
		t.Errorf("Running() = %d, want 0", svc.Running())
	}
}

func TestShellServiceInteractiveStdin(t *testing.T) {
	t.Parallel()

	client, _, _ := pipeClient(t, "")
	ctx := testContext(t)

	cmd, err := client.RunCommand(ctx, `while read line; do echo "got $line"; done`, shell.Instructions{})
	if err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}
	if err := cmd.WriteToStdin(ctx, "a\nb\n"); err != nil {
		t.Fatalf("WriteToStdin() error = %v", err)
	}
	if err := cmd.CloseStdin(ctx); err != nil {
		t.Fatalf("CloseStdin() error = %v", err)
	}
	if _, err := cmd.WhenDone().Wait(ctx); err != nil {
		t.Fatalf("WhenDone() error = %v", err)
	}
	if cmd.Stdout() != "got a\ngot b\n" {
		t.Errorf("Stdout() = %q, want %q", cmd.Stdout(), "got a\ngot b\n")
	}
}

func TestShellServiceKill(t *testing.T) {
	t.Parallel()
	requireBinary(t, "sleep")

	client, svc, _ := pipeClient(t, "")
	ctx := testContext(t)

	cmd, err := client.RunCommand(ctx, "sleep 30", shell.Instructions{})
	if err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}
	done, err := cmd.Kill(ctx, "KILL")
	if err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
	if _, err := done.Wait(ctx); err != nil {
		t.Fatalf("Kill() future error = %v", err)
	}
	if code, _ := cmd.ExitCode(); code != 128+9 {
		t.Errorf("ExitCode() = %d, want %d", code, 128+9)
	}
	if cmd.LastSignal() != "KILL" {
		t.Errorf("LastSignal() = %q, want KILL", cmd.LastSignal())
	}

	if err := svc.Kill(cmd.PID(), "KILL"); err == nil {
		t.Error("Kill() of an exited pid should fail")
	}
	if err := svc.Kill(1, "BOGUS"); err == nil || !strings.Contains(err.Error(), "unknown signal") {
		t.Errorf("Kill() with bad signal error = %v", err)
	}
}

func TestShellServiceKillOwnedBy(t *testing.T) {
	t.Parallel()
	requireBinary(t, "sleep")

	client, svc, trackerPeer := pipeClient(t, "")
	ctx := testContext(t)

	cmd, err := client.RunCommand(ctx, "sleep 30", shell.Instructions{})
	if err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}
	svc.KillOwnedBy(trackerPeer)
	if _, err := cmd.WhenDone().Wait(ctx); err != nil {
		t.Fatalf("WhenDone() error = %v", err)
	}
	if code, _ := cmd.ExitCode(); code != 128+15 {
		t.Errorf("ExitCode() = %d, want %d", code, 128+15)
	}
}

func TestShellServiceFiles(t *testing.T) {
	t.Parallel()
	requireBinary(t, "cat")
	requireBinary(t, "tee")

	client, _, _ := pipeClient(t, "")
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "notes with space.txt")

	if err := client.WriteFile(ctx, path, "line one\nline two\n"); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := client.ReadFile(ctx, path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got != "line one\nline two\n" {
		t.Errorf("ReadFile() = %q", got)
	}

	_, err = client.ReadFile(ctx, filepath.Join(t.TempDir(), "absent"))
	var exitErr *shell.RemoteExitError
	if !errors.As(err, &exitErr) || exitErr.Code == 0 {
		t.Errorf("ReadFile(absent) error = %v, want RemoteExitError", err)
	}
}

func TestShellServiceInfoAndEnv(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	client, _, _ := pipeClient(t, dir)
	ctx := testContext(t)

	got, err := client.DefaultDirectory(ctx)
	if err != nil || got != dir {
		t.Errorf("DefaultDirectory() = %q, %v; want %q", got, err, dir)
	}
	env, err := client.Env(ctx)
	if err != nil {
		t.Fatalf("Env() error = %v", err)
	}
	if _, ok := env["PATH"]; !ok {
		t.Error("Env() should include PATH")
	}
}

func TestStdinPipe(t *testing.T) {
	t.Parallel()

	p := newStdinPipe()
	if _, err := p.Write([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Write([]byte("def")); err != nil {
		t.Fatal(err)
	}
	_ = p.Close()
	if _, err := p.Write([]byte("late")); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Write() after Close error = %v, want ErrClosedPipe", err)
	}

	got, err := io.ReadAll(p)
	if err != nil || string(got) != "abcdef" {
		t.Errorf("ReadAll() = %q, %v; want abcdef", got, err)
	}
}

func TestMergeEnv(t *testing.T) {
	t.Parallel()

	got := environMap(mergeEnv([]string{"A=1", "B=2", "bogus"}, map[string]string{"B": "3", "C": "x=y"}))
	want := map[string]string{"A": "1", "B": "3", "C": "x=y"}
	if len(got) != len(want) {
		t.Fatalf("mergeEnv() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("mergeEnv()[%q] = %q, want %q", k, got[k], v)
		}
	}
}

func strPtr(s string) *string { return &s }
