// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/scribe/internal/config"
	"github.com/invowk/scribe/internal/l2l"
	"github.com/invowk/scribe/internal/shell"
	"github.com/invowk/scribe/internal/tracker"
)

const testToken = "secret"

type (
	// staticConfig serves a fixed configuration.
	staticConfig struct {
		cfg *config.Config
		err error
	}

	// syncBuffer is a bytes.Buffer safe for concurrent writers.
	syncBuffer struct {
		mu  sync.Mutex
		buf bytes.Buffer
	}

	cliResult struct {
		stdout string
		stderr string
		err    error
	}
)

func (s staticConfig) Load(context.Context, config.LoadOptions) (*config.Config, error) {
	if s.err != nil {
		return nil, s.err
	}
	cfg := *s.cfg
	return &cfg, nil
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// runCLI executes the command tree with args. Nil Config and Dial fields get
// defaults and a dialer that refuses to connect.
func runCLI(t *testing.T, deps Dependencies, args ...string) cliResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return runCLIContext(ctx, t, deps, &syncBuffer{}, &syncBuffer{}, args...)
}

// runCLIContext is runCLI with a caller-owned context and output buffers, for
// commands that run until cancelled.
func runCLIContext(ctx context.Context, t *testing.T, deps Dependencies, stdout, stderr *syncBuffer, args ...string) cliResult {
	t.Helper()

	deps.Stdout, deps.Stderr = stdout, stderr
	if deps.Stdin == nil {
		deps.Stdin = strings.NewReader("")
	}
	if deps.Config == nil {
		deps.Config = staticConfig{cfg: config.DefaultConfig()}
	}
	if deps.Dial == nil {
		deps.Dial = func(ctx context.Context, cfg l2l.DialConfig) (*l2l.Peer, error) {
			return nil, &l2l.TransportError{Addr: cfg.Addr, Op: "dial", Err: errors.New("no tracker in tests")}
		}
	}

	root := NewRootCommand(NewApp(deps))
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// pipeDialer connects to an in-process shell service over net.Pipe and
// accepts only testToken.
func pipeDialer(t *testing.T, dir string) Dialer {
	t.Helper()
	return func(ctx context.Context, cfg l2l.DialConfig) (*l2l.Peer, error) {
		if cfg.Token != testToken {
			return nil, &l2l.TransportError{Addr: cfg.Addr, Op: "handshake", Err: errors.New("unable to authenticate")}
		}
		quiet := log.New(io.Discard)
		a, b := net.Pipe()
		trackerPeer := l2l.NewPeer(a, l2l.Config{ID: shell.TrackerID, Logger: quiet})
		tracker.NewShellService(dir, quiet).Install(trackerPeer)

		cfg.Peer.Logger = quiet
		clientPeer := l2l.NewPeer(b, cfg.Peer)

		serveCtx, cancel := context.WithCancel(context.Background())
		t.Cleanup(func() {
			cancel()
			_ = trackerPeer.Close()
		})
		go func() { _ = trackerPeer.Serve(serveCtx) }()
		go func() { _ = clientPeer.Serve(serveCtx) }()
		return clientPeer, nil
	}
}

func requireBinary(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v (%T), want *ExitError", err, err)
	}
	return exitErr.Code
}
