// SPDX-License-Identifier: MPL-2.0

package tracker

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/invowk/scribe/internal/core/clock"
	"github.com/invowk/scribe/internal/core/serverbase"
	"github.com/invowk/scribe/internal/l2l"
	"github.com/invowk/scribe/internal/shell"
	"github.com/invowk/scribe/internal/testutil"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.Logger = quietLogger()
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func startedServer(t *testing.T) *Server {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping tracker server test in short mode")
	}
	srv := newTestServer(t, Config{Dir: t.TempDir()})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(testutil.DeferStop(t, srv))
	return srv
}

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Time{})
	srv := newTestServer(t, Config{TokenTTL: time.Hour, Clock: fake})

	token, err := srv.GenerateToken("cli")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if len(token.Value) != 64 {
		t.Errorf("len(Value) = %d, want 64 hex chars", len(token.Value))
	}
	if token.ID == "" || token.Label != "cli" {
		t.Errorf("token = %+v, want an ID and label cli", token)
	}
	if want := fake.Now().Add(time.Hour); !token.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", token.ExpiresAt, want)
	}

	other, _ := srv.GenerateToken("cli")
	if other.Value == token.Value {
		t.Error("GenerateToken() returned the same value twice")
	}
}

func TestValidateToken(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Time{})
	srv := newTestServer(t, Config{TokenTTL: time.Hour, Clock: fake})
	token, err := srv.GenerateToken("cli")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if got, ok := srv.ValidateToken(token.Value); !ok || got.ID != token.ID {
		t.Errorf("ValidateToken() = %v, %v; want the issued token", got, ok)
	}
	if _, ok := srv.ValidateToken("not-a-token"); ok {
		t.Error("ValidateToken(unknown) = true, want false")
	}

	fake.Advance(time.Hour + time.Millisecond)
	if _, ok := srv.ValidateToken(token.Value); ok {
		t.Error("ValidateToken() after TTL = true, want false")
	}
	fake.Set(token.CreatedAt)
	if _, ok := srv.ValidateToken(token.Value); ok {
		t.Error("expired token should have been revoked on first failed validation")
	}
}

func TestRevokeAndPruneTokens(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Time{})
	srv := newTestServer(t, Config{TokenTTL: time.Minute, Clock: fake})

	revoked, _ := srv.GenerateToken("a")
	srv.RevokeToken(revoked.Value)
	if _, ok := srv.ValidateToken(revoked.Value); ok {
		t.Error("ValidateToken() after RevokeToken = true, want false")
	}

	_, _ = srv.GenerateToken("old")
	fake.Advance(30 * time.Second)
	fresh, _ := srv.GenerateToken("fresh")
	fake.Advance(45 * time.Second)

	if n := srv.pruneTokens(); n != 1 {
		t.Errorf("pruneTokens() = %d, want 1", n)
	}
	if _, ok := srv.ValidateToken(fresh.Value); !ok {
		t.Error("fresh token should survive pruning")
	}
}

func TestTokenValueString(t *testing.T) {
	t.Parallel()

	if got := TokenValue("short").String(); got != "****" {
		t.Errorf("String() = %q, want ****", got)
	}
	if got := TokenValue("0123456789abcdef").String(); got != "0123...cdef" {
		t.Errorf("String() = %q, want 0123...cdef", got)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "zero", cfg: Config{}},
		{name: "defaults", cfg: DefaultConfig()},
		{name: "blank host", cfg: Config{Host: "  "}, wantErr: true},
		{name: "negative port", cfg: Config{Port: -1}, wantErr: true},
		{name: "port too large", cfg: Config{Port: 70000}, wantErr: true},
		{name: "negative ttl", cfg: Config{TokenTTL: -time.Second}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}

	if _, err := New(Config{Port: -1}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New() error = %v, want ErrInvalidConfig", err)
	}
}

func TestServerStartStop(t *testing.T) {
	t.Parallel()

	srv := startedServer(t)
	if srv.State() != serverbase.StateRunning {
		t.Fatalf("State() = %s, want running", srv.State())
	}
	if srv.Port() == 0 {
		t.Error("Port() = 0 after Start, want the bound port")
	}
	if !strings.HasPrefix(srv.Address(), "127.0.0.1:") {
		t.Errorf("Address() = %q, want 127.0.0.1:<port>", srv.Address())
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() error = nil, want error")
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if srv.State() != serverbase.StateStopped {
		t.Errorf("State() = %s, want stopped", srv.State())
	}
	if err := srv.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
	if err := srv.Wait(); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
	if _, err := srv.ConnectionInfo("late"); err == nil {
		t.Error("ConnectionInfo() on stopped tracker should fail")
	}
}

func TestServerStartFailures(t *testing.T) {
	t.Parallel()

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, Config{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := srv.Start(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Start() error = %v, want context.Canceled", err)
		}
		if srv.Address() != "" {
			t.Errorf("Address() = %q, want empty", srv.Address())
		}
	})

	t.Run("port in use", func(t *testing.T) {
		t.Parallel()
		if testing.Short() {
			t.Skip("skipping listener test in short mode")
		}
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("Listen() error = %v", err)
		}
		defer testutil.MustClose(t, l)

		srv := newTestServer(t, Config{Port: l.Addr().(*net.TCPAddr).Port})
		err = srv.Start(context.Background())
		if err == nil {
			testutil.MustStop(t, srv)
			t.Fatal("Start() on a used port error = nil, want error")
		}
		if got := serverbase.PhaseOf(err); got != serverbase.PhaseListen {
			t.Errorf("PhaseOf(Start()) = %q, want %q", got, serverbase.PhaseListen)
		}
		if srv.State() != serverbase.StateFailed {
			t.Errorf("State() = %s, want failed", srv.State())
		}
		if err := srv.Wait(); err == nil {
			t.Error("Wait() after failed start error = nil, want the failure")
		}
	})
}

func TestIsClosedConnError(t *testing.T) {
	t.Parallel()

	if isClosedConnError(errors.New("other")) {
		t.Error("isClosedConnError(plain) = true")
	}
	if !isClosedConnError(&net.OpError{Op: "accept", Err: net.ErrClosed}) {
		t.Error("isClosedConnError(OpError{ErrClosed}) = false")
	}
}

func dialTracker(t *testing.T, srv *Server, token TokenValue) (*l2l.Peer, error) {
	t.Helper()
	return l2l.DialSSH(testutil.Context(t, 0), l2l.DialConfig{
		Addr:  srv.Address(),
		Token: string(token),
		Peer:  l2l.Config{ID: "test-client", Logger: quietLogger()},
	})
}

func TestTrackerEndToEnd(t *testing.T) {
	t.Parallel()

	srv := startedServer(t)
	info, err := srv.ConnectionInfo("e2e")
	if err != nil {
		t.Fatalf("ConnectionInfo() error = %v", err)
	}
	if info.User != DefaultUser || info.Addr != srv.Address() {
		t.Errorf("ConnectionInfo() = %+v", info)
	}

	peer, err := dialTracker(t, srv, info.Token)
	if err != nil {
		t.Fatalf("DialSSH() error = %v", err)
	}
	defer testutil.MustClose(t, peer)

	client := shell.NewClient(peer, shell.ServicesConfig{Logger: quietLogger()})
	ctx := testutil.Context(t, 0)

	cmd, err := client.Exec(ctx, "echo over ssh; exit 4", shell.Instructions{})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if cmd.Stdout() != "over ssh\n" {
		t.Errorf("Stdout() = %q, want %q", cmd.Stdout(), "over ssh\n")
	}
	if code, _ := cmd.ExitCode(); code != 4 {
		t.Errorf("ExitCode() = %d, want 4", code)
	}

	dir, err := client.DefaultDirectory(ctx)
	if err != nil || dir == "" {
		t.Errorf("DefaultDirectory() = %q, %v", dir, err)
	}
}

func TestTrackerRejectsBadToken(t *testing.T) {
	t.Parallel()

	srv := startedServer(t)
	_, err := dialTracker(t, srv, "wrong")
	if !errors.Is(err, l2l.ErrTransport) {
		t.Errorf("DialSSH() with bad token error = %v, want ErrTransport", err)
	}
}

func TestTrackerKillsProcessesOfDetachedPeer(t *testing.T) {
	t.Parallel()
	requireBinary(t, "sleep")

	srv := startedServer(t)
	info, err := srv.ConnectionInfo("detach")
	if err != nil {
		t.Fatalf("ConnectionInfo() error = %v", err)
	}
	peer, err := dialTracker(t, srv, info.Token)
	if err != nil {
		t.Fatalf("DialSSH() error = %v", err)
	}

	client := shell.NewClient(peer, shell.ServicesConfig{Logger: quietLogger()})
	if _, err := client.RunCommand(testutil.Context(t, 0), "sleep 30", shell.Instructions{}); err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}
	testutil.Eventually(t, 0, func() bool { return srv.Shell().Running() == 1 }, "process registered")

	testutil.MustClose(t, peer)
	testutil.Eventually(t, 0, func() bool { return srv.Shell().Running() == 0 }, "process killed after detach")
}
