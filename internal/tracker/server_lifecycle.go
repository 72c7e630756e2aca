// SPDX-License-Identifier: MPL-2.0

package tracker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/logging"

	"github.com/invowk/scribe/internal/core/serverbase"
)

// Start binds the listener and blocks until the tracker accepts connections,
// fails, ctx ends or the startup timeout passes. After a nil return, watch
// Err for runtime failures.
func (s *Server) Start(ctx context.Context) error {
	if err := s.TransitionToStarting(ctx); err != nil {
		return err
	}

	startupCtx, cancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer cancel()

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var lc net.ListenConfig
	listener, err := lc.Listen(startupCtx, "tcp", addr)
	if err != nil {
		return s.Fail(serverbase.PhaseListen, fmt.Errorf("listen on %s: %w", addr, err))
	}

	srv, err := wish.NewServer(
		wish.WithAddress(addr),
		wish.WithPublicKeyAuth(s.publicKeyHandler),
		wish.WithPasswordAuth(s.passwordHandler),
		wish.WithMiddleware(
			s.sessionMiddleware(),
			logging.MiddlewareWithLogger(s.logger),
		),
	)
	if err != nil {
		_ = listener.Close()
		return s.Fail(serverbase.PhaseInit, fmt.Errorf("create SSH server: %w", err))
	}

	s.srvMu.Lock()
	s.srv = srv
	s.listener = listener
	s.addr = listener.Addr().String()
	s.srvMu.Unlock()

	s.AddGoroutine()
	go s.serve(srv, listener)

	s.AddGoroutine()
	go s.cleanupExpiredTokens()

	select {
	case <-s.StartedChannel():
		s.logger.Info("tracker listening", "address", s.addr)
		return nil
	case err := <-s.Err():
		return s.Fail(serverbase.PhaseStartup, err)
	case <-startupCtx.Done():
		return s.Fail(serverbase.PhaseStartup, fmt.Errorf("startup timeout: %w", startupCtx.Err()))
	}
}

// Stop shuts the tracker down, waiting for open sessions up to the shutdown
// timeout. Running processes are killed. Repeated calls are no-ops.
func (s *Server) Stop() error {
	if !s.TransitionToStopping() {
		s.WaitForShutdown()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.shell.KillAll()

	var shutdownErr error
	s.srvMu.Lock()
	if s.srv != nil {
		if err := s.srv.Shutdown(ctx); err != nil && !isClosedConnError(err) {
			if errors.Is(err, context.DeadlineExceeded) {
				_ = s.srv.Close()
			}
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.srvMu.Unlock()

	s.WaitForShutdown()
	s.TransitionToStopped()
	s.CloseErrChannel()
	s.logger.Info("tracker stopped")
	return shutdownErr
}

func (s *Server) serve(srv *ssh.Server, listener net.Listener) {
	defer s.DoneGoroutine()

	s.TransitionToRunning()
	if err := srv.Serve(listener); err != nil {
		if errors.Is(err, ssh.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
			return
		}
		s.SendError(&serverbase.FailureError{Phase: serverbase.PhaseServe, Err: err})
	}
}

// Address returns the bound host:port. It blocks until the tracker runs and
// returns "" when it never gets there.
func (s *Server) Address() string {
	ctx := s.Context()
	if ctx == nil {
		return ""
	}
	select {
	case <-s.StartedChannel():
	case <-ctx.Done():
		select {
		case <-s.StartedChannel():
		default:
			return ""
		}
	}
	s.srvMu.Lock()
	defer s.srvMu.Unlock()
	return s.addr
}

// Port returns the bound port, or 0 when the tracker is not running.
func (s *Server) Port() int {
	_, port, err := net.SplitHostPort(s.Address())
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return 0
	}
	return n
}

// Wait blocks until the tracker stops and returns the failure, if any.
func (s *Server) Wait() error {
	s.WaitForShutdown()
	if s.State() == serverbase.StateFailed {
		return s.LastError()
	}
	return nil
}

func isClosedConnError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && errors.Is(opErr.Err, net.ErrClosed)
}
