// SPDX-License-Identifier: MPL-2.0

package tracker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/invowk/scribe/internal/l2l"
	"github.com/invowk/scribe/internal/shell"
)

// sessionMiddleware routes a session by its command: l2l attaches a peer, no
// command with a pty starts an interactive shell, anything else runs as a
// script.
func (s *Server) sessionMiddleware() wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			cmd := sess.Command()
			_, _, isPty := sess.Pty()
			switch {
			case len(cmd) == 1 && cmd[0] == l2l.SessionCommand:
				s.servePeer(sess)
			case len(cmd) == 0 && isPty:
				s.runInteractiveShell(sess)
			case len(cmd) == 0:
				wish.Fatalln(sess, "scribe tracker: a command or a pty is required")
			default:
				s.runScript(sess, strings.Join(cmd, " "))
			}
			next(sess)
		}
	}
}

// servePeer speaks l2l over the session channel until either side closes it.
// Processes spawned through the peer are killed when it goes away.
func (s *Server) servePeer(sess ssh.Session) {
	peer := l2l.NewPeer(sess, l2l.Config{
		ID:             shell.TrackerID,
		RequestTimeout: s.cfg.RequestTimeout,
		Logger:         s.logger.WithPrefix("l2l"),
	})
	s.shell.Install(peer)
	s.logger.Info("peer attached", "user", sess.User(), "remote", sess.RemoteAddr())

	ctx := s.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-sess.Context().Done():
			_ = peer.Close()
		case <-ctx.Done():
		}
	}()

	err := peer.Serve(ctx)
	s.shell.KillOwnedBy(peer)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("peer failed", "remote", sess.RemoteAddr(), "error", err)
		_ = sess.Exit(1)
		return
	}
	s.logger.Info("peer detached", "remote", sess.RemoteAddr())
	_ = sess.Exit(0)
}

func (s *Server) runInteractiveShell(sess ssh.Session) {
	cmd := exec.CommandContext(sess.Context(), s.cfg.DefaultShell)
	cmd.Env = append(os.Environ(), sess.Environ()...)
	if s.cfg.Dir != "" {
		cmd.Dir = s.cfg.Dir
	}
	ptyReq, winCh, _ := sess.Pty()
	cmd.Env = append(cmd.Env, "TERM="+ptyReq.Term)

	f, err := startPty(cmd)
	if err != nil {
		wish.Fatalf(sess, "error starting shell: %v\n", err)
		return
	}
	defer func() { _ = f.Close() }()

	setWinsize(f, ptyReq.Window.Width, ptyReq.Window.Height)
	go func() {
		for win := range winCh {
			setWinsize(f, win.Width, win.Height)
		}
	}()
	go func() { _, _ = copyBuffer(f, sess) }()
	_, _ = copyBuffer(sess, f)

	_ = sess.Exit(exitCode(cmd.Wait()))
}

// runScript runs a one-shot command through the embedded interpreter with
// the session as its stdio.
func (s *Server) runScript(sess ssh.Session, script string) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(script), "")
	if err != nil {
		wish.Fatalf(sess, "parse command: %v\n", err)
		return
	}
	opts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(append(os.Environ(), sess.Environ()...)...)),
		interp.StdIO(sess, sess, sess.Stderr()),
	}
	if s.cfg.Dir != "" {
		opts = append(opts, interp.Dir(s.cfg.Dir))
	}
	runner, err := interp.New(opts...)
	if err != nil {
		wish.Fatalf(sess, "create interpreter: %v\n", err)
		return
	}

	code := 0
	if err := runner.Run(sess.Context(), prog); err != nil {
		var status interp.ExitStatus
		if !errors.As(err, &status) {
			_, _ = fmt.Fprintf(sess.Stderr(), "error: %v\n", err)
			code = 1
		} else {
			code = int(status)
		}
	}
	_ = sess.Exit(code)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
