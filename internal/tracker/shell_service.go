// SPDX-License-Identifier: MPL-2.0

package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/charmbracelet/log"
	"golang.org/x/exp/maps"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/invowk/scribe/internal/l2l"
	"github.com/invowk/scribe/internal/shell"
)

var signals = map[string]syscall.Signal{
	"HUP":  syscall.SIGHUP,
	"INT":  syscall.SIGINT,
	"QUIT": syscall.SIGQUIT,
	"KILL": syscall.SIGKILL,
	"TERM": syscall.SIGTERM,
}

type (
	// ShellService runs shell commands on behalf of connected peers. Process
	// ids are unique across all peers of one service.
	ShellService struct {
		logger *log.Logger
		dir    string

		mu      sync.Mutex
		nextPID int
		procs   map[int]*process
	}

	process struct {
		pid    int
		owner  *l2l.Peer
		target string
		stdin  *stdinPipe
		cancel context.CancelFunc

		mu     sync.Mutex
		signal syscall.Signal
	}

	// notifyWriter turns process output into shell.onOutput notifications.
	notifyWriter struct {
		proc   *process
		stderr bool
		logger *log.Logger
	}
)

// NewShellService returns a service whose commands start in dir unless a
// spawn request names another directory. An empty dir is the tracker's
// working directory.
func NewShellService(dir string, logger *log.Logger) *ShellService {
	if dir == "" {
		if wd, err := os.Getwd(); err == nil {
			dir = wd
		}
	}
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "tracker"})
	}
	return &ShellService{
		logger: logger,
		dir:    dir,
		procs:  make(map[int]*process),
	}
}

// Install registers the shell actions on peer.
func (s *ShellService) Install(peer *l2l.Peer) {
	peer.AddService(shell.ActionSpawn, func(ctx context.Context, msg *l2l.Message, reply l2l.ReplyFunc) {
		var req shell.SpawnRequest
		if err := msg.Decode(&req); err != nil {
			_ = reply(shell.SpawnReply{Error: err.Error()})
			return
		}
		proc, run, err := s.spawn(peer, msg.Sender, req)
		if err != nil {
			_ = reply(shell.SpawnReply{Error: err.Error()})
			return
		}
		_ = reply(shell.SpawnReply{PID: proc.pid})
		go run()
	})
	peer.AddService(shell.ActionWriteToStdin, func(_ context.Context, msg *l2l.Message, reply l2l.ReplyFunc) {
		var req shell.StdinRequest
		if err := msg.Decode(&req); err != nil {
			_ = reply(shell.StatusReply{Error: err.Error()})
			return
		}
		_ = reply(statusReply(s.WriteToStdin(req)))
	})
	peer.AddService(shell.ActionKill, func(_ context.Context, msg *l2l.Message, reply l2l.ReplyFunc) {
		var req shell.KillRequest
		if err := msg.Decode(&req); err != nil {
			_ = reply(shell.StatusReply{Error: err.Error()})
			return
		}
		_ = reply(statusReply(s.Kill(req.PID, req.Signal)))
	})
	peer.AddService(shell.ActionInfo, func(_ context.Context, _ *l2l.Message, reply l2l.ReplyFunc) {
		_ = reply(shell.InfoReply{DefaultDirectory: s.dir})
	})
	peer.AddService(shell.ActionEnv, func(_ context.Context, _ *l2l.Message, reply l2l.ReplyFunc) {
		_ = reply(shell.EnvReply{Env: environMap(os.Environ())})
	})
}

// Running returns the number of live processes.
func (s *ShellService) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

// WriteToStdin feeds a running process. End closes its stdin after the write.
func (s *ShellService) WriteToStdin(req shell.StdinRequest) error {
	proc, err := s.find(req.PID)
	if err != nil {
		return err
	}
	if req.Stdin != "" {
		if _, err := io.WriteString(proc.stdin, req.Stdin); err != nil {
			return fmt.Errorf("pid %d: stdin closed", req.PID)
		}
	}
	if req.End {
		return proc.stdin.Close()
	}
	return nil
}

// Kill stops a running process. The process reports exit code 128 plus the
// signal number. An empty signal means KILL.
func (s *ShellService) Kill(pid int, signal string) error {
	name := strings.TrimPrefix(strings.ToUpper(signal), "SIG")
	if name == "" {
		name = shell.DefaultSignal
	}
	sig, ok := signals[name]
	if !ok {
		return fmt.Errorf("unknown signal %q", signal)
	}
	proc, err := s.find(pid)
	if err != nil {
		return err
	}
	proc.mu.Lock()
	proc.signal = sig
	proc.mu.Unlock()
	proc.cancel()
	s.logger.Info("process killed", "pid", pid, "signal", name)
	return nil
}

// KillOwnedBy stops every process spawned through peer.
func (s *ShellService) KillOwnedBy(peer *l2l.Peer) {
	s.killWhere(func(p *process) bool { return p.owner == peer })
}

// KillAll stops every running process.
func (s *ShellService) KillAll() {
	s.killWhere(func(*process) bool { return true })
}

func (s *ShellService) killWhere(match func(*process) bool) {
	s.mu.Lock()
	var victims []int
	for _, p := range maps.Values(s.procs) {
		if match(p) {
			victims = append(victims, p.pid)
		}
	}
	s.mu.Unlock()

	for _, pid := range victims {
		_ = s.Kill(pid, "TERM")
	}
}

// spawn parses and prepares req. The returned run function executes the
// command and sends its exit notification.
func (s *ShellService) spawn(owner *l2l.Peer, target string, req shell.SpawnRequest) (*process, func(), error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(req.Command), "")
	if err != nil {
		return nil, nil, fmt.Errorf("parse command: %w", err)
	}

	dir := s.dir
	if req.Cwd != nil && *req.Cwd != "" {
		dir = *req.Cwd
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, nil, fmt.Errorf("invalid working directory %q", dir)
	}

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	proc := &process{owner: owner, target: target, stdin: newStdinPipe(), cancel: cancel}

	runner, err := interp.New(
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(mergeEnv(os.Environ(), req.Env)...)),
		interp.StdIO(stdinR, &notifyWriter{proc: proc, logger: s.logger}, &notifyWriter{proc: proc, stderr: true, logger: s.logger}),
	)
	if err != nil {
		cancel()
		_ = stdinR.Close()
		_ = stdinW.Close()
		return nil, nil, fmt.Errorf("create interpreter: %w", err)
	}

	if req.Stdin != nil {
		_, _ = io.WriteString(proc.stdin, *req.Stdin)
		_ = proc.stdin.Close()
	}

	s.mu.Lock()
	s.nextPID++
	proc.pid = s.nextPID
	s.procs[proc.pid] = proc
	s.mu.Unlock()
	s.logger.Info("process spawned", "pid", proc.pid, "command", req.Command)

	run := func() {
		go func() {
			_, _ = io.Copy(stdinW, proc.stdin)
			_ = stdinW.Close()
		}()

		runErr := runner.Run(ctx, prog)
		cancel()
		_ = proc.stdin.Close()
		_ = stdinR.Close()

		s.mu.Lock()
		delete(s.procs, proc.pid)
		s.mu.Unlock()

		exit := proc.exitNotification(runErr)
		if err := owner.Notify(target, shell.ActionOnExit, exit); err != nil {
			s.logger.Debug("exit notification not delivered", "pid", proc.pid, "error", err)
		}
		s.logger.Info("process exited", "pid", proc.pid)
	}
	return proc, run, nil
}

func (s *ShellService) find(pid int) (*process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	proc, ok := s.procs[pid]
	if !ok {
		return nil, fmt.Errorf("no process with pid %d", pid)
	}
	return proc, nil
}

func (p *process) exitNotification(runErr error) shell.ExitNotification {
	p.mu.Lock()
	sig := p.signal
	p.mu.Unlock()

	code := 0
	switch {
	case sig != 0:
		code = 128 + int(sig)
	case runErr == nil:
	default:
		var status interp.ExitStatus
		if !errors.As(runErr, &status) {
			return shell.ExitNotification{PID: p.pid, Error: runErr.Error()}
		}
		code = int(status)
	}
	return shell.ExitNotification{PID: p.pid, Code: &code}
}

// Write implements io.Writer.
func (w *notifyWriter) Write(b []byte) (int, error) {
	chunk := string(b)
	n := shell.OutputNotification{PID: w.proc.pid}
	if w.stderr {
		n.Stderr = &chunk
	} else {
		n.Stdout = &chunk
	}
	if err := w.proc.owner.Notify(w.proc.target, shell.ActionOnOutput, n); err != nil {
		w.logger.Debug("output notification not delivered", "pid", w.proc.pid, "error", err)
	}
	return len(b), nil
}

func statusReply(err error) shell.StatusReply {
	if err != nil {
		return shell.StatusReply{Error: err.Error()}
	}
	return shell.StatusReply{Status: "ok"}
}

// mergeEnv overlays extra on base, a KEY=VALUE list.
func mergeEnv(base []string, extra map[string]string) []string {
	merged := environMap(base)
	maps.Copy(merged, extra)
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}

func environMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return env
}
