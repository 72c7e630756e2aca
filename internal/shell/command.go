// SPDX-License-Identifier: MPL-2.0

package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/invowk/scribe/internal/l2l"
)

const (
	// EventPID fires when the spawn acknowledgement assigns a pid.
	EventPID EventKind = iota
	// EventStdout carries one stdout chunk.
	EventStdout
	// EventStderr carries one stderr chunk.
	EventStderr
	// EventClose fires when the process exits with a code.
	EventClose
	// EventError fires when spawning fails or the process ends with an error.
	EventError
)

var (
	// ErrRemote is the sentinel error wrapped by RemoteError.
	ErrRemote = errors.New("remote error")
	// ErrAlreadySpawned is returned by a second Spawn call.
	ErrAlreadySpawned = errors.New("command already spawned")
)

type (
	// Transport sends a request to a remote endpoint and waits for its answer.
	Transport interface {
		SendAndWait(ctx context.Context, target, action string, data any) (*l2l.Message, error)
	}

	// EventKind names a Command event.
	EventKind int

	// Event is delivered to subscribers. Chunk is set for output events, Code
	// for EventClose and Err for EventError.
	Event struct {
		Kind  EventKind
		PID   int
		Chunk string
		Code  int
		Err   error
	}

	// Instructions are the optional parts of a spawn request.
	Instructions struct {
		Env   map[string]string
		Cwd   string
		Stdin *string
	}

	// RemoteError is an error reported by the tracker in a reply.
	RemoteError struct {
		Action  string
		Message string
	}

	// Command is a handle to one remote process.
	Command struct {
		transport Transport
		registry  *Registry
		command   string
		startTime time.Time

		mu         sync.Mutex
		pid        int
		spawned    bool
		spawnErr   error
		exitCode   *int
		stdout     strings.Builder
		stderr     strings.Builder
		lastSignal string
		subs       map[int]func(Event)
		nextSub    int

		started *Future[*Command]
		done    *Future[*Command]
	}
)

// NewCommand creates an unstarted command. registry receives the command once
// it has a pid.
func NewCommand(transport Transport, registry *Registry, command string) *Command {
	return &Command{
		transport: transport,
		registry:  registry,
		command:   command,
		startTime: time.Now(),
		subs:      make(map[int]func(Event)),
		started:   newFuture[*Command](),
		done:      newFuture[*Command](),
	}
}

// String returns a human-readable name for the event kind.
func (k EventKind) String() string {
	switch k {
	case EventPID:
		return "pid"
	case EventStdout:
		return "stdout"
	case EventStderr:
		return "stderr"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Spawn asks the tracker to start the command and waits for the
// acknowledgement. A failed spawn leaves the command terminal with exit code
// 1 and rejects both futures.
func (c *Command) Spawn(ctx context.Context, in Instructions) error {
	c.mu.Lock()
	if c.spawned {
		c.mu.Unlock()
		return ErrAlreadySpawned
	}
	c.spawned = true
	c.mu.Unlock()

	req := SpawnRequest{Command: c.command, Env: in.Env, Stdin: in.Stdin}
	if req.Env == nil {
		req.Env = map[string]string{}
	}
	if in.Cwd != "" {
		req.Cwd = &in.Cwd
	}

	var reply SpawnReply
	err := c.call(ctx, ActionSpawn, req, &reply)
	if err == nil && reply.Error != "" {
		err = &RemoteError{Action: ActionSpawn, Message: reply.Error}
	}
	if err != nil {
		c.failSpawn(err)
		return err
	}

	c.mu.Lock()
	c.pid = reply.PID
	c.mu.Unlock()
	// Notifications reach the command only through the registry, so
	// registering last keeps EventPID and WhenStarted ahead of any exit.
	c.emit(Event{Kind: EventPID, PID: reply.PID})
	c.started.resolve(c)
	c.registry.Add(c)
	return nil
}

func (c *Command) failSpawn(err error) {
	c.mu.Lock()
	c.spawnErr = err
	code := 1
	c.exitCode = &code
	c.mu.Unlock()

	c.emit(Event{Kind: EventError, Err: err})
	c.started.reject(err)
	c.done.reject(err)
}

// WriteToStdin sends content to the process's stdin. It does nothing when the
// command is not running. Errors reported by the tracker are not returned;
// only a failure to deliver the request is.
func (c *Command) WriteToStdin(ctx context.Context, content string) error {
	return c.writeStdin(ctx, StdinRequest{Stdin: content})
}

// CloseStdin signals end of input to the process.
func (c *Command) CloseStdin(ctx context.Context) error {
	return c.writeStdin(ctx, StdinRequest{End: true})
}

func (c *Command) writeStdin(ctx context.Context, req StdinRequest) error {
	pid, running := c.runningPID()
	if !running {
		return nil
	}
	req.PID = pid
	var reply StatusReply
	return c.call(ctx, ActionWriteToStdin, req, &reply)
}

// Kill signals the process and returns the WhenDone future so callers can
// wait for it to end. An empty signal sends DefaultSignal. Kill returns nil,
// nil when the command is not running.
func (c *Command) Kill(ctx context.Context, signal string) (*Future[*Command], error) {
	pid, running := c.runningPID()
	if !running {
		return nil, nil
	}
	if signal == "" {
		signal = DefaultSignal
	}

	var reply StatusReply
	if err := c.call(ctx, ActionKill, KillRequest{PID: pid, Signal: signal}, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, &RemoteError{Action: ActionKill, Message: reply.Error}
	}

	c.mu.Lock()
	c.lastSignal = signal
	c.mu.Unlock()
	return c.done, nil
}

// OnOutput appends output chunks and fires one event per non-empty chunk.
func (c *Command) OnOutput(stdout, stderr string) {
	c.mu.Lock()
	if c.exitCode != nil {
		c.mu.Unlock()
		return
	}
	c.stdout.WriteString(stdout)
	c.stderr.WriteString(stderr)
	pid := c.pid
	c.mu.Unlock()

	if stdout != "" {
		c.emit(Event{Kind: EventStdout, PID: pid, Chunk: stdout})
	}
	if stderr != "" {
		c.emit(Event{Kind: EventStderr, PID: pid, Chunk: stderr})
	}
}

// OnClose records the exit code and resolves WhenDone.
func (c *Command) OnClose(code int) {
	c.registry.Remove(c)

	c.mu.Lock()
	if c.exitCode != nil {
		c.mu.Unlock()
		return
	}
	c.exitCode = &code
	pid := c.pid
	c.mu.Unlock()

	c.emit(Event{Kind: EventClose, PID: pid, Code: code})
	c.done.resolve(c)
}

// OnError records err on stderr, sets exit code 1 and rejects WhenDone.
func (c *Command) OnError(err error) {
	c.registry.Remove(c)

	c.mu.Lock()
	if c.exitCode != nil {
		c.mu.Unlock()
		return
	}
	c.stderr.WriteString(err.Error())
	code := 1
	c.exitCode = &code
	pid := c.pid
	c.mu.Unlock()

	c.emit(Event{Kind: EventError, PID: pid, Err: err})
	c.done.reject(err)
}

// Subscribe registers fn for every subsequent event and returns a function
// that removes it. fn must not block.
func (c *Command) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Command) emit(ev Event) {
	c.mu.Lock()
	subs := make([]func(Event), 0, len(c.subs))
	for id := range c.nextSub {
		if fn, ok := c.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func (c *Command) call(ctx context.Context, action string, req, reply any) error {
	resp, err := c.transport.SendAndWait(ctx, TrackerID, action, req)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	return resp.Decode(reply)
}

func (c *Command) runningPID() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pid, c.pid != 0 && c.exitCode == nil
}

// CommandString returns the shell source the command runs.
func (c *Command) CommandString() string { return c.command }

// StartTime returns when the handle was created.
func (c *Command) StartTime() time.Time { return c.startTime }

// PID returns the remote pid, or 0 before the spawn acknowledgement.
func (c *Command) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pid
}

// ExitCode returns the exit code once the command is done.
func (c *Command) ExitCode() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exitCode == nil {
		return 0, false
	}
	return *c.exitCode, true
}

// SpawnError returns the reason spawning failed, or nil.
func (c *Command) SpawnError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spawnErr
}

// Stdout returns everything the process has written to stdout so far.
func (c *Command) Stdout() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stdout.String()
}

// Stderr returns everything the process has written to stderr so far.
func (c *Command) Stderr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stderr.String()
}

// LastSignal returns the signal most recently sent by Kill.
func (c *Command) LastSignal() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSignal
}

// IsRunning reports whether the command has a pid and no exit code.
func (c *Command) IsRunning() bool {
	_, running := c.runningPID()
	return running
}

// IsDone reports whether the exit code is set.
func (c *Command) IsDone() bool {
	_, done := c.ExitCode()
	return done
}

// WhenStarted is settled by the spawn acknowledgement.
func (c *Command) WhenStarted() *Future[*Command] { return c.started }

// WhenDone is settled when the command exits or fails.
func (c *Command) WhenDone() *Future[*Command] { return c.done }

// Error implements the error interface for RemoteError.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// Unwrap returns ErrRemote for errors.Is() compatibility.
func (e *RemoteError) Unwrap() error { return ErrRemote }
