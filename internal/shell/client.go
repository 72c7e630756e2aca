// SPDX-License-Identifier: MPL-2.0

package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"mvdan.cc/sh/v3/syntax"
)

// ErrRemoteExit is the sentinel error wrapped by RemoteExitError.
var ErrRemoteExit = errors.New("remote command failed")

type (
	// Peer is both halves of a transport connection.
	Peer interface {
		Transport
		ServiceRegistrar
	}

	// Client runs commands on one tracker connection.
	Client struct {
		peer     Peer
		registry *Registry
		services *Services

		installOnce sync.Once

		mu         sync.Mutex
		defaultDir string
	}

	// RemoteExitError is returned by the file helpers when the remote command
	// exits with a non-zero code.
	RemoteExitError struct {
		Command string
		Code    int
		Stderr  string
	}
)

// NewClient creates a client over peer. Notification services are installed
// on the first command.
func NewClient(peer Peer, cfg ServicesConfig) *Client {
	registry := NewRegistry()
	return &Client{
		peer:     peer,
		registry: registry,
		services: NewServices(registry, cfg),
	}
}

// Registry returns the client's live commands.
func (c *Client) Registry() *Registry { return c.registry }

// RunCommand spawns command and returns once the tracker acknowledged it.
// Use the command's WhenDone future to wait for it to end.
func (c *Client) RunCommand(ctx context.Context, command string, in Instructions) (*Command, error) {
	cmd := c.Command(command)
	if err := cmd.Spawn(ctx, in); err != nil {
		return cmd, err
	}
	return cmd, nil
}

// Command returns an unspawned handle bound to this connection, for callers
// that subscribe to events before calling Spawn.
func (c *Client) Command(command string) *Command {
	c.installOnce.Do(func() { c.services.Install(c.peer) })
	return NewCommand(c.peer, c.registry, command)
}

// Exec runs command to completion and returns the finished handle.
func (c *Client) Exec(ctx context.Context, command string, in Instructions) (*Command, error) {
	cmd, err := c.RunCommand(ctx, command, in)
	if err != nil {
		return cmd, err
	}
	if _, err := cmd.WhenDone().Wait(ctx); err != nil {
		return cmd, err
	}
	return cmd, nil
}

// ReadFile returns the contents of a file on the tracker host.
func (c *Client) ReadFile(ctx context.Context, path string) (string, error) {
	quoted, err := syntax.Quote(path, syntax.LangPOSIX)
	if err != nil {
		return "", fmt.Errorf("quote %q: %w", path, err)
	}
	cmd, err := c.checked(ctx, "cat "+quoted, Instructions{})
	if err != nil {
		return "", err
	}
	return cmd.Stdout(), nil
}

// WriteFile replaces the contents of a file on the tracker host.
func (c *Client) WriteFile(ctx context.Context, path, content string) error {
	quoted, err := syntax.Quote(path, syntax.LangPOSIX)
	if err != nil {
		return fmt.Errorf("quote %q: %w", path, err)
	}
	_, err = c.checked(ctx, "tee "+quoted+" >/dev/null", Instructions{Stdin: &content})
	return err
}

// DefaultDirectory returns the tracker's working directory. The first answer
// is cached.
func (c *Client) DefaultDirectory(ctx context.Context) (string, error) {
	c.mu.Lock()
	dir := c.defaultDir
	c.mu.Unlock()
	if dir != "" {
		return dir, nil
	}

	var reply InfoReply
	if err := c.call(ctx, ActionInfo, &reply); err != nil {
		return "", err
	}
	if reply.Error != "" {
		return "", &RemoteError{Action: ActionInfo, Message: reply.Error}
	}

	c.mu.Lock()
	c.defaultDir = reply.DefaultDirectory
	c.mu.Unlock()
	return reply.DefaultDirectory, nil
}

// Env returns the tracker's process environment.
func (c *Client) Env(ctx context.Context) (map[string]string, error) {
	var reply EnvReply
	if err := c.call(ctx, ActionEnv, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, &RemoteError{Action: ActionEnv, Message: reply.Error}
	}
	return reply.Env, nil
}

func (c *Client) call(ctx context.Context, action string, reply any) error {
	resp, err := c.peer.SendAndWait(ctx, TrackerID, action, struct{}{})
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	return resp.Decode(reply)
}

func (c *Client) checked(ctx context.Context, command string, in Instructions) (*Command, error) {
	cmd, err := c.Exec(ctx, command, in)
	if err != nil {
		return nil, err
	}
	if code, _ := cmd.ExitCode(); code != 0 {
		return nil, &RemoteExitError{Command: command, Code: code, Stderr: cmd.Stderr()}
	}
	return cmd, nil
}

// Error implements the error interface for RemoteExitError.
func (e *RemoteExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Command, msg)
}

// Unwrap returns ErrRemoteExit for errors.Is() compatibility.
func (e *RemoteExitError) Unwrap() error { return ErrRemoteExit }
