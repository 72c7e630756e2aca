// SPDX-License-Identifier: MPL-2.0

package l2l

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	// SessionCommand is the SSH exec request that attaches a peer.
	SessionCommand = "l2l"

	defaultDialTimeout = 10 * time.Second
)

// ErrTransport is the sentinel error wrapped by TransportError.
var ErrTransport = errors.New("transport failure")

type (
	// DialConfig describes an SSH endpoint that serves SessionCommand.
	DialConfig struct {
		Addr  string
		User  string
		Token string
		// Timeout bounds connecting and the SSH handshake (default: 10s).
		Timeout time.Duration
		Peer    Config
	}

	// TransportError is returned when an SSH connection cannot be set up.
	TransportError struct {
		Addr string
		Op   string
		Err  error
	}

	// sessionConn joins an SSH session's pipes into one connection.
	sessionConn struct {
		io.Reader
		stdin   io.WriteCloser
		session *ssh.Session
		client  *ssh.Client
	}
)

// DialSSH connects to cfg.Addr, authenticates with the token as password and
// attaches a peer to a SessionCommand session. The returned peer is already
// serving and lives until Close is called or the connection drops.
func DialSSH(ctx context.Context, cfg DialConfig) (*Peer, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultDialTimeout
	}
	if cfg.User == "" {
		cfg.User = "scribe"
	}

	dialer := net.Dialer{Timeout: cfg.Timeout}
	raw, err := dialer.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, &TransportError{Addr: cfg.Addr, Op: "dial", Err: err}
	}

	clientCfg := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{ssh.Password(cfg.Token)},
		// Tracker host keys are generated per process.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // token auth
		Timeout:         cfg.Timeout,
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(raw, cfg.Addr, clientCfg)
	if err != nil {
		_ = raw.Close()
		return nil, &TransportError{Addr: cfg.Addr, Op: "handshake", Err: err}
	}
	_ = raw.SetDeadline(time.Time{})
	client := ssh.NewClient(c, chans, reqs)

	conn, err := openSession(client)
	if err != nil {
		_ = client.Close()
		return nil, &TransportError{Addr: cfg.Addr, Op: "session", Err: err}
	}

	peer := NewPeer(conn, cfg.Peer)
	go func() {
		if err := peer.Serve(context.Background()); err != nil {
			peer.logger.Error("connection lost", "addr", cfg.Addr, "error", err)
		}
	}()
	return peer, nil
}

func openSession(client *ssh.Client) (*sessionConn, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, err
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	if err := session.Start(SessionCommand); err != nil {
		_ = session.Close()
		return nil, err
	}
	return &sessionConn{Reader: stdout, stdin: stdin, session: session, client: client}, nil
}

func (c *sessionConn) Write(p []byte) (int, error) { return c.stdin.Write(p) }

func (c *sessionConn) Close() error {
	_ = c.stdin.Close()
	_ = c.session.Close()
	return c.client.Close()
}

// Error implements the error interface for TransportError.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns ErrTransport and the underlying error.
func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }
