// SPDX-License-Identifier: MPL-2.0

package l2l

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/exp/maps"
)

// DefaultRequestTimeout bounds SendAndWait when the caller's context has no
// deadline.
const DefaultRequestTimeout = 30 * time.Second

type (
	// ReplyFunc answers the message a Handler is serving.
	ReplyFunc func(data any) error

	// Handler serves one action. reply may be called at most once; a handler
	// serving a push notification need not call it.
	Handler func(ctx context.Context, msg *Message, reply ReplyFunc)

	// Config holds immutable peer configuration.
	Config struct {
		// ID is sent as the sender of every message.
		ID string
		// RequestTimeout bounds SendAndWait (default: 30s).
		RequestTimeout time.Duration
		Logger         *log.Logger
	}

	// Peer is one end of a message connection.
	Peer struct {
		cfg    Config
		conn   io.ReadWriteCloser
		logger *log.Logger

		writeMu sync.Mutex
		enc     *json.Encoder

		mu       sync.Mutex
		services map[string]Handler
		pending  map[string]chan *Message
		queue    []*Message
		queued   chan struct{}

		closeOnce sync.Once
		done      chan struct{}
		err       error
	}

	// unknownActionReply is sent for actions that have no service.
	unknownActionReply struct {
		Error string `json:"error"`
	}
)

// NewPeer wraps conn. Call Serve to start reading.
func NewPeer(conn io.ReadWriteCloser, cfg Config) *Peer {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "l2l"})
	}
	return &Peer{
		cfg:      cfg,
		conn:     conn,
		logger:   logger,
		enc:      json.NewEncoder(conn),
		services: make(map[string]Handler),
		pending:  make(map[string]chan *Message),
		queued:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// ID returns the peer's sender ID.
func (p *Peer) ID() string { return p.cfg.ID }

// AddService registers h for action, replacing any previous handler.
func (p *Peer) AddService(action string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.services[action] = h
}

// HasService reports whether a handler is registered for action.
func (p *Peer) HasService(action string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.services[action]
	return ok
}

// Services returns the registered actions in sorted order.
func (p *Peer) Services() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	actions := maps.Keys(p.services)
	slices.Sort(actions)
	return actions
}

// Done is closed once the peer has shut down.
func (p *Peer) Done() <-chan struct{} { return p.done }

// Err returns the error that closed the peer, or nil for a clean close.
func (p *Peer) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Serve reads messages until the connection ends, ctx is cancelled or Close
// is called. It returns nil when the remote side closed the connection.
func (p *Peer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		p.dispatch(ctx)
	}()
	go func() {
		select {
		case <-ctx.Done():
			p.shutdown(ctx.Err())
		case <-p.done:
		}
	}()

	dec := json.NewDecoder(p.conn)
	var readErr error
	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				readErr = fmt.Errorf("read message: %w", err)
			}
			break
		}
		if err := msg.Validate(); err != nil {
			p.logger.Warn("dropping message", "error", err)
			continue
		}
		p.route(&msg)
	}

	p.shutdown(readErr)
	cancel()
	<-dispatched
	return p.Err()
}

// Send writes msg without waiting for an answer. Sender is filled in.
func (p *Peer) Send(msg *Message) error {
	select {
	case <-p.done:
		return ErrPeerClosed
	default:
	}
	if msg.Sender == "" {
		msg.Sender = p.cfg.ID
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.enc.Encode(msg); err != nil {
		return fmt.Errorf("write %s: %w", msg.Action, err)
	}
	p.logger.Debug("sent", "action", msg.Action, "id", msg.ID, "target", msg.Target)
	return nil
}

// Notify sends a push notification carrying data to target.
func (p *Peer) Notify(target, action string, data any) error {
	msg, err := NewMessage(action, data)
	if err != nil {
		return err
	}
	msg.Target = target
	return p.Send(msg)
}

// SendAndWait sends a request carrying data to target and waits for its
// response.
func (p *Peer) SendAndWait(ctx context.Context, target, action string, data any) (*Message, error) {
	msg, err := NewMessage(action, data)
	if err != nil {
		return nil, err
	}
	msg.Target = target

	ch := make(chan *Message, 1)
	p.mu.Lock()
	p.pending[msg.ID] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, msg.ID)
		p.mu.Unlock()
	}()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RequestTimeout)
		defer cancel()
	}

	if err := p.Send(msg); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-p.done:
		return nil, ErrPeerClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s response: %w", action, ctx.Err())
	}
}

// Close shuts the peer down and closes the connection.
func (p *Peer) Close() error {
	p.shutdown(nil)
	return nil
}

func (p *Peer) route(msg *Message) {
	p.logger.Debug("received", "action", msg.Action, "id", msg.ID, "sender", msg.Sender)
	if msg.IsResponse() {
		p.mu.Lock()
		ch, ok := p.pending[msg.InResponseTo]
		p.mu.Unlock()
		if !ok {
			p.logger.Debug("response without waiter", "inResponseTo", msg.InResponseTo)
			return
		}
		select {
		case ch <- msg:
		default:
			p.logger.Debug("duplicate response", "inResponseTo", msg.InResponseTo)
		}
		return
	}

	p.mu.Lock()
	p.queue = append(p.queue, msg)
	p.mu.Unlock()
	select {
	case p.queued <- struct{}{}:
	default:
	}
}

// dispatch serves queued messages one at a time until ctx ends.
func (p *Peer) dispatch(ctx context.Context) {
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-p.queued:
				continue
			}
		}
		msg := p.queue[0]
		p.queue = p.queue[1:]
		h, ok := p.services[msg.Action]
		p.mu.Unlock()

		if !ok {
			p.logger.Warn("no service for action", "action", msg.Action, "sender", msg.Sender)
			_ = p.reply(msg, unknownActionReply{Error: "message not understood: " + msg.Action})
			continue
		}
		h(ctx, msg, p.replier(msg))
	}
}

func (p *Peer) replier(req *Message) ReplyFunc {
	var once sync.Once
	return func(data any) error {
		err := errors.New("already replied")
		once.Do(func() { err = p.reply(req, data) })
		return err
	}
}

func (p *Peer) reply(req *Message, data any) error {
	resp, err := NewMessage(req.Action+responseSuffix, data)
	if err != nil {
		return err
	}
	resp.Target = req.Sender
	resp.InResponseTo = req.ID
	return p.Send(resp)
}

func (p *Peer) shutdown(err error) {
	p.closeOnce.Do(func() {
		p.err = err
		close(p.done)
		_ = p.conn.Close() // Best-effort; the read loop observes the close
	})
}
