// SPDX-License-Identifier: MPL-2.0

package serverbase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	// PhaseStart covers TransitionToStarting itself.
	PhaseStart Phase = "start"
	// PhaseListen covers binding the listener.
	PhaseListen Phase = "listen"
	// PhaseInit covers building the protocol server on the listener.
	PhaseInit Phase = "init"
	// PhaseStartup covers waiting for the serve loop to report ready.
	PhaseStartup Phase = "startup"
	// PhaseServe covers the serve loop after it reported ready.
	PhaseServe Phase = "serve"
)

// ErrInvalidState is wrapped by StateError.
var ErrInvalidState = errors.New("invalid server state")

type (
	// Phase names the part of a server's life a failure happened in.
	Phase string

	// StateError reports a lifecycle call made in the wrong state.
	StateError struct {
		Op    string
		State State
	}

	// FailureError is the error recorded by Fail. LastError and the Err
	// channel carry it, so callers can tell a bind failure from a startup
	// timeout with errors.As.
	FailureError struct {
		Phase Phase
		Err   error
	}

	// Base is embedded by servers. An instance is single-use: once stopped or
	// failed, create a new one.
	Base struct {
		state atomic.Int32

		mu      sync.Mutex
		lastErr error

		ctx       context.Context
		cancel    context.CancelFunc
		wg        sync.WaitGroup
		startedCh chan struct{}
		errCh     chan error
		observer  func(from, to State)
	}
)

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s server in state %s", e.Op, e.State)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

func (e *FailureError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
}

func (e *FailureError) Unwrap() error { return e.Err }

// PhaseOf returns the phase recorded in err, or "" when err is not a
// FailureError.
func PhaseOf(err error) Phase {
	var fe *FailureError
	if errors.As(err, &fe) {
		return fe.Phase
	}
	return ""
}

// NewBase returns a Base in StateCreated.
func NewBase(opts ...Option) *Base {
	b := &Base{
		startedCh: make(chan struct{}),
		errCh:     make(chan error, 1),
	}
	b.state.Store(int32(StateCreated))
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current state.
func (b *Base) State() State {
	return State(b.state.Load())
}

// IsRunning reports whether the state is StateRunning.
func (b *Base) IsRunning() bool {
	return b.State() == StateRunning
}

// Err returns the channel of asynchronous server errors. It is closed by
// CloseErrChannel.
func (b *Base) Err() <-chan error {
	return b.errCh
}

// LastError returns the FailureError that moved the server to StateFailed.
func (b *Base) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// TransitionToStarting moves Created to Starting and creates the server
// context. A done ctx fails the server in PhaseStart; any state other than
// Created yields a StateError.
func (b *Base) TransitionToStarting(ctx context.Context) error {
	// A cancelled ctx must fail here, before any goroutine can reach Running.
	if err := ctx.Err(); err != nil {
		return b.Fail(PhaseStart, fmt.Errorf("context cancelled before start: %w", err))
	}
	if !b.swap(StateCreated, StateStarting) {
		return &StateError{Op: "start", State: b.State()}
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	return nil
}

// TransitionToRunning moves Starting to Running and closes StartedChannel.
func (b *Base) TransitionToRunning() {
	if b.swap(StateStarting, StateRunning) {
		close(b.startedCh)
	}
}

// Fail records err as a FailureError for phase, moves to Failed, cancels the
// server context and queues the failure on Err. It returns the recorded
// error.
func (b *Base) Fail(phase Phase, err error) error {
	failure := &FailureError{Phase: phase, Err: err}

	b.mu.Lock()
	b.lastErr = failure
	b.mu.Unlock()

	b.store(StateFailed)
	if b.cancel != nil {
		b.cancel()
	}
	b.SendError(failure)
	return failure
}

// TransitionToStopping moves Starting or Running to Stopping and cancels the
// server context. It returns false when there is nothing to stop; a server
// that never started goes straight to Stopped.
func (b *Base) TransitionToStopping() bool {
	for {
		current := b.State()
		switch current {
		case StateCreated:
			if b.swap(StateCreated, StateStopped) {
				return false
			}
		case StateStarting, StateRunning:
			if b.swap(current, StateStopping) {
				if b.cancel != nil {
					b.cancel()
				}
				return true
			}
		default:
			return false
		}
	}
}

// TransitionToStopped marks the end of a shutdown. Call it after
// WaitForShutdown.
func (b *Base) TransitionToStopped() {
	b.store(StateStopped)
}

// WaitForReady blocks until the server runs or ctx ends.
func (b *Base) WaitForReady(ctx context.Context) error {
	select {
	case <-b.startedCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for server ready: %w", ctx.Err())
	}
}

// WaitForShutdown blocks until every tracked goroutine returned.
func (b *Base) WaitForShutdown() {
	b.wg.Wait()
}

// Context is cancelled when the server stops or fails. It is nil before
// TransitionToStarting.
func (b *Base) Context() context.Context {
	return b.ctx
}

// AddGoroutine registers a goroutine with WaitForShutdown.
func (b *Base) AddGoroutine() {
	b.wg.Add(1)
}

// DoneGoroutine must be deferred by every goroutine registered with
// AddGoroutine.
func (b *Base) DoneGoroutine() {
	b.wg.Done()
}

// Go runs fn in a tracked goroutine with the server context.
func (b *Base) Go(fn func(ctx context.Context)) {
	b.AddGoroutine()
	go func() {
		defer b.DoneGoroutine()
		fn(b.ctx)
	}()
}

// SendError queues err on the Err channel, dropping it when the buffer is
// full.
func (b *Base) SendError(err error) {
	select {
	case b.errCh <- err:
	default:
	}
}

// CloseErrChannel closes the Err channel. Call it once, after
// TransitionToStopped.
func (b *Base) CloseErrChannel() {
	close(b.errCh)
}

// StartedChannel is closed when the server enters StateRunning.
func (b *Base) StartedChannel() <-chan struct{} {
	return b.startedCh
}

func (b *Base) swap(from, to State) bool {
	if !b.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	b.notify(from, to)
	return true
}

func (b *Base) store(to State) {
	if from := State(b.state.Swap(int32(to))); from != to {
		b.notify(from, to)
	}
}

func (b *Base) notify(from, to State) {
	if b.observer != nil {
		b.observer(from, to)
	}
}
