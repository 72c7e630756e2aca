// SPDX-License-Identifier: MPL-2.0

package shell

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/scribe/internal/core/clock"
	"github.com/invowk/scribe/internal/l2l"
)

const (
	// DefaultLookupTimeout bounds the wait for a notification's command to
	// be registered.
	DefaultLookupTimeout = time.Second
	// DefaultLookupInterval is the pause between registry lookups.
	DefaultLookupInterval = 20 * time.Millisecond
)

type (
	// ServiceRegistrar accepts handlers for inbound actions.
	ServiceRegistrar interface {
		AddService(action string, h l2l.Handler)
	}

	// ServicesConfig holds Services configuration.
	ServicesConfig struct {
		LookupTimeout  time.Duration
		LookupInterval time.Duration
		Clock          clock.Clock
		Logger         *log.Logger
	}

	// Services routes output and exit notifications to registered commands.
	Services struct {
		registry *Registry
		cfg      ServicesConfig
		logger   *log.Logger
	}
)

// NewServices creates the notification router for registry.
func NewServices(registry *Registry, cfg ServicesConfig) *Services {
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if cfg.LookupInterval <= 0 {
		cfg.LookupInterval = DefaultLookupInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "shell"})
	}
	return &Services{registry: registry, cfg: cfg, logger: logger}
}

// Install registers the shell.onOutput and shell.onExit handlers.
func (s *Services) Install(peer ServiceRegistrar) {
	peer.AddService(ActionOnOutput, func(ctx context.Context, msg *l2l.Message, _ l2l.ReplyFunc) {
		var n OutputNotification
		if err := msg.Decode(&n); err != nil {
			s.logger.Warn("malformed output notification", "error", err)
			return
		}
		s.HandleOutput(ctx, n)
	})
	peer.AddService(ActionOnExit, func(ctx context.Context, msg *l2l.Message, _ l2l.ReplyFunc) {
		var n ExitNotification
		if err := msg.Decode(&n); err != nil {
			s.logger.Warn("malformed exit notification", "error", err)
			return
		}
		s.HandleExit(ctx, n)
	})
}

// HandleOutput delivers an output notification. It reports false when no
// command with the pid turned up in time.
func (s *Services) HandleOutput(ctx context.Context, n OutputNotification) bool {
	cmd, ok := s.lookup(ctx, n.PID)
	if !ok {
		s.logger.Warn("dropping output for unknown process", "pid", n.PID)
		return false
	}
	cmd.OnOutput(deref(n.Stdout), deref(n.Stderr))
	return true
}

// HandleExit delivers an exit notification. It reports false when no command
// with the pid turned up in time.
func (s *Services) HandleExit(ctx context.Context, n ExitNotification) bool {
	cmd, ok := s.lookup(ctx, n.PID)
	if !ok {
		s.logger.Warn("dropping exit for unknown process", "pid", n.PID)
		return false
	}
	switch {
	case n.Error != "":
		cmd.OnError(errors.New(n.Error))
	case n.Code != nil:
		cmd.OnClose(*n.Code)
	default:
		cmd.OnClose(0)
	}
	s.logger.Debug("process exited", "pid", n.PID)
	return true
}

// lookup polls the registry until pid appears, the lookup timeout passes or
// ctx ends.
func (s *Services) lookup(ctx context.Context, pid int) (*Command, bool) {
	deadline := s.cfg.Clock.Now().Add(s.cfg.LookupTimeout)
	for {
		if cmd, ok := s.registry.Find(pid); ok {
			return cmd, true
		}
		if !s.cfg.Clock.Now().Before(deadline) {
			return nil, false
		}
		select {
		case <-s.cfg.Clock.After(s.cfg.LookupInterval):
		case <-ctx.Done():
			return nil, false
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
