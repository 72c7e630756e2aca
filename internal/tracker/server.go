// SPDX-License-Identifier: MPL-2.0

package tracker

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"

	"github.com/invowk/scribe/internal/core/clock"
	"github.com/invowk/scribe/internal/core/serverbase"
)

const (
	// DefaultUser is the SSH user reported in ConnectionInfo.
	DefaultUser = "scribe"

	defaultTokenTTL        = 24 * time.Hour
	defaultShutdownTimeout = 10 * time.Second
	defaultStartupTimeout  = 5 * time.Second
	tokenCleanupInterval   = 5 * time.Minute
)

// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
var ErrInvalidConfig = errors.New("invalid tracker config")

type (
	// TokenValue is the secret a client presents as its SSH password.
	TokenValue string

	// Token is an issued credential.
	Token struct {
		ID        string
		Value     TokenValue
		Label     string
		CreatedAt time.Time
		ExpiresAt time.Time
	}

	// Config holds tracker settings. Zero fields take their defaults.
	Config struct {
		// Host is the bind address (default: 127.0.0.1).
		Host string
		// Port is the listen port; 0 picks a free one.
		Port int
		// TokenTTL is how long issued tokens stay valid (default: 24h).
		TokenTTL time.Duration
		// ShutdownTimeout bounds graceful shutdown (default: 10s).
		ShutdownTimeout time.Duration
		// StartupTimeout bounds Start (default: 5s).
		StartupTimeout time.Duration
		// DefaultShell runs interactive pty sessions (default: $SHELL or /bin/sh).
		DefaultShell string
		// Dir is the default working directory of spawned commands.
		Dir string
		// RequestTimeout bounds requests the tracker's peers send.
		RequestTimeout time.Duration
		Clock          clock.Clock
		Logger         *log.Logger
	}

	// ConnectionInfo is what a client needs to dial the tracker.
	ConnectionInfo struct {
		Addr     string
		User     string
		Token    TokenValue
		ExpireAt time.Time
	}

	// InvalidConfigError lists the Config fields that failed validation.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Server is the tracker. A Server is single-use: once stopped or failed,
	// create a new one.
	Server struct {
		*serverbase.Base

		cfg    Config
		clock  clock.Clock
		logger *log.Logger
		shell  *ShellService

		srvMu    sync.Mutex
		srv      *ssh.Server
		listener net.Listener
		addr     string

		tokenMu sync.RWMutex
		tokens  map[TokenValue]*Token
	}
)

// DefaultConfig returns the tracker defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "127.0.0.1",
		TokenTTL:        defaultTokenTTL,
		ShutdownTimeout: defaultShutdownTimeout,
		StartupTimeout:  defaultStartupTimeout,
		DefaultShell:    defaultShell(),
	}
}

// Validate checks the fields that have no usable default.
func (c Config) Validate() error {
	var errs []error
	if c.Host != "" && strings.TrimSpace(c.Host) == "" {
		errs = append(errs, fmt.Errorf("host %q: must not be blank", c.Host))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d: out of range 0-65535", c.Port))
	}
	if c.TokenTTL < 0 {
		errs = append(errs, fmt.Errorf("token TTL %s: must not be negative", c.TokenTTL))
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// New creates a tracker. Call Start to begin accepting connections.
func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	defaults := DefaultConfig()
	if cfg.Host == "" {
		cfg.Host = defaults.Host
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = defaults.TokenTTL
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = defaults.StartupTimeout
	}
	if cfg.DefaultShell == "" {
		cfg.DefaultShell = defaults.DefaultShell
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "tracker"})
	}

	return &Server{
		Base: serverbase.NewBase(serverbase.WithStateObserver(func(from, to serverbase.State) {
			logger.Debug("tracker state", "from", from, "to", to)
		})),
		cfg:    cfg,
		clock:  cfg.Clock,
		logger: logger,
		shell:  NewShellService(cfg.Dir, logger),
		tokens: make(map[TokenValue]*Token),
	}, nil
}

// Shell returns the service backing the shell actions.
func (s *Server) Shell() *ShellService { return s.shell }

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

// String returns the token with its secret redacted.
func (t TokenValue) String() string {
	if len(t) <= 8 {
		return "****"
	}
	return string(t[:4]) + "..." + string(t[len(t)-4:])
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid tracker config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }
