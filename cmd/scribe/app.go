// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/invowk/scribe/internal/config"
	"github.com/invowk/scribe/internal/core/clock"
	"github.com/invowk/scribe/internal/l2l"
	"github.com/invowk/scribe/internal/searchsession"
	"github.com/invowk/scribe/internal/shell"

	"github.com/charmbracelet/log"
)

type (
	// App wires CLI services and shared dependencies. Every command handler
	// receives an App and reaches configuration and trackers through it.
	App struct {
		Config ConfigProvider
		Dial   Dialer
		Clock  clock.Clock

		stdin  io.Reader
		stdout io.Writer
		stderr io.Writer

		// Set by persistent flags.
		configPath string
		verbose    bool

		cfg *config.Config
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config ConfigProvider
		Dial   Dialer
		Clock  clock.Clock
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// Dialer opens a peer connection to a tracker.
	Dialer func(ctx context.Context, cfg l2l.DialConfig) (*l2l.Peer, error)
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdin == nil {
		deps.Stdin = os.Stdin
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Dial == nil {
		deps.Dial = l2l.DialSSH
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	return &App{
		Config: deps.Config,
		Dial:   deps.Dial,
		Clock:  deps.Clock,
		stdin:  deps.Stdin,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
	}
}

// loadOptions returns the options derived from the global --config flag.
func (a *App) loadOptions() config.LoadOptions {
	return config.LoadOptions{ConfigFilePath: a.configPath}
}

// loadConfig loads configuration once per invocation. A config error is
// reported as a warning and the defaults are used instead.
func (a *App) loadConfig(ctx context.Context) *config.Config {
	if a.cfg != nil {
		return a.cfg
	}
	cfg, err := a.Config.Load(ctx, a.loadOptions())
	if err != nil {
		fmt.Fprintln(a.stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, a.verbose))
		cfg = config.DefaultConfig()
	}
	if !a.verbose {
		a.verbose = cfg.UI.Verbose
	}
	a.cfg = cfg
	return cfg
}

// logger returns a component logger on stderr at the configured verbosity.
func (a *App) logger(prefix string) *log.Logger {
	level := log.InfoLevel
	if a.verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(a.stderr, log.Options{Prefix: prefix, Level: level})
}

func markerPolicy(cfg *config.Config) searchsession.MarkerPolicy {
	return searchsession.MarkerPolicy{
		Deadline:               cfg.Search.HighlightDeadline,
		FastHighlightLineCount: cfg.Search.FastHighlightLineCount,
		MaxCharsPerLine:        cfg.Search.MaxCharsPerLine,
	}
}

func (a *App) servicesConfig(cfg *config.Config) shell.ServicesConfig {
	return shell.ServicesConfig{
		LookupTimeout:  cfg.Shell.LookupTimeout,
		LookupInterval: cfg.Shell.LookupInterval,
		Clock:          a.Clock,
		Logger:         a.logger("shell"),
	}
}
