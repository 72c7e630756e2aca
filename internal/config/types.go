// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// Config holds the application configuration.
	Config struct {
		Search  SearchConfig  `json:"search" mapstructure:"search"`
		Tracker TrackerConfig `json:"tracker" mapstructure:"tracker"`
		Shell   ShellConfig   `json:"shell" mapstructure:"shell"`
		UI      UIConfig      `json:"ui" mapstructure:"ui"`
	}

	// SearchConfig bounds match enumeration and marker painting.
	SearchConfig struct {
		// MaxMatches caps SearchForAll; more matches than this is an unbounded search.
		MaxMatches int `json:"max_matches" mapstructure:"max_matches"`
		// CaseSensitive is the default for the --case-sensitive flag.
		CaseSensitive bool `json:"case_sensitive" mapstructure:"case_sensitive"`
		// HighlightDeadline limits how long a highlighting pass may run.
		HighlightDeadline time.Duration `json:"highlight_deadline" mapstructure:"highlight_deadline"`
		// FastHighlightLineCount is the document size above which only the
		// visible range is highlighted.
		FastHighlightLineCount int `json:"fast_highlight_line_count" mapstructure:"fast_highlight_line_count"`
		// MaxCharsPerLine skips highlighting on longer lines.
		MaxCharsPerLine int `json:"max_chars_per_line" mapstructure:"max_chars_per_line"`
	}

	// TrackerConfig configures both the tracker server and the CLI dialing it.
	TrackerConfig struct {
		Host string `json:"host" mapstructure:"host"`
		// Port 0 lets the OS pick a free port.
		Port     int           `json:"port" mapstructure:"port"`
		TokenTTL time.Duration `json:"token_ttl" mapstructure:"token_ttl"`
	}

	// ShellConfig configures the client side of the remote command protocol.
	ShellConfig struct {
		// LookupTimeout bounds how long a notification waits for its pid.
		LookupTimeout  time.Duration `json:"lookup_timeout" mapstructure:"lookup_timeout"`
		LookupInterval time.Duration `json:"lookup_interval" mapstructure:"lookup_interval"`
		RequestTimeout time.Duration `json:"request_timeout" mapstructure:"request_timeout"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Search: SearchConfig{
			MaxMatches:             10000,
			CaseSensitive:          false,
			HighlightDeadline:      300 * time.Millisecond,
			FastHighlightLineCount: 10000,
			MaxCharsPerLine:        1000,
		},
		Tracker: TrackerConfig{
			Host:     "127.0.0.1",
			Port:     2222,
			TokenTTL: 24 * time.Hour,
		},
		Shell: ShellConfig{
			LookupTimeout:  time.Second,
			LookupInterval: 20 * time.Millisecond,
			RequestTimeout: 30 * time.Second,
		},
	}
}

// Validate checks constraints the schema cannot express once values are
// decoded, such as duration ordering.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %s", name, d))
		}
	}

	if c.Search.MaxMatches <= 0 {
		errs = append(errs, fmt.Errorf("search.max_matches: must be positive, got %d", c.Search.MaxMatches))
	}
	if c.Search.MaxCharsPerLine <= 0 {
		errs = append(errs, fmt.Errorf("search.max_chars_per_line: must be positive, got %d", c.Search.MaxCharsPerLine))
	}
	if c.Search.FastHighlightLineCount < 0 {
		errs = append(errs, fmt.Errorf("search.fast_highlight_line_count: must not be negative, got %d", c.Search.FastHighlightLineCount))
	}
	positive("search.highlight_deadline", c.Search.HighlightDeadline)

	if strings.TrimSpace(c.Tracker.Host) == "" {
		errs = append(errs, errors.New("tracker.host: must not be empty"))
	}
	if c.Tracker.Port < 0 || c.Tracker.Port > 65535 {
		errs = append(errs, fmt.Errorf("tracker.port: %d out of range", c.Tracker.Port))
	}
	positive("tracker.token_ttl", c.Tracker.TokenTTL)

	positive("shell.lookup_timeout", c.Shell.LookupTimeout)
	positive("shell.lookup_interval", c.Shell.LookupInterval)
	positive("shell.request_timeout", c.Shell.RequestTimeout)
	if c.Shell.LookupInterval > c.Shell.LookupTimeout {
		errs = append(errs, fmt.Errorf("shell.lookup_interval: %s exceeds lookup_timeout %s", c.Shell.LookupInterval, c.Shell.LookupTimeout))
	}

	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }
