// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/invowk/scribe/internal/issue"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "scribe"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment overrides, e.g. SCRIBE_SEARCH_MAX_MATCHES.
	EnvPrefix = "SCRIBE"
)

//go:embed config_schema.cue
var configSchema string

type (
	// Entry is one flattened key/value pair, in schema order.
	Entry struct {
		Key   string
		Value string
	}

	// field binds a dotted key to its place in Config.
	field struct {
		key string
		get func(*Config) any
	}
)

var fields = []field{
	{"search.max_matches", func(c *Config) any { return c.Search.MaxMatches }},
	{"search.case_sensitive", func(c *Config) any { return c.Search.CaseSensitive }},
	{"search.highlight_deadline", func(c *Config) any { return c.Search.HighlightDeadline }},
	{"search.fast_highlight_line_count", func(c *Config) any { return c.Search.FastHighlightLineCount }},
	{"search.max_chars_per_line", func(c *Config) any { return c.Search.MaxCharsPerLine }},
	{"tracker.host", func(c *Config) any { return c.Tracker.Host }},
	{"tracker.port", func(c *Config) any { return c.Tracker.Port }},
	{"tracker.token_ttl", func(c *Config) any { return c.Tracker.TokenTTL }},
	{"shell.lookup_timeout", func(c *Config) any { return c.Shell.LookupTimeout }},
	{"shell.lookup_interval", func(c *Config) any { return c.Shell.LookupInterval }},
	{"shell.request_timeout", func(c *Config) any { return c.Shell.RequestTimeout }},
	{"ui.verbose", func(c *Config) any { return c.UI.Verbose }},
}

// ConfigDir returns the scribe configuration directory under
// os.UserConfigDir: $XDG_CONFIG_HOME on Linux, Application Support on macOS
// and %AppData% on Windows.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// FilePath returns the config file Load would read for opts, whether or not
// it exists.
func FilePath(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		return opts.ConfigFilePath, nil
	}
	cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt), nil
}

// loadWithOptions performs option-driven config loading without mutating
// package-level state.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	defaults := DefaultConfig()
	for _, f := range fields {
		v.SetDefault(f.key, f.get(defaults))
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := FilePath(opts)
	if err != nil {
		return nil, "", err
	}

	resolvedPath := ""
	switch {
	case fileExists(path):
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, "", loadError(path, err)
		}
		resolvedPath = path
	case opts.ConfigFilePath != "":
		return nil, "", issue.NewErrorContext().
			WithOperation("load configuration").
			WithResource(path).
			WithSuggestion("Verify the file path is correct").
			WithSuggestion("Use 'scribe config path' to see where scribe looks by default").
			WithIssue(issue.FileNotFoundId).
			Wrap(fmt.Errorf("config file not found: %s", path)).
			BuildError()
	}
	// No file in the config dir means defaults only.

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", loadError(path, fmt.Errorf("failed to parse config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", loadError(path, err)
	}

	return &cfg, resolvedPath, nil
}

func loadError(path string, err error) error {
	return issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(path).
		WithSuggestion("Check that the file contains valid CUE syntax").
		WithSuggestion("Run 'scribe config dump' to compare with the defaults").
		WithIssue(issue.ConfigLoadFailedId).
		Wrap(err).
		BuildError()
}

func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}
	return ConfigDir()
}

// loadCUEIntoViper merges a validated CUE file into v, keeping defaults
// for the keys the file leaves out.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	configMap, err := decodeCUE(data, path)
	if err != nil {
		return err
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Init writes the default configuration to the file Load reads for opts.
// An existing file is left alone unless force is set. It returns the path.
func Init(opts LoadOptions, force bool) (string, error) {
	path, err := FilePath(opts)
	if err != nil {
		return "", err
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return path, nil
}

// Entries flattens cfg into dotted keys. Durations are rendered the way the
// config file spells them.
func Entries(cfg *Config) []Entry {
	entries := make([]Entry, 0, len(fields))
	for _, f := range fields {
		entries = append(entries, Entry{Key: f.key, Value: fmt.Sprint(f.get(cfg))})
	}
	return entries
}

// document nests cfg as section -> key -> value with durations as strings.
func document(cfg *Config) map[string]map[string]any {
	doc := make(map[string]map[string]any)
	for _, f := range fields {
		section, key, _ := strings.Cut(f.key, ".")
		if doc[section] == nil {
			doc[section] = make(map[string]any)
		}
		val := f.get(cfg)
		if d, ok := val.(time.Duration); ok {
			val = d.String()
		}
		doc[section][key] = val
	}
	return doc
}

// GenerateCUE generates a CUE representation of the configuration.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// Scribe configuration file\n")
	sb.WriteString("// Unset keys fall back to their defaults.\n")

	section := ""
	for _, f := range fields {
		s, key, _ := strings.Cut(f.key, ".")
		if s != section {
			if section != "" {
				sb.WriteString("}\n")
			}
			fmt.Fprintf(&sb, "\n%s: {\n", s)
			section = s
		}
		switch val := f.get(cfg).(type) {
		case string:
			fmt.Fprintf(&sb, "\t%s: %q\n", key, val)
		case time.Duration:
			fmt.Fprintf(&sb, "\t%s: %q\n", key, val.String())
		default:
			fmt.Fprintf(&sb, "\t%s: %v\n", key, val)
		}
	}
	sb.WriteString("}\n")

	return sb.String()
}

// GenerateTOML renders cfg as TOML using the same keys as the CUE file.
func GenerateTOML(cfg *Config) (string, error) {
	out, err := toml.Marshal(document(cfg))
	if err != nil {
		return "", fmt.Errorf("failed to encode config as TOML: %w", err)
	}
	return string(out), nil
}
