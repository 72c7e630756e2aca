// SPDX-License-Identifier: MPL-2.0

package config

import "context"

type (
	// LoadOptions selects where scribe reads its settings from. The zero value
	// reads config.cue from ConfigDir, falling back to defaults when absent.
	LoadOptions struct {
		// ConfigFilePath is the --config flag. The file must exist.
		ConfigFilePath string
		// ConfigDirPath replaces ConfigDir, mainly for tests.
		ConfigDirPath string
	}

	// Provider produces a validated Config. The CLI depends on this interface
	// so commands can be tested against fixed settings.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Config, error)
	}

	viperProvider struct{}
)

// NewProvider returns the Provider that layers defaults, the CUE file and
// SCRIBE_ environment variables.
func NewProvider() Provider { return viperProvider{} }

func (viperProvider) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	cfg, _, err := loadWithOptions(ctx, opts)
	return cfg, err
}
