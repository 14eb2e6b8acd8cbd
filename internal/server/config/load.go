package config

import (
	"fmt"

	"github.com/yndnr/muxd/internal/infra/confloader"
)

// Load builds the configuration from defaults, the optional file at path,
// MUXD_* environment variables and overrides (dotted keys, usually from
// flags), then verifies it.
func Load(path string, overrides map[string]any) (*ServerConfig, error) {
	return LoadWith(confloader.NewLoader(
		confloader.WithConfigFile(path),
		confloader.WithOverrides(overrides),
	))
}

// LoadWith is Load with a caller-supplied loader, reused on reload.
func LoadWith(l *confloader.Loader) (*ServerConfig, error) {
	cfg := Default()
	if err := l.Load(cfg); err != nil {
		return nil, err
	}
	if err := Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
