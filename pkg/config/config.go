// Package config loads a governance.Config from YAML, mirroring
// pkg/config/profile_loader.go's pattern of a typed struct read straight
// into defaults with yaml.Unmarshal.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mindburn-labs/aegis/pkg/governance"
)

// Load reads a governance.Config from a YAML file at path. Defaults from
// governance.DefaultConfig are applied first, so a YAML document only
// needs to override the fields it cares about. The result is validated
// before it's returned.
func Load(path string) (governance.Config, error) {
	cfg := governance.DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return governance.Config{}, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return governance.Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return governance.Config{}, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// LoadBytes parses a governance.Config from an in-memory YAML document,
// applying the same defaults-then-override and validation as Load. Useful
// for embedded or test configs that don't live on disk.
func LoadBytes(data []byte) (governance.Config, error) {
	cfg := governance.DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return governance.Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return governance.Config{}, err
	}
	return cfg, nil
}
