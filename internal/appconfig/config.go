// Package appconfig defines horsed's on-disk configuration shape and defaults.
package appconfig

import (
	"os"
	"path/filepath"
)

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	RepoRoot      string        `mapstructure:"repo_root" yaml:"repo_root"`
	HostKeyPath   string        `mapstructure:"host_key_path" yaml:"host_key_path"`
	SSH           SSHConfig     `mapstructure:"ssh" yaml:"ssh"`
	Auth          AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Logging       LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// SSHConfig configures the main dispatch SSH listener and the optional
// setup/enrollment listener (see SPEC_FULL.md §B.1).
type SSHConfig struct {
	Addr          string `mapstructure:"addr" yaml:"addr"`
	SetupAddr     string `mapstructure:"setup_addr" yaml:"setup_addr"`
	IdleTimeout   int    `mapstructure:"idle_timeout_seconds" yaml:"idle_timeout_seconds"`
}

// AuthConfig configures key-store storage and seed users.
type AuthConfig struct {
	KeyStorePath string     `mapstructure:"key_store_path" yaml:"key_store_path"`
	SeedUsers    []SeedUser `mapstructure:"seed_users" yaml:"seed_users"`
}

// LoggingConfig controls the live log ring used by the `logs` action.
type LoggingConfig struct {
	RingCapacity int `mapstructure:"ring_capacity" yaml:"ring_capacity"`
}

// SeedUser seeds a user record (and optionally an initial authorized key)
// in the key store on first run.
type SeedUser struct {
	Name  string `mapstructure:"name" yaml:"name"`
	Email string `mapstructure:"email" yaml:"email"`
	Key   string `mapstructure:"key" yaml:"key"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		RepoRoot:      "./repos",
		HostKeyPath:   "./horsed.key",
		SSH: SSHConfig{
			Addr:        "0.0.0.0:2222",
			SetupAddr:   "",
			IdleTimeout: 3600,
		},
		Auth: AuthConfig{
			KeyStorePath: filepath.Join(home, ".horsed", "users.json"),
			SeedUsers:    nil,
		},
		Logging: LoggingConfig{
			RingCapacity: 4096,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".horsed", "config.yaml"), nil
}
