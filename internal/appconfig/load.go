package appconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses
// DefaultConfigPath. onChange, if non-nil, is invoked with a freshly reloaded
// Config whenever the underlying file changes on disk.
func Load(path string, onChange func(Config)) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("repo_root", cfg.RepoRoot)
	v.SetDefault("host_key_path", cfg.HostKeyPath)
	v.SetDefault("ssh.addr", cfg.SSH.Addr)
	v.SetDefault("ssh.setup_addr", cfg.SSH.SetupAddr)
	v.SetDefault("ssh.idle_timeout_seconds", cfg.SSH.IdleTimeout)
	v.SetDefault("auth.key_store_path", cfg.Auth.KeyStorePath)
	v.SetDefault("auth.seed_users", cfg.Auth.SeedUsers)
	v.SetDefault("logging.ring_capacity", cfg.Logging.RingCapacity)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)

	if onChange != nil {
		v.OnConfigChange(func(_ fsnotify.Event) {
			reloaded := cfg
			if uerr := v.Unmarshal(&reloaded); uerr == nil {
				expandConfigEnv(&reloaded)
				onChange(reloaded)
			}
		})
		v.WatchConfig()
	}

	return cfg, nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.RepoRoot = expandEnv(cfg.RepoRoot)
	cfg.HostKeyPath = expandEnv(cfg.HostKeyPath)
	cfg.Auth.KeyStorePath = expandEnv(cfg.Auth.KeyStorePath)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
