package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// GetConfigPath returns the default config file path (~/.okapi/config.json).
func GetConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".okapi", "config.json")
}

// Load reads configuration from a JSON file and applies environment
// overrides on top. If path is empty, uses the default config path.
// A missing file is not an error; defaults plus env apply.
func Load(path string) (Config, error) {
	if path == "" {
		path = GetConfigPath()
	}

	cfg := DefaultConfig() // start with defaults so zero-value fields get filled

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return DefaultConfig(), err
		}
	} else if !os.IsNotExist(err) {
		return Config{}, err
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays env vars onto the config. envconfig only touches
// fields whose variables are set, so file values survive.
func applyEnv(cfg *Config) error {
	if err := envconfig.Process("", &cfg.Provider); err != nil {
		return err
	}
	if err := envconfig.Process("", &cfg.Agent); err != nil {
		return err
	}
	if err := envconfig.Process("", &cfg.WebSearch); err != nil {
		return err
	}
	if err := envconfig.Process("", &cfg.Redis); err != nil {
		return err
	}
	if cfg.Channels.Telegram != nil {
		if err := envconfig.Process("", cfg.Channels.Telegram); err != nil {
			return err
		}
	}
	if cfg.Channels.WhatsApp != nil {
		if err := envconfig.Process("", cfg.Channels.WhatsApp); err != nil {
			return err
		}
	}
	if cfg.Channels.Slack != nil {
		if err := envconfig.Process("", cfg.Channels.Slack); err != nil {
			return err
		}
	}
	return nil
}

// Save writes configuration to a JSON file.
// If path is empty, uses the default config path.
func Save(cfg Config, path string) error {
	if path == "" {
		path = GetConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
