// Package config loads the chasm configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full configuration for the chasm CLI and sync server.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Harvest HarvestConfig `yaml:"harvest"`
	Server  ServerConfig  `yaml:"server"`
}

// StorageConfig locates the canonical store.
type StorageConfig struct {
	// Path to the SQLite database file. Defaults to ~/.chasm/chasm.db.
	Path string `yaml:"path"`
}

// HarvestConfig selects providers and their search roots.
type HarvestConfig struct {
	// Providers to harvest from. Empty means every registered provider.
	Providers []string `yaml:"providers"`
	// Roots maps a provider id to the directory it should scan.
	// Providers fall back to their platform default when unset.
	Roots map[string]string `yaml:"roots"`
	// MaxRetries bounds transaction retries on lock contention.
	MaxRetries int `yaml:"max_retries"`
}

// ServerConfig configures the sync HTTP server.
type ServerConfig struct {
	Addr      string        `yaml:"addr"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Storage: StorageConfig{
			Path: filepath.Join(home, ".chasm", "chasm.db"),
		},
		Harvest: HarvestConfig{
			MaxRetries: 3,
		},
		Server: ServerConfig{
			Addr:      "127.0.0.1:8377",
			Heartbeat: 30 * time.Second,
		},
	}
}

// Load reads a YAML config file, layering it over the defaults.
// A missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(home, ".chasm", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Harvest.MaxRetries <= 0 {
		cfg.Harvest.MaxRetries = 3
	}
	if cfg.Server.Heartbeat <= 0 {
		cfg.Server.Heartbeat = 30 * time.Second
	}

	return cfg, nil
}
