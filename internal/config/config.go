// Package config loads the process configuration: defaults, then
// config.yml, then config.local.yml, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sheetsync/sheetsync/internal/server"
)

// Config holds the application configuration
type Config struct {
	Sync    SyncConfig    `yaml:"sync"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Sheets  SheetsConfig  `yaml:"sheets"`
	Events  EventsConfig  `yaml:"events"`
	History HistoryConfig `yaml:"history"`
	Server  server.Config `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`

	// Warnings collects non-fatal problems found while loading. They are
	// surfaced by the status endpoint.
	Warnings []string `yaml:"-"`
}

// DefaultConfig returns a config populated with defaults, so YAML can
// override them including bool fields.
func DefaultConfig() *Config {
	return &Config{
		Sync:    DefaultSyncConfig(),
		Ledger:  DefaultLedgerConfig(),
		Sheets:  DefaultSheetsConfig(),
		Events:  DefaultEventsConfig(),
		History: DefaultHistoryConfig(),
		Server:  server.DefaultConfig(),
		Logging: DefaultLoggingConfig(),
	}
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from configDir.
// Order: defaults -> config.yml -> config.local.yml -> ApplyDefaults ->
// ApplyEnvOverrides -> ResolvePaths -> Validate
func Load(configDir string) (*Config, error) {
	cfg := DefaultConfig()

	for _, name := range []string{"config.yml", "config.local.yml"} {
		if err := loadFile(filepath.Join(configDir, name), cfg); err != nil {
			return nil, err
		}
	}

	if err := ApplyServiceConfigs(configDir,
		&cfg.Logging,
		&cfg.Sync,
		&cfg.Ledger,
		&cfg.Sheets,
		&cfg.Events,
		&cfg.History,
		&cfg.Server,
	); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	if cfg.Events.Enabled && !cfg.Events.Active() {
		cfg.Warnings = append(cfg.Warnings, "Event stream enabled but no URL configured; event triggers disabled")
	}
	return cfg, nil
}

func loadFile(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	return nil
}
