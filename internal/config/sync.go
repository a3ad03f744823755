package config

import (
	"fmt"

	"github.com/sheetsync/sheetsync/internal/trigger"
)

// SyncConfig holds orchestration settings.
type SyncConfig struct {
	// UnitsPath is the sheets definition file, relative to the working directory.
	UnitsPath string `yaml:"units_path"`

	// Cron is the process-wide schedule that runs every unit. Empty disables it.
	Cron string `yaml:"cron"`

	// RunOnStartup runs every unit once when the service starts.
	RunOnStartup bool `yaml:"run_on_startup"`

	// QueueSize bounds pending run requests.
	QueueSize int `yaml:"queue_size"`

	// Once is set by the CLI: run every unit, then exit.
	Once bool `yaml:"-"`
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		UnitsPath: "config/sheets.yml",
		Cron:      "0 3 * * *",
		QueueSize: 64,
	}
}

func (c *SyncConfig) ApplyDefaults() {
	defaults := DefaultSyncConfig()
	if c.UnitsPath == "" {
		c.UnitsPath = defaults.UnitsPath
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaults.QueueSize
	}
}

func (c *SyncConfig) ApplyEnvOverrides() {
	envString("SHEETS_CONFIG_PATH", &c.UnitsPath)
	envString("SHEETS_CRON", &c.Cron)
	envBool("SYNC_RUN_ON_STARTUP", &c.RunOnStartup)
}

func (c *SyncConfig) ResolvePaths(_ string) {
	c.UnitsPath = absPath(c.UnitsPath)
}

func (c *SyncConfig) Validate() error {
	if c.Cron != "" {
		if err := trigger.ValidateSpec(c.Cron); err != nil {
			return fmt.Errorf("sync.cron: %w", err)
		}
	}
	return nil
}
