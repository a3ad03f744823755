package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string         `yaml:"level"`  // debug, info, warn, error
	Format   string         `yaml:"format"` // text, json
	Dir      string         `yaml:"dir"`
	Dedup    bool           `yaml:"dedup"` // collapse repeated identical records
	Rotation RotationConfig `yaml:"rotation"`
	Console  OutputConfig   `yaml:"console"`
	File     OutputConfig   `yaml:"file"`
}

// RotationConfig holds log rotation settings
type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`    // MB
	MaxBackups int  `yaml:"max_backups"` // number of files
	MaxAge     int  `yaml:"max_age"`     // days
	Compress   bool `yaml:"compress"`
}

// OutputConfig configures one log destination. Empty Level and Format
// inherit the top-level values.
type OutputConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
}

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"text": true, "json": true}
)

func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "text",
		Dir:    "logs",
		Dedup:  true,
		Rotation: RotationConfig{
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		},
		Console: OutputConfig{Enabled: true},
		File:    OutputConfig{Enabled: false},
	}
}

func (c *LoggingConfig) ApplyDefaults() {
	defaults := DefaultLoggingConfig()
	if c.Level == "" {
		c.Level = defaults.Level
	}
	if c.Format == "" {
		c.Format = defaults.Format
	}
	if c.Dir == "" {
		c.Dir = defaults.Dir
	}
	if c.Rotation.MaxSize == 0 {
		c.Rotation.MaxSize = defaults.Rotation.MaxSize
	}
	if c.Rotation.MaxBackups == 0 {
		c.Rotation.MaxBackups = defaults.Rotation.MaxBackups
	}
	if c.Rotation.MaxAge == 0 {
		c.Rotation.MaxAge = defaults.Rotation.MaxAge
	}
}

func (c *LoggingConfig) ApplyEnvOverrides() {
	var level string
	envString("LOG_LEVEL", &level)
	if level != "" {
		// Console and file levels follow LOG_LEVEL unless set explicitly.
		c.Level = strings.ToLower(strings.TrimSpace(level))
	}
	envString("LOG_FORMAT", &c.Format)
	envString("LOG_DIR", &c.Dir)
	envBool("LOG_FILE_ENABLED", &c.File.Enabled)
}

// ResolvePaths places a relative log dir next to the config directory.
func (c *LoggingConfig) ResolvePaths(configDir string) {
	if c.Dir == "" || filepath.IsAbs(c.Dir) {
		return
	}
	if strings.HasPrefix(c.Dir, "..") {
		c.Dir = filepath.Clean(filepath.Join(configDir, c.Dir))
		return
	}
	c.Dir = filepath.Clean(filepath.Join(filepath.Dir(configDir), c.Dir))
}

func (c *LoggingConfig) Validate() error {
	if !validLevels[c.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Level)
	}
	if !validFormats[c.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Format)
	}
	for name, out := range map[string]OutputConfig{"console": c.Console, "file": c.File} {
		if out.Level != "" && !validLevels[out.Level] {
			return fmt.Errorf("invalid %s log level: %s", name, out.Level)
		}
		if out.Format != "" && !validFormats[out.Format] {
			return fmt.Errorf("invalid %s log format: %s", name, out.Format)
		}
	}
	if c.File.Enabled && c.Dir == "" {
		return fmt.Errorf("log directory cannot be empty when file logging is enabled")
	}
	return nil
}

// ConsoleLevel returns the effective console level.
func (c *LoggingConfig) ConsoleLevel() string { return firstSet(c.Console.Level, c.Level) }

// ConsoleFormat returns the effective console format.
func (c *LoggingConfig) ConsoleFormat() string { return firstSet(c.Console.Format, c.Format) }

// FileLevel returns the effective file level.
func (c *LoggingConfig) FileLevel() string { return firstSet(c.File.Level, c.Level) }

// FileFormat returns the effective file format.
func (c *LoggingConfig) FileFormat() string { return firstSet(c.File.Format, c.Format) }

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
