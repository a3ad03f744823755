package config

import (
	"errors"
	"fmt"
	"strings"
)

// ModeServiceAccount is the only supported sheets authentication mode.
const ModeServiceAccount = "service-account"

// SheetsConfig holds the spreadsheet sink settings.
type SheetsConfig struct {
	Enabled              bool   `yaml:"enabled"`
	Mode                 string `yaml:"mode"`
	ServiceAccountJSON   string `yaml:"service_account_json"`
	DefaultSpreadsheetID string `yaml:"default_spreadsheet_id"`
}

func DefaultSheetsConfig() SheetsConfig {
	return SheetsConfig{
		Enabled: true,
		Mode:    ModeServiceAccount,
	}
}

func (c *SheetsConfig) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeServiceAccount
	}
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
}

func (c *SheetsConfig) ApplyEnvOverrides() {
	envBool("ENABLE_SHEETS", &c.Enabled)
	var mode string
	envString("SHEETS_MODE", &mode)
	if mode = strings.TrimSpace(mode); mode != "" {
		c.Mode = strings.ToLower(mode)
	}
	envString("SHEETS_SERVICE_ACCOUNT_JSON", &c.ServiceAccountJSON)
	envString("SHEETS_DEFAULT_SPREADSHEET_ID", &c.DefaultSpreadsheetID)
}

func (c *SheetsConfig) ResolvePaths(_ string) {
	c.ServiceAccountJSON = absPath(c.ServiceAccountJSON)
}

func (c *SheetsConfig) Validate() error {
	if c.Mode != ModeServiceAccount {
		return fmt.Errorf("sheets.mode %q is not supported (must be %s)", c.Mode, ModeServiceAccount)
	}
	if c.Enabled && c.ServiceAccountJSON == "" {
		return errors.New("sheets.service_account_json is required when sheets are enabled (SHEETS_SERVICE_ACCOUNT_JSON)")
	}
	return nil
}
