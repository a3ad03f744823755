package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sheetsync/sheetsync/internal/ledger"
)

// LedgerConfig holds the ledger REST API connection.
type LedgerConfig struct {
	ServerURL          string        `yaml:"server_url"`
	APIKey             string        `yaml:"api_key"`
	SyncID             string        `yaml:"sync_id"`
	BackupSyncIDs      string        `yaml:"backup_sync_ids"`
	EncryptionPassword string        `yaml:"encryption_password"`
	Timeout            time.Duration `yaml:"timeout"`
	MaxRetries         int           `yaml:"max_retries"`
	RateLimit          float64       `yaml:"rate_limit"`
	RateBurst          int           `yaml:"rate_burst"`
}

func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RateLimit:  10,
		RateBurst:  5,
	}
}

func (c *LedgerConfig) ApplyDefaults() {
	defaults := DefaultLedgerConfig()
	if c.Timeout == 0 {
		c.Timeout = defaults.Timeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.RateLimit == 0 {
		c.RateLimit = defaults.RateLimit
	}
	if c.RateBurst == 0 {
		c.RateBurst = defaults.RateBurst
	}
}

func (c *LedgerConfig) ApplyEnvOverrides() {
	envString("ACTUAL_SERVER_URL", &c.ServerURL)
	envString("ACTUAL_API_KEY", &c.APIKey)
	envString("ACTUAL_SYNC_ID", &c.SyncID)
	envString("BACKUP_SYNC_ID", &c.BackupSyncIDs)
	envString("ACTUAL_BUDGET_ENCRYPTION_PASSWORD", &c.EncryptionPassword)
}

func (c *LedgerConfig) ResolvePaths(_ string) {}

func (c *LedgerConfig) Validate() error {
	if c.ServerURL == "" {
		return errors.New("ledger.server_url is required (ACTUAL_SERVER_URL)")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("ledger.server_url must be an http(s) url, got %q", c.ServerURL)
	}
	if _, err := c.SyncTargets(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if c.MaxRetries < 0 {
		return errors.New("ledger.max_retries cannot be negative")
	}
	return nil
}

// SyncTargets parses the configured sync ids.
func (c *LedgerConfig) SyncTargets() ([]ledger.SyncTarget, error) {
	return ledger.ParseSyncTargets(c.SyncID, c.BackupSyncIDs)
}

// ClientConfig returns the REST client settings.
func (c *LedgerConfig) ClientConfig() ledger.ClientConfig {
	return ledger.ClientConfig{
		BaseURL:            c.ServerURL,
		APIKey:             c.APIKey,
		EncryptionPassword: c.EncryptionPassword,
		Timeout:            c.Timeout,
		MaxRetries:         c.MaxRetries,
		RateLimit:          c.RateLimit,
		RateBurst:          c.RateBurst,
	}
}
