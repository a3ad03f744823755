package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetsync/sheetsync/internal/ledger"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("ACTUAL_SERVER_URL", "http://ledger:5007")
	t.Setenv("ACTUAL_SYNC_ID", "sync-1")
	t.Setenv("ENABLE_SHEETS", "false")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "0 3 * * *", cfg.Sync.Cron)
	assert.True(t, filepath.IsAbs(cfg.Sync.UnitsPath))
	assert.Equal(t, "sheets.yml", filepath.Base(cfg.Sync.UnitsPath))
	assert.Equal(t, ModeServiceAccount, cfg.Sheets.Mode)
	assert.False(t, cfg.Events.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Events.Debounce)
	assert.Equal(t, 4020, cfg.Server.HTTPPort)
	assert.Equal(t, HistoryMemory, cfg.History.Backend)
	assert.Equal(t, 50, cfg.History.Limit)
	assert.Empty(t, cfg.Warnings)
}

func TestLoad_FileLayering(t *testing.T) {
	setRequiredEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yml"), `
sync:
  cron: "*/15 * * * *"
events:
  enabled: true
  url: ws://ledger/events
server:
  http_port: 9090
`)
	writeFile(t, filepath.Join(dir, "config.local.yml"), `
server:
  http_port: 9191
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "*/15 * * * *", cfg.Sync.Cron)
	assert.True(t, cfg.Events.Active())
	assert.Equal(t, 9191, cfg.Server.HTTPPort)
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BACKUP_SYNC_ID", "b1:s1,s2")
	t.Setenv("SHEETS_CRON", "0 6 * * *")
	t.Setenv("SHEETS_CONFIG_PATH", "/etc/sheetsync/sheets.yml")
	t.Setenv("ENABLE_EVENT_STREAM", "yes")
	t.Setenv("ACTUAL_EVENTS_URL", "ws://ledger/events")
	t.Setenv("EVENT_DEBOUNCE_MS", "1500")
	t.Setenv("HTTP_PORT", "4100")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HISTORY_MONGO_URI", "mongodb://mongo:27017")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	targets, err := cfg.Ledger.SyncTargets()
	require.NoError(t, err)
	assert.Equal(t, []ledger.SyncTarget{{BudgetID: "b1", SyncID: "s1"}, {SyncID: "s2"}}, targets)
	assert.Equal(t, "0 6 * * *", cfg.Sync.Cron)
	assert.Equal(t, "/etc/sheetsync/sheets.yml", cfg.Sync.UnitsPath)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, 1500*time.Millisecond, cfg.Events.Debounce)
	assert.Equal(t, 4100, cfg.Server.HTTPPort)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, HistoryMongo, cfg.History.Backend)
	assert.Equal(t, "mongodb://mongo:27017", cfg.History.Mongo.URI)
}

func TestLoad_InvalidDebounceIgnored(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EVENT_DEBOUNCE_MS", "soon")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Events.Debounce)
}

func TestLoad_EventsWithoutURLWarns(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENABLE_EVENT_STREAM", "true")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.False(t, cfg.Events.Active())
	require.Len(t, cfg.Warnings, 1)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		file    string
		wantErr string
	}{
		{
			name:    "missing ledger url",
			env:     map[string]string{"ACTUAL_SERVER_URL": ""},
			wantErr: "ledger.server_url is required",
		},
		{
			name:    "missing sync id",
			env:     map[string]string{"ACTUAL_SYNC_ID": ""},
			wantErr: "ledger sync id is required",
		},
		{
			name:    "sheets enabled without credentials",
			env:     map[string]string{"ENABLE_SHEETS": "true"},
			wantErr: "service_account_json is required",
		},
		{
			name:    "oauth mode unsupported",
			env:     map[string]string{"SHEETS_MODE": "oauth"},
			wantErr: "not supported",
		},
		{
			name:    "invalid cron",
			env:     map[string]string{"SHEETS_CRON": "every day"},
			wantErr: "sync.cron",
		},
		{
			name:    "malformed yaml",
			file:    "sync: [oops",
			wantErr: "failed to parse",
		},
		{
			name:    "bad log level",
			env:     map[string]string{"LOG_LEVEL": "loud"},
			wantErr: "invalid log level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			dir := t.TempDir()
			if tt.file != "" {
				writeFile(t, filepath.Join(dir, "config.yml"), tt.file)
			}

			_, err := Load(dir)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in       string
		fallback bool
		want     bool
	}{
		{"", true, true},
		{"", false, false},
		{"1", false, true},
		{"TRUE", false, true},
		{" yes ", false, true},
		{"on", false, true},
		{"no", true, false},
		{"0", true, false},
		{"maybe", true, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseBool(tt.in, tt.fallback), "input %q", tt.in)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	writeFile(t, path, "SHEETSYNC_DOTENV_TEST=loaded\n")
	t.Cleanup(func() { os.Unsetenv("SHEETSYNC_DOTENV_TEST") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "loaded", os.Getenv("SHEETSYNC_DOTENV_TEST"))
}
