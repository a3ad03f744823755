package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetsync/sheetsync/internal/ledger"
	"github.com/sheetsync/sheetsync/internal/unit"
)

func testTargets(t *testing.T) *ledger.Targets {
	t.Helper()
	targets, err := ledger.NewTargets([]ledger.SyncTarget{{SyncID: "main"}})
	require.NoError(t, err)
	return targets
}

func TestLoadUnits_MissingFileWarns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.UnitsPath = filepath.Join(t.TempDir(), "sheets.yml")

	units, warnings, err := cfg.LoadUnits(testTargets(t))
	require.NoError(t, err)
	assert.Empty(t, units)
	assert.Equal(t, []string{"Sheet config not found at " + cfg.Sync.UnitsPath}, warnings)
}

func TestLoadUnits_NormalizesUnits(t *testing.T) {
	t.Setenv("SHEET_ID", "sheet-from-env")
	path := filepath.Join(t.TempDir(), "sheets.yml")
	writeFile(t, path, `
sheets:
  - title: Balances
    spreadsheetId: ${env:SHEET_ID}
    source:
      type: balances
    transform:
      columns:
        - { label: Account, value: accountName }
  - id: txns
    mode: upsert
    keyColumns: [Id]
    syncTarget: other
    cron: "@hourly"
    source:
      type: transactions
    transform:
      columns:
        - { label: Id, value: transactionId }
`)

	cfg := DefaultConfig()
	cfg.Sync.UnitsPath = path
	cfg.Sheets.DefaultSpreadsheetID = "default-sheet"

	units, warnings, err := cfg.LoadUnits(testTargets(t))
	require.NoError(t, err)
	require.Len(t, units, 2)

	assert.Equal(t, "sheet-1", units[0].ID)
	assert.Equal(t, "sheet-from-env", units[0].Target.SpreadsheetID)
	assert.Equal(t, "Sheet1", units[0].Target.Tab)
	assert.Equal(t, unit.ModeReplace, units[0].Mode)
	assert.Equal(t, "default", units[0].SyncTarget)

	assert.Equal(t, "default-sheet", units[1].Target.SpreadsheetID)
	assert.Equal(t, unit.ModeUpsert, units[1].Mode)
	assert.Equal(t, []string{"Unit txns references unknown sync target other; using default"}, warnings)
}

func TestLoadUnits_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing spreadsheet",
			content: `
sheets:
  - id: a
    source: { type: balances }
    transform: { columns: [ { label: A, value: a } ] }
`,
			wantErr: "missing spreadsheetId",
		},
		{
			name: "upsert without keys",
			content: `
sheets:
  - id: a
    spreadsheetId: s
    mode: upsert
    source: { type: balances }
    transform: { columns: [ { label: A, value: a } ] }
`,
			wantErr: "does not define keyColumns",
		},
		{
			name: "bad cron",
			content: `
sheets:
  - id: a
    spreadsheetId: s
    cron: "whenever"
    source: { type: balances }
    transform: { columns: [ { label: A, value: a } ] }
`,
			wantErr: "invalid cron expression",
		},
		{
			name: "duplicate ids",
			content: `
sheets:
  - { id: a, spreadsheetId: s, source: { type: balances }, transform: { columns: [ { label: A, value: a } ] } }
  - { id: a, spreadsheetId: s, source: { type: balances }, transform: { columns: [ { label: A, value: a } ] } }
`,
			wantErr: "duplicate unit id: a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sheets.yml")
			writeFile(t, path, tt.content)
			cfg := DefaultConfig()
			cfg.Sync.UnitsPath = path

			_, _, err := cfg.LoadUnits(testTargets(t))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
