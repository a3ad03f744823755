package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/sheetsync/sheetsync/internal/ledger"
	"github.com/sheetsync/sheetsync/internal/trigger"
	"github.com/sheetsync/sheetsync/internal/unit"
)

// LoadUnits reads, normalizes and validates the sync unit definitions. A
// missing units file is not an error; it yields no units and a warning.
// Units naming an unknown sync target keep running against the default
// target and produce a warning.
func (c *Config) LoadUnits(targets *ledger.Targets) ([]*unit.SyncUnit, []string, error) {
	var warnings []string

	if _, err := os.Stat(c.Sync.UnitsPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, []string{fmt.Sprintf("Sheet config not found at %s", c.Sync.UnitsPath)}, nil
		}
		return nil, nil, fmt.Errorf("failed to stat units file: %w", err)
	}

	units, err := unit.LoadFile(c.Sync.UnitsPath)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]struct{}, len(units))
	for i, u := range units {
		u.ApplyDefaults(i, c.Sheets.DefaultSpreadsheetID)
		if err := u.Validate(); err != nil {
			return nil, nil, err
		}
		if _, dup := seen[u.ID]; dup {
			return nil, nil, fmt.Errorf("duplicate unit id: %s", u.ID)
		}
		seen[u.ID] = struct{}{}

		if u.Cron != "" {
			if err := trigger.ValidateSpec(u.Cron); err != nil {
				return nil, nil, fmt.Errorf("unit %s: %w", u.ID, err)
			}
		}
		if targets != nil && !targets.Has(u.SyncTarget) {
			warnings = append(warnings, fmt.Sprintf("Unit %s references unknown sync target %s; using default", u.ID, u.SyncTarget))
		}
	}
	if len(units) == 0 {
		warnings = append(warnings, fmt.Sprintf("No sheets defined in %s", c.Sync.UnitsPath))
	}
	return units, warnings, nil
}
