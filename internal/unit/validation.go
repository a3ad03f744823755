package unit

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var validIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// ApplyDefaults fills derived fields. index is the unit's position in the
// units file and is used to name units that have no id.
func (u *SyncUnit) ApplyDefaults(index int, defaultSpreadsheetID string) {
	if u.ID == "" {
		u.ID = fmt.Sprintf("sheet-%d", index+1)
	}
	if u.Title == "" {
		u.Title = u.ID
	}
	if u.Target.SpreadsheetID == "" {
		u.Target.SpreadsheetID = defaultSpreadsheetID
	}
	if u.Target.Tab == "" {
		u.Target.Tab = "Sheet1"
	}
	if mode, ok := ParseWriteMode(string(u.Mode)); ok {
		u.Mode = mode
	}
	if u.SyncTarget == "" {
		u.SyncTarget = "default"
	}
	u.Cron = strings.TrimSpace(u.Cron)
	if u.Events != nil {
		u.Events.Entities = trimAll(u.Events.Entities)
		u.Events.Types = trimAll(u.Events.Types)
	}
}

// Validate checks that the unit can be run.
func (u *SyncUnit) Validate() error {
	if u.ID == "" {
		return errors.New("unit id is required")
	}
	if !validIDRegex.MatchString(u.ID) {
		return fmt.Errorf("invalid unit id: %s", u.ID)
	}
	if u.Target.SpreadsheetID == "" {
		return fmt.Errorf("unit %s is missing spreadsheetId", u.ID)
	}
	if u.Source.Type == "" {
		return fmt.Errorf("unit %s is missing source.type", u.ID)
	}
	if len(u.Transform.Columns) == 0 {
		return fmt.Errorf("unit %s must define at least one transform column", u.ID)
	}
	if _, ok := ParseWriteMode(string(u.Mode)); !ok {
		return fmt.Errorf("unit %s has unsupported mode: %s", u.ID, u.Mode)
	}
	if u.Mode == ModeUpsert && len(u.KeyColumns) == 0 {
		return fmt.Errorf("unit %s uses upsert mode but does not define keyColumns", u.ID)
	}
	if d, ok := u.Events.DebounceOverride(); ok && d < 0 {
		return fmt.Errorf("unit %s has a negative debounce", u.ID)
	}
	return nil
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
