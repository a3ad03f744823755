package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultAlias names the first configured sync target.
const DefaultAlias = "default"

// SyncTarget is one budget the extractor can read from.
type SyncTarget struct {
	BudgetID string `json:"budgetId,omitempty"`
	SyncID   string `json:"syncId"`
}

// ParseSyncTargets builds the target list. When backupRaw is set it is a
// comma separated list of "SyncID" or "BudgetID:SyncID" entries and syncID is
// ignored; duplicates are dropped keeping the first occurrence.
func ParseSyncTargets(syncID, backupRaw string) ([]SyncTarget, error) {
	var targets []SyncTarget

	if strings.TrimSpace(backupRaw) != "" {
		seen := make(map[string]struct{})
		for _, entry := range strings.Split(backupRaw, ",") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}

			var target SyncTarget
			budget, sync, hasBudget := strings.Cut(entry, ":")
			if hasBudget {
				target = SyncTarget{BudgetID: strings.TrimSpace(budget), SyncID: strings.TrimSpace(sync)}
				if target.BudgetID == "" || target.SyncID == "" {
					return nil, fmt.Errorf("backup sync entry %q must include both budget id and sync id", entry)
				}
			} else {
				target = SyncTarget{SyncID: entry}
			}

			key := target.BudgetID + "::" + target.SyncID
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			targets = append(targets, target)
		}
	} else {
		syncID = strings.TrimSpace(syncID)
		if syncID == "" {
			return nil, errors.New("ledger sync id is required")
		}
		targets = append(targets, SyncTarget{SyncID: syncID})
	}

	if len(targets) == 0 {
		return nil, errors.New("at least one sync target must be defined")
	}
	return targets, nil
}

// Targets resolves unit sync target aliases.
type Targets struct {
	list    []SyncTarget
	aliases map[string]SyncTarget
}

// NewTargets indexes targets under "default" (the first one) and each sync id.
func NewTargets(targets []SyncTarget) (*Targets, error) {
	if len(targets) == 0 {
		return nil, errors.New("at least one sync target must be defined")
	}
	aliases := map[string]SyncTarget{DefaultAlias: targets[0]}
	for _, t := range targets {
		if _, exists := aliases[t.SyncID]; !exists {
			aliases[t.SyncID] = t
		}
	}
	return &Targets{list: targets, aliases: aliases}, nil
}

// Resolve returns the target for alias, falling back to the default target.
// The second result is false when the fallback was used.
func (t *Targets) Resolve(alias string) (SyncTarget, bool) {
	if target, ok := t.aliases[alias]; ok {
		return target, true
	}
	return t.aliases[DefaultAlias], false
}

// Has reports whether alias names a configured target.
func (t *Targets) Has(alias string) bool {
	_, ok := t.aliases[alias]
	return ok
}

// List returns the configured targets in order.
func (t *Targets) List() []SyncTarget {
	out := make([]SyncTarget, len(t.list))
	copy(out, t.list)
	return out
}
