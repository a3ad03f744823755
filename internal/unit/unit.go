// Package unit defines the sync unit model shared by the transform engine,
// the orchestrator and the trigger sources.
package unit

import (
	"strings"
)

// WriteMode controls how transformed rows are written to the sink.
type WriteMode string

const (
	ModeReplace WriteMode = "replace"
	ModeAppend  WriteMode = "append"
	ModeUpsert  WriteMode = "upsert"
)

// ParseWriteMode normalizes a configured mode. An empty value and the legacy
// "clear-and-replace" spelling both map to ModeReplace.
func ParseWriteMode(s string) (WriteMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "replace", "clear-and-replace":
		return ModeReplace, true
	case "append":
		return ModeAppend, true
	case "upsert":
		return ModeUpsert, true
	default:
		return WriteMode(s), false
	}
}

// SourceSpec selects the extractor used for a unit.
type SourceSpec struct {
	Type    string         `json:"type" yaml:"type"`
	Options map[string]any `json:"options,omitempty" yaml:"options"`
}

// Target identifies where rows are written.
type Target struct {
	SpreadsheetID string `json:"spreadsheetId" yaml:"spreadsheetId"`
	Tab           string `json:"tab" yaml:"tab"`
	Range         string `json:"range,omitempty" yaml:"range"`
	ClearRange    string `json:"clearRange,omitempty" yaml:"clearRange"`
}

// WriteRange returns the configured range or the top-left cell of the tab.
func (t Target) WriteRange() string {
	if t.Range != "" {
		return t.Range
	}
	return t.Tab + "!A1"
}

// ClearTarget returns the range cleared before a replace write.
func (t Target) ClearTarget() string {
	if t.ClearRange != "" {
		return t.ClearRange
	}
	return t.Tab
}

// EventSubscription filters ledger events for a unit. Empty lists match any
// value; a nil subscription never matches.
type EventSubscription struct {
	Entities  []string `json:"entities" yaml:"entities"`
	Types     []string `json:"types" yaml:"types"`
	Debounce  *Duration `json:"debounce,omitempty" yaml:"debounce"`
	Condition string    `json:"condition,omitempty" yaml:"condition"`

	// DebounceMs is the older spelling of Debounce; Debounce wins when both are set.
	DebounceMs *Duration `json:"-" yaml:"debounceMs"`
}

// DebounceOverride returns the unit-level debounce, if one is configured.
// An explicit zero is an override: the unit runs as soon as an event
// arrives.
func (s *EventSubscription) DebounceOverride() (Duration, bool) {
	if s == nil {
		return 0, false
	}
	if s.Debounce != nil {
		return *s.Debounce, true
	}
	if s.DebounceMs != nil {
		return *s.DebounceMs, true
	}
	return 0, false
}

// SyncUnit is one configured ledger to sheet synchronization. It is built
// once at configuration load and never mutated afterwards.
type SyncUnit struct {
	ID         string             `json:"id" yaml:"id"`
	Title      string             `json:"title" yaml:"title"`
	Target     Target             `json:"target" yaml:",inline"`
	Mode       WriteMode          `json:"mode" yaml:"mode"`
	KeyColumns []string           `json:"keyColumns,omitempty" yaml:"keyColumns"`
	Source     SourceSpec         `json:"source" yaml:"source"`
	SyncTarget string             `json:"syncTarget" yaml:"syncTarget"`
	Transform  TransformSpec      `json:"transform" yaml:"transform"`
	Cron       string             `json:"cron,omitempty" yaml:"cron"`
	Events     *EventSubscription `json:"events,omitempty" yaml:"events"`
}
