package unit

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Record is a single extracted ledger entry keyed by field name.
type Record map[string]any

// Helpers is the helper namespace handed to programmatic column and filter
// functions. The same helpers are exposed inside expressions.
type Helpers interface {
	FormatDate(value any, format string) string
	Coalesce(values ...any) any
	ToNumber(value any) float64
}

// ValueFunc computes a column value programmatically.
type ValueFunc func(rec Record, h Helpers) any

// FilterFunc decides programmatically whether a record is kept.
type FilterFunc func(rec Record, h Helpers) bool

// ColumnSpec maps one output column. Value holds the configured value spec
// (string, number, bool); Func, when set, takes priority over Value.
type ColumnSpec struct {
	Label string    `json:"label" yaml:"label"`
	Value any       `json:"value" yaml:"value"`
	Func  ValueFunc `json:"-" yaml:"-"`
}

// HeaderLabel returns the column label, falling back to the raw value spec.
func (c ColumnSpec) HeaderLabel() string {
	if c.Label != "" {
		return c.Label
	}
	if s, ok := c.Value.(string); ok {
		return s
	}
	if c.Value != nil && c.Func == nil {
		return fmt.Sprint(c.Value)
	}
	return ""
}

// SortRule orders transformed rows by one column.
type SortRule struct {
	Column    string `json:"column" yaml:"column"`
	Direction string `json:"direction,omitempty" yaml:"direction"`
}

// Descending reports whether the rule sorts in reverse order.
func (r SortRule) Descending() bool {
	return strings.EqualFold(strings.TrimSpace(r.Direction), "desc")
}

// SortRules accepts either a single rule or a list of rules in YAML.
type SortRules []SortRule

func (s *SortRules) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		var rule SortRule
		if err := value.Decode(&rule); err != nil {
			return err
		}
		*s = SortRules{rule}
		return nil
	case yaml.SequenceNode:
		var rules []SortRule
		if err := value.Decode(&rules); err != nil {
			return err
		}
		*s = rules
		return nil
	default:
		return fmt.Errorf("sortBy must be a rule or a list of rules")
	}
}

// PostProcess holds ordering applied after rows are built.
type PostProcess struct {
	SortBy SortRules `json:"sortBy,omitempty" yaml:"sortBy"`
}

// TransformSpec describes how records become rows.
type TransformSpec struct {
	Columns     []ColumnSpec `json:"columns" yaml:"columns"`
	Filter      string       `json:"filter,omitempty" yaml:"filter"`
	FilterFunc  FilterFunc   `json:"-" yaml:"-"`
	PostProcess PostProcess  `json:"postProcess,omitempty" yaml:"postProcess"`
}

// HasFilter reports whether any filter is configured.
func (t TransformSpec) HasFilter() bool {
	return t.FilterFunc != nil || strings.TrimSpace(t.Filter) != ""
}
