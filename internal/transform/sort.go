package transform

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/sheetsync/sheetsync/internal/unit"
)

type resolvedRule struct {
	index int
	desc  bool
}

// sortRows orders rows in place. Rules whose column cannot be found are
// ignored; rows equal under every rule keep their input order.
func sortRows(rows [][]any, columns []unit.ColumnSpec, rules unit.SortRules) {
	resolved := make([]resolvedRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Column == "" {
			continue
		}
		idx := columnIndex(columns, rule.Column)
		if idx < 0 {
			continue
		}
		resolved = append(resolved, resolvedRule{index: idx, desc: rule.Descending()})
	}
	if len(resolved) == 0 {
		return
	}

	slices.SortStableFunc(rows, func(a, b []any) int {
		for _, rule := range resolved {
			c := compareValues(a[rule.index], b[rule.index])
			if c == 0 {
				continue
			}
			if rule.desc {
				return -c
			}
			return c
		}
		return 0
	})
}

func columnIndex(columns []unit.ColumnSpec, name string) int {
	for i, col := range columns {
		if col.Label == name {
			return i
		}
		if s, ok := col.Value.(string); ok && s == name {
			return i
		}
	}
	return -1
}

// compareValues compares numerically when both sides are numbers and as
// strings otherwise.
func compareValues(a, b any) int {
	if x, ok := asFloat(a); ok {
		if y, ok := asFloat(b); ok {
			return cmp.Compare(x, y)
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
