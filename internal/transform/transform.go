// Package transform turns extracted ledger records into spreadsheet rows.
package transform

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/sheetsync/sheetsync/internal/transform/expr"
	"github.com/sheetsync/sheetsync/internal/unit"
)

const formulaPrefix = "="

// Result is the output of a transform: a header row and the data rows.
// Warnings collects non-fatal evaluation problems.
type Result struct {
	Header   []string
	Rows     [][]any
	Warnings []string
}

// Engine evaluates transform specs. It holds no per-run state and may be
// shared across units.
type Engine struct {
	eval   *expr.Evaluator
	logger *slog.Logger
}

// New creates an Engine.
func New(logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	eval, err := expr.New()
	if err != nil {
		return nil, err
	}
	return &Engine{
		eval:   eval,
		logger: logger.With("component", "transform"),
	}, nil
}

type run struct {
	*Engine
	warnings []string
}

func (r *run) warn(msg string, args ...any) {
	r.logger.Warn(msg, args...)
	r.warnings = append(r.warnings, msg+formatArgs(args))
}

func formatArgs(args []any) string {
	var b strings.Builder
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	return b.String()
}

// Transform filters records, resolves every column value and sorts the rows.
// A spec without columns yields an empty Result.
func (e *Engine) Transform(spec unit.TransformSpec, records []unit.Record) Result {
	if len(spec.Columns) == 0 {
		return Result{}
	}

	r := &run{Engine: e}

	header := make([]string, len(spec.Columns))
	for i, col := range spec.Columns {
		header[i] = col.HeaderLabel()
	}

	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		if spec.HasFilter() && !r.keep(spec, rec) {
			continue
		}
		row := make([]any, len(spec.Columns))
		for i, col := range spec.Columns {
			row[i] = blankIfNil(r.value(col, rec))
		}
		rows = append(rows, row)
	}

	if len(spec.PostProcess.SortBy) > 0 {
		sortRows(rows, spec.Columns, spec.PostProcess.SortBy)
	}

	return Result{Header: header, Rows: rows, Warnings: r.warnings}
}

func (r *run) keep(spec unit.TransformSpec, rec unit.Record) (kept bool) {
	if spec.FilterFunc != nil {
		defer func() {
			if p := recover(); p != nil {
				r.warn("transform filter function panicked", "error", p)
				kept = false
			}
		}()
		return spec.FilterFunc(rec, Helpers)
	}

	expression := unwrap(strings.TrimSpace(spec.Filter))
	result, err := r.eval.Eval(expression, rec)
	if err != nil {
		r.warn("failed to evaluate transform filter", "expression", expression, "error", err)
		return false
	}
	return expr.Truthy(result)
}

func (r *run) value(col unit.ColumnSpec, rec unit.Record) (v any) {
	if col.Func != nil {
		defer func() {
			if p := recover(); p != nil {
				r.warn("transform column function panicked", "column", col.HeaderLabel(), "error", p)
				v = nil
			}
		}()
		return col.Func(rec, Helpers)
	}

	s, ok := col.Value.(string)
	if !ok {
		return col.Value
	}

	trimmed := strings.TrimSpace(s)
	switch {
	case isExpression(trimmed):
		expression := unwrap(trimmed)
		result, err := r.eval.Eval(expression, rec)
		if err != nil {
			r.warn("failed to evaluate transform expression", "expression", expression, "error", err)
			return nil
		}
		return result
	case strings.HasPrefix(trimmed, formulaPrefix):
		return trimmed
	}

	if field, ok := rec[trimmed]; ok {
		return field
	}
	return trimmed
}

func isExpression(s string) bool {
	return strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}")
}

func unwrap(s string) string {
	if isExpression(s) {
		return s[2 : len(s)-1]
	}
	return s
}

func blankIfNil(v any) any {
	if v == nil {
		return ""
	}
	return v
}
