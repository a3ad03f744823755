package transform

import (
	"github.com/sheetsync/sheetsync/internal/transform/expr"
	"github.com/sheetsync/sheetsync/internal/unit"
)

// Helpers is passed to programmatic column and filter functions.
var Helpers unit.Helpers = helpers{}

type helpers struct{}

func (helpers) FormatDate(value any, format string) string { return expr.FormatDate(value, format) }
func (helpers) Coalesce(values ...any) any                 { return expr.Coalesce(values...) }
func (helpers) ToNumber(value any) float64                 { return expr.ToNumber(value) }
