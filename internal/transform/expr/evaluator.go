// Package expr evaluates the ${...} expressions embedded in column and filter
// definitions. Expressions are CEL programs evaluated against a flat record
// context; they cannot perform I/O or call anything outside the helper set.
package expr

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

var celNewEnv = cel.NewEnv

// ErrNonFinite is returned when an expression produces NaN or an infinity,
// typically a division by a missing field.
var ErrNonFinite = errors.New("expression result is not a finite number")

// MaxCacheSize is the maximum number of compiled expressions kept in memory.
const MaxCacheSize = 1000

// Evaluator compiles and runs expressions. It is safe for concurrent use.
type Evaluator struct {
	env        *cel.Env
	prgCache   map[string]*compiled
	cacheOrder []string
	cacheMutex sync.RWMutex
}

type compiled struct {
	prg    cel.Program
	idents []string
}

// New creates an Evaluator with the helper functions registered.
func New() (*Evaluator, error) {
	opts := append([]cel.EnvOption{cel.CrossTypeNumericComparisons(true)}, helperFunctions()...)
	env, err := celNewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create expression environment: %w", err)
	}
	return &Evaluator{
		env:        env,
		prgCache:   make(map[string]*compiled),
		cacheOrder: make([]string, 0, MaxCacheSize),
	}, nil
}

// Eval evaluates expression against vars. Record values are normalized
// first: nil becomes 0 and integers become floats. Identifiers the
// expression references but vars does not define are bound to 0.
func (e *Evaluator) Eval(expression string, vars map[string]any) (any, error) {
	c, err := e.getProgram(expression)
	if err != nil {
		return nil, err
	}

	activation := make(map[string]any, len(vars)+len(c.idents))
	for k, v := range vars {
		activation[k] = normalize(v)
	}
	for _, name := range c.idents {
		if _, ok := activation[name]; !ok {
			activation[name] = float64(0)
		}
	}

	out, _, err := c.prg.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("expression evaluation error: %w", err)
	}
	result := toNative(out)
	if f, ok := result.(float64); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
		return nil, fmt.Errorf("%w: %v", ErrNonFinite, f)
	}
	return result, nil
}

func (e *Evaluator) getProgram(expression string) (*compiled, error) {
	e.cacheMutex.RLock()
	c, ok := e.prgCache[expression]
	e.cacheMutex.RUnlock()
	if ok {
		return c, nil
	}

	e.cacheMutex.Lock()
	defer e.cacheMutex.Unlock()

	if c, ok := e.prgCache[expression]; ok {
		return c, nil
	}

	c, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	if len(e.prgCache) >= MaxCacheSize {
		oldest := e.cacheOrder[0]
		delete(e.prgCache, oldest)
		e.cacheOrder = e.cacheOrder[1:]
		slog.Debug("Expression cache full, evicted oldest entry")
	}

	e.prgCache[expression] = c
	e.cacheOrder = append(e.cacheOrder, expression)
	return c, nil
}

// compile parses without type checking so record fields need no
// declarations, then widens integer literals to doubles: ledger amounts are
// plain numbers and balance/100 must divide like a calculator would.
func (e *Evaluator) compile(expression string) (*compiled, error) {
	parsed, issues := e.env.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to parse expression: %w", issues.Err())
	}

	pe, err := cel.AstToParsedExpr(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to read expression: %w", err)
	}
	idents := map[string]struct{}{}
	rewrite(pe.GetExpr(), idents, nil)

	prg, err := e.env.Program(cel.ParsedExprToAst(pe))
	if err != nil {
		return nil, fmt.Errorf("failed to build expression program: %w", err)
	}

	names := make([]string, 0, len(idents))
	for name := range idents {
		names = append(names, name)
	}
	return &compiled{prg: prg, idents: names}, nil
}

// rewrite widens numeric literals in place and collects free identifiers.
// bound holds comprehension variables, which are not record fields.
func rewrite(e *exprpb.Expr, idents map[string]struct{}, bound map[string]bool) {
	if e == nil {
		return
	}
	switch k := e.GetExprKind().(type) {
	case *exprpb.Expr_ConstExpr:
		switch c := k.ConstExpr.GetConstantKind().(type) {
		case *exprpb.Constant_Int64Value:
			k.ConstExpr.ConstantKind = &exprpb.Constant_DoubleValue{DoubleValue: float64(c.Int64Value)}
		case *exprpb.Constant_Uint64Value:
			k.ConstExpr.ConstantKind = &exprpb.Constant_DoubleValue{DoubleValue: float64(c.Uint64Value)}
		}
	case *exprpb.Expr_IdentExpr:
		name := k.IdentExpr.GetName()
		if !bound[name] {
			idents[name] = struct{}{}
		}
	case *exprpb.Expr_SelectExpr:
		rewrite(k.SelectExpr.GetOperand(), idents, bound)
	case *exprpb.Expr_CallExpr:
		rewrite(k.CallExpr.GetTarget(), idents, bound)
		for _, arg := range k.CallExpr.GetArgs() {
			rewrite(arg, idents, bound)
		}
	case *exprpb.Expr_ListExpr:
		for _, el := range k.ListExpr.GetElements() {
			rewrite(el, idents, bound)
		}
	case *exprpb.Expr_StructExpr:
		for _, entry := range k.StructExpr.GetEntries() {
			rewrite(entry.GetMapKey(), idents, bound)
			rewrite(entry.GetValue(), idents, bound)
		}
	case *exprpb.Expr_ComprehensionExpr:
		c := k.ComprehensionExpr
		rewrite(c.GetIterRange(), idents, bound)
		rewrite(c.GetAccuInit(), idents, bound)
		inner := map[string]bool{c.GetIterVar(): true, c.GetAccuVar(): true}
		for name := range bound {
			inner[name] = true
		}
		rewrite(c.GetLoopCondition(), idents, inner)
		rewrite(c.GetLoopStep(), idents, inner)
		rewrite(c.GetResult(), idents, inner)
	}
}

func normalize(v any) any {
	switch n := v.(type) {
	case nil:
		return float64(0)
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

func toNative(v ref.Val) any {
	switch val := v.(type) {
	case types.Null:
		return nil
	case types.Bool:
		return bool(val)
	case types.Double:
		return float64(val)
	case types.Int:
		return float64(val)
	case types.Uint:
		return float64(val)
	case types.String:
		return string(val)
	case types.Timestamp:
		return val.Time
	default:
		return v.Value()
	}
}

// Truthy reports whether an evaluation result counts as true for a filter.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0 && !math.IsNaN(val)
	case int:
		return val != 0
	case int64:
		return val != 0
	case string:
		return val != ""
	case time.Time:
		return !val.IsZero()
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}
