package expr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := New()
	require.NoError(t, err)
	return e
}

func TestNew_EnvError(t *testing.T) {
	original := celNewEnv
	celNewEnv = func(...cel.EnvOption) (*cel.Env, error) {
		return nil, errors.New("boom")
	}
	defer func() { celNewEnv = original }()

	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create expression environment")
}

func TestEval(t *testing.T) {
	t.Parallel()
	e := newTestEvaluator(t)

	tests := []struct {
		name string
		expr string
		vars map[string]any
		want any
	}{
		{"integer division widens", "balance/100", map[string]any{"balance": 12345}, 123.45},
		{"literal division", "7/2", nil, 3.5},
		{"float field", "amount * 2", map[string]any{"amount": 1.25}, 2.5},
		{"nil field is zero", "balance + 1", map[string]any{"balance": nil}, 1.0},
		{"undeclared identifier is zero", "missing + 5", map[string]any{}, 5.0},
		{"string concat", "name + '!'", map[string]any{"name": "Checking"}, "Checking!"},
		{"negation", "!closed", map[string]any{"closed": false}, true},
		{"comparison across ints", "amount < 0", map[string]any{"amount": int64(-500)}, true},
		{"ternary", "amount < 0 ? 'out' : 'in'", map[string]any{"amount": 300}, "in"},
		{"toNumber", "toNumber(raw) + 1", map[string]any{"raw": "41"}, 42.0},
		{"coalesce picks first non-empty", "coalesce(payee, notes, 'none')", map[string]any{"payee": "", "notes": "rent"}, "rent"},
		{"coalesce falls back to empty", "coalesce('')", nil, ""},
		{"formatDate default", "formatDate(date)", map[string]any{"date": "2024-03-05"}, "2024-03-05"},
		{"formatDate custom", "formatDate(date, 'dd/MM/yyyy')", map[string]any{"date": "2024-03-05"}, "05/03/2024"},
		{"comprehension", "[1, 2, 3].exists(x, x > limit)", map[string]any{"limit": 2}, true},
		{"null literal", "null", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Eval(tt.expr, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_Errors(t *testing.T) {
	t.Parallel()
	e := newTestEvaluator(t)

	_, err := e.Eval("balance +", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse expression")

	_, err = e.Eval("name + 1", map[string]any{"name": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expression evaluation error")
}

func TestEval_NonFinite(t *testing.T) {
	t.Parallel()
	e := newTestEvaluator(t)

	tests := []struct {
		name       string
		expression string
		vars       map[string]any
	}{
		{"missing divisor", "amount / units", map[string]any{"amount": 10}},
		{"nil divisor", "amount / units", map[string]any{"amount": 10, "units": nil}},
		{"zero over zero", "amount / units", map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Eval(tt.expression, tt.vars)
			assert.ErrorIs(t, err, ErrNonFinite)
			assert.Nil(t, got)
		})
	}
}

func TestEval_CacheEviction(t *testing.T) {
	t.Parallel()
	e := newTestEvaluator(t)

	for i := 0; i < MaxCacheSize+5; i++ {
		_, err := e.Eval(fmt.Sprintf("x + %d", i), map[string]any{"x": 1})
		require.NoError(t, err)
	}

	e.cacheMutex.RLock()
	defer e.cacheMutex.RUnlock()
	assert.Len(t, e.prgCache, MaxCacheSize)
	assert.Len(t, e.cacheOrder, MaxCacheSize)
	_, ok := e.prgCache["x + 0"]
	assert.False(t, ok)
	_, ok = e.prgCache[fmt.Sprintf("x + %d", MaxCacheSize+4)]
	assert.True(t, ok)
}

func TestEval_CachedProgramReused(t *testing.T) {
	t.Parallel()
	e := newTestEvaluator(t)

	first, err := e.Eval("a + b", map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	second, err := e.Eval("a + b", map[string]any{"a": 10})
	require.NoError(t, err)

	assert.Equal(t, 3.0, first)
	assert.Equal(t, 10.0, second)
	assert.Len(t, e.cacheOrder, 1)
}

func TestTruthy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value any
		want  bool
	}{
		{nil, false},
		{true, true},
		{false, false},
		{0.0, false},
		{2.5, true},
		{0, false},
		{3, true},
		{"", false},
		{"x", true},
		{[]any{}, false},
		{[]any{1}, true},
		{map[string]any{}, false},
		{time.Time{}, false},
		{time.Now(), true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T/%v", tt.value, tt.value), func(t *testing.T) {
			assert.Equal(t, tt.want, Truthy(tt.value))
		})
	}
}
