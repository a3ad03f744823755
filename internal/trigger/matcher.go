package trigger

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/sheetsync/sheetsync/internal/events"
	"github.com/sheetsync/sheetsync/internal/unit"
)

var celNewEnv = cel.NewEnv

// Matcher decides whether an event concerns a unit's subscription.
type Matcher struct {
	env        *cel.Env
	prgCache   map[string]cel.Program
	cacheMutex sync.RWMutex
	logger     *slog.Logger
}

// NewMatcher creates a Matcher. Conditions see the event payload as the
// map variable event.
func NewMatcher(logger *slog.Logger) (*Matcher, error) {
	env, err := celNewEnv(
		cel.Variable("event", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		env:      env,
		prgCache: make(map[string]cel.Program),
		logger:   logger.With("component", "matcher"),
	}, nil
}

// Matches reports whether ev passes sub. A nil or empty subscription never
// matches. Entity and type lists match anything when empty.
func (m *Matcher) Matches(sub *unit.EventSubscription, ev events.Event) bool {
	if sub == nil {
		return false
	}
	if len(sub.Entities) == 0 && len(sub.Types) == 0 && sub.Condition == "" {
		return false
	}
	if len(sub.Entities) > 0 && !slices.Contains(sub.Entities, ev.Entity) {
		return false
	}
	if len(sub.Types) > 0 && !slices.Contains(sub.Types, ev.Type) {
		return false
	}
	if sub.Condition == "" {
		return true
	}

	ok, err := m.evaluate(sub.Condition, ev)
	if err != nil {
		m.logger.Warn("Failed to evaluate event condition", "condition", sub.Condition, "error", err)
		return false
	}
	return ok
}

func (m *Matcher) evaluate(condition string, ev events.Event) (bool, error) {
	prg, err := m.getProgram(condition)
	if err != nil {
		return false, err
	}

	fields := make(map[string]any, len(ev.Fields)+2)
	for k, v := range ev.Fields {
		fields[k] = v
	}
	fields["type"] = ev.Type
	fields["entity"] = ev.Entity

	out, _, err := prg.Eval(map[string]any{"event": fields})
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}
	match, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL condition must return boolean, got %T", out.Value())
	}
	return match, nil
}

// Compile checks a condition ahead of time.
func (m *Matcher) Compile(condition string) error {
	_, err := m.getProgram(condition)
	return err
}

func (m *Matcher) getProgram(condition string) (cel.Program, error) {
	m.cacheMutex.RLock()
	prg, ok := m.prgCache[condition]
	m.cacheMutex.RUnlock()
	if ok {
		return prg, nil
	}

	m.cacheMutex.Lock()
	defer m.cacheMutex.Unlock()

	if prg, ok := m.prgCache[condition]; ok {
		return prg, nil
	}

	ast, issues := m.env.Compile(condition)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid event condition: %w", issues.Err())
	}
	prg, err := m.env.Program(ast)
	if err != nil {
		return nil, err
	}
	m.prgCache[condition] = prg
	return prg, nil
}
