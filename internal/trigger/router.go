package trigger

import (
	"log/slog"
	"time"

	"github.com/sheetsync/sheetsync/internal/events"
	"github.com/sheetsync/sheetsync/internal/history"
	"github.com/sheetsync/sheetsync/internal/orchestrator"
	"github.com/sheetsync/sheetsync/internal/unit"
)

// Router arms the debounce timer of every unit an event matches.
type Router struct {
	units           []*unit.SyncUnit
	matcher         *Matcher
	debouncer       *Debouncer
	defaultDebounce time.Duration
	logger          *slog.Logger
}

// NewRouter wires a matcher and a debouncer whose expiry submits an event
// run for the unit.
func NewRouter(units []*unit.SyncUnit, matcher *Matcher, submit Submitter, defaultDebounce time.Duration, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "router")
	return &Router{
		units:   units,
		matcher: matcher,
		debouncer: NewDebouncer(func(unitID string) {
			submit.Submit(orchestrator.RunRequest{UnitID: unitID, Trigger: history.TriggerEvent})
		}, logger),
		defaultDebounce: defaultDebounce,
		logger:          logger,
	}
}

// Handle routes one event.
func (r *Router) Handle(ev events.Event) {
	matched := false
	for _, u := range r.units {
		if !r.matcher.Matches(u.Events, ev) {
			continue
		}
		matched = true
		delay := ResolveDebounce(u.Events, r.defaultDebounce)
		if r.debouncer.Arm(u.ID, delay) {
			r.logger.Info("Queuing unit sync from event stream",
				"unit_id", u.ID, "debounce", delay, "event_type", ev.Type, "entity", ev.Entity)
		}
	}
	if !matched {
		r.logger.Debug("Event ignored; no unit subscriptions matched", "event_type", ev.Type, "entity", ev.Entity)
	}
}

// Pending reports whether an event run is waiting for unitID.
func (r *Router) Pending(unitID string) bool {
	return r.debouncer.Pending(unitID)
}

// Stop cancels all pending event runs.
func (r *Router) Stop() {
	r.debouncer.Stop()
}
