// Package events receives change notifications from the ledger service.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event is a ledger change notification. Fields holds the full decoded
// payload, including type and entity.
type Event struct {
	Type   string
	Entity string
	Fields map[string]any
}

// Decode parses a JSON event payload.
func Decode(data []byte) (Event, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return Event{}, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	ev := Event{Fields: fields}
	ev.Type, _ = fields["type"].(string)
	ev.Entity, _ = fields["entity"].(string)
	return ev, nil
}

// Handler receives decoded events.
type Handler func(Event)

// Source delivers events to a handler until its context is cancelled or it
// is closed.
type Source interface {
	Start(ctx context.Context, handler Handler) error
	Close() error
}

type disabledSource struct {
	logger *slog.Logger
}

// NewDisabled returns a Source that never delivers events.
func NewDisabled(logger *slog.Logger) Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &disabledSource{logger: logger.With("component", "events")}
}

func (s *disabledSource) Start(context.Context, Handler) error {
	s.logger.Info("Event subscriber disabled")
	return nil
}

func (s *disabledSource) Close() error { return nil }
