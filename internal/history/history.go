// Package history records completed unit runs.
package history

import (
	"context"
	"time"
)

// Trigger names what started a run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerEvent    Trigger = "event"
	TriggerManual   Trigger = "manual"
	TriggerStartup  Trigger = "startup"
)

// DefaultLimit is the number of runs kept per unit by the memory store and
// returned by List when no limit is given.
const DefaultLimit = 50

// RunRecord describes one finished run.
type RunRecord struct {
	RunID      string    `json:"runId" bson:"_id"`
	UnitID     string    `json:"unitId" bson:"unit_id"`
	Trigger    Trigger   `json:"trigger" bson:"trigger"`
	StartedAt  time.Time `json:"startedAt" bson:"started_at"`
	FinishedAt time.Time `json:"finishedAt" bson:"finished_at"`
	Success    bool      `json:"success" bson:"success"`
	Error      string    `json:"error,omitempty" bson:"error,omitempty"`
	RowCount   int       `json:"rowCount" bson:"row_count"`
	Warnings   int       `json:"warnings,omitempty" bson:"warnings,omitempty"`
}

// Duration returns how long the run took.
func (r RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store persists run records.
type Store interface {
	Append(ctx context.Context, rec RunRecord) error
	// List returns the most recent runs for unitID, newest first.
	List(ctx context.Context, unitID string, limit int) ([]RunRecord, error)
	Close(ctx context.Context) error
}
