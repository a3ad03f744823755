package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sheetsync/sheetsync/internal/history"
	"github.com/sheetsync/sheetsync/internal/transform"
	"github.com/sheetsync/sheetsync/internal/unit"
)

var (
	ErrUnitNotFound   = errors.New("unit not found")
	ErrAlreadyRunning = errors.New("unit sync already running")
)

// Extractor produces the records a unit transforms.
type Extractor interface {
	Extract(ctx context.Context, u *unit.SyncUnit) ([]unit.Record, error)
}

// Transformer converts records into rows.
type Transformer interface {
	Transform(spec unit.TransformSpec, records []unit.Record) transform.Result
}

// RunRequest asks the dispatcher to run one unit, or every unit when UnitID
// is empty.
type RunRequest struct {
	UnitID  string
	Trigger history.Trigger
}

// RunError is the last failure recorded for a unit.
type RunError struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// UnitStatus is a read-only snapshot of one unit's definition and run state.
type UnitStatus struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	SpreadsheetID string         `json:"spreadsheetId"`
	Tab           string         `json:"tab"`
	Mode          unit.WriteMode `json:"mode"`
	Cron          string         `json:"cron,omitempty"`
	Running       bool           `json:"running"`
	EventPending  bool           `json:"eventPending"`
	LastRunAt     *time.Time     `json:"lastRun"`
	LastSuccessAt *time.Time     `json:"lastSuccess"`
	LastError     *RunError      `json:"lastError"`
	RowCount      int            `json:"rowCount"`
}

// ScheduleInfo describes the process-wide schedule.
type ScheduleInfo struct {
	GlobalCron string `json:"globalCron"`
	Once       bool   `json:"once"`
}

// SinkInfo describes the configured sink.
type SinkInfo struct {
	Mode    string `json:"mode"`
	Enabled bool   `json:"enabled"`
}

// Status is the snapshot served to the status surface.
type Status struct {
	Warnings []string     `json:"warnings"`
	Schedule ScheduleInfo `json:"schedule"`
	Sink     SinkInfo     `json:"sink"`
	Events   bool         `json:"eventsEnabled"`
	Units    []UnitStatus `json:"sheets"`
}

// UnitFailure pairs a failed unit with its error.
type UnitFailure struct {
	UnitID string
	Err    error
}

// BatchError is returned by RunAll when at least one unit failed.
type BatchError struct {
	Failures []UnitFailure
}

func (e *BatchError) Error() string {
	return "one or more units failed: " + strings.Join(e.FailedUnits(), ", ")
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// FailedUnits returns the ids of the failed units in run order.
func (e *BatchError) FailedUnits() []string {
	ids := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		ids[i] = f.UnitID
	}
	return ids
}
