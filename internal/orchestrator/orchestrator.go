// Package orchestrator owns per-unit run state and drives the
// extract, transform and load pipeline for every sync unit.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sheetsync/sheetsync/internal/history"
	"github.com/sheetsync/sheetsync/internal/metrics"
	"github.com/sheetsync/sheetsync/internal/sink"
	"github.com/sheetsync/sheetsync/internal/unit"
)

const defaultQueueSize = 64

// Options configures an Orchestrator.
type Options struct {
	Units       []*unit.SyncUnit
	Extractor   Extractor
	Transformer Transformer
	Loader      sink.Loader
	History     history.Store
	Logger      *slog.Logger

	// Static information reported by Status.
	Warnings []string
	Schedule ScheduleInfo
	Sink     SinkInfo
	Events   bool

	// QueueSize bounds the run-request channel. Zero uses a default.
	QueueSize int

	// OnRunFinished, if set, is called after every run is recorded.
	OnRunFinished func(rec history.RunRecord)
}

type unitState struct {
	running       bool
	lastRunAt     time.Time
	lastSuccessAt time.Time
	lastError     *RunError
	rowCount      int
}

// Orchestrator runs sync units. At most one run per unit is in flight at
// any time.
type Orchestrator struct {
	units       []*unit.SyncUnit
	byID        map[string]*unit.SyncUnit
	extractor   Extractor
	transformer Transformer
	loader      sink.Loader
	history     history.Store
	logger      *slog.Logger
	onFinished  func(rec history.RunRecord)

	warnings []string
	schedule ScheduleInfo
	sinkInfo SinkInfo
	events   bool

	mu      sync.Mutex
	states  map[string]*unitState
	pending func(unitID string) bool

	requests chan RunRequest
	stopCh   chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	loopDone chan struct{}
	inflight sync.WaitGroup
}

// New creates an Orchestrator over the given units. Unit ids must be unique.
func New(opts Options) (*Orchestrator, error) {
	if opts.Extractor == nil {
		return nil, errors.New("orchestrator requires an extractor")
	}
	if opts.Transformer == nil {
		return nil, errors.New("orchestrator requires a transformer")
	}
	if opts.Loader == nil {
		return nil, errors.New("orchestrator requires a loader")
	}
	if opts.History == nil {
		opts.History = history.NewMemoryStore(history.DefaultLimit)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	o := &Orchestrator{
		units:       opts.Units,
		byID:        make(map[string]*unit.SyncUnit, len(opts.Units)),
		extractor:   opts.Extractor,
		transformer: opts.Transformer,
		loader:      opts.Loader,
		history:     opts.History,
		logger:      opts.Logger.With("component", "orchestrator"),
		onFinished:  opts.OnRunFinished,
		warnings:    opts.Warnings,
		schedule:    opts.Schedule,
		sinkInfo:    opts.Sink,
		events:      opts.Events,
		states:      make(map[string]*unitState, len(opts.Units)),
		requests:    make(chan RunRequest, opts.QueueSize),
		stopCh:      make(chan struct{}),
		loopDone:    make(chan struct{}),
	}
	for _, u := range opts.Units {
		if _, dup := o.byID[u.ID]; dup {
			return nil, fmt.Errorf("duplicate unit id: %s", u.ID)
		}
		o.byID[u.ID] = u
		o.states[u.ID] = &unitState{}
	}
	return o, nil
}

// Units returns the unit definitions in configuration order.
func (o *Orchestrator) Units() []*unit.SyncUnit {
	return o.units
}

// Unit looks up a unit definition by id.
func (o *Orchestrator) Unit(id string) (*unit.SyncUnit, bool) {
	u, ok := o.byID[id]
	return u, ok
}

// History returns the run history store.
func (o *Orchestrator) History() history.Store {
	return o.history
}

// SetPendingProbe installs a function Status uses to report whether an
// event-triggered run is waiting on its debounce timer.
func (o *Orchestrator) SetPendingProbe(fn func(unitID string) bool) {
	o.mu.Lock()
	o.pending = fn
	o.mu.Unlock()
}

// RunUnit runs one unit synchronously. It returns ErrUnitNotFound for an
// unknown id and ErrAlreadyRunning, without touching run state, when the
// unit is already in flight.
func (o *Orchestrator) RunUnit(ctx context.Context, id string, trigger history.Trigger) (err error) {
	u, ok := o.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnitNotFound, id)
	}

	startedAt, ok := o.begin(id)
	if !ok {
		o.logger.Warn("Unit sync already running; skipping", "unit_id", id, "trigger", trigger)
		metrics.RunsRejected.WithLabelValues(id).Inc()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}

	runID := uuid.NewString()
	logger := o.logger.With("unit_id", id, "run_id", runID, "trigger", trigger)
	logger.Info("Unit sync started")

	var rowCount, warnings int
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("unit %s panicked: %v", id, p)
		}
		finishedAt := time.Now()
		o.finish(id, finishedAt, rowCount, err)
		o.record(ctx, logger, history.RunRecord{
			RunID:      runID,
			UnitID:     id,
			Trigger:    trigger,
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			Success:    err == nil,
			Error:      errorMessage(err),
			RowCount:   rowCount,
			Warnings:   warnings,
		})
		if err != nil {
			logger.Error("Unit sync failed", "error", err)
		} else {
			logger.Info("Unit sync complete", "row_count", rowCount, "duration", finishedAt.Sub(startedAt))
		}
	}()

	rowCount, warnings, err = o.execute(ctx, u, logger)
	return err
}

func (o *Orchestrator) execute(ctx context.Context, u *unit.SyncUnit, logger *slog.Logger) (int, int, error) {
	records, err := o.extractor.Extract(ctx, u)
	if err != nil {
		return 0, 0, fmt.Errorf("extract: %w", err)
	}

	res := o.transformer.Transform(u.Transform, records)
	if len(res.Warnings) > 0 {
		metrics.TransformWarnings.WithLabelValues(u.ID).Add(float64(len(res.Warnings)))
		logger.Warn("Transform finished with warnings", "warning_count", len(res.Warnings))
	}

	if len(res.Header) == 0 {
		logger.Warn("Unit has no columns; skipping load")
		return 0, len(res.Warnings), nil
	}

	err = o.loader.Load(ctx, sink.Request{
		UnitID:     u.ID,
		Mode:       u.Mode,
		Target:     u.Target,
		Header:     res.Header,
		Rows:       res.Rows,
		KeyColumns: u.KeyColumns,
	})
	if err != nil {
		return 0, len(res.Warnings), fmt.Errorf("load: %w", err)
	}
	return len(res.Rows), len(res.Warnings), nil
}

func (o *Orchestrator) begin(id string) (time.Time, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.states[id]
	if st.running {
		return time.Time{}, false
	}
	now := time.Now()
	st.running = true
	st.lastRunAt = now
	st.lastError = nil
	return now, true
}

func (o *Orchestrator) finish(id string, at time.Time, rowCount int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.states[id]
	st.running = false
	if err != nil {
		st.lastError = &RunError{Message: err.Error(), Timestamp: at}
		return
	}
	st.lastSuccessAt = at
	st.rowCount = rowCount
}

func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, rec history.RunRecord) {
	outcome := "success"
	if !rec.Success {
		outcome = "failure"
	}
	metrics.RunsTotal.WithLabelValues(rec.UnitID, string(rec.Trigger), outcome).Inc()
	metrics.RunDuration.WithLabelValues(rec.UnitID).Observe(rec.Duration().Seconds())
	if rec.Success {
		metrics.RowsWritten.WithLabelValues(rec.UnitID).Set(float64(rec.RowCount))
	}

	if err := o.history.Append(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warn("Failed to record run history", "error", err)
	}
	if o.onFinished != nil {
		o.onFinished(rec)
	}
}

// RunAll runs every unit in configuration order. Each unit is attempted even
// when earlier ones fail; the result is a *BatchError naming every unit that
// failed. A unit that is already running is left to its current run and is
// not a failure.
func (o *Orchestrator) RunAll(ctx context.Context, trigger history.Trigger) error {
	var failures []UnitFailure
	for _, u := range o.units {
		err := o.RunUnit(ctx, u.ID, trigger)
		switch {
		case err == nil:
		case errors.Is(err, ErrAlreadyRunning):
			o.logger.Info("Unit already running; left out of batch", "unit_id", u.ID, "trigger", trigger)
		default:
			failures = append(failures, UnitFailure{UnitID: u.ID, Err: err})
		}
	}
	if len(failures) > 0 {
		return &BatchError{Failures: failures}
	}
	return nil
}

// TriggerUnit runs one unit on behalf of an operator.
func (o *Orchestrator) TriggerUnit(ctx context.Context, id string) error {
	return o.RunUnit(ctx, id, history.TriggerManual)
}

// TriggerAll runs every unit on behalf of an operator.
func (o *Orchestrator) TriggerAll(ctx context.Context) error {
	return o.RunAll(ctx, history.TriggerManual)
}

// Status returns a snapshot of every unit's run state. It never waits on a
// run.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	pending := o.pending
	units := make([]UnitStatus, 0, len(o.units))
	for _, u := range o.units {
		st := o.states[u.ID]
		us := UnitStatus{
			ID:            u.ID,
			Title:         u.Title,
			SpreadsheetID: u.Target.SpreadsheetID,
			Tab:           u.Target.Tab,
			Mode:          u.Mode,
			Cron:          u.Cron,
			Running:       st.running,
			LastRunAt:     timePtr(st.lastRunAt),
			LastSuccessAt: timePtr(st.lastSuccessAt),
			RowCount:      st.rowCount,
		}
		if st.lastError != nil {
			e := *st.lastError
			us.LastError = &e
		}
		units = append(units, us)
	}
	o.mu.Unlock()

	if pending != nil {
		for i := range units {
			units[i].EventPending = pending(units[i].ID)
		}
	}

	warnings := o.warnings
	if warnings == nil {
		warnings = []string{}
	}
	return Status{
		Warnings: warnings,
		Schedule: o.schedule,
		Sink:     o.sinkInfo,
		Events:   o.events,
		Units:    units,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
