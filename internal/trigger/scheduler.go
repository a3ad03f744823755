// Package trigger decides when sync units run: cron schedules, and ledger
// events coalesced by per-unit debounce timers.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/sheetsync/sheetsync/internal/history"
	"github.com/sheetsync/sheetsync/internal/orchestrator"
)

// Submitter accepts fire-and-forget run requests.
type Submitter interface {
	Submit(req orchestrator.RunRequest)
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSpec reports whether spec is a valid schedule expression.
func ValidateSpec(spec string) error {
	if _, err := cronParser.Parse(strings.TrimSpace(spec)); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// ScheduleEntry describes one registered schedule.
type ScheduleEntry struct {
	UnitID string
	Spec   string
	id     cron.EntryID
}

// Scheduler fires run requests on cron schedules. An empty UnitID entry
// runs every unit.
type Scheduler struct {
	cron    *cron.Cron
	submit  Submitter
	logger  *slog.Logger
	entries []ScheduleEntry
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(submit Submitter, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithParser(cronParser)),
		submit: submit,
		logger: logger.With("component", "scheduler"),
	}
}

// AddGlobal registers a schedule that runs all units.
func (s *Scheduler) AddGlobal(spec string) error {
	return s.add("", spec)
}

// AddUnit registers a schedule for one unit.
func (s *Scheduler) AddUnit(unitID, spec string) error {
	return s.add(unitID, spec)
}

func (s *Scheduler) add(unitID, spec string) error {
	spec = strings.TrimSpace(spec)
	id, err := s.cron.AddFunc(spec, func() {
		if unitID == "" {
			s.logger.Info("Running scheduled sync", "cron", spec)
		} else {
			s.logger.Info("Running unit-specific schedule", "unit_id", unitID, "cron", spec)
		}
		s.submit.Submit(orchestrator.RunRequest{UnitID: unitID, Trigger: history.TriggerSchedule})
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	s.entries = append(s.entries, ScheduleEntry{UnitID: unitID, Spec: spec, id: id})
	return nil
}

// Entries returns the registered schedules.
func (s *Scheduler) Entries() []ScheduleEntry {
	return s.entries
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", "entries", len(s.entries))
}

// Stop prevents further fires. The returned context is done once any
// schedule callback that was already running has returned.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
