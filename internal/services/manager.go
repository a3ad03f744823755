// Package services wires every component from configuration and owns the
// process lifecycle.
package services

import (
	"log/slog"

	"github.com/sheetsync/sheetsync/internal/config"
	"github.com/sheetsync/sheetsync/internal/events"
	"github.com/sheetsync/sheetsync/internal/history"
	"github.com/sheetsync/sheetsync/internal/ledger"
	"github.com/sheetsync/sheetsync/internal/orchestrator"
	"github.com/sheetsync/sheetsync/internal/server"
	"github.com/sheetsync/sheetsync/internal/sink"
	"github.com/sheetsync/sheetsync/internal/trigger"
	"github.com/sheetsync/sheetsync/internal/unit"
)

// UnitHealthPrefix prefixes the gRPC health service name of each unit.
const UnitHealthPrefix = "sheetsync.unit."

// Options selects the run mode.
type Options struct {
	// Once runs every unit a single time and exits. Schedules, event
	// sources and the HTTP server are not started.
	Once bool
}

// Manager owns the components built from one configuration.
type Manager struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	units    []*unit.SyncUnit
	warnings []string

	targets   *ledger.Targets
	extractor *ledger.Extractor
	loader    sink.Loader
	history   history.Store
	orch      *orchestrator.Orchestrator

	scheduler *trigger.Scheduler
	router    *trigger.Router
	source    events.Source
	server    server.Service
}

// NewManager creates an uninitialized Manager.
func NewManager(cfg *config.Config, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		opts:   opts,
		logger: logger,
	}
}

// Orchestrator returns the orchestrator after Init.
func (m *Manager) Orchestrator() *orchestrator.Orchestrator {
	return m.orch
}

// Units returns the loaded unit definitions after Init.
func (m *Manager) Units() []*unit.SyncUnit {
	return m.units
}

// Warnings returns every non-fatal configuration problem found by Init.
func (m *Manager) Warnings() []string {
	return m.warnings
}

// Server returns the network service, or nil in once mode.
func (m *Manager) Server() server.Service {
	return m.server
}
