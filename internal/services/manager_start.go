package services

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/sheetsync/sheetsync/internal/history"
	"github.com/sheetsync/sheetsync/internal/orchestrator"
)

// ErrNoUnits is returned by RunOnce when nothing is configured to run.
var ErrNoUnits = errors.New("no sheets configured")

// Start launches the dispatcher, schedules, event source and servers, then
// blocks until ctx is canceled or a server fails. Call Shutdown afterwards.
func (m *Manager) Start(ctx context.Context) error {
	if m.opts.Once {
		return errors.New("manager initialized for a single run; use RunOnce")
	}

	m.orch.Start(ctx)

	if m.scheduler != nil {
		m.scheduler.Start()
	}
	if m.cfg.Sync.RunOnStartup {
		m.logger.Info("Running startup sync")
		m.orch.Submit(orchestrator.RunRequest{Trigger: history.TriggerStartup})
	}

	g, gctx := errgroup.WithContext(ctx)

	// A failing event source leaves schedules and manual triggers working.
	if m.source != nil {
		g.Go(func() error {
			if err := m.source.Start(gctx, m.router.Handle); err != nil {
				m.logger.Error("Event source failed to start; event triggers disabled", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return m.server.Start(gctx)
	})
	m.server.SetServingStatus("", true)

	m.logger.Info("Sheetsync started",
		"units", len(m.units),
		"cron", m.cfg.Sync.Cron,
		"events", m.source != nil,
		"http_port", m.cfg.Server.HTTPPort)

	return g.Wait()
}

// RunOnce runs every unit a single time in configuration order. It fails
// when no units are configured or any unit fails.
func (m *Manager) RunOnce(ctx context.Context) error {
	if len(m.units) == 0 {
		return ErrNoUnits
	}
	m.logger.Info("Running single sync pass", "units", len(m.units))
	if err := m.orch.RunAll(ctx, history.TriggerStartup); err != nil {
		return err
	}
	m.logger.Info("Single sync pass complete")
	return nil
}
