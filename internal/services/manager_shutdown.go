package services

import (
	"context"
	"errors"
	"fmt"
)

// Shutdown stops components in dependency order: triggers first so nothing
// new is queued, then the dispatcher, then servers and storage. In-flight
// runs are waited for until ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error

	if m.scheduler != nil {
		m.logger.Info("Stopping scheduler")
		select {
		case <-m.scheduler.Stop().Done():
		case <-ctx.Done():
			m.logger.Warn("Timeout waiting for scheduled callbacks")
		}
	}

	if m.router != nil {
		m.router.Stop()
	}

	if m.source != nil {
		m.logger.Info("Closing event source")
		if err := m.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event source: %w", err))
		}
	}

	if m.orch != nil {
		m.logger.Info("Waiting for in-flight syncs to finish")
		if err := m.orch.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("orchestrator: %w", err))
		}
	}

	if m.server != nil {
		if err := m.server.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server: %w", err))
		}
	}

	if m.history != nil {
		if err := m.history.Close(context.WithoutCancel(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("history: %w", err))
		}
	}

	return errors.Join(errs...)
}
