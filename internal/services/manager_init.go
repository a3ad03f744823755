package services

import (
	"context"
	"fmt"

	"github.com/sheetsync/sheetsync/internal/api"
	"github.com/sheetsync/sheetsync/internal/config"
	"github.com/sheetsync/sheetsync/internal/events"
	natsevents "github.com/sheetsync/sheetsync/internal/events/nats"
	"github.com/sheetsync/sheetsync/internal/history"
	historymongo "github.com/sheetsync/sheetsync/internal/history/mongo"
	"github.com/sheetsync/sheetsync/internal/ledger"
	"github.com/sheetsync/sheetsync/internal/orchestrator"
	"github.com/sheetsync/sheetsync/internal/server"
	"github.com/sheetsync/sheetsync/internal/sink"
	"github.com/sheetsync/sheetsync/internal/transform"
	"github.com/sheetsync/sheetsync/internal/trigger"
)

// Factories for components that reach external systems. Tests replace them.
var (
	sheetsLoaderFactory = func(ctx context.Context, cfg config.SheetsConfig, m *Manager) (sink.Loader, error) {
		return sink.NewSheets(ctx, cfg.ServiceAccountJSON, m.logger)
	}
	mongoHistoryFactory = func(ctx context.Context, cfg config.MongoHistory) (history.Store, error) {
		return historymongo.Connect(ctx, cfg.URI, cfg.Database, cfg.Collection)
	}
	natsSourceFactory = func(cfg config.NATSConfig, m *Manager) (events.Source, error) {
		return natsevents.Connect(natsevents.Config{
			URL:      cfg.URL,
			Stream:   cfg.Stream,
			Subject:  cfg.Subject,
			Consumer: cfg.Consumer,
		}, m.logger)
	}
)

// Init builds every component. It performs no background work; Start and
// RunOnce do.
func (m *Manager) Init(ctx context.Context) error {
	if err := m.initUnits(); err != nil {
		return err
	}
	if err := m.initExtractor(); err != nil {
		return err
	}
	if err := m.initLoader(ctx); err != nil {
		return err
	}
	if err := m.initHistory(ctx); err != nil {
		return err
	}

	var matcher *trigger.Matcher
	if m.eventsActive() {
		var err error
		if matcher, err = m.initMatcher(); err != nil {
			return err
		}
	}

	if !m.opts.Once {
		m.server = server.New(m.cfg.Server, m.logger)
	}

	if err := m.initOrchestrator(); err != nil {
		return err
	}

	if m.opts.Once {
		return nil
	}

	if err := m.initScheduler(); err != nil {
		return err
	}
	if matcher != nil {
		if err := m.initEvents(matcher); err != nil {
			return err
		}
	}
	m.initAPI()
	return nil
}

func (m *Manager) eventsActive() bool {
	return !m.opts.Once && m.cfg.Events.Active()
}

func (m *Manager) initUnits() error {
	targets, err := m.cfg.Ledger.SyncTargets()
	if err != nil {
		return err
	}
	if m.targets, err = ledger.NewTargets(targets); err != nil {
		return err
	}

	units, warnings, err := m.cfg.LoadUnits(m.targets)
	if err != nil {
		return err
	}
	m.units = units
	m.warnings = append(append([]string{}, m.cfg.Warnings...), warnings...)
	for _, w := range m.warnings {
		m.logger.Warn("Configuration warning", "warning", w)
	}
	return nil
}

func (m *Manager) initExtractor() error {
	client, err := ledger.NewClient(m.cfg.Ledger.ClientConfig())
	if err != nil {
		return fmt.Errorf("failed to create ledger client: %w", err)
	}
	m.extractor = ledger.NewExtractor(client, m.targets, m.logger)
	for _, u := range m.units {
		if !m.extractor.Supports(u.Source.Type) {
			return fmt.Errorf("unit %s: unsupported source type: %s", u.ID, u.Source.Type)
		}
	}
	return nil
}

func (m *Manager) initLoader(ctx context.Context) error {
	if !m.cfg.Sheets.Enabled {
		m.loader = sink.NewDisabled(m.logger)
		return nil
	}
	loader, err := sheetsLoaderFactory(ctx, m.cfg.Sheets, m)
	if err != nil {
		return fmt.Errorf("failed to create sheets loader: %w", err)
	}
	m.loader = loader
	return nil
}

func (m *Manager) initHistory(ctx context.Context) error {
	if m.cfg.History.Backend != config.HistoryMongo {
		m.history = history.NewMemoryStore(m.cfg.History.Limit)
		return nil
	}
	store, err := mongoHistoryFactory(ctx, m.cfg.History.Mongo)
	if err != nil {
		return err
	}
	m.history = store
	m.logger.Info("Run history stored in MongoDB",
		"database", m.cfg.History.Mongo.Database,
		"collection", m.cfg.History.Mongo.Collection)
	return nil
}

func (m *Manager) initMatcher() (*trigger.Matcher, error) {
	matcher, err := trigger.NewMatcher(m.logger)
	if err != nil {
		return nil, err
	}
	for _, u := range m.units {
		if u.Events == nil || u.Events.Condition == "" {
			continue
		}
		if err := matcher.Compile(u.Events.Condition); err != nil {
			return nil, fmt.Errorf("unit %s: invalid event condition: %w", u.ID, err)
		}
	}
	return matcher, nil
}

func (m *Manager) initOrchestrator() error {
	sinkMode := "disabled"
	if m.cfg.Sheets.Enabled {
		sinkMode = m.cfg.Sheets.Mode
	}

	engine, err := transform.New(m.logger)
	if err != nil {
		return err
	}

	opts := orchestrator.Options{
		Units:       m.units,
		Extractor:   m.extractor,
		Transformer: engine,
		Loader:      m.loader,
		History:     m.history,
		Logger:      m.logger,
		Warnings:    m.warnings,
		Schedule:    orchestrator.ScheduleInfo{GlobalCron: m.cfg.Sync.Cron, Once: m.opts.Once},
		Sink:        orchestrator.SinkInfo{Mode: sinkMode, Enabled: m.cfg.Sheets.Enabled},
		Events:      m.eventsActive(),
		QueueSize:   m.cfg.Sync.QueueSize,
	}
	if m.server != nil {
		srv := m.server
		for _, u := range m.units {
			srv.SetServingStatus(UnitHealthPrefix+u.ID, true)
		}
		opts.OnRunFinished = func(rec history.RunRecord) {
			srv.SetServingStatus(UnitHealthPrefix+rec.UnitID, rec.Success)
		}
	}

	m.orch, err = orchestrator.New(opts)
	return err
}

func (m *Manager) initScheduler() error {
	m.scheduler = trigger.NewScheduler(m.orch, m.logger)
	if m.cfg.Sync.Cron != "" {
		if err := m.scheduler.AddGlobal(m.cfg.Sync.Cron); err != nil {
			return err
		}
	}
	for _, u := range m.units {
		if u.Cron == "" {
			continue
		}
		if err := m.scheduler.AddUnit(u.ID, u.Cron); err != nil {
			return fmt.Errorf("unit %s: %w", u.ID, err)
		}
	}
	return nil
}

func (m *Manager) initEvents(matcher *trigger.Matcher) error {
	m.router = trigger.NewRouter(m.units, matcher, m.orch, m.cfg.Events.Debounce, m.logger)
	m.orch.SetPendingProbe(m.router.Pending)

	switch m.cfg.Events.Transport {
	case config.TransportNATS:
		src, err := natsSourceFactory(m.cfg.Events.NATS, m)
		if err != nil {
			return err
		}
		m.source = src
	default:
		m.source = events.NewWebSocket(events.WebSocketConfig{
			URL:            m.cfg.Events.URL,
			Token:          m.cfg.Events.Token,
			ReconnectDelay: m.cfg.Events.ReconnectDelay,
		}, m.logger)
	}
	return nil
}

func (m *Manager) initAPI() {
	auth := api.NewAuthenticator(m.cfg.Server.Auth.JWTSecret, m.cfg.Server.Auth.Issuer)
	if auth == nil {
		m.logger.Warn("Control API is unauthenticated; set SHEETSYNC_JWT_SECRET to protect it")
	}
	api.NewHandler(m.orch, auth, m.logger).Register(m.server)
}
