package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetsync/sheetsync/internal/config"
	"github.com/sheetsync/sheetsync/internal/events"
	"github.com/sheetsync/sheetsync/internal/history"
	"github.com/sheetsync/sheetsync/internal/orchestrator"
	"github.com/sheetsync/sheetsync/internal/sink"
	"github.com/sheetsync/sheetsync/internal/unit"
)

const unitsYAML = `
sheets:
  - id: balances
    spreadsheetId: sheet-1
    tab: Balances
    cron: "*/5 * * * *"
    source:
      type: balances
    events:
      entities: [account]
    transform:
      columns:
        - { label: Account, value: accountName }
        - { label: Balance, value: "${balance/100}" }
`

type recordingLoader struct {
	mu       sync.Mutex
	requests []sink.Request
	err      error
}

func (l *recordingLoader) Load(_ context.Context, req sink.Request) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.requests = append(l.requests, req)
	return nil
}

func (l *recordingLoader) ReadCurrentGrid(context.Context, unit.Target) ([][]any, error) {
	return nil, nil
}

func (l *recordingLoader) loaded() []sink.Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]sink.Request(nil), l.requests...)
}

type stubSource struct {
	started chan events.Handler
	closed  bool
}

func (s *stubSource) Start(_ context.Context, h events.Handler) error {
	s.started <- h
	return nil
}

func (s *stubSource) Close() error {
	s.closed = true
	return nil
}

func newLedgerServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/budgets/sync-1/accounts", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
			{"id": "a1", "name": "Checking", "type": "checking"},
		}})
	})
	mux.HandleFunc("GET /v1/budgets/sync-1/accounts/a1/balance", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": 12345})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, ledgerURL, units string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Ledger.ServerURL = ledgerURL
	cfg.Ledger.SyncID = "sync-1"
	cfg.Ledger.ApplyDefaults()
	cfg.Sheets.DefaultSpreadsheetID = "sheet-default"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.HTTPPort = 0
	cfg.Server.GRPCEnabled = false

	path := filepath.Join(t.TempDir(), "sheets.yml")
	if units != "" {
		require.NoError(t, os.WriteFile(path, []byte(units), 0644))
	}
	cfg.Sync.UnitsPath = path
	return cfg
}

func useLoader(t *testing.T, loader sink.Loader) {
	t.Helper()
	orig := sheetsLoaderFactory
	sheetsLoaderFactory = func(context.Context, config.SheetsConfig, *Manager) (sink.Loader, error) {
		return loader, nil
	}
	t.Cleanup(func() { sheetsLoaderFactory = orig })
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManager_RunOnce(t *testing.T) {
	loader := &recordingLoader{}
	useLoader(t, loader)
	cfg := testConfig(t, newLedgerServer(t).URL, unitsYAML)

	m := NewManager(cfg, Options{Once: true}, testLogger())
	require.NoError(t, m.Init(context.Background()))
	assert.Nil(t, m.Server())
	assert.Nil(t, m.scheduler)
	assert.Nil(t, m.source)

	require.NoError(t, m.RunOnce(context.Background()))

	reqs := loader.loaded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "balances", reqs[0].UnitID)
	assert.Equal(t, []string{"Account", "Balance"}, reqs[0].Header)
	assert.Equal(t, [][]any{{"Checking", 123.45}}, reqs[0].Rows)

	runs, err := m.Orchestrator().History().List(context.Background(), "balances", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, history.TriggerStartup, runs[0].Trigger)
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_RunOnceFailures(t *testing.T) {
	t.Run("no units", func(t *testing.T) {
		useLoader(t, &recordingLoader{})
		cfg := testConfig(t, newLedgerServer(t).URL, "")

		m := NewManager(cfg, Options{Once: true}, testLogger())
		require.NoError(t, m.Init(context.Background()))
		assert.Equal(t, []string{"Sheet config not found at " + cfg.Sync.UnitsPath}, m.Warnings())
		assert.ErrorIs(t, m.RunOnce(context.Background()), ErrNoUnits)
	})

	t.Run("unit fails", func(t *testing.T) {
		useLoader(t, &recordingLoader{err: errors.New("quota exceeded")})
		cfg := testConfig(t, newLedgerServer(t).URL, unitsYAML)

		m := NewManager(cfg, Options{Once: true}, testLogger())
		require.NoError(t, m.Init(context.Background()))

		err := m.RunOnce(context.Background())
		var batch *orchestrator.BatchError
		require.ErrorAs(t, err, &batch)
		assert.Equal(t, []string{"balances"}, batch.FailedUnits())
	})
}

func TestManager_InitErrors(t *testing.T) {
	tests := []struct {
		name    string
		units   string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "unsupported source",
			units:   "sheets:\n  - id: x\n    source: { type: budgets }\n    transform: { columns: [ { label: A, value: a } ] }\n",
			wantErr: "unit x: unsupported source type: budgets",
		},
		{
			name:  "bad event condition",
			units: "sheets:\n  - id: x\n    source: { type: balances }\n    events: { condition: \"type ==\" }\n    transform: { columns: [ { label: A, value: a } ] }\n",
			mutate: func(c *config.Config) {
				c.Events.Enabled = true
				c.Events.URL = "ws://ledger/events"
			},
			wantErr: "unit x: invalid event condition",
		},
		{
			name:  "mongo unavailable",
			units: unitsYAML,
			mutate: func(c *config.Config) {
				c.History.Backend = config.HistoryMongo
			},
			wantErr: "mongo down",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useLoader(t, &recordingLoader{})
			orig := mongoHistoryFactory
			mongoHistoryFactory = func(context.Context, config.MongoHistory) (history.Store, error) {
				return nil, errors.New("mongo down")
			}
			t.Cleanup(func() { mongoHistoryFactory = orig })

			cfg := testConfig(t, newLedgerServer(t).URL, tt.units)
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := NewManager(cfg, Options{}, testLogger()).Init(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestManager_DisabledSheets(t *testing.T) {
	cfg := testConfig(t, newLedgerServer(t).URL, unitsYAML)
	cfg.Sheets.Enabled = false

	m := NewManager(cfg, Options{Once: true}, testLogger())
	require.NoError(t, m.Init(context.Background()))
	require.NoError(t, m.RunOnce(context.Background()))

	st := m.Orchestrator().Status()
	assert.Equal(t, orchestrator.SinkInfo{Mode: "disabled", Enabled: false}, st.Sink)
	assert.Equal(t, 1, st.Units[0].RowCount)
}

func TestManager_Serve(t *testing.T) {
	loader := &recordingLoader{}
	useLoader(t, loader)

	src := &stubSource{started: make(chan events.Handler, 1)}
	origNATS := natsSourceFactory
	natsSourceFactory = func(config.NATSConfig, *Manager) (events.Source, error) { return src, nil }
	t.Cleanup(func() { natsSourceFactory = origNATS })

	cfg := testConfig(t, newLedgerServer(t).URL, unitsYAML)
	cfg.Events.Enabled = true
	cfg.Events.Transport = config.TransportNATS
	cfg.Events.Debounce = 20 * time.Millisecond

	m := NewManager(cfg, Options{}, testLogger())
	require.NoError(t, m.Init(context.Background()))

	entries := m.scheduler.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "", entries[0].UnitID)
	assert.Equal(t, "balances", entries[1].UnitID)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	var handler events.Handler
	select {
	case handler = <-src.started:
	case <-time.After(2 * time.Second):
		t.Fatal("event source not started")
	}
	require.Eventually(t, func() bool { return m.Server().HTTPAddr() != "" }, 2*time.Second, 10*time.Millisecond)

	// Manual trigger through the control API.
	resp, err := http.Post("http://"+m.Server().HTTPAddr()+"/api/units/balances/run", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, loader.loaded(), 1)

	// A matching event runs the unit after the debounce.
	handler(events.Event{Type: "updated", Entity: "account"})
	require.Eventually(t, func() bool { return len(loader.loaded()) == 2 }, 2*time.Second, 10*time.Millisecond)

	runs, err := m.Orchestrator().History().List(context.Background(), "balances", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, history.TriggerEvent, runs[0].Trigger)
	assert.Equal(t, history.TriggerManual, runs[1].Trigger)

	cancel()
	require.NoError(t, <-done)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	require.NoError(t, m.Shutdown(shutdownCtx))
	assert.True(t, src.closed)
}

func TestManager_StartRequiresServeMode(t *testing.T) {
	useLoader(t, &recordingLoader{})
	cfg := testConfig(t, newLedgerServer(t).URL, unitsYAML)

	m := NewManager(cfg, Options{Once: true}, testLogger())
	require.NoError(t, m.Init(context.Background()))
	assert.Error(t, m.Start(context.Background()))
}
