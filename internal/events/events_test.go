package events

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.DiscardHandler)

func TestDecode(t *testing.T) {
	t.Parallel()

	ev, err := Decode([]byte(`{"type":"updated","entity":"transaction","id":"t1","amount":-500}`))
	require.NoError(t, err)
	assert.Equal(t, "updated", ev.Type)
	assert.Equal(t, "transaction", ev.Entity)
	assert.Equal(t, "t1", ev.Fields["id"])
	assert.Equal(t, -500.0, ev.Fields["amount"])

	ev, err = Decode([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, ev.Type)
	assert.NotNil(t, ev.Fields)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestWebSocketSource_DeliversAndReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var (
		mu          sync.Mutex
		connections int
		authHeaders []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		connections++
		n := connections
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"created","entity":"account"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		if n == 1 {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"updated","entity":"transaction"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	src := NewWebSocket(WebSocketConfig{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		Token:          "secret",
		ReconnectDelay: 20 * time.Millisecond,
	}, testLogger)

	c := &collector{}
	require.NoError(t, src.Start(context.Background(), c.handle))

	assert.Eventually(t, func() bool { return c.len() >= 3 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, src.Close())

	c.mu.Lock()
	assert.Equal(t, "account", c.events[0].Entity)
	assert.Equal(t, "created", c.events[0].Type)
	c.mu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, connections, 2)
	assert.Equal(t, "Bearer secret", authHeaders[0])
}

func TestWebSocketSource_RequiresURL(t *testing.T) {
	t.Parallel()
	src := NewWebSocket(WebSocketConfig{}, testLogger)
	assert.Error(t, src.Start(context.Background(), func(Event) {}))
	assert.NoError(t, src.Close())
}

func TestWebSocketSource_StopsOnContextCancel(t *testing.T) {
	t.Parallel()
	src := NewWebSocket(WebSocketConfig{URL: "ws://127.0.0.1:1/unreachable", ReconnectDelay: 10 * time.Millisecond}, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, src.Start(ctx, func(Event) {}))
	cancel()

	done := make(chan struct{})
	go func() {
		_ = src.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("source did not stop")
	}
}

func TestDisabledSource(t *testing.T) {
	t.Parallel()
	src := NewDisabled(testLogger)
	assert.NoError(t, src.Start(context.Background(), func(Event) {}))
	assert.NoError(t, src.Close())
}
