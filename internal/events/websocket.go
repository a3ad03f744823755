package events

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sheetsync/sheetsync/internal/metrics"
)

// DefaultReconnectDelay is the pause before redialing a dropped stream.
const DefaultReconnectDelay = 5 * time.Second

// WebSocketConfig configures a WebSocketSource.
type WebSocketConfig struct {
	URL              string
	Token            string
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
}

// WebSocketSource reads JSON events from a websocket stream and redials
// after disconnects.
type WebSocketSource struct {
	cfg    WebSocketConfig
	dialer *websocket.Dialer
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWebSocket creates a websocket event source.
func NewWebSocket(cfg WebSocketConfig, logger *slog.Logger) *WebSocketSource {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketSource{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		logger: logger.With("component", "events", "source", "websocket"),
	}
}

// Start connects in the background and returns immediately.
func (s *WebSocketSource) Start(ctx context.Context, handler Handler) error {
	if s.cfg.URL == "" {
		return errors.New("websocket event source requires a url")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.loop(ctx, handler)
	}()
	return nil
}

func (s *WebSocketSource) loop(ctx context.Context, handler Handler) {
	for {
		if err := s.session(ctx, handler); err != nil && ctx.Err() == nil {
			s.logger.Warn("Event stream closed; retrying", "error", err, "delay", s.cfg.ReconnectDelay)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

func (s *WebSocketSource) session(ctx context.Context, handler Handler) error {
	header := http.Header{}
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		return err
	}
	s.logger.Info("Connected to ledger events stream", "url", s.cfg.URL)

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		conn.Close()
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		ev, err := Decode(data)
		if err != nil {
			s.logger.Warn("Failed to parse event payload", "error", err)
			continue
		}
		metrics.EventsReceived.WithLabelValues("websocket").Inc()
		handler(ev)
	}
}

// Close stops reconnecting, closes the current connection and waits for the
// read loop to exit.
func (s *WebSocketSource) Close() error {
	s.mu.Lock()
	cancel, done, conn := s.cancel, s.done, s.conn
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	}
	<-done
	return nil
}
