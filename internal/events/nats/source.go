// Package nats delivers ledger events published to a NATS JetStream stream.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/sheetsync/sheetsync/internal/events"
	"github.com/sheetsync/sheetsync/internal/metrics"
)

const (
	DefaultStream   = "LEDGER_EVENTS"
	DefaultConsumer = "sheetsync"
)

// JetStreamNew is a variable to allow mocking in tests.
var JetStreamNew = func(nc *nats.Conn) (jetstream.JetStream, error) {
	return jetstream.New(nc)
}

// Config selects the stream and durable consumer to read.
type Config struct {
	URL      string
	Stream   string
	Subject  string
	Consumer string
}

type streamManager interface {
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	CreateOrUpdateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error)
}

// Source consumes events from JetStream.
type Source struct {
	nc     *nats.Conn
	js     streamManager
	cfg    Config
	logger *slog.Logger

	mu sync.Mutex
	cc jetstream.ConsumeContext
}

// Connect dials cfg.URL and returns a Source that owns the connection.
func Connect(cfg Config, logger *slog.Logger) (*Source, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("sheetsync"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	s, err := New(nc, cfg, logger)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return s, nil
}

// New creates a Source on an existing connection. Close closes nc.
func New(nc *nats.Conn, cfg Config, logger *slog.Logger) (*Source, error) {
	if nc == nil {
		return nil, errors.New("nats connection cannot be nil")
	}
	js, err := JetStreamNew(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}
	s := newSource(js, cfg, logger)
	s.nc = nc
	return s, nil
}

func newSource(js streamManager, cfg Config, logger *slog.Logger) *Source {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.Subject == "" {
		cfg.Subject = cfg.Stream + ".>"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = DefaultConsumer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		js:     js,
		cfg:    cfg,
		logger: logger.With("component", "events", "source", "nats"),
	}
}

// Start ensures the stream and durable consumer exist and begins delivery.
func (s *Source) Start(ctx context.Context, handler events.Handler) error {
	_, err := s.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     s.cfg.Stream,
		Subjects: []string{s.cfg.Subject},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream: %w", err)
	}

	consumer, err := s.js.CreateOrUpdateConsumer(ctx, s.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       s.cfg.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: s.cfg.Subject,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		ev, err := events.Decode(msg.Data())
		if err != nil {
			s.logger.Warn("Failed to parse event payload", "subject", msg.Subject(), "error", err)
			_ = msg.Term()
			return
		}
		metrics.EventsReceived.WithLabelValues("nats").Inc()
		handler(ev)
		if err := msg.Ack(); err != nil {
			s.logger.Warn("Failed to ack event", "subject", msg.Subject(), "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	s.mu.Lock()
	s.cc = cc
	s.mu.Unlock()
	s.logger.Info("Consumer subscribed", "stream", s.cfg.Stream, "subject", s.cfg.Subject)

	context.AfterFunc(ctx, s.stopConsumer)
	return nil
}

func (s *Source) stopConsumer() {
	s.mu.Lock()
	cc := s.cc
	s.cc = nil
	s.mu.Unlock()
	if cc != nil {
		cc.Stop()
		s.logger.Info("Consumer stopped")
	}
}

// Close stops consumption and closes the connection.
func (s *Source) Close() error {
	s.stopConsumer()
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

var _ events.Source = (*Source)(nil)
