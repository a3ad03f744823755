package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"
)

// EventsConfig holds the ledger change-event subscription.
type EventsConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Transport      string        `yaml:"transport"` // websocket or nats
	URL            string        `yaml:"url"`
	Token          string        `yaml:"token"`
	Debounce       time.Duration `yaml:"debounce"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	NATS           NATSConfig    `yaml:"nats"`
}

// NATSConfig selects the JetStream stream carrying ledger events.
type NATSConfig struct {
	URL      string `yaml:"url"`
	Stream   string `yaml:"stream"`
	Subject  string `yaml:"subject"`
	Consumer string `yaml:"consumer"`
}

func DefaultEventsConfig() EventsConfig {
	return EventsConfig{
		Transport:      TransportWebSocket,
		Debounce:       5 * time.Second,
		ReconnectDelay: 5 * time.Second,
		NATS: NATSConfig{
			URL:      "nats://localhost:4222",
			Stream:   "LEDGER_EVENTS",
			Subject:  "ledger.events.>",
			Consumer: "sheetsync",
		},
	}
}

func (c *EventsConfig) ApplyDefaults() {
	defaults := DefaultEventsConfig()
	if c.Transport == "" {
		c.Transport = defaults.Transport
	}
	if c.Debounce == 0 {
		c.Debounce = defaults.Debounce
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = defaults.ReconnectDelay
	}
	if c.NATS.URL == "" {
		c.NATS.URL = defaults.NATS.URL
	}
	if c.NATS.Stream == "" {
		c.NATS.Stream = defaults.NATS.Stream
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = defaults.NATS.Subject
	}
	if c.NATS.Consumer == "" {
		c.NATS.Consumer = defaults.NATS.Consumer
	}
}

func (c *EventsConfig) ApplyEnvOverrides() {
	envBool("ENABLE_EVENT_STREAM", &c.Enabled)
	envString("EVENTS_TRANSPORT", &c.Transport)
	envString("ACTUAL_EVENTS_URL", &c.URL)
	envString("ACTUAL_EVENTS_TOKEN", &c.Token)
	envMillis("EVENT_DEBOUNCE_MS", &c.Debounce)
	envString("EVENTS_NATS_URL", &c.NATS.URL)
}

func (c *EventsConfig) ResolvePaths(_ string) {}

func (c *EventsConfig) Validate() error {
	if c.Transport != TransportWebSocket && c.Transport != TransportNATS {
		return fmt.Errorf("events.transport must be '%s' or '%s', got '%s'", TransportWebSocket, TransportNATS, c.Transport)
	}
	if c.Debounce < 0 {
		return errors.New("events.debounce cannot be negative")
	}
	return nil
}

// Active reports whether an event source should be started. A websocket
// subscription without a URL stays disabled, as does a disabled stream.
func (c *EventsConfig) Active() bool {
	if !c.Enabled {
		return false
	}
	if c.Transport == TransportWebSocket {
		return c.URL != ""
	}
	return c.NATS.URL != ""
}
