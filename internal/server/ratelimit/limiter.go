// Package ratelimit provides per-client request limiting for the control API.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(key string) bool
	Reset(key string)
}

// Stoppable is a Limiter with background work to release.
type Stoppable interface {
	Limiter
	Stop()
}

// Config holds the configuration for rate limiting.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// Requests is the number of requests allowed per window per client.
	Requests int `yaml:"requests"`

	Window time.Duration `yaml:"window"`
}

// memoryLimiter keeps one token bucket per client key. Buckets refill at
// Requests per Window and hold at most Requests tokens.
type memoryLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	idle    time.Duration
	enabled bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter creates an in-memory limiter. Idle clients are evicted
// after two windows.
func NewMemoryLimiter(cfg Config) Stoppable {
	l := &memoryLimiter{
		clients: make(map[string]*client),
		enabled: cfg.Enabled,
		stopCh:  make(chan struct{}),
	}
	if cfg.Requests > 0 && cfg.Window > 0 {
		l.limit = rate.Limit(float64(cfg.Requests) / cfg.Window.Seconds())
		l.burst = cfg.Requests
		l.idle = 2 * cfg.Window
	} else {
		l.enabled = false
	}
	if l.enabled {
		go l.evictLoop()
	}
	return l
}

func (l *memoryLimiter) Allow(key string) bool {
	if !l.enabled {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

func (l *memoryLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, key)
}

func (l *memoryLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *memoryLimiter) evictLoop() {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evict(time.Now())
		case <-l.stopCh:
			return
		}
	}
}

func (l *memoryLimiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) > l.idle {
			delete(l.clients, key)
		}
	}
}
