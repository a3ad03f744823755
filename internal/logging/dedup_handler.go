package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultDedupWindow is how long repeats of a record are held back.
const DefaultDedupWindow = time.Second

// DedupHandler passes the first occurrence of a record straight through and
// swallows identical records (same level, message, attributes and preset
// attributes) for the rest of the window. When the window closes, one more
// copy is emitted carrying repeated_count with the number swallowed.
//
// A transform expression failing for every record of a run thus logs twice
// instead of once per record.
type DedupHandler struct {
	next   slog.Handler
	prefix string // preset attrs and groups, part of the identity
	state  *dedupState
}

type dedupState struct {
	mu      sync.Mutex
	entries map[uint64]*dedupEntry
	ticker  *time.Ticker
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

type dedupEntry struct {
	handler    slog.Handler
	record     slog.Record
	suppressed int
}

// NewDedupHandler wraps next. Close must be called to flush the final window.
func NewDedupHandler(next slog.Handler, window time.Duration) *DedupHandler {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	state := &dedupState{
		entries: make(map[uint64]*dedupEntry),
		ticker:  time.NewTicker(window),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go state.loop()
	return &DedupHandler{next: next, state: state}
}

func (h *DedupHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *DedupHandler) Handle(ctx context.Context, r slog.Record) error {
	key := h.hash(r)

	h.state.mu.Lock()
	if entry, ok := h.state.entries[key]; ok {
		entry.suppressed++
		h.state.mu.Unlock()
		return nil
	}
	h.state.entries[key] = &dedupEntry{handler: h.next, record: r.Clone()}
	h.state.mu.Unlock()

	return h.next.Handle(ctx, r)
}

func (h *DedupHandler) hash(r slog.Record) uint64 {
	d := xxhash.New()
	d.WriteString(h.prefix)
	d.WriteString("|")
	d.WriteString(r.Level.String())
	d.WriteString("|")
	d.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		d.WriteString("|")
		d.WriteString(a.Key)
		d.WriteString("=")
		d.WriteString(a.Value.String())
		return true
	})
	return d.Sum64()
}

func (h *DedupHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := h.prefix
	for _, a := range attrs {
		prefix += a.Key + "=" + a.Value.String() + ";"
	}
	return &DedupHandler{next: h.next.WithAttrs(attrs), prefix: prefix, state: h.state}
}

func (h *DedupHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &DedupHandler{next: h.next.WithGroup(name), prefix: h.prefix + name + ".", state: h.state}
}

// Close stops the window timer and emits the pending repeat counts. It is
// safe to call more than once, including on derived handlers.
func (h *DedupHandler) Close() error {
	h.state.once.Do(func() {
		close(h.state.stop)
		<-h.state.done
	})
	return nil
}

func (s *dedupState) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ticker.C:
			s.flush()
		case <-s.stop:
			s.ticker.Stop()
			s.flush()
			return
		}
	}
}

// flush ends the current window. The underlying handlers are called without
// holding the lock so they may log themselves.
func (s *dedupState) flush() {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[uint64]*dedupEntry, len(entries))
	s.mu.Unlock()

	now := time.Now()
	for _, entry := range entries {
		if entry.suppressed == 0 {
			continue
		}
		r := entry.record.Clone()
		r.Time = now
		r.AddAttrs(slog.Int("repeated_count", entry.suppressed))
		_ = entry.handler.Handle(context.Background(), r)
	}
}
