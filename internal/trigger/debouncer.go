package trigger

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sheetsync/sheetsync/internal/metrics"
	"github.com/sheetsync/sheetsync/internal/unit"
)

// DefaultDebounce applies when neither the unit nor the process sets one.
const DefaultDebounce = 5 * time.Second

// ResolveDebounce returns the unit's own debounce when set, else fallback,
// else DefaultDebounce.
func ResolveDebounce(sub *unit.EventSubscription, fallback time.Duration) time.Duration {
	if d, ok := sub.DebounceOverride(); ok {
		return d.Std()
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultDebounce
}

type pendingTimer struct {
	timer *time.Timer
	seq   uint64
}

// Debouncer keeps at most one pending timer per unit. Arming a unit that
// already has a pending timer replaces it.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]pendingTimer
	seq     uint64
	stopped bool
	fire    func(unitID string)
	logger  *slog.Logger
}

// NewDebouncer calls fire with the unit id when a timer expires.
func NewDebouncer(fire func(unitID string), logger *slog.Logger) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Debouncer{
		pending: make(map[string]pendingTimer),
		fire:    fire,
		logger:  logger.With("component", "debouncer"),
	}
}

// Arm (re)starts the timer for unitID. It returns false once the debouncer
// has been stopped.
func (d *Debouncer) Arm(unitID string, delay time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return false
	}
	if prev, ok := d.pending[unitID]; ok {
		prev.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.pending[unitID] = pendingTimer{
		seq:   seq,
		timer: time.AfterFunc(delay, func() { d.expire(unitID, seq) }),
	}
	metrics.DebounceArmed.WithLabelValues(unitID).Inc()
	return true
}

func (d *Debouncer) expire(unitID string, seq uint64) {
	d.mu.Lock()
	cur, ok := d.pending[unitID]
	if !ok || cur.seq != seq || d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.pending, unitID)
	d.mu.Unlock()

	d.fire(unitID)
}

// Pending reports whether unitID has an armed timer.
func (d *Debouncer) Pending(unitID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[unitID]
	return ok
}

// Stop cancels every pending timer and rejects further Arm calls.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for id, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, id)
	}
	d.logger.Debug("Debouncer stopped")
}
