package history

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu       sync.RWMutex
	capacity int
	runs     map[string][]RunRecord
}

// NewMemoryStore keeps the last capacity runs per unit in memory.
func NewMemoryStore(capacity int) Store {
	if capacity <= 0 {
		capacity = DefaultLimit
	}
	return &memoryStore{
		capacity: capacity,
		runs:     make(map[string][]RunRecord),
	}
}

func (s *memoryStore) Append(_ context.Context, rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := append(s.runs[rec.UnitID], rec)
	if len(runs) > s.capacity {
		runs = append([]RunRecord(nil), runs[len(runs)-s.capacity:]...)
	}
	s.runs[rec.UnitID] = runs
	return nil
}

func (s *memoryStore) List(_ context.Context, unitID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := s.runs[unitID]
	n := min(limit, len(runs))
	out := make([]RunRecord, 0, n)
	for i := len(runs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, runs[i])
	}
	return out, nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}
