package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/sells-group/metric-guardrails/internal/model"
)

// MemoryStore is a bounded ring buffer. When full, the oldest record is
// overwritten; its key is dropped from the index only if the index still
// points at that slot, so newer records under the same key stay reachable.
type MemoryStore struct {
	mu    sync.RWMutex
	slots []model.AuditTrace
	head  int // oldest record
	size  int
	index map[model.TraceKey]int
}

// NewMemoryStore creates a ring buffer holding at most maxRecords traces.
func NewMemoryStore(maxRecords int) *MemoryStore {
	n := retention(maxRecords)
	return &MemoryStore{
		slots: make([]model.AuditTrace, n),
		index: make(map[model.TraceKey]int),
	}
}

// Record appends a copy of trace.
func (s *MemoryStore) Record(_ context.Context, trace model.AuditTrace) error {
	if err := checkKey(trace); err != nil {
		return err
	}
	t := trace.Clone()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var slot int
	if s.size < len(s.slots) {
		slot = (s.head + s.size) % len(s.slots)
		s.size++
	} else {
		slot = s.head
		evicted := s.slots[slot].Key()
		if s.index[evicted] == slot {
			delete(s.index, evicted)
		}
		s.head = (s.head + 1) % len(s.slots)
	}
	s.slots[slot] = t
	s.index[t.Key()] = slot
	return nil
}

// Get returns a copy of the latest trace recorded under key.
func (s *MemoryStore) Get(_ context.Context, key model.TraceKey) (*model.AuditTrace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.index[key]
	if !ok {
		return nil, ErrNotFound
	}
	t := s.slots[slot].Clone()
	return &t, nil
}

// ListForRun returns copies of the run's traces, oldest first.
func (s *MemoryStore) ListForRun(_ context.Context, runID string) ([]model.AuditTrace, error) {
	var out []model.AuditTrace
	s.each(func(t model.AuditTrace) {
		if t.RunID == runID {
			out = append(out, t.Clone())
		}
	})
	return out, nil
}

// All returns copies of every retained trace, oldest first.
func (s *MemoryStore) All(_ context.Context) ([]model.AuditTrace, error) {
	var out []model.AuditTrace
	s.each(func(t model.AuditTrace) {
		out = append(out, t.Clone())
	})
	return out, nil
}

// Stats aggregates over every retained trace.
func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	all, err := s.All(ctx)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(all), nil
}

// Len returns the number of retained traces.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) each(fn func(model.AuditTrace)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := 0; i < s.size; i++ {
		fn(s.slots[(s.head+i)%len(s.slots)])
	}
}
