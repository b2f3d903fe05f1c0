package eventlog

import (
	"context"
	"sync"
)

// MemoryStore keeps the most recent records in memory. Older records are
// dropped once capacity is reached.
type MemoryStore struct {
	mu       sync.RWMutex
	records  []Record
	capacity int
}

// NewMemoryStore returns a store holding up to capacity records, 1000 when
// capacity is not positive.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryStore{capacity: capacity}
}

func (s *MemoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	if over := len(s.records) - s.capacity; over > 0 {
		s.records = append([]Record(nil), s.records[over:]...)
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, q Query) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Record
	for _, r := range s.records {
		if q.Matches(r) {
			res = append(res, r)
		}
	}
	return q.trim(res), nil
}

func (s *MemoryStore) Close() error { return nil }
