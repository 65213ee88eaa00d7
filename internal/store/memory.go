package store

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-memory, thread-safe Store.
// Contents are lost when the process exits.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[uint64][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[uint64][]byte)}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, key uint64, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = clone(value)
	return nil
}

// Scan implements Store. It iterates over a snapshot of the keys taken when
// the scan starts, so callbacks may safely call back into the store.
func (s *MemoryStore) Scan(ctx context.Context, fn ScanFunc) error {
	s.mu.RLock()
	keys := make([]uint64, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	slices.Sort(keys)

	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.mu.RLock()
		v, ok := s.data[k]
		v = clone(v)
		s.mu.RUnlock()
		if !ok {
			continue
		}
		if err := fn(k, v); err != nil {
			return finishScan(err)
		}
	}
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
