// Package memstore is the default in-process persistence.Store used by
// tests and by the CLI binaries when no durable backend is configured.
package memstore

import (
	"context"
	"sync"

	"github.com/session-network/snrr/internal/persistence"
)

// Store is a mutex-guarded map implementing persistence.Store.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New builds an empty Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[key] = cp
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Tx applies every op atomically: memstore holds its single mutex for
// the whole batch, so no writer can observe a partial transaction.
func (s *Store) Tx(_ context.Context, ops []persistence.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		if op.Delete {
			delete(s.data, op.Key)
			continue
		}
		cp := make([]byte, len(op.Value))
		copy(cp, op.Value)
		s.data[op.Key] = cp
	}
	return nil
}
