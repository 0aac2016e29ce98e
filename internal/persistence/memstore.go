package persistence

import (
	"context"
	"sync"

	"meteorgrid/internal/stream"

	"go.uber.org/atomic"
)

// MemoryStore keeps entries in a map. It is used for the "memory"
// persistence type and in tests that need a store that can go away.
type MemoryStore[K comparable, V any] struct {
	mu        sync.RWMutex
	entries   map[K]MarshalledEntry[K, V]
	started   atomic.Bool
	available atomic.Bool
}

func NewMemoryStore[K comparable, V any]() *MemoryStore[K, V] {
	s := &MemoryStore[K, V]{entries: make(map[K]MarshalledEntry[K, V])}
	s.available.Store(true)
	return s
}

func (s *MemoryStore[K, V]) Start(context.Context) error {
	s.started.Store(true)
	return nil
}

func (s *MemoryStore[K, V]) Stop() error {
	s.started.Store(false)
	return nil
}

// Destroy drops every entry.
func (s *MemoryStore[K, V]) Destroy() error {
	s.mu.Lock()
	s.entries = make(map[K]MarshalledEntry[K, V])
	s.mu.Unlock()
	return s.Stop()
}

func (s *MemoryStore[K, V]) IsAvailable() bool {
	return s.available.Load()
}

func (s *MemoryStore[K, V]) SetAvailable(available bool) {
	s.available.Store(available)
}

func (s *MemoryStore[K, V]) Load(_ context.Context, key K) (*MarshalledEntry[K, V], error) {
	if !s.started.Load() {
		return nil, ErrNotStarted
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *MemoryStore[K, V]) Contains(ctx context.Context, key K) (bool, error) {
	e, err := s.Load(ctx, key)
	return e != nil, err
}

func (s *MemoryStore[K, V]) Write(_ context.Context, entry MarshalledEntry[K, V]) error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = entry
	return nil
}

func (s *MemoryStore[K, V]) Delete(_ context.Context, key K) (bool, error) {
	if !s.started.Load() {
		return false, ErrNotStarted
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok, nil
}

func (s *MemoryStore[K, V]) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore[K, V]) Entries(context.Context) stream.Iterator[MarshalledEntry[K, V]] {
	s.mu.RLock()
	snapshot := make([]MarshalledEntry[K, V], 0, len(s.entries))
	for _, e := range s.entries {
		snapshot = append(snapshot, e)
	}
	s.mu.RUnlock()
	return stream.FromSlice(snapshot)
}
