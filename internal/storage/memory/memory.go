// Package memory is a process-local KV used for tests and the memory backend.
package memory

import (
	"context"
	"sync"

	"mython/internal/storage"
)

type Store struct {
	mu     sync.Mutex
	values map[string][]byte
	writes int
}

func New() *Store {
	return &Store{values: map[string][]byte{}}
}

// Seed returns a store that already holds value under key.
func Seed(key string, value []byte) *Store {
	s := New()
	s.values[key] = append([]byte(nil), value...)
	return s
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	s.writes++
	return nil
}

// Writes reports how many Set calls succeeded.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *Store) Close() error { return nil }
