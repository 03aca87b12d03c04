// Package memory implements db.Store on a process-local map. It backs tests
// and embedded use; semantics (NX/XX conditions, missing-key errors) mirror
// the redis driver.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kailas-cloud/docdex/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Store is an in-memory db.Store.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{data: map[string][]byte{}}
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close drops all data.
func (s *Store) Close() {
	s.mu.Lock()
	s.data = map[string][]byte{}
	s.mu.Unlock()
}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

// JSONSet stores data at key, honoring the NX/XX condition.
func (s *Store) JSONSet(_ context.Context, key string, data []byte, mode db.SetMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.data[key]
	switch mode {
	case db.SetNX:
		if exists {
			return db.ErrKeyExists
		}
	case db.SetXX:
		if !exists {
			return db.ErrKeyNotFound
		}
	}
	s.data[key] = slices.Clone(data)
	return nil
}

// JSONGet retrieves the document stored at key.
func (s *Store) JSONGet(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return slices.Clone(data), nil
}

// JSONGetMulti fetches several keys; missing keys produce nil entries.
func (s *Store) JSONGetMulti(_ context.Context, keys []string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([][]byte, len(keys))
	for i, key := range keys {
		if data, ok := s.data[key]; ok {
			out[i] = slices.Clone(data)
		}
	}
	return out, nil
}

// Del deletes a key.
func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Exists checks if a key exists.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	_, ok := s.data[key]
	s.mu.RUnlock()
	return ok, nil
}

// Scan returns keys matching a trailing-wildcard pattern, in stable order.
func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	prefix, _ := strings.CutSuffix(pattern, "*")

	s.mu.RLock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()

	slices.Sort(keys)
	return keys, nil
}
