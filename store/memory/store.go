// Package memory provides an in-process store.Store.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/meigma/dexcache/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps values in a map. Nothing survives the process.
type Store struct {
	mu     sync.RWMutex
	values map[string]int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{values: make(map[string]int64)}
}

// GetInt64 implements store.Store.
func (s *Store) GetInt64(ctx context.Context, key string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Commit implements store.Store. The new map is built aside and swapped in
// under the lock, so readers never see part of a commit.
func (s *Store) Commit(ctx context.Context, values map[string]int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := maps.Clone(s.values)
	maps.Copy(next, values)
	s.values = next
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
