package testutil

import (
	"context"
	"errors"
	"maps"
	"sync"
)

// ErrInjected is returned by MockStore when a failure has been injected.
var ErrInjected = errors.New("testutil: injected failure")

// MockStore implements store.Store in memory with failure injection.
type MockStore struct {
	mu        sync.Mutex
	data      map[string]int64
	commits   int
	failGet   bool
	failWrite bool
}

// NewMockStore constructs an empty store.
func NewMockStore() *MockStore {
	return &MockStore{data: make(map[string]int64)}
}

// GetInt64 returns the value stored for key.
func (s *MockStore) GetInt64(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return 0, false, ErrInjected
	}
	v, ok := s.data[key]
	return v, ok, nil
}

// Commit stores every value or, when a failure is injected, none.
func (s *MockStore) Commit(_ context.Context, values map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite {
		return ErrInjected
	}
	maps.Copy(s.data, values)
	s.commits++
	return nil
}

// FailGets makes subsequent reads fail.
func (s *MockStore) FailGets(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGet = fail
}

// FailCommits makes subsequent commits fail.
func (s *MockStore) FailCommits(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrite = fail
}

// Commits returns the number of successful commits.
func (s *MockStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Set stores a single value directly, bypassing Commit.
func (s *MockStore) Set(key string, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Snapshot returns a copy of the stored values.
func (s *MockStore) Snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.data)
}
