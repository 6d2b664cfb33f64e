package presence

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[int]map[string]struct{}
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[int]map[string]struct{})}
}

func (s *MemoryStore) Add(_ context.Context, userID int, connID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[userID]
	if !ok {
		conns = make(map[string]struct{})
		s.users[userID] = conns
	}
	conns[connID] = struct{}{}
	return !ok, nil
}

func (s *MemoryStore) Remove(_ context.Context, userID int, connID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[userID]
	if !ok {
		return false, nil
	}
	if _, ok := conns[connID]; !ok {
		return false, nil
	}
	delete(conns, connID)
	if len(conns) > 0 {
		return false, nil
	}
	delete(s.users, userID)
	return true, nil
}

func (s *MemoryStore) IsOnline(_ context.Context, userID int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID]) > 0, nil
}

func (s *MemoryStore) OnlineUsers(_ context.Context) ([]int, error) {
	s.mu.RLock()
	ids := make([]int, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Ints(ids)
	return ids, nil
}

func (s *MemoryStore) Connections(_ context.Context, userID int) ([]string, error) {
	s.mu.RLock()
	conns := make([]string, 0, len(s.users[userID]))
	for id := range s.users[userID] {
		conns = append(conns, id)
	}
	s.mu.RUnlock()
	sort.Strings(conns)
	return conns, nil
}
