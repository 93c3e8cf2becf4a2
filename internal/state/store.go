package state

import (
	"sort"
	"sync"

	"github.com/aonescu/driftguard/internal/types"
)

// GuardStore holds guard declarations and their controller-owned statuses.
// Statuses live and die with their guard; deleting a guard removes both.
type GuardStore interface {
	Upsert(guard types.Guard) error
	Get(name, namespace string) (types.Guard, bool)
	List() []types.Guard
	Delete(name, namespace string) error

	SetStatus(name, namespace string, status types.GuardStatus) error
	GetStatus(name, namespace string) (types.GuardStatus, bool)
	ListStatuses() map[string]types.GuardStatus
}

// In-memory implementation for fallback
type MemoryStore struct {
	mu       sync.RWMutex
	guards   map[string]types.Guard
	statuses map[string]types.GuardStatus
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		guards:   make(map[string]types.Guard),
		statuses: make(map[string]types.GuardStatus),
	}
}

func (s *MemoryStore) Upsert(guard types.Guard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.guards[guard.Key()] = guard
	return nil
}

func (s *MemoryStore) Get(name, namespace string) (types.Guard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	guard, exists := s.guards[namespace+"/"+name]
	return guard, exists
}

func (s *MemoryStore) List() []types.Guard {
	s.mu.RLock()
	defer s.mu.RUnlock()

	guards := make([]types.Guard, 0, len(s.guards))
	for _, guard := range s.guards {
		guards = append(guards, guard)
	}
	sort.Slice(guards, func(i, j int) bool {
		return guards[i].Key() < guards[j].Key()
	})
	return guards
}

func (s *MemoryStore) Delete(name, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := namespace + "/" + name
	delete(s.guards, key)
	delete(s.statuses, key)
	return nil
}

// SetStatus overwrites the whole status snapshot in one step, so concurrent
// reconciliations of the same guard resolve last-writer-wins with no
// interleaved field writes.
func (s *MemoryStore) SetStatus(name, namespace string, status types.GuardStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statuses[namespace+"/"+name] = status
	return nil
}

func (s *MemoryStore) GetStatus(name, namespace string) (types.GuardStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, exists := s.statuses[namespace+"/"+name]
	return status, exists
}

func (s *MemoryStore) ListStatuses() map[string]types.GuardStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make(map[string]types.GuardStatus, len(s.statuses))
	for key, status := range s.statuses {
		statuses[key] = status
	}
	return statuses
}
