package manager

import (
	"sort"
	"sync"
	"time"
)

// Retention bounds for the in-memory store. The Postgres audit log keeps
// the full history; memory only keeps what dashboards page through.
const (
	maxExecutedRetained = 200
	staleLowMaxAge      = 24 * time.Hour
)

// ActionStore keys actions by id so executed-state transitions and
// removal are atomic. An action lives in exactly one of the pending or
// executed sets.
type ActionStore struct {
	mu       sync.RWMutex
	pending  map[string]*Action
	executed map[string]*Action
}

// NewActionStore creates an empty store.
func NewActionStore() *ActionStore {
	return &ActionStore{
		pending:  make(map[string]*Action),
		executed: make(map[string]*Action),
	}
}

// Add inserts a pending action. Duplicate ids and actions already
// executed are rejected.
func (s *ActionStore) Add(a *Action) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[a.ID]; ok {
		return false
	}
	if _, ok := s.executed[a.ID]; ok {
		return false
	}
	s.pending[a.ID] = a
	return true
}

// Get returns the action with the given id from either set.
func (s *ActionStore) Get(id string) (*Action, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.pending[id]; ok {
		return a, true
	}
	if a, ok := s.executed[id]; ok {
		return a, true
	}
	return nil, false
}

// IsPending reports whether the action is still awaiting execution.
func (s *ActionStore) IsPending(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pending[id]
	return ok
}

// MarkExecuted moves an action from pending to executed and stamps it.
// Returns false if the action is not pending, so a second dispatch of
// the same action is a no-op.
func (s *ActionStore) MarkExecuted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.pending[id]
	if !ok {
		return false
	}
	now := time.Now()
	a.Executed = true
	a.ExecutedAt = &now
	delete(s.pending, id)
	s.executed[id] = a
	s.pruneExecutedLocked()
	return true
}

// Pending returns pending actions ordered by creation time.
func (s *ActionStore) Pending() []Action {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedCopy(s.pending)
}

// PendingByPriority returns pending actions of one priority tier,
// ordered by creation time.
func (s *ActionStore) PendingByPriority(p Priority) []Action {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Action, 0)
	for _, a := range s.pending {
		if a.Priority == p {
			out = append(out, *a)
		}
	}
	sortByCreation(out)
	return out
}

// Executed returns executed actions ordered by creation time.
func (s *ActionStore) Executed() []Action {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedCopy(s.executed)
}

// Counts returns the pending and executed set sizes.
func (s *ActionStore) Counts() (pending, executed int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending), len(s.executed)
}

// PruneStale drops Low-priority pending actions older than the retention
// window. Called once per tick.
func (s *ActionStore) PruneStale(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for id, a := range s.pending {
		if a.Priority == PriorityLow && now.Sub(a.CreatedAt) > staleLowMaxAge {
			delete(s.pending, id)
			pruned++
		}
	}
	return pruned
}

// pruneExecutedLocked keeps the executed set at its retention cap by
// dropping the oldest entries. Caller holds the write lock.
func (s *ActionStore) pruneExecutedLocked() {
	if len(s.executed) <= maxExecutedRetained {
		return
	}
	all := make([]*Action, 0, len(s.executed))
	for _, a := range s.executed {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		return executedTime(all[i]).Before(executedTime(all[j]))
	})
	for _, a := range all[:len(all)-maxExecutedRetained] {
		delete(s.executed, a.ID)
	}
}

func executedTime(a *Action) time.Time {
	if a.ExecutedAt != nil {
		return *a.ExecutedAt
	}
	return a.CreatedAt
}

func sortedCopy(m map[string]*Action) []Action {
	out := make([]Action, 0, len(m))
	for _, a := range m {
		out = append(out, *a)
	}
	sortByCreation(out)
	return out
}

func sortByCreation(actions []Action) {
	sort.Slice(actions, func(i, j int) bool {
		if actions[i].CreatedAt.Equal(actions[j].CreatedAt) {
			return actions[i].ID < actions[j].ID
		}
		return actions[i].CreatedAt.Before(actions[j].CreatedAt)
	})
}
