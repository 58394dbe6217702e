package wizard

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store keeps in-progress drafts for the HTTP API, keyed by id and owned by
// one user each.
type Store struct {
	mu     sync.Mutex
	drafts map[string]*entry
	now    func() time.Time
}

type entry struct {
	mu      sync.Mutex
	machine *Machine
	owner   string
	touched time.Time
}

func NewStore() *Store {
	return &Store{drafts: make(map[string]*entry), now: time.Now}
}

func (s *Store) Create(owner string, opts Options) string {
	id := uuid.New().String()
	s.mu.Lock()
	s.drafts[id] = &entry{machine: New(opts), owner: owner, touched: s.now()}
	s.mu.Unlock()
	return id
}

// With runs fn on the draft while holding its lock. Drafts owned by another
// user are reported as missing.
func (s *Store) With(id, owner string, fn func(*Machine) error) error {
	s.mu.Lock()
	e, ok := s.drafts[id]
	s.mu.Unlock()
	if !ok || e.owner != owner {
		return ErrDraftNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.touched = s.now()
	return fn(e.machine)
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.drafts, id)
	s.mu.Unlock()
}

// PurgeStale drops drafts not touched since cutoff and returns how many went.
// Drafts in use by With are never stale and are skipped without waiting.
func (s *Store) PurgeStale(cutoff time.Time) int {
	s.mu.Lock()
	entries := make(map[string]*entry, len(s.drafts))
	for id, e := range s.drafts {
		entries[id] = e
	}
	s.mu.Unlock()

	var stale []string
	for id, e := range entries {
		if !e.mu.TryLock() {
			continue
		}
		if e.touched.Before(cutoff) {
			stale = append(stale, id)
		}
		e.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range stale {
		if s.drafts[id] == entries[id] {
			delete(s.drafts, id)
			n++
		}
	}
	return n
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drafts)
}
