package store

import "sync"

// Store serialises every mutation of State. Reducers run under the lock, so
// two events can never interleave inside one reconciliation.
type Store struct {
	mu    sync.Mutex
	state State

	subMu  sync.RWMutex
	subs   map[int]func(State)
	nextID int
}

func New() *Store {
	return &Store{subs: make(map[int]func(State))}
}

// Apply runs fn against the current state and installs its result.
// Subscribers are notified after the lock is released.
func (s *Store) Apply(fn func(State) State) State {
	s.mu.Lock()
	next := fn(s.state)
	s.state = next
	s.mu.Unlock()

	s.notify(next)
	return next
}

func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for every applied state. The returned func removes it.
func (s *Store) Subscribe(fn func(State)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(st State) {
	s.subMu.RLock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range fns {
		fn(st)
	}
}
