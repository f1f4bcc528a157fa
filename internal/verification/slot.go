package verification

import (
	"sync"
	"time"
)

// Slot holds at most one outstanding Request. Acquire and Resolve share one
// short critical section; nothing inside it blocks or calls out.
type Slot struct {
	mu      sync.Mutex
	current *Request
	lastID  uint64
}

// Acquire installs a new Request, or fails with ErrAlreadyPending while
// another one occupies the slot.
func (s *Slot) Acquire(now time.Time) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return nil, ErrAlreadyPending
	}
	s.lastID++
	r := newRequest(s.lastID, now)
	s.current = r
	return r, nil
}

// Resolve vacates the slot if r still occupies it, records o as r's winning
// outcome and reports whether this call won. A stale or repeated resolve
// returns false and changes nothing. Handing the recorded outcome to the
// caller is left to the bridge, which dispatches it on the caller's executor
// outside the slot lock.
func (s *Slot) Resolve(r *Request, o Outcome) bool {
	if r == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != r {
		return false
	}
	s.current = nil
	r.settle(o)
	r.setPhase(PhaseResolved)
	return true
}

// Current returns the occupying request, or nil.
func (s *Slot) Current() *Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Occupied reports whether a request is outstanding.
func (s *Slot) Occupied() bool {
	return s.Current() != nil
}
