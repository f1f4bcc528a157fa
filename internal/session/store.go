package session

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Yahir019cx/pool-and-chill-app/internal/verification"
)

// DefaultLimit is the number of attempts kept when NewStore is given zero.
const DefaultLimit = 50

// Store keeps a bounded history of verification attempts, fed by bridge
// events. The oldest attempt is evicted once the limit is reached.
type Store struct {
	mu       sync.RWMutex
	attempts map[string]*Attempt
	order    []string // oldest first
	limit    int

	listeners map[uint64]func(Event)
	nextID    uint64
}

var _ verification.Observer = (*Store)(nil)

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		attempts:  make(map[string]*Attempt),
		limit:     limit,
		listeners: make(map[uint64]func(Event)),
	}
}

// OnChange registers fn to receive every change and returns a function that
// removes it. fn runs outside the store lock on the goroutine that caused the
// change.
func (s *Store) OnChange(fn func(Event)) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Restore loads previously persisted attempts, oldest first, without
// notifying listeners. Attempts that never resolved are dropped: their
// requests did not survive the restart.
func (s *Store) Restore(attempts []*Attempt) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range attempts {
		if a == nil || !a.IsTerminal() {
			continue
		}
		if _, ok := s.attempts[a.ID]; ok {
			continue
		}
		s.put(a.Clone())
		n++
	}
	return n
}

func (s *Store) Get(id string) (*Attempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// GetAll returns copies of every retained attempt, newest first.
func (s *Store) GetAll() []*Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Attempt, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		result = append(result, s.attempts[s.order[i]].Clone())
	}
	return result
}

// Update inserts or replaces an attempt by ID.
func (s *Store) Update(a *Attempt) {
	s.mu.Lock()
	typ := s.put(a.Clone())
	ev, fns := s.eventLocked(typ, a.ID)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// OnEvent records a bridge lifecycle event.
func (s *Store) OnEvent(ev verification.Event) {
	s.mu.Lock()
	var typ EventType
	var id string
	switch ev.Type {
	case verification.EventRejected:
		id = uuid.NewString()
		at := ev.At
		typ = s.put(&Attempt{
			ID:            id,
			CorrelationID: ev.CorrelationID,
			Phase:         verification.PhaseIdle.String(),
			Status:        Rejected,
			Code:          string(ev.Code),
			StartedAt:     at,
			UpdatedAt:     at,
			CompletedAt:   &at,
		})
	case verification.EventStarted:
		id = requestKey(ev.RequestID)
		typ = s.put(&Attempt{
			ID:               id,
			CorrelationID:    ev.CorrelationID,
			RequestID:        ev.RequestID,
			TokenLen:         ev.TokenLen,
			TokenFingerprint: ev.TokenFP,
			Phase:            ev.Phase.String(),
			Status:           Pending,
			StartedAt:        ev.At,
			UpdatedAt:        ev.At,
		})
	case verification.EventPhase, verification.EventResolved:
		id = requestKey(ev.RequestID)
		a, ok := s.attempts[id]
		if !ok {
			// Evicted, or started before the store was attached.
			s.mu.Unlock()
			return
		}
		if ev.Type == verification.EventPhase && a.IsTerminal() {
			// A phase change can be observed after the resolution that
			// overtook it; the resolved record stays as it is.
			s.mu.Unlock()
			return
		}
		a.Phase = ev.Phase.String()
		a.UpdatedAt = ev.At
		typ = EventUpdate
		if ev.Type == verification.EventResolved && ev.Outcome != nil {
			applyOutcome(a, *ev.Outcome, ev.Source, ev.At)
			typ = EventTerminal
		}
	default:
		s.mu.Unlock()
		return
	}
	out, fns := s.eventLocked(typ, id)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(out)
	}
}

func applyOutcome(a *Attempt, o verification.Outcome, source string, at time.Time) {
	switch o.Kind {
	case verification.OutcomeCompleted:
		a.Status = statusForResult(o.Status)
		a.Result = o.Status
	case verification.OutcomeCancelled:
		a.Status = Cancelled
		a.Result = verification.StatusCancelled
	case verification.OutcomeFailed:
		a.Status = Failed
		a.Code = string(o.Code)
		a.Message = o.Message
	}
	a.ResolvedBy = source
	a.CompletedAt = &at
}

// put stores a and reports whether it was new. Caller holds s.mu.
func (s *Store) put(a *Attempt) EventType {
	if _, ok := s.attempts[a.ID]; ok {
		s.attempts[a.ID] = a
		if a.IsTerminal() {
			return EventTerminal
		}
		return EventUpdate
	}
	s.attempts[a.ID] = a
	s.order = append(s.order, a.ID)
	for len(s.order) > s.limit {
		delete(s.attempts, s.order[0])
		s.order[0] = ""
		s.order = s.order[1:]
	}
	return EventNew
}

func (s *Store) eventLocked(typ EventType, id string) (Event, []func(Event)) {
	if len(s.listeners) == 0 {
		return Event{}, nil
	}
	ev := Event{Type: typ, ActiveCount: s.activeLocked()}
	if a, ok := s.attempts[id]; ok {
		ev.Attempt = a.Clone()
	}
	fns := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	return ev, fns
}

func (s *Store) activeLocked() int {
	n := 0
	for _, a := range s.attempts {
		if !a.IsTerminal() {
			n++
		}
	}
	return n
}

func requestKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}
