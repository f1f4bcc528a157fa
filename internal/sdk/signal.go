package sdk

import (
	"sync"
	"sync/atomic"
)

// Signal is an in-process StateSignal. Set stores the new state and queues it
// for every subscriber; each subscriber drains its own FIFO queue on a
// dedicated goroutine, so a slow observer never blocks Set or other
// observers, and no transition is dropped.
type Signal struct {
	current atomic.Pointer[LifecycleState]

	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
	wg     sync.WaitGroup
}

var _ StateSignal = (*Signal)(nil)

// NewSignal returns a Signal whose current state is initial.
func NewSignal(initial LifecycleState) *Signal {
	s := &Signal{subs: make(map[uint64]*subscriber)}
	s.current.Store(&initial)
	return s
}

// Current returns the latest state. It never blocks.
func (s *Signal) Current() LifecycleState {
	return *s.current.Load()
}

// Set publishes state. Transitions from concurrent Set calls are seen in the
// same order by every subscriber.
func (s *Signal) Set(state LifecycleState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Store(&state)
	for _, sub := range s.subs {
		sub.enqueue(state)
	}
}

// Subscribe registers observer. Observer calls for one subscription never
// overlap. The returned function is safe to call more than once and from
// inside observer.
func (s *Signal) Subscribe(observer func(LifecycleState)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}

	id := s.nextID
	s.nextID++
	sub := &subscriber{
		fn:   observer,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	s.subs[id] = sub

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sub.run()
	}()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		sub.stop()
	}
}

// SubscriberCount returns the number of live subscriptions.
func (s *Signal) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close removes every subscriber and waits for their delivery goroutines to
// exit. It must not be called from inside an observer.
func (s *Signal) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = make(map[uint64]*subscriber)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	s.wg.Wait()
}

type subscriber struct {
	fn   func(LifecycleState)
	wake chan struct{}
	done chan struct{}

	mu       sync.Mutex
	queue    []LifecycleState
	stopOnce sync.Once
}

func (sub *subscriber) stop() {
	sub.stopOnce.Do(func() { close(sub.done) })
}

func (sub *subscriber) enqueue(state LifecycleState) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, state)
	sub.mu.Unlock()

	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *subscriber) run() {
	for {
		select {
		case <-sub.done:
			return
		case <-sub.wake:
		}

		for {
			sub.mu.Lock()
			if len(sub.queue) == 0 {
				sub.mu.Unlock()
				break
			}
			next := sub.queue[0]
			sub.queue = sub.queue[1:]
			sub.mu.Unlock()

			select {
			case <-sub.done:
				return
			default:
			}
			sub.fn(next)
		}
	}
}
