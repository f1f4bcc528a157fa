package sdk

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder collects delivered states for assertions.
type recorder struct {
	mu     sync.Mutex
	states []LifecycleState
}

func (r *recorder) observe(s LifecycleState) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []LifecycleState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LifecycleState(nil), r.states...)
}

func TestSignalCurrentReflectsLatestSet(t *testing.T) {
	s := NewSignal(StateIdle())
	defer s.Close()

	assert.Equal(t, StateIdle(), s.Current())
	s.Set(StateLoading())
	assert.Equal(t, StateLoading(), s.Current())
	s.Set(StateError("boom"))
	assert.Equal(t, StateError("boom"), s.Current())
}

func TestSignalDeliversInOrderToEverySubscriber(t *testing.T) {
	s := NewSignal(StateIdle())
	defer s.Close()

	var a, b recorder
	s.Subscribe(a.observe)
	s.Subscribe(b.observe)

	want := []LifecycleState{
		StateLoading(),
		StateCreatingSession(),
		StateReady(),
		StateIdle(),
	}
	for _, st := range want {
		s.Set(st)
	}

	require.Eventually(t, func() bool {
		return len(a.snapshot()) == len(want) && len(b.snapshot()) == len(want)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, a.snapshot())
	assert.Equal(t, want, b.snapshot())
}

func TestSignalSlowSubscriberDoesNotDropOrBlock(t *testing.T) {
	s := NewSignal(StateIdle())
	defer s.Close()

	release := make(chan struct{})
	var slow recorder
	s.Subscribe(func(st LifecycleState) {
		<-release
		slow.observe(st)
	})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Set(StateLoading())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Set blocked behind a slow subscriber")
	}

	close(release)
	require.Eventually(t, func() bool { return len(slow.snapshot()) == 100 }, time.Second, 5*time.Millisecond)
}

func TestSignalSubscribeSeesOnlyLaterTransitions(t *testing.T) {
	s := NewSignal(StateIdle())
	defer s.Close()

	s.Set(StateLoading())

	var r recorder
	s.Subscribe(r.observe)
	s.Set(StateReady())

	require.Eventually(t, func() bool { return len(r.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateReady(), r.snapshot()[0])
}

func TestSignalUnsubscribeStopsDelivery(t *testing.T) {
	s := NewSignal(StateIdle())
	defer s.Close()

	var r recorder
	unsubscribe := s.Subscribe(r.observe)
	require.Equal(t, 1, s.SubscriberCount())

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, s.SubscriberCount())

	s.Set(StateReady())
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, r.snapshot())
}

func TestSignalUnsubscribeFromInsideObserver(t *testing.T) {
	s := NewSignal(StateIdle())
	defer s.Close()

	var unsubscribe func()
	calls := make(chan LifecycleState, 4)
	unsubscribe = s.Subscribe(func(st LifecycleState) {
		calls <- st
		unsubscribe()
	})

	s.Set(StateLoading())
	s.Set(StateReady())

	select {
	case st := <-calls:
		assert.Equal(t, StateLoading(), st)
	case <-time.After(time.Second):
		t.Fatal("observer not called")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, calls, 0)
}

func TestSignalSubscribeAfterCloseIsNoop(t *testing.T) {
	s := NewSignal(StateIdle())
	s.Close()
	s.Close()

	unsubscribe := s.Subscribe(func(LifecycleState) {})
	unsubscribe()
	assert.Equal(t, 0, s.SubscriberCount())
}
