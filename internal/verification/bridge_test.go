package verification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yahir019cx/pool-and-chill-app/internal/sdk"
	"github.com/Yahir019cx/pool-and-chill-app/internal/sdk/sdktest"
)

const waitFor = 2 * time.Second

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) OnEvent(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) count(typ EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// phaseHook runs fn synchronously for every event, inside the bridge call
// that emitted it.
type phaseHook struct {
	fn func(Event)
}

func (h *phaseHook) OnEvent(ev Event) {
	if h.fn != nil {
		h.fn(ev)
	}
}

func newTestBridge(t *testing.T, opts ...Option) (*Bridge, *sdktest.FakeSDK) {
	t.Helper()
	fake := sdktest.New()
	b := NewBridge(fake, append([]Option{WithLogger(zerolog.Nop())}, opts...)...)
	require.NoError(t, b.Initialize(context.Background(), sdk.AppContext{Name: "test"}))
	t.Cleanup(func() {
		b.Close()
		fake.Close()
	})
	return b, fake
}

func waitOutcome(t *testing.T, req *Request) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	o, err := req.Wait(ctx)
	require.NoError(t, err, "request %d never resolved", req.ID)
	return o
}

func requirePending(t *testing.T, req *Request) {
	t.Helper()
	_, ok := req.Outcome()
	require.False(t, ok, "request %d resolved unexpectedly", req.ID)
}

func TestBridgeHappyPath(t *testing.T) {
	cfg := sdk.Configuration{Locale: "es", LoggingEnabled: true}
	b, fake := newTestBridge(t, WithConfiguration(cfg))

	req, err := b.Start(context.Background(), "approve-abc")
	require.NoError(t, err)
	require.Equal(t, 1, fake.StartCount())
	assert.Equal(t, "approve-abc", fake.Starts()[0].Token)
	assert.Equal(t, cfg, fake.Starts()[0].Config)
	assert.Equal(t, PhaseAwaitingReady, req.Phase())

	fake.Emit(sdk.StateLoading(), sdk.StateCreatingSession(), sdk.StateReady())
	require.Eventually(t, func() bool { return fake.LaunchCount() == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, PhaseAwaitingResult, req.Phase())
	requirePending(t, req)

	require.True(t, fake.Complete(sdk.RawResult{Kind: sdk.ResultCompleted, Status: "Approved"}))
	o := waitOutcome(t, req)

	v, err := o.Result()
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "APPROVED", *v)
	assert.Nil(t, b.Pending())
	assert.Equal(t, PhaseResolved, req.Phase())

	// The vacated slot accepts a fresh start.
	next, err := b.Start(context.Background(), "approve-def")
	require.NoError(t, err)
	assert.Greater(t, next.ID, req.ID)
	assert.Same(t, next, b.Pending())
	assert.Equal(t, 2, fake.StartCount())
}

func TestBridgeSkipsLaunchWhenCallbackWins(t *testing.T) {
	hook := &phaseHook{}
	b, fake := newTestBridge(t, WithObserver(hook))
	hook.fn = func(ev Event) {
		// The callback lands between the Ready transition and the launch.
		if ev.Type == EventPhase && ev.Phase == PhaseAwaitingResult {
			fake.Complete(sdk.RawResult{Kind: sdk.ResultCompleted, Status: "Approved"})
		}
	}

	req, err := b.Start(context.Background(), "tok")
	require.NoError(t, err)
	fake.Emit(sdk.StateReady())

	o := waitOutcome(t, req)
	assert.Equal(t, "APPROVED", o.Status)
	assert.Never(t, func() bool { return fake.LaunchCount() > 0 }, 100*time.Millisecond, time.Millisecond)
	assert.Nil(t, b.Pending())
}

func TestBridgeSkipsSDKStartWhenResolvedDuringPhaseChange(t *testing.T) {
	hook := &phaseHook{}
	b, fake := newTestBridge(t, WithObserver(hook))
	hook.fn = func(ev Event) {
		if ev.Type != EventPhase || ev.Phase != PhaseAwaitingReady {
			return
		}
		fake.Emit(sdk.StateError("network down"))
		deadline := time.Now().Add(waitFor)
		for b.Pending() != nil && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}

	req, err := b.Start(context.Background(), "tok")
	require.NoError(t, err)

	o := waitOutcome(t, req)
	assert.Equal(t, CodeSDKError, o.Code)
	assert.Equal(t, "network down", o.Message)
	assert.Equal(t, 0, fake.StartCount())
	assert.Equal(t, PhaseResolved, req.Phase())
}

func TestBridgeEarlySDKError(t *testing.T) {
	b, fake := newTestBridge(t)

	req, err := b.Start(context.Background(), "sdkerr-abc")
	require.NoError(t, err)

	fake.Emit(sdk.StateLoading(), sdk.StateError("session expired"))
	o := waitOutcome(t, req)

	assert.Equal(t, OutcomeFailed, o.Kind)
	assert.Equal(t, CodeSDKError, o.Code)
	assert.Equal(t, "session expired", o.Message)
	assert.Equal(t, 0, fake.LaunchCount())
	assert.Nil(t, b.Pending())
}

func TestBridgeSDKErrorWithoutMessage(t *testing.T) {
	b, fake := newTestBridge(t)

	req, err := b.Start(context.Background(), "tok")
	require.NoError(t, err)
	fake.Emit(sdk.StateError(""))

	o := waitOutcome(t, req)
	assert.Equal(t, UnknownError, o.Message)
}

func TestBridgeCancelled(t *testing.T) {
	b, fake := newTestBridge(t)

	req, err := b.Start(context.Background(), "cancel-abc")
	require.NoError(t, err)
	fake.Emit(sdk.StateReady())
	require.Eventually(t, func() bool { return fake.LaunchCount() == 1 }, waitFor, time.Millisecond)
	fake.Complete(sdk.RawResult{Kind: sdk.ResultCancelled})

	v, err := waitOutcome(t, req).Result()
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "CANCELLED", *v)
}

func TestBridgeVerificationFailed(t *testing.T) {
	b, fake := newTestBridge(t)

	req, err := b.Start(context.Background(), "fail-abc")
	require.NoError(t, err)
	fake.Complete(sdk.RawResult{Kind: sdk.ResultFailed, Message: "document capture failed"})

	_, err = waitOutcome(t, req).Result()
	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, CodeVerificationFailed, verr.Code)
	assert.Equal(t, "document capture failed", verr.Message)
}

func TestBridgeRejectsConcurrentStart(t *testing.T) {
	b, fake := newTestBridge(t)

	first, err := b.Start(context.Background(), "approve-1")
	require.NoError(t, err)

	second, err := b.Start(context.Background(), "approve-2")
	assert.Nil(t, second)
	assert.ErrorIs(t, err, ErrAlreadyPending)
	assert.Equal(t, 1, fake.StartCount())
	requirePending(t, first)
	assert.Same(t, first, b.Pending())

	fake.Complete(sdk.RawResult{Kind: sdk.ResultCompleted, Status: "Approved"})
	assert.Equal(t, "APPROVED", waitOutcome(t, first).Status)
}

func TestBridgeRejectsBlankToken(t *testing.T) {
	obs := &eventLog{}
	b, fake := newTestBridge(t, WithObserver(obs))

	for _, raw := range []string{"", "   "} {
		req, err := b.Start(context.Background(), raw)
		assert.Nil(t, req)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.Equal(t, CodeInvalidArgs, CodeOf(err))
	}
	assert.Equal(t, 0, fake.StartCount())
	assert.Nil(t, b.Pending())
	assert.Equal(t, 2, obs.count(EventRejected))
}

func TestBridgeRequiresInitialize(t *testing.T) {
	fake := sdktest.New()
	b := NewBridge(fake, WithLogger(zerolog.Nop()))
	defer func() {
		b.Close()
		fake.Close()
	}()

	assert.False(t, b.Initialized())
	req, err := b.Start(context.Background(), "approve-abc")
	assert.Nil(t, req)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, 0, fake.StartCount())

	require.NoError(t, b.Initialize(context.Background(), sdk.AppContext{}))
	require.NoError(t, b.Initialize(context.Background(), sdk.AppContext{}))
	assert.Equal(t, 1, fake.InitCalls())
	assert.True(t, b.Initialized())
}

func TestBridgeErrorThenCallbackResolvesOnce(t *testing.T) {
	var calls atomic.Int32
	obs := &eventLog{}
	b, fake := newTestBridge(t, WithObserver(obs))

	req, err := b.Start(context.Background(), "tok", WithCallback(func(Outcome) { calls.Add(1) }))
	require.NoError(t, err)

	fake.Emit(sdk.StateError("network down"))
	o := waitOutcome(t, req)
	assert.Equal(t, CodeSDKError, o.Code)

	// The late callback is a silent no-op.
	fake.Complete(sdk.RawResult{Kind: sdk.ResultCompleted, Status: "Approved"})
	got, _ := req.Outcome()
	assert.Equal(t, CodeSDKError, got.Code)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, obs.count(EventResolved))
}

func TestBridgeCallbackThenErrorResolvesOnce(t *testing.T) {
	obs := &eventLog{}
	b, fake := newTestBridge(t, WithObserver(obs))

	req, err := b.Start(context.Background(), "tok")
	require.NoError(t, err)

	fake.Complete(sdk.RawResult{Kind: sdk.ResultCompleted, Status: "Declined"})
	assert.Equal(t, "DECLINED", waitOutcome(t, req).Status)

	fake.Emit(sdk.StateError("late"), sdk.StateReady())
	assert.Never(t, func() bool {
		return obs.count(EventResolved) > 1 || fake.LaunchCount() > 0
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestBridgeConcurrentResolutionsDeliverOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			var calls atomic.Int32
			b, fake := newTestBridge(t)

			req, err := b.Start(context.Background(), "tok", WithCallback(func(Outcome) { calls.Add(1) }))
			require.NoError(t, err)

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				fake.Emit(sdk.StateError("boom"))
			}()
			go func() {
				defer wg.Done()
				fake.Complete(sdk.RawResult{Kind: sdk.ResultCompleted, Status: "Approved"})
			}()
			wg.Wait()

			o := waitOutcome(t, req)
			assert.Contains(t, []OutcomeKind{OutcomeCompleted, OutcomeFailed}, o.Kind)
			assert.Never(t, func() bool { return calls.Load() != 1 }, 20*time.Millisecond, 2*time.Millisecond)
		})
	}
}

func TestBridgeStaleCallbackIgnored(t *testing.T) {
	b, fake := newTestBridge(t)

	first, err := b.Start(context.Background(), "tok-1")
	require.NoError(t, err)
	staleCallback := fake.Callback()
	fake.Emit(sdk.StateError("first failed"))
	waitOutcome(t, first)

	second, err := b.Start(context.Background(), "tok-2")
	require.NoError(t, err)

	staleCallback(sdk.RawResult{Kind: sdk.ResultCompleted, Status: "Approved"})
	requirePending(t, second)
	assert.Same(t, second, b.Pending())

	fake.Complete(sdk.RawResult{Kind: sdk.ResultCancelled})
	assert.Equal(t, OutcomeCancelled, waitOutcome(t, second).Kind)
}

func TestBridgeResolveOnLaunch(t *testing.T) {
	b, fake := newTestBridge(t, WithResolvePolicy(ResolveOnLaunch))

	req, err := b.Start(context.Background(), "approve-abc")
	require.NoError(t, err)
	fake.Emit(sdk.StateReady())

	v, err := waitOutcome(t, req).Result()
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, 1, fake.LaunchCount())

	// The eventual result has nowhere to go.
	fake.Complete(sdk.RawResult{Kind: sdk.ResultCompleted, Status: "Approved"})
	o, _ := req.Outcome()
	assert.Empty(t, o.Status)
}

func TestBridgeLaunchBySDK(t *testing.T) {
	b, fake := newTestBridge(t, WithLaunchMode(LaunchBySDK))

	req, err := b.Start(context.Background(), "approve-abc")
	require.NoError(t, err)
	assert.Equal(t, PhaseAwaitingResult, req.Phase())

	fake.Emit(sdk.StateReady(), sdk.StateError("ignored once awaiting the result"))
	assert.Never(t, func() bool {
		_, done := req.Outcome()
		return done || fake.LaunchCount() > 0
	}, 50*time.Millisecond, 5*time.Millisecond)

	fake.Complete(sdk.RawResult{Kind: sdk.ResultCompleted, Status: "Approved"})
	assert.Equal(t, "APPROVED", waitOutcome(t, req).Status)
}

func TestBridgeLaunchFailure(t *testing.T) {
	b, fake := newTestBridge(t)
	fake.LaunchErr = errors.New("no foreground host")

	req, err := b.Start(context.Background(), "tok")
	require.NoError(t, err)
	fake.Emit(sdk.StateReady())

	o := waitOutcome(t, req)
	assert.Equal(t, CodeSDKError, o.Code)
	assert.Equal(t, "no foreground host", o.Message)
}

func TestBridgeStartFailureFreesSlot(t *testing.T) {
	b, fake := newTestBridge(t)
	fake.StartErr = errors.New("sdk busy")

	req, err := b.Start(context.Background(), "tok")
	require.NoError(t, err)
	o := waitOutcome(t, req)
	assert.Equal(t, CodeSDKError, o.Code)
	assert.Nil(t, b.Pending())

	fake.StartErr = nil
	next, err := b.Start(context.Background(), "tok")
	require.NoError(t, err)
	requirePending(t, next)
}

func TestBridgeTimeout(t *testing.T) {
	b, fake := newTestBridge(t, WithTimeout(20*time.Millisecond))

	req, err := b.Start(context.Background(), "tok")
	require.NoError(t, err)

	o := waitOutcome(t, req)
	assert.Equal(t, CodeTimeout, o.Code)
	assert.Nil(t, b.Pending())

	fake.Complete(sdk.RawResult{Kind: sdk.ResultCompleted, Status: "Approved"})
	got, _ := req.Outcome()
	assert.Equal(t, CodeTimeout, got.Code)
}

func TestBridgeResolvedBeforeTimeout(t *testing.T) {
	b, fake := newTestBridge(t, WithTimeout(30*time.Millisecond))

	req, err := b.Start(context.Background(), "tok")
	require.NoError(t, err)
	fake.Complete(sdk.RawResult{Kind: sdk.ResultCancelled})
	assert.Equal(t, OutcomeCancelled, waitOutcome(t, req).Kind)

	next, err := b.Start(context.Background(), "tok")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	requirePending(t, next)
}

func TestBridgeDeliversOnExecutor(t *testing.T) {
	loop := NewLoop()
	var delivered atomic.Bool
	b, fake := newTestBridge(t, WithExecutor(loop))

	req, err := b.Start(context.Background(), "tok", WithCallback(func(Outcome) { delivered.Store(true) }))
	require.NoError(t, err)
	fake.Complete(sdk.RawResult{Kind: sdk.ResultCompleted, Status: "Approved"})

	// Resolved but not yet delivered: the loop is not running.
	assert.Nil(t, b.Pending())
	requirePending(t, req)
	assert.False(t, delivered.Load())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()

	assert.Equal(t, "APPROVED", waitOutcome(t, req).Status)
	assert.True(t, delivered.Load())
	cancel()
	require.NoError(t, <-errCh)
}

func TestBridgeLaunchHost(t *testing.T) {
	b, fake := newTestBridge(t, WithHost(sdk.Host{ID: "main"}))

	req, err := b.Start(context.Background(), "tok")
	require.NoError(t, err)
	fake.Emit(sdk.StateReady())
	require.Eventually(t, func() bool { return fake.LaunchCount() == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, "main", fake.Launches()[0].ID)
	fake.Complete(sdk.RawResult{Kind: sdk.ResultCancelled})
	waitOutcome(t, req)

	req, err = b.Start(context.Background(), "tok", WithStartHost(sdk.Host{ID: "modal"}))
	require.NoError(t, err)
	fake.Emit(sdk.StateReady())
	require.Eventually(t, func() bool { return fake.LaunchCount() == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, "modal", fake.Launches()[1].ID)
	fake.Complete(sdk.RawResult{Kind: sdk.ResultCancelled})
	waitOutcome(t, req)
}

func TestBridgeEventsRedactToken(t *testing.T) {
	obs := &eventLog{}
	b, fake := newTestBridge(t, WithObserver(obs))

	const raw = "approve-very-secret"
	req, err := b.Start(context.Background(), raw, WithCorrelationID("corr-1"))
	require.NoError(t, err)
	fake.Complete(sdk.RawResult{Kind: sdk.ResultCompleted, Status: "Approved"})
	waitOutcome(t, req)

	events := obs.all()
	require.NotEmpty(t, events)
	assert.Equal(t, EventStarted, events[0].Type)
	assert.Equal(t, EventResolved, events[len(events)-1].Type)
	for _, ev := range events {
		assert.Equal(t, "corr-1", ev.CorrelationID)
		assert.Equal(t, req.ID, ev.RequestID)
		assert.Equal(t, len(raw), ev.TokenLen)
		assert.NotContains(t, fmt.Sprintf("%+v", ev), "secret")
	}
	assert.Equal(t, "callback", events[len(events)-1].Source)
}

func TestBridgeCloseUnsubscribes(t *testing.T) {
	fake := sdktest.New()
	defer fake.Close()
	b := NewBridge(fake, WithLogger(zerolog.Nop()))
	assert.Equal(t, 1, fake.Signal().SubscriberCount())

	b.Close()
	b.Close()
	assert.Equal(t, 0, fake.Signal().SubscriberCount())
}

func TestParsePolicies(t *testing.T) {
	p, err := ParseResolvePolicy("launch")
	require.NoError(t, err)
	assert.Equal(t, ResolveOnLaunch, p)
	_, err = ParseResolvePolicy("eventually")
	assert.Error(t, err)

	m, err := ParseLaunchMode("sdk")
	require.NoError(t, err)
	assert.Equal(t, LaunchBySDK, m)
	_, err = ParseLaunchMode("")
	assert.Error(t, err)
}
