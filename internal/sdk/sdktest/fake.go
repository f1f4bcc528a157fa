// Package sdktest provides a deterministic, manually driven SDK for tests.
package sdktest

import (
	"context"
	"sync"

	"github.com/Yahir019cx/pool-and-chill-app/internal/sdk"
)

// StartCall records one StartVerification invocation.
type StartCall struct {
	Token  string
	Config sdk.Configuration
}

// FakeSDK implements sdk.SDK. Nothing happens on its own: tests drive the
// state signal with Emit and fire the result callback with Complete.
type FakeSDK struct {
	signal *sdk.Signal

	mu        sync.Mutex
	initCalls int
	starts    []StartCall
	launches  []sdk.Host
	callback  func(sdk.RawResult)

	// StartErr, when set, is returned by StartVerification.
	StartErr error
	// LaunchErr, when set, is returned by LaunchVerificationUI.
	LaunchErr error
	// OnLaunch, when set, runs synchronously inside LaunchVerificationUI.
	OnLaunch func(sdk.Host)
}

var _ sdk.SDK = (*FakeSDK)(nil)

// New returns a FakeSDK whose signal starts at Idle.
func New() *FakeSDK {
	return &FakeSDK{signal: sdk.NewSignal(sdk.StateIdle())}
}

func (f *FakeSDK) Initialize(context.Context, sdk.AppContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	return nil
}

func (f *FakeSDK) State() sdk.StateSignal { return f.signal }

// Signal exposes the concrete signal for tests that need SubscriberCount.
func (f *FakeSDK) Signal() *sdk.Signal { return f.signal }

func (f *FakeSDK) StartVerification(token string, cfg sdk.Configuration, callback func(sdk.RawResult)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, StartCall{Token: token, Config: cfg})
	if f.StartErr != nil {
		return f.StartErr
	}
	f.callback = callback
	return nil
}

func (f *FakeSDK) LaunchVerificationUI(host sdk.Host) error {
	f.mu.Lock()
	f.launches = append(f.launches, host)
	err := f.LaunchErr
	hook := f.OnLaunch
	f.mu.Unlock()

	if hook != nil {
		hook(host)
	}
	return err
}

// Emit publishes each state on the signal in order.
func (f *FakeSDK) Emit(states ...sdk.LifecycleState) {
	for _, st := range states {
		f.signal.Set(st)
	}
}

// Complete fires the callback captured by the most recent
// StartVerification on the calling goroutine. It reports false when no
// callback has been captured.
func (f *FakeSDK) Complete(raw sdk.RawResult) bool {
	f.mu.Lock()
	cb := f.callback
	f.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(raw)
	return true
}

// Callback returns the most recently captured result callback.
func (f *FakeSDK) Callback() func(sdk.RawResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callback
}

func (f *FakeSDK) InitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls
}

func (f *FakeSDK) Starts() []StartCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]StartCall(nil), f.starts...)
}

func (f *FakeSDK) StartCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

func (f *FakeSDK) LaunchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.launches)
}

func (f *FakeSDK) Launches() []sdk.Host {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sdk.Host(nil), f.launches...)
}

// Close stops the signal's delivery goroutines.
func (f *FakeSDK) Close() {
	f.signal.Close()
}
