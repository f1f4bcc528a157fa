// Package sim is a simulated verification SDK. It walks the lifecycle
// signal through the same transitions the real SDK produces and reports a
// result chosen by scenario, so the daemon and UI can be exercised without a
// verification backend.
package sim

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Yahir019cx/pool-and-chill-app/internal/log"
	"github.com/Yahir019cx/pool-and-chill-app/internal/sdk"
)

// Scenario selects how a simulated attempt ends.
type Scenario string

const (
	ScenarioApprove  Scenario = "approve"
	ScenarioDecline  Scenario = "decline"
	ScenarioReview   Scenario = "review"
	ScenarioCancel   Scenario = "cancel"
	ScenarioFail     Scenario = "fail"
	ScenarioSDKError Scenario = "sdkerr"
)

var scenarios = []Scenario{
	ScenarioApprove,
	ScenarioDecline,
	ScenarioReview,
	ScenarioCancel,
	ScenarioFail,
	ScenarioSDKError,
}

// ParseScenario maps a configured name to a Scenario.
func ParseScenario(name string) (Scenario, bool) {
	for _, s := range scenarios {
		if string(s) == name {
			return s, true
		}
	}
	return "", false
}

// ScenarioForToken picks the scenario named by the token prefix
// ("cancel-abc" → ScenarioCancel), or fallback.
func ScenarioForToken(token string, fallback Scenario) Scenario {
	for _, s := range scenarios {
		if strings.HasPrefix(token, string(s)+"-") {
			return s
		}
	}
	return fallback
}

// Options tunes the simulator.
type Options struct {
	StepDelay       time.Duration // delay between lifecycle transitions
	UIDelay         time.Duration // time the "user" spends in the UI
	DefaultScenario Scenario
	// AutoLaunch makes the simulator present its own UI on Ready, the way
	// SDK builds that launch automatically do.
	AutoLaunch bool
}

type attempt struct {
	scenario Scenario
	callback func(sdk.RawResult)
	ready    bool
	launched bool
}

// SDK implements sdk.SDK.
type SDK struct {
	opts   Options
	signal *sdk.Signal
	logger zerolog.Logger

	initialized atomic.Bool

	mu     sync.Mutex
	active *attempt

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ sdk.SDK = (*SDK)(nil)

// New returns a simulator at Idle.
func New(opts Options) *SDK {
	if opts.DefaultScenario == "" {
		opts.DefaultScenario = ScenarioApprove
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SDK{
		opts:   opts,
		signal: sdk.NewSignal(sdk.StateIdle()),
		logger: log.WithComponent("sdk.sim"),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *SDK) Initialize(_ context.Context, app sdk.AppContext) error {
	if s.initialized.CompareAndSwap(false, true) {
		s.logger.Info().
			Str("event", "sdk.initialized").
			Str("app", app.Name).
			Msg("simulated sdk initialized")
	}
	return nil
}

func (s *SDK) State() sdk.StateSignal { return s.signal }

func (s *SDK) StartVerification(token string, cfg sdk.Configuration, callback func(sdk.RawResult)) error {
	if !s.initialized.Load() {
		return sdk.ErrNotInitialized
	}

	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return sdk.ErrBusy
	}
	a := &attempt{
		scenario: ScenarioForToken(token, s.opts.DefaultScenario),
		callback: callback,
	}
	s.active = a
	s.mu.Unlock()

	s.logger.Debug().
		Str("event", "sdk.start").
		Str("scenario", string(a.scenario)).
		Str("locale", cfg.Locale).
		Msg("simulated verification started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSession(a)
	}()
	return nil
}

func (s *SDK) runSession(a *attempt) {
	s.signal.Set(sdk.StateLoading())
	if !s.sleep(s.opts.StepDelay) {
		return
	}
	s.signal.Set(sdk.StateCreatingSession())
	if !s.sleep(s.opts.StepDelay) {
		return
	}

	if a.scenario == ScenarioSDKError {
		s.finish(a)
		s.signal.Set(sdk.StateError("session creation failed"))
		return
	}

	s.mu.Lock()
	a.ready = true
	s.mu.Unlock()
	s.signal.Set(sdk.StateReady())

	if s.opts.AutoLaunch {
		if err := s.LaunchVerificationUI(sdk.Host{ID: "sdk"}); err != nil {
			s.logger.Warn().Err(err).Str("event", "sdk.auto_launch_failed").Msg("auto launch failed")
		}
	}
}

func (s *SDK) LaunchVerificationUI(host sdk.Host) error {
	s.mu.Lock()
	a := s.active
	if a == nil || !a.ready {
		s.mu.Unlock()
		return sdk.ErrNotReady
	}
	if a.launched {
		s.mu.Unlock()
		return nil
	}
	a.launched = true
	s.mu.Unlock()

	s.logger.Debug().
		Str("event", "sdk.launch").
		Str("host", host.ID).
		Msg("simulated verification ui presented")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if !s.sleep(s.opts.UIDelay) {
			return
		}
		s.finish(a)
		s.signal.Set(sdk.StateIdle())
		a.callback(resultFor(a.scenario))
	}()
	return nil
}

func (s *SDK) finish(a *attempt) {
	s.mu.Lock()
	if s.active == a {
		s.active = nil
	}
	s.mu.Unlock()
}

func (s *SDK) sleep(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-s.ctx.Done():
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close aborts in-flight attempts without firing their callbacks and stops
// the signal.
func (s *SDK) Close() {
	s.cancel()
	s.wg.Wait()
	s.signal.Close()
}

func resultFor(sc Scenario) sdk.RawResult {
	switch sc {
	case ScenarioDecline:
		return sdk.RawResult{Kind: sdk.ResultCompleted, Status: "Declined"}
	case ScenarioReview:
		return sdk.RawResult{Kind: sdk.ResultCompleted, Status: "In Review"}
	case ScenarioCancel:
		return sdk.RawResult{Kind: sdk.ResultCancelled}
	case ScenarioFail:
		return sdk.RawResult{Kind: sdk.ResultFailed, Message: "document capture failed"}
	default:
		return sdk.RawResult{Kind: sdk.ResultCompleted, Status: "Approved"}
	}
}
