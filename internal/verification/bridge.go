// Package verification coordinates verification requests against the
// asynchronous SDK.
//
// A Bridge accepts one request at a time. The SDK reports progress on its
// state signal and the terminal result through a callback; either may fire
// first, on any goroutine, and the signal keeps changing afterwards. The
// Slot guarantees only the first resolution for a request counts, and the
// Bridge hands that single outcome to the caller's Executor.
package verification

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Yahir019cx/pool-and-chill-app/internal/log"
	"github.com/Yahir019cx/pool-and-chill-app/internal/metrics"
	"github.com/Yahir019cx/pool-and-chill-app/internal/sdk"
)

// Bridge is the session bridge between callers and the SDK.
type Bridge struct {
	sdk    sdk.SDK
	router Router
	slot   Slot
	opts   options

	initialized atomic.Bool
	initMu      sync.Mutex

	unsubscribe func()
	closeOnce   sync.Once
}

// NewBridge subscribes to the SDK state signal and returns a Bridge. The
// subscription exists before NewBridge returns, so no transition caused by
// a later Start can be missed.
func NewBridge(s sdk.SDK, opts ...Option) *Bridge {
	o := options{
		executor: Inline,
		policy:   ResolveOnResult,
		launch:   LaunchByBridge,
		logger:   log.WithComponent("bridge"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	b := &Bridge{sdk: s, opts: o}
	b.unsubscribe = s.State().Subscribe(b.onState)
	return b
}

// Initialize performs the SDK's one-time setup. Start fails with
// ErrNotInitialized until it has succeeded.
func (b *Bridge) Initialize(ctx context.Context, app sdk.AppContext) error {
	b.initMu.Lock()
	defer b.initMu.Unlock()
	if b.initialized.Load() {
		return nil
	}
	if err := b.sdk.Initialize(ctx, app); err != nil {
		return err
	}
	b.initialized.Store(true)
	b.opts.logger.Info().
		Str("event", "bridge.initialized").
		Str("policy", string(b.opts.policy)).
		Str("launch_mode", string(b.opts.launch)).
		Msg("verification sdk initialized")
	return nil
}

// Initialized reports whether Initialize has succeeded.
func (b *Bridge) Initialized() bool {
	return b.initialized.Load()
}

// State returns the SDK lifecycle snapshot.
func (b *Bridge) State() sdk.LifecycleState {
	return b.sdk.State().Current()
}

// Pending returns the outstanding request, or nil.
func (b *Bridge) Pending() *Request {
	return b.slot.Current()
}

// Start begins a verification for rawToken and returns its completion
// handle without waiting for the outcome.
//
// Blank tokens fail with ErrInvalidArgument, a call before Initialize with
// ErrNotInitialized, and a call while another request is outstanding with
// ErrAlreadyPending. None of these touch the SDK. Every other failure is
// delivered through the returned Request.
func (b *Bridge) Start(ctx context.Context, rawToken string, opts ...StartOption) (*Request, error) {
	var so startOptions
	for _, opt := range opts {
		opt(&so)
	}
	if so.correlationID == "" {
		so.correlationID = log.CorrelationIDFromContext(ctx)
	}
	if so.correlationID == "" {
		so.correlationID = uuid.NewString()
	}
	logger := log.WithContext(ctx, b.opts.logger).With().
		Str("correlation_id", so.correlationID).
		Logger()

	token, err := ParseToken(rawToken)
	if err != nil {
		return nil, b.reject(logger, so.correlationID, err)
	}
	if !b.initialized.Load() {
		return nil, b.reject(logger, so.correlationID, ErrNotInitialized)
	}

	req, err := b.slot.Acquire(b.opts.now())
	if err != nil {
		return nil, b.reject(logger, so.correlationID, err)
	}
	req.CorrelationID = so.correlationID
	req.tokenLen = token.Len()
	req.tokenFP = token.Fingerprint()
	req.callback = so.callback
	req.host = b.opts.host
	if so.host != nil {
		req.host = *so.host
	}
	req.setPhase(PhaseStarting)

	metrics.StartsTotal.Inc()
	metrics.PendingRequests.Set(1)
	logger.Info().
		Str("event", "bridge.start").
		Uint64("request_id", req.ID).
		Int("token_len", req.tokenLen).
		Str("token_fp", req.tokenFP).
		Msg("starting verification")
	b.emit(Event{Type: EventStarted, Phase: PhaseStarting}, req)

	if b.opts.timeout > 0 {
		req.armTimer(b.opts.timeout, func() {
			b.resolve(req, Failed(CodeTimeout, "verification timed out"), "timeout")
		})
	}

	// The phase moves before the SDK call so transitions racing the call
	// are attributed to this request.
	next := PhaseAwaitingReady
	if b.opts.launch == LaunchBySDK {
		next = PhaseAwaitingResult
	}
	b.advance(req, PhaseStarting, next)
	if req.Phase() == PhaseResolved {
		// A timeout or an Error transition won while observers were notified.
		return req, nil
	}

	err = b.sdk.StartVerification(token.Reveal(), b.opts.config, func(raw sdk.RawResult) {
		b.onResult(req, raw)
	})
	if err != nil {
		logger.Warn().Err(err).Str("event", "bridge.start_failed").Uint64("request_id", req.ID).Msg("sdk refused verification")
		b.resolve(req, Failed(CodeSDKError, err.Error()), "start")
	}
	return req, nil
}

// Close detaches the bridge from the state signal and stops the pending
// request's timeout. A pending request stays pending.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.unsubscribe()
		if req := b.slot.Current(); req != nil {
			req.stopTimer()
		}
	})
}

func (b *Bridge) onState(state sdk.LifecycleState) {
	metrics.IncStateTransition(state.Kind.String())
	b.opts.logger.Debug().
		Str("event", "sdk.state").
		Str("state", state.Kind.String()).
		Msg("sdk state changed")

	req := b.slot.Current()
	if req == nil {
		return
	}

	switch state.Kind {
	case sdk.Ready:
		if b.opts.launch != LaunchByBridge {
			return
		}
		if !b.advance(req, PhaseAwaitingReady, PhaseAwaitingResult) {
			return
		}
		b.launch(req)
	case sdk.Error:
		if req.Phase() != PhaseAwaitingReady {
			return
		}
		b.resolve(req, Failed(CodeSDKError, state.Message), "state")
	}
}

func (b *Bridge) launch(req *Request) {
	if req.Phase() != PhaseAwaitingResult {
		// The callback or the timeout resolved the request first.
		metrics.IncRaceNoop("launch")
		return
	}
	err := b.sdk.LaunchVerificationUI(req.host)
	metrics.IncLaunch(err == nil)
	if err != nil {
		b.opts.logger.Warn().Err(err).
			Str("event", "bridge.launch_failed").
			Uint64("request_id", req.ID).
			Msg("failed to launch verification ui")
		b.resolve(req, Failed(CodeSDKError, err.Error()), "launch")
		return
	}
	b.opts.logger.Info().
		Str("event", "bridge.launched").
		Uint64("request_id", req.ID).
		Str("host", req.host.ID).
		Msg("verification ui launched")
	if b.opts.policy == ResolveOnLaunch {
		b.resolve(req, Launched(), "launch")
	}
}

func (b *Bridge) onResult(req *Request, raw sdk.RawResult) {
	b.resolve(req, b.router.Normalize(raw), "callback")
}

// resolve is the single path to the caller. Losing the race is expected and
// silent.
func (b *Bridge) resolve(req *Request, o Outcome, source string) {
	if !b.slot.Resolve(req, o) {
		metrics.IncRaceNoop(source)
		b.opts.logger.Debug().
			Str("event", "bridge.resolve_noop").
			Uint64("request_id", req.ID).
			Str("source", source).
			Msg("request already resolved")
		return
	}
	req.stopTimer()

	elapsed := b.opts.now().Sub(req.CreatedAt)
	metrics.PendingRequests.Set(0)
	metrics.ObserveOutcome(o.Kind.String(), string(o.Code), elapsed)

	ev := b.opts.logger.Info()
	if o.Kind == OutcomeFailed {
		ev = b.opts.logger.Warn()
	}
	ev.Str("event", "bridge.resolved").
		Str("correlation_id", req.CorrelationID).
		Uint64("request_id", req.ID).
		Str("source", source).
		Str("outcome", o.Kind.String()).
		Str("status", o.Status).
		Str("code", string(o.Code)).
		Dur("elapsed", elapsed).
		Msg("verification resolved")

	outcome := o
	b.emit(Event{Type: EventResolved, Phase: PhaseResolved, Outcome: &outcome, Source: source}, req)

	b.opts.executor.Dispatch(func() {
		req.deliver(req.settledOutcome())
	})
}

func (b *Bridge) advance(req *Request, from, to Phase) bool {
	if !req.casPhase(from, to) {
		return false
	}
	b.emit(Event{Type: EventPhase, Phase: to}, req)
	return true
}

func (b *Bridge) reject(logger zerolog.Logger, correlationID string, err error) error {
	code := CodeOf(err)
	metrics.IncRejected(string(code))
	logger.Info().
		Str("event", "bridge.rejected").
		Str("code", string(code)).
		Msg("verification start rejected")
	if b.opts.observer != nil {
		b.opts.observer.OnEvent(Event{
			Type:          EventRejected,
			CorrelationID: correlationID,
			Code:          code,
			At:            b.opts.now(),
		})
	}
	return err
}

func (b *Bridge) emit(ev Event, req *Request) {
	if b.opts.observer == nil {
		return
	}
	ev.RequestID = req.ID
	ev.CorrelationID = req.CorrelationID
	ev.TokenLen = req.tokenLen
	ev.TokenFP = req.tokenFP
	ev.At = b.opts.now()
	b.opts.observer.OnEvent(ev)
}
