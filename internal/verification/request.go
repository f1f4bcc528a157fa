package verification

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Yahir019cx/pool-and-chill-app/internal/sdk"
)

// Phase is where a request sits in the bridge state machine.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseAwaitingReady
	PhaseAwaitingResult
	PhaseResolved
)

var phaseNames = map[Phase]string{
	PhaseIdle:           "idle",
	PhaseStarting:       "starting",
	PhaseAwaitingReady:  "awaiting_ready",
	PhaseAwaitingResult: "awaiting_result",
	PhaseResolved:       "resolved",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "unknown"
}

func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// Request is the completion handle for one in-flight verification. The
// outcome is delivered exactly once; Done is closed after it is set.
type Request struct {
	ID            uint64
	CreatedAt     time.Time
	CorrelationID string

	tokenLen int
	tokenFP  string
	host     sdk.Host
	callback func(Outcome)

	phase atomic.Int32

	timerMu sync.Mutex
	timer   *time.Timer

	settleMu sync.Mutex
	settled  Outcome

	once    sync.Once
	done    chan struct{}
	outcome Outcome
}

func newRequest(id uint64, now time.Time) *Request {
	return &Request{
		ID:        id,
		CreatedAt: now,
		done:      make(chan struct{}),
	}
}

// Phase returns the current phase.
func (r *Request) Phase() Phase {
	return Phase(r.phase.Load())
}

func (r *Request) setPhase(p Phase) {
	r.phase.Store(int32(p))
}

func (r *Request) casPhase(from, to Phase) bool {
	return r.phase.CompareAndSwap(int32(from), int32(to))
}

func (r *Request) armTimer(d time.Duration, fn func()) {
	r.timerMu.Lock()
	defer r.timerMu.Unlock()
	r.timer = time.AfterFunc(d, fn)
}

func (r *Request) stopTimer() {
	r.timerMu.Lock()
	defer r.timerMu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// settle records the outcome that won the slot. Only the slot calls it, once.
func (r *Request) settle(o Outcome) {
	r.settleMu.Lock()
	defer r.settleMu.Unlock()
	r.settled = o
}

func (r *Request) settledOutcome() Outcome {
	r.settleMu.Lock()
	defer r.settleMu.Unlock()
	return r.settled
}

// TokenLen and TokenFingerprint describe the token without retaining it.
func (r *Request) TokenLen() int            { return r.tokenLen }
func (r *Request) TokenFingerprint() string { return r.tokenFP }

// Done is closed once the outcome has been delivered.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Outcome returns the delivered outcome. ok is false until Done is closed.
func (r *Request) Outcome() (o Outcome, ok bool) {
	select {
	case <-r.done:
		return r.outcome, true
	default:
		return Outcome{}, false
	}
}

// Wait blocks until the outcome is delivered or ctx is done. Abandoning a
// wait does not cancel the verification.
func (r *Request) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-r.done:
		return r.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// deliver fulfils the handle. Only the first call has any effect.
func (r *Request) deliver(o Outcome) bool {
	delivered := false
	r.once.Do(func() {
		r.outcome = o
		close(r.done)
		delivered = true
	})
	if delivered && r.callback != nil {
		r.callback(o)
	}
	return delivered
}
