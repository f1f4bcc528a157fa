// Package health reports the bridge daemon's health: how the SDK has been
// behaving across recent attempts, plus a process resource snapshot.
package health

import (
	"sync"
	"time"

	"github.com/Yahir019cx/pool-and-chill-app/internal/verification"
)

// Status summarises SDK health.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// DefaultThreshold is the number of consecutive SDK failures that marks the
// SDK as failed.
const DefaultThreshold = 3

// Tracker counts consecutive SDK-side failures (SDK_ERROR and TIMEOUT
// outcomes). Any other resolution resets the count. It implements
// verification.Observer.
type Tracker struct {
	mu        sync.Mutex
	threshold int
	failures  int
	lastErr   string
	lastFail  time.Time
	resolved  int
}

var _ verification.Observer = (*Tracker)(nil)

func NewTracker(threshold int) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Tracker{threshold: threshold}
}

func (t *Tracker) OnEvent(ev verification.Event) {
	if ev.Type != verification.EventResolved || ev.Outcome == nil {
		return
	}
	o := *ev.Outcome
	if o.Kind == verification.OutcomeFailed && (o.Code == verification.CodeSDKError || o.Code == verification.CodeTimeout) {
		t.recordFailure(string(o.Code)+": "+o.Message, ev.At)
		return
	}
	t.recordSuccess()
}

func (t *Tracker) recordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = 0
	t.lastErr = ""
	t.resolved++
}

func (t *Tracker) recordFailure(msg string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures++
	t.lastErr = msg
	t.lastFail = at
	t.resolved++
}

// status computes health. Caller must hold t.mu.
func (t *Tracker) statusLocked() Status {
	switch {
	case t.failures >= t.threshold:
		return StatusFailed
	case t.failures > 0:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// SDKHealth is a consistent copy of the tracker's fields.
type SDKHealth struct {
	Status              Status    `json:"status"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	Resolved            int       `json:"resolved"`
	LastError           string    `json:"lastError,omitempty"`
	LastFailureAt       time.Time `json:"lastFailureAt,omitempty"`
}

func (t *Tracker) Snapshot() SDKHealth {
	t.mu.Lock()
	defer t.mu.Unlock()
	return SDKHealth{
		Status:              t.statusLocked(),
		ConsecutiveFailures: t.failures,
		Resolved:            t.resolved,
		LastError:           t.lastErr,
		LastFailureAt:       t.lastFail,
	}
}
