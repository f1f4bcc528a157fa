package verification

import "time"

// EventType classifies bridge lifecycle events.
type EventType int

const (
	EventStarted  EventType = iota // request accepted and handed to the SDK
	EventPhase                     // request moved to a new phase
	EventResolved                  // request reached a terminal outcome
	EventRejected                  // start refused locally; no request exists
)

func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "started"
	case EventPhase:
		return "phase"
	case EventResolved:
		return "resolved"
	case EventRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Event carries a bridge lifecycle change to observers. RequestID is zero
// for EventRejected.
type Event struct {
	Type          EventType
	RequestID     uint64
	CorrelationID string
	Phase         Phase
	TokenLen      int
	TokenFP       string
	Outcome       *Outcome // EventResolved only
	Code          Code     // EventRejected only
	Source        string   // what resolved the request: state, callback, launch, timeout, start
	At            time.Time
}

// Observer receives bridge events. OnEvent is called synchronously from the
// goroutine that caused the change and must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

// Observers fans each event out to every observer in order.
type Observers []Observer

func (o Observers) OnEvent(ev Event) {
	for _, obs := range o {
		obs.OnEvent(ev)
	}
}
