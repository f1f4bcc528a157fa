package session

// EventType classifies attempt history changes.
type EventType int

const (
	EventNew      EventType = iota // attempt recorded
	EventUpdate                    // phase changed
	EventTerminal                  // attempt reached a terminal status
)

// Event carries an attempt snapshot to the store's change listener.
type Event struct {
	Type        EventType
	Attempt     *Attempt // snapshot (safe to retain)
	ActiveCount int      // pending attempts at event time
}
