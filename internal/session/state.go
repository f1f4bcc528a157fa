package session

import (
	"encoding/json"
	"time"
)

// Status is where an attempt stands from the caller's point of view.
type Status int

const (
	Pending Status = iota
	Approved
	Declined
	InReview
	Completed
	Launched
	Cancelled
	Failed
	Rejected
)

var statusNames = map[Status]string{
	Pending:   "pending",
	Approved:  "approved",
	Declined:  "declined",
	InReview:  "in_review",
	Completed: "completed",
	Launched:  "launched",
	Cancelled: "cancelled",
	Failed:    "failed",
	Rejected:  "rejected",
}

var statusFromName = map[string]Status{
	"pending":   Pending,
	"approved":  Approved,
	"declined":  Declined,
	"in_review": InReview,
	"completed": Completed,
	"launched":  Launched,
	"cancelled": Cancelled,
	"failed":    Failed,
	"rejected":  Rejected,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := statusFromName[n]; ok {
		*s = v
	}
	return nil
}

// Attempt is one verification request as recorded for diagnostics. It never
// holds the session token, only its length and fingerprint.
type Attempt struct {
	ID               string     `json:"id"`
	CorrelationID    string     `json:"correlationId"`
	RequestID        uint64     `json:"requestId,omitempty"`
	TokenLen         int        `json:"tokenLen"`
	TokenFingerprint string     `json:"tokenFingerprint,omitempty"`
	Phase            string     `json:"phase"`
	Status           Status     `json:"status"`
	Result           string     `json:"result,omitempty"` // normalized SDK status, e.g. "IN_REVIEW"
	Code             string     `json:"code,omitempty"`
	Message          string     `json:"message,omitempty"`
	ResolvedBy       string     `json:"resolvedBy,omitempty"`
	StartedAt        time.Time  `json:"startedAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a deep copy of the Attempt.
func (a *Attempt) Clone() *Attempt {
	c := *a
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func (a *Attempt) IsTerminal() bool {
	return a.Status != Pending
}

// Duration is the time from start to completion, or to the last update
// while the attempt is still pending.
func (a *Attempt) Duration() time.Duration {
	if a.CompletedAt != nil {
		return a.CompletedAt.Sub(a.StartedAt)
	}
	return a.UpdatedAt.Sub(a.StartedAt)
}

// statusForResult maps a normalized completed status onto a Status.
func statusForResult(result string) Status {
	switch result {
	case "APPROVED":
		return Approved
	case "DECLINED":
		return Declined
	case "IN_REVIEW":
		return InReview
	case "":
		return Launched
	default:
		return Completed
	}
}
