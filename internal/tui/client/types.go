// Package client talks to the verification bridge daemon over its
// websocket method channel and HTTP API.
package client

import (
	"encoding/json"
	"time"
)

// MessageType mirrors the daemon's envelope types.
type MessageType string

const (
	MsgInvoke   MessageType = "invoke"
	MsgResult   MessageType = "result"
	MsgSDKState MessageType = "sdk_state"
	MsgSnapshot MessageType = "snapshot"
	MsgAttempt  MessageType = "attempt"
	MsgError    MessageType = "error"
)

// MethodStartVerification is the channel method that starts a verification.
const MethodStartVerification = "startDiditVerification"

// WSMessage is the wire envelope.
type WSMessage struct {
	Type    MessageType     `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Args    interface{}     `json:"args,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

type StartArgs struct {
	SessionToken string `json:"sessionToken"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorPayload) Error() string {
	return e.Code + ": " + e.Message
}

// SDK lifecycle state names.
const (
	StateIdle            = "idle"
	StateLoading         = "loading"
	StateCreatingSession = "creating_session"
	StateReady           = "ready"
	StateError           = "error"
)

type LifecycleState struct {
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

func (s LifecycleState) String() string {
	if s.State == StateError && s.Message != "" {
		return s.State + "(" + s.Message + ")"
	}
	return s.State
}

// Attempt status names.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusDeclined  = "declined"
	StatusInReview  = "in_review"
	StatusCompleted = "completed"
	StatusLaunched  = "launched"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
)

type Attempt struct {
	ID               string     `json:"id"`
	CorrelationID    string     `json:"correlationId"`
	RequestID        uint64     `json:"requestId,omitempty"`
	TokenLen         int        `json:"tokenLen"`
	TokenFingerprint string     `json:"tokenFingerprint,omitempty"`
	Phase            string     `json:"phase"`
	Status           string     `json:"status"`
	Result           string     `json:"result,omitempty"`
	Code             string     `json:"code,omitempty"`
	Message          string     `json:"message,omitempty"`
	ResolvedBy       string     `json:"resolvedBy,omitempty"`
	StartedAt        time.Time  `json:"startedAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

type SnapshotPayload struct {
	Channel  string         `json:"channel"`
	State    LifecycleState `json:"state"`
	Attempts []*Attempt     `json:"attempts"`
}

// Result is the reply to one invocation. Value is nil for a launch-only
// success; Err is set on failure.
type Result struct {
	ID    string
	Value *string
	Err   *ErrorPayload
}

type SDKHealth struct {
	Status              string `json:"status"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
	Resolved            int    `json:"resolved"`
	LastError           string `json:"lastError,omitempty"`
}

type ProcessStats struct {
	PID        int32   `json:"pid"`
	Goroutines int     `json:"goroutines"`
	RSSBytes   uint64  `json:"rssBytes,omitempty"`
	CPUPercent float64 `json:"cpuPercent,omitempty"`
}

type HealthReport struct {
	Status   string         `json:"status"`
	Uptime   string         `json:"uptime"`
	SDKState LifecycleState `json:"sdkState"`
	SDK      SDKHealth      `json:"sdk"`
	Process  ProcessStats   `json:"process"`
	Pending  bool           `json:"pending"`
}

// Health status names.
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthFailed   = "failed"
)
