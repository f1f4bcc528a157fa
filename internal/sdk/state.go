package sdk

import (
	"encoding/json"
	"fmt"
)

// StateKind classifies the verification SDK's lifecycle.
type StateKind int

const (
	Idle StateKind = iota
	Loading
	CreatingSession
	Ready
	Error
)

var stateNames = map[StateKind]string{
	Idle:            "idle",
	Loading:         "loading",
	CreatingSession: "creating_session",
	Ready:           "ready",
	Error:           "error",
}

var stateFromName = map[string]StateKind{
	"idle":             Idle,
	"loading":          Loading,
	"creating_session": CreatingSession,
	"ready":            Ready,
	"error":            Error,
}

func (k StateKind) String() string {
	if s, ok := stateNames[k]; ok {
		return s
	}
	return "unknown"
}

func (k StateKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *StateKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, ok := stateFromName[s]
	if !ok {
		return fmt.Errorf("unknown sdk state %q", s)
	}
	*k = v
	return nil
}

// LifecycleState is one value of the SDK state signal. Message is only set
// for Error.
type LifecycleState struct {
	Kind    StateKind `json:"state"`
	Message string    `json:"message,omitempty"`
}

func StateIdle() LifecycleState            { return LifecycleState{Kind: Idle} }
func StateLoading() LifecycleState         { return LifecycleState{Kind: Loading} }
func StateCreatingSession() LifecycleState { return LifecycleState{Kind: CreatingSession} }
func StateReady() LifecycleState           { return LifecycleState{Kind: Ready} }

// StateError returns an Error state carrying msg.
func StateError(msg string) LifecycleState {
	return LifecycleState{Kind: Error, Message: msg}
}

func (s LifecycleState) String() string {
	if s.Kind == Error {
		return fmt.Sprintf("error(%s)", s.Message)
	}
	return s.Kind.String()
}
