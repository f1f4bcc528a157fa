// Package sdk describes the identity-verification SDK the bridge drives.
//
// The SDK itself is an external collaborator: it owns session creation, the
// capture UI and all network traffic to the verification backend. This
// package only fixes the contract the bridge relies on, plus the broadcast
// Signal used to publish the SDK's lifecycle state.
package sdk

import (
	"context"
	"errors"
)

var (
	// ErrNotInitialized is returned by implementations when StartVerification
	// is called before Initialize.
	ErrNotInitialized = errors.New("sdk: not initialized")

	// ErrNotReady is returned by LaunchVerificationUI when the SDK has not
	// reached Ready.
	ErrNotReady = errors.New("sdk: not ready to launch")

	// ErrBusy is returned when a verification is already running inside the SDK.
	ErrBusy = errors.New("sdk: verification already running")
)

// SDK is the verification SDK as seen by the bridge.
//
// StartVerification is asynchronous: it returns as soon as the attempt has
// been accepted and reports the terminal result through callback, which may
// fire on any goroutine. Lifecycle progress is published on State().
type SDK interface {
	// Initialize performs process-wide setup. Idempotency across repeated
	// calls is the implementation's responsibility.
	Initialize(ctx context.Context, app AppContext) error

	// State returns the lifecycle signal. It is valid before Initialize.
	State() StateSignal

	// StartVerification begins a verification attempt for token.
	StartVerification(token string, cfg Configuration, callback func(RawResult)) error

	// LaunchVerificationUI presents the SDK-owned UI on host. Only valid
	// once State() has reached Ready.
	LaunchVerificationUI(host Host) error
}

// StateSignal is a continuously-updated, multi-reader broadcast of the SDK
// lifecycle state.
//
// Implementations deliver every transition to every subscriber, in the order
// the transitions occurred, without dropping any. Subscribers only see
// transitions that happen after Subscribe returns.
type StateSignal interface {
	// Current returns the latest state without blocking.
	Current() LifecycleState

	// Subscribe registers observer and returns a function that removes it.
	Subscribe(observer func(LifecycleState)) (unsubscribe func())
}

// AppContext carries the process-level identity handed to Initialize.
type AppContext struct {
	Name    string
	Version string
}

// Host identifies where the SDK should present its UI.
type Host struct {
	ID string
}

// Configuration is passed to StartVerification.
type Configuration struct {
	Locale         string `json:"locale" yaml:"locale"`
	LoggingEnabled bool   `json:"loggingEnabled" yaml:"logging_enabled"`
}

// ResultKind classifies a raw SDK result.
type ResultKind string

const (
	ResultCompleted ResultKind = "completed"
	ResultCancelled ResultKind = "cancelled"
	ResultFailed    ResultKind = "failed"
)

// RawResult is the payload of the StartVerification callback, exactly as the
// SDK reports it. Status is only meaningful for ResultCompleted, Message for
// ResultFailed; both may be empty.
type RawResult struct {
	Kind    ResultKind `json:"kind"`
	Status  string     `json:"status,omitempty"`
	Message string     `json:"message,omitempty"`
}
