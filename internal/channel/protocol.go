package channel

import (
	"encoding/json"
	"errors"

	"github.com/Yahir019cx/pool-and-chill-app/internal/sdk"
	"github.com/Yahir019cx/pool-and-chill-app/internal/session"
	"github.com/Yahir019cx/pool-and-chill-app/internal/verification"
)

type MessageType string

const (
	MsgInvoke   MessageType = "invoke"
	MsgResult   MessageType = "result"
	MsgSDKState MessageType = "sdk_state"
	MsgSnapshot MessageType = "snapshot"
	MsgAttempt  MessageType = "attempt"
	MsgError    MessageType = "error"
)

// MethodStartVerification is the only method the channel implements.
const MethodStartVerification = "startDiditVerification"

// Message is the envelope for every frame in both directions. Payload is
// always present on result frames; a null payload is a launch-only success.
type Message struct {
	Type    MessageType     `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	Payload interface{}     `json:"payload"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

type StartArgs struct {
	SessionToken string `json:"sessionToken"`
}

type ErrorPayload struct {
	Code    verification.Code `json:"code"`
	Message string            `json:"message"`
}

type SnapshotPayload struct {
	Channel  string             `json:"channel"`
	State    sdk.LifecycleState `json:"state"`
	Attempts []*session.Attempt `json:"attempts"`
}

// resultMessage maps an outcome onto the reply for invocation id.
func resultMessage(id string, o verification.Outcome) Message {
	msg := Message{Type: MsgResult, ID: id}
	v, err := o.Result()
	if err != nil {
		msg.Error = errorPayload(err)
		return msg
	}
	msg.Payload = v
	return msg
}

func errorMessage(id string, err error) Message {
	return Message{Type: MsgResult, ID: id, Error: errorPayload(err)}
}

func errorPayload(err error) *ErrorPayload {
	var verr *verification.Error
	if errors.As(err, &verr) {
		return &ErrorPayload{Code: verr.Code, Message: verr.Message}
	}
	return &ErrorPayload{Code: verification.CodeSDKError, Message: err.Error()}
}
