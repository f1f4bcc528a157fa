package verification

import (
	"encoding/json"
	"strings"

	"github.com/Yahir019cx/pool-and-chill-app/internal/sdk"
)

// UnknownError is the message used when the SDK reports a failure without one.
const UnknownError = "Unknown error"

// StatusUnknown is reported when the SDK completes without a usable status.
const StatusUnknown = "UNKNOWN"

// StatusCancelled is the caller-facing value for a cancelled attempt.
const StatusCancelled = "CANCELLED"

// OutcomeKind is the terminal variant of a request.
type OutcomeKind int

const (
	OutcomeCompleted OutcomeKind = iota
	OutcomeCancelled
	OutcomeFailed
)

var outcomeNames = map[OutcomeKind]string{
	OutcomeCompleted: "completed",
	OutcomeCancelled: "cancelled",
	OutcomeFailed:    "failed",
}

func (k OutcomeKind) String() string {
	if s, ok := outcomeNames[k]; ok {
		return s
	}
	return "unknown"
}

func (k OutcomeKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Outcome is the single terminal result delivered to a caller.
//
// A Completed outcome with an empty Status means the caller is only told the
// verification UI was launched; the final status is obtained out-of-band.
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	Status  string      `json:"status,omitempty"`
	Code    Code        `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

func Completed(status string) Outcome { return Outcome{Kind: OutcomeCompleted, Status: status} }
func Launched() Outcome               { return Outcome{Kind: OutcomeCompleted} }
func Cancelled() Outcome              { return Outcome{Kind: OutcomeCancelled} }

// Failed builds a failure outcome, substituting UnknownError for an empty message.
func Failed(code Code, message string) Outcome {
	if strings.TrimSpace(message) == "" {
		message = UnknownError
	}
	return Outcome{Kind: OutcomeFailed, Code: code, Message: message}
}

// Result maps the outcome onto the caller-facing contract: a status string,
// "CANCELLED", nil (launch-only), or an *Error.
func (o Outcome) Result() (*string, error) {
	switch o.Kind {
	case OutcomeCompleted:
		if o.Status == "" {
			return nil, nil
		}
		s := o.Status
		return &s, nil
	case OutcomeCancelled:
		s := StatusCancelled
		return &s, nil
	default:
		return nil, &Error{Code: o.Code, Message: o.Message}
	}
}

// Router normalises raw SDK results into Outcomes so the caller contract does
// not depend on SDK version or platform.
type Router struct{}

// Normalize maps raw onto an Outcome.
func (Router) Normalize(raw sdk.RawResult) Outcome {
	switch raw.Kind {
	case sdk.ResultCompleted:
		return Completed(NormalizeStatus(raw.Status))
	case sdk.ResultCancelled:
		return Cancelled()
	case sdk.ResultFailed:
		return Failed(CodeVerificationFailed, raw.Message)
	default:
		return Completed(StatusUnknown)
	}
}

// NormalizeStatus upper-cases a status label and joins words with
// underscores: "In Review" → "IN_REVIEW".
func NormalizeStatus(status string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(status), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '\t'
	})
	if len(fields) == 0 {
		return StatusUnknown
	}
	return strings.ToUpper(strings.Join(fields, "_"))
}
