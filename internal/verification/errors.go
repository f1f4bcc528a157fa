package verification

import "errors"

// Code is the stable, machine-readable classification surfaced to callers.
type Code string

const (
	CodeInvalidArgs        Code = "INVALID_ARGS"
	CodeAlreadyPending     Code = "ALREADY_PENDING"
	CodeNotInitialized     Code = "NOT_INITIALIZED"
	CodeSDKError           Code = "SDK_ERROR"
	CodeVerificationFailed Code = "VERIFICATION_FAILED"
	CodeTimeout            Code = "TIMEOUT"
	CodeNotImplemented     Code = "NOT_IMPLEMENTED"
)

// Local reports whether errors with this code are detected synchronously,
// before the SDK is touched.
func (c Code) Local() bool {
	switch c {
	case CodeInvalidArgs, CodeAlreadyPending, CodeNotInitialized, CodeNotImplemented:
		return true
	}
	return false
}

// Error is a caller-facing failure. Two Errors match under errors.Is when
// their codes are equal.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidArgument = &Error{Code: CodeInvalidArgs, Message: "sessionToken is required"}
	ErrAlreadyPending  = &Error{Code: CodeAlreadyPending, Message: "a verification is already in progress"}
	ErrNotInitialized  = &Error{Code: CodeNotInitialized, Message: "verification sdk is not initialized"}
)

// CodeOf returns the Code carried by err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
