package presentation

import (
	"errors"
	"fmt"
)

// ViolationCode categorizes protocol contract violations.
type ViolationCode string

const (
	// ErrCodeEventAfterTerminal indicates an event arrived for a feedback
	// that had already been presented or discarded.
	ErrCodeEventAfterTerminal ViolationCode = "EVENT_AFTER_TERMINAL"

	// ErrCodeUseAfterRelease indicates an event arrived for a feedback
	// whose handle was already destroyed.
	ErrCodeUseAfterRelease ViolationCode = "USE_AFTER_RELEASE"

	// ErrCodeCapabilityMissing indicates no presentation global was advertised.
	ErrCodeCapabilityMissing ViolationCode = "CAPABILITY_MISSING"

	// ErrCodeCapabilityAmbiguous indicates more than one presentation global.
	ErrCodeCapabilityAmbiguous ViolationCode = "CAPABILITY_AMBIGUOUS"

	// ErrCodeVersionMismatch indicates the presentation global has an
	// unsupported version.
	ErrCodeVersionMismatch ViolationCode = "VERSION_MISMATCH"

	// ErrCodeBindFailed indicates the registry could not bind the global
	// or returned the wrong proxy type.
	ErrCodeBindFailed ViolationCode = "BIND_FAILED"

	// ErrCodeTransport indicates the dispatch primitive failed.
	ErrCodeTransport ViolationCode = "TRANSPORT_FAILURE"
)

// ViolationCodes returns every violation code.
func ViolationCodes() []ViolationCode {
	return []ViolationCode{
		ErrCodeEventAfterTerminal,
		ErrCodeUseAfterRelease,
		ErrCodeCapabilityMissing,
		ErrCodeCapabilityAmbiguous,
		ErrCodeVersionMismatch,
		ErrCodeBindFailed,
		ErrCodeTransport,
	}
}

// ViolationError reports a broken collaborator. None of these are
// retryable.
type ViolationError struct {
	// Code identifies the violation category.
	Code ViolationCode

	// Message is a human-readable description.
	Message string

	// Feedback is the ID of the affected feedback, if any.
	Feedback uint32

	// Event names the offending event, if any.
	Event string

	// Err is the underlying cause (transport failures, bind errors).
	Err error
}

// Error implements the error interface.
func (e *ViolationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Event != "" {
		msg = fmt.Sprintf("%s (feedback=%d, event=%s)", msg, e.Feedback, e.Event)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ViolationError) Unwrap() error {
	return e.Err
}

// ViolationCodeOf returns the code of the first ViolationError in err's
// chain, or "" if there is none.
func ViolationCodeOf(err error) ViolationCode {
	var ve *ViolationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// IsViolation reports whether err carries a ViolationError with the given
// code.
func IsViolation(err error, code ViolationCode) bool {
	return ViolationCodeOf(err) == code
}

// IsCapabilityError reports whether err is a capability discovery failure.
func IsCapabilityError(err error) bool {
	switch ViolationCodeOf(err) {
	case ErrCodeCapabilityMissing, ErrCodeCapabilityAmbiguous, ErrCodeVersionMismatch, ErrCodeBindFailed:
		return true
	}
	return false
}

// IsTransportError reports whether err is a dispatch failure.
func IsTransportError(err error) bool {
	return IsViolation(err, ErrCodeTransport)
}

func newTerminalViolation(fb *Feedback, event string) *ViolationError {
	return &ViolationError{
		Code:     ErrCodeEventAfterTerminal,
		Message:  fmt.Sprintf("event delivered after feedback became %s", fb.result),
		Feedback: uint32(fb.ID()),
		Event:    event,
	}
}

func newReleasedViolation(fb *Feedback, event string) *ViolationError {
	return &ViolationError{
		Code:     ErrCodeUseAfterRelease,
		Message:  "event delivered after feedback was destroyed",
		Feedback: uint32(fb.ID()),
		Event:    event,
	}
}
