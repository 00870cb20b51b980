package engine

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindScenarioNotFound    Kind = "scenario_not_found"
	KindUserNotFound        Kind = "user_not_found"
	KindSessionNotFound     Kind = "session_not_found"
	KindSessionAlreadyEnded Kind = "session_already_ended"
	KindInvalidTransition   Kind = "invalid_transition"
	KindInvalidReason       Kind = "invalid_reason"
	KindUnknownMedication   Kind = "unknown_medication"
	KindInvalidDose         Kind = "invalid_dose"
	KindDoseOutOfRange      Kind = "dose_out_of_range"
	KindInternal            Kind = "internal"
)

// Error is the typed failure returned by every engine operation.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same Kind, so the sentinels below work with
// errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrScenarioNotFound    = &Error{Kind: KindScenarioNotFound}
	ErrUserNotFound        = &Error{Kind: KindUserNotFound}
	ErrSessionNotFound     = &Error{Kind: KindSessionNotFound}
	ErrSessionAlreadyEnded = &Error{Kind: KindSessionAlreadyEnded}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition}
	ErrInvalidReason       = &Error{Kind: KindInvalidReason}
	ErrUnknownMedication   = &Error{Kind: KindUnknownMedication}
	ErrInvalidDose         = &Error{Kind: KindInvalidDose}
	ErrDoseOutOfRange      = &Error{Kind: KindDoseOutOfRange}
)

func newError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the Kind carried by err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
