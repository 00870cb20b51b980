package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/g960059/ehrsim/internal/api"
	"github.com/g960059/ehrsim/internal/db"
	"github.com/g960059/ehrsim/internal/engine"
	"github.com/g960059/ehrsim/internal/model"
)

// Error is a boundary failure with a stable code, a user-facing message and
// the HTTP status transports should answer with.
type Error struct {
	Code    string
	Message string
	Status  int
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) APIError() api.APIError {
	return api.APIError{Code: e.Code, Message: e.Message}
}

func invalid(message string) *Error {
	return &Error{Code: model.ErrCodeInvalidRequest, Message: message, Status: http.StatusBadRequest}
}

// AsError converts any error into an *Error. Engine kinds and store sentinels
// get their stable codes; everything else is internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	var engErr *engine.Error
	if errors.As(err, &engErr) {
		return fromEngine(engErr)
	}

	switch {
	case errors.Is(err, db.ErrDuplicate):
		return &Error{Code: model.ErrCodeDuplicate, Message: "Username or email already exists", Status: http.StatusConflict, Cause: err}
	case errors.Is(err, db.ErrInUse):
		return &Error{Code: model.ErrCodeScenarioInUse, Message: "Scenario is referenced by recorded sessions", Status: http.StatusConflict, Cause: err}
	case errors.Is(err, db.ErrForbidden):
		return &Error{Code: model.ErrCodeForbidden, Message: "You do not have permission to delete this note", Status: http.StatusForbidden, Cause: err}
	}
	return &Error{Code: model.ErrCodeInternal, Message: "Internal error", Status: http.StatusInternalServerError, Cause: err}
}

func fromEngine(e *engine.Error) *Error {
	out := &Error{Cause: e}
	switch e.Kind {
	case engine.KindScenarioNotFound:
		out.Code, out.Message, out.Status = model.ErrCodeScenarioNotFound, "Scenario not found", http.StatusNotFound
	case engine.KindUserNotFound:
		out.Code, out.Message, out.Status = model.ErrCodeUserNotFound, "User not found", http.StatusNotFound
	case engine.KindSessionNotFound:
		out.Code, out.Message, out.Status = model.ErrCodeSessionNotFound, "Session not found", http.StatusNotFound
	case engine.KindSessionAlreadyEnded:
		out.Code, out.Message, out.Status = model.ErrCodeSessionAlreadyEnded, "Session has already ended", http.StatusConflict
	case engine.KindInvalidTransition:
		out.Code, out.Message, out.Status = model.ErrCodeInvalidTransition, e.Message, http.StatusConflict
	case engine.KindInvalidReason:
		out.Code, out.Message, out.Status = model.ErrCodeInvalidReason, "Invalid completion reason", http.StatusBadRequest
	case engine.KindUnknownMedication:
		out.Code, out.Message, out.Status = model.ErrCodeUnknownMedication, "Unknown medication", http.StatusBadRequest
	case engine.KindInvalidDose:
		out.Code, out.Message, out.Status = model.ErrCodeInvalidDose, "Dose must be a finite number", http.StatusBadRequest
	case engine.KindDoseOutOfRange:
		out.Code, out.Message, out.Status = model.ErrCodeDoseOutOfRange, e.Message, http.StatusBadRequest
	default:
		out.Code, out.Message, out.Status = model.ErrCodeInternal, "Internal error", http.StatusInternalServerError
	}
	if out.Message == "" {
		out.Message = string(e.Kind)
	}
	return out
}
