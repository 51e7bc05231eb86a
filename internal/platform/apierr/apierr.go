// Package apierr defines the typed error taxonomy shared by the process
// manager and command executor, so callers can classify failures with
// errors.As/errors.Is instead of matching on message text.
package apierr

import (
	"errors"
	"fmt"
)

// Kind distinguishes the error categories a caller needs to branch on.
type Kind string

const (
	KindValue            Kind = "value_error"
	KindPermission       Kind = "permission_error"
	KindCommandExecution Kind = "command_execution_error"
	KindCommandTimeout   Kind = "command_timeout_error"
	KindProcessNotFound  Kind = "process_not_found"
	KindProcessControl   Kind = "process_control_error"
	KindProcessClean     Kind = "process_clean_error"
	KindOutputRetrieval  Kind = "output_retrieval_error"
	KindStorage          Kind = "storage_error"
)

// Error is the concrete type behind every error this module returns across
// package boundaries. Kind is stable and meant to be switched on; Message is
// human-readable; Cause, if set, is the underlying error (e.g. an os.*
// failure) and participates in errors.Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, apierr.New(apierr.KindProcessNotFound, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func ValueError(format string, args ...any) *Error {
	return New(KindValue, fmt.Sprintf(format, args...))
}

func PermissionError(cause error, format string, args ...any) *Error {
	return Wrap(KindPermission, fmt.Sprintf(format, args...), cause)
}

func CommandExecutionError(cause error, format string, args ...any) *Error {
	return Wrap(KindCommandExecution, fmt.Sprintf(format, args...), cause)
}

func CommandTimeoutError(format string, args ...any) *Error {
	return New(KindCommandTimeout, fmt.Sprintf(format, args...))
}

func ProcessNotFoundError(id string) *Error {
	return New(KindProcessNotFound, fmt.Sprintf("process not found: %s", id))
}

func ProcessControlError(format string, args ...any) *Error {
	return New(KindProcessControl, fmt.Sprintf(format, args...))
}

func ProcessCleanError(format string, args ...any) *Error {
	return New(KindProcessClean, fmt.Sprintf(format, args...))
}

func OutputRetrievalError(cause error, format string, args ...any) *Error {
	return Wrap(KindOutputRetrieval, fmt.Sprintf(format, args...), cause)
}

func StorageError(cause error, format string, args ...any) *Error {
	return Wrap(KindStorage, fmt.Sprintf(format, args...), cause)
}

// Is reports whether err carries the given Kind at any point in its chain.
func Is(err error, kind Kind) bool {
	return errors.Is(err, New(kind, ""))
}
