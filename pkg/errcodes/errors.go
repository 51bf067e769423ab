package errcodes

import (
	"fmt"

	"github.com/pkg/errors"
)

// Codes for every error the storage engine can surface. Callers should
// branch on these via Code(), not on message text.
const (
	CodeBusy         = "busy"
	CodeConflict     = "conflict"
	CodeConstraint   = "constraint"
	CodeInvalidKey   = "invalid_key"
	CodeNoSuchFormat = "no_such_format"
	CodeNotFound     = "not_found"
	CodePathTooLong  = "path_too_long"
)

type Error struct {
	Code    string
	Message string
}

func (err *Error) Error() string {
	return err.Message
}

func (err *Error) As(target interface{}) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	te.Code = err.Code
	te.Message = err.Message
	return true
}

func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.Code == err.Code
}

// Code extracts the error code from err, or returns "" if err does not wrap
// an *Error.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Busy returns an error indicating lock contention that outlasted the busy
// timeout. Retryable by the caller after a backoff.
func Busy(op string) error {
	return &Error{
		CodeBusy,
		op + " timed out waiting for the database lock.",
	}
}

// Constraint returns an error for a uniqueness or foreign-key violation.
func Constraint(detail string) error {
	return &Error{
		CodeConstraint,
		detail,
	}
}

// Conflict returns an error for a duplicate custom column label.
func Conflict(label string) error {
	return &Error{
		CodeConflict,
		fmt.Sprintf("Custom column %q already exists.", label),
	}
}

// NoSuchFormat indicates metadata references a format file that is absent
// from disk.
func NoSuchFormat(recordID int64, format string) error {
	return &Error{
		CodeNoSuchFormat,
		fmt.Sprintf("Record %d has no %s file on disk.", recordID, format),
	}
}

// InvalidKey returns an error for a malformed preference key or namespace.
func InvalidKey(msg string) error {
	return &Error{
		CodeInvalidKey,
		msg,
	}
}

// PathTooLong indicates the platform path-length budget was exceeded.
func PathTooLong(limit int) error {
	return &Error{
		CodePathTooLong,
		fmt.Sprintf("Path to library too long. Must be less than %d characters.", limit),
	}
}

// NotFound returns an error with a message indicating the given resource.
func NotFound(resource string) error {
	return &Error{
		CodeNotFound,
		resource + " not found.",
	}
}
