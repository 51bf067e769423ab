package database

import (
	"strings"

	"github.com/folioreads/folio/pkg/errcodes"
)

// isBusyError checks if an error is a SQLITE_BUSY or SQLITE_LOCKED error.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked") ||
		strings.Contains(errStr, "SQLITE_BUSY") ||
		strings.Contains(errStr, "SQLITE_LOCKED") ||
		strings.Contains(errStr, "(5)") ||
		strings.Contains(errStr, "(6)")
}

// isConstraintError checks if an error is a SQLITE_CONSTRAINT error of any
// flavor (unique, foreign key, check, not null).
func isConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "constraint failed") ||
		strings.Contains(errStr, "SQLITE_CONSTRAINT") ||
		strings.Contains(errStr, "(19)") ||
		strings.Contains(errStr, "(1555)") ||
		strings.Contains(errStr, "(2067)")
}

// MapError translates low-level driver errors into the engine's error
// codes. Errors that don't match a known class pass through unchanged.
func MapError(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case isBusyError(err):
		return errcodes.Busy(op)
	case isConstraintError(err):
		return errcodes.Constraint(err.Error())
	default:
		return err
	}
}
