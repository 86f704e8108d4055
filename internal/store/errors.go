package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound reports a lookup for a row that does not exist.
var ErrNotFound = errors.New("not found")

// ErrIntegrity reports a write that would break a model invariant. The
// write is rejected before commit; it never persists.
var ErrIntegrity = errors.New("integrity violation")

// TransactionError wraps a storage-layer failure of a unit of work. The
// whole transaction was rolled back. Retryable is true for transient lock
// contention; callers retry those a bounded number of times.
type TransactionError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// integrityf builds an ErrIntegrity with detail.
func integrityf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIntegrity, fmt.Sprintf(format, args...))
}

// isBusy reports whether err looks like SQLite lock contention.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
