package gamification

import (
	"errors"
	"fmt"
)

// The award engine classifies every failure into one of six kinds. Retryable
// errors restart the read-compute-write cycle; the rest either abort before
// any mutation (backup) or roll the record back to its pre-transaction state.

// ValidationError reports an invariant violation in a gamification record or
// a programming error such as a negative award amount. Never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation: " + e.Msg }

// DatabaseError wraps a record-store I/O failure. Retryable.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string { return fmt.Sprintf("database %s: %v", e.Op, e.Err) }
func (e *DatabaseError) Unwrap() error { return e.Err }

// ConcurrencyError indicates either the in-process guard rejected a second
// transaction for the same user, or the store-level conditional write found
// the record changed since it was read. Retryable.
type ConcurrencyError struct {
	UserID uint
	Reason string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency conflict for user %d: %s", e.UserID, e.Reason)
}

// BackupError means the pre-mutation snapshot could not be created. The
// transaction aborts before touching the record; nothing to roll back.
type BackupError struct {
	Err error
}

func (e *BackupError) Error() string { return fmt.Sprintf("backup: %v", e.Err) }
func (e *BackupError) Unwrap() error { return e.Err }

// RecoveryError means a rollback from backup itself failed. The record may be
// in an inconsistent state; this must be surfaced loudly, never swallowed.
type RecoveryError struct {
	UserID uint
	Cause  error
	Err    error
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("rollback failed for user %d: %v (while recovering from: %v)", e.UserID, e.Err, e.Cause)
}

func (e *RecoveryError) Unwrap() error { return e.Err }

// RetryExhaustedError is the terminal error after the bounded retry loop ran
// out of attempts. It carries the last underlying error.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// ErrUserNotFound is returned by record stores when the user id does not
// exist. Wrapped in a DatabaseError by store implementations but kept as a
// sentinel so callers can distinguish missing users from transient failures.
var ErrUserNotFound = errors.New("user not found")

// IsRetryable reports whether the engine should re-read and recompute after
// this error. Only store I/O failures and concurrency conflicts qualify.
func IsRetryable(err error) bool {
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return !errors.Is(err, ErrUserNotFound)
	}
	var conflict *ConcurrencyError
	return errors.As(err, &conflict)
}
