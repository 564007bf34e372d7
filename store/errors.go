package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record id is not present.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateID indicates an append with an id that is already present.
type ErrDuplicateID struct {
	ID uint64
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("duplicate id: %d", e.ID)
}

// ErrSchemaMismatch indicates that an existing file disagrees with the
// caller's expectations at open time.
type ErrSchemaMismatch struct {
	Field    string
	Expected string
	Actual   string
}

func (e *ErrSchemaMismatch) Error() string {
	return fmt.Sprintf("schema mismatch: %s: file has %s, caller expects %s", e.Field, e.Actual, e.Expected)
}

// ErrCorrupt indicates that the file failed a self-consistency check.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrCorrupt struct {
	Reason string
	cause  error
}

func (e *ErrCorrupt) Error() string {
	return fmt.Sprintf("storage corrupted: %s", e.Reason)
}

func (e *ErrCorrupt) Unwrap() error { return e.cause }

func corrupt(format string, args ...any) error {
	return &ErrCorrupt{Reason: fmt.Sprintf(format, args...)}
}

func corruptCause(cause error, format string, args ...any) error {
	return &ErrCorrupt{Reason: fmt.Sprintf(format, args...), cause: cause}
}
