package vdb

import (
	"errors"
	"fmt"

	"github.com/syuya2036/vdb/distance"
	"github.com/syuya2036/vdb/store"
)

var (
	// ErrNotFound is returned when an id is not in the database.
	ErrNotFound = errors.New("not found")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrDuplicateID indicates that the id is already stored.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDuplicateID struct {
	ID    uint64
	cause error
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("duplicate id: %d", e.ID)
}

func (e *ErrDuplicateID) Unwrap() error { return e.cause }

// ErrSchemaMismatch indicates that the file on disk was created with
// different parameters than the ones requested at Open.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrSchemaMismatch struct {
	Field    string
	Expected string
	Actual   string
	cause    error
}

func (e *ErrSchemaMismatch) Error() string {
	return fmt.Sprintf("schema mismatch: %s: file has %s, requested %s", e.Field, e.Actual, e.Expected)
}

func (e *ErrSchemaMismatch) Unwrap() error { return e.cause }

// ErrCorrupt indicates that the database file failed an integrity check.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrCorrupt struct {
	Reason string
	cause  error
}

func (e *ErrCorrupt) Error() string {
	return fmt.Sprintf("corrupt database: %s", e.Reason)
}

func (e *ErrCorrupt) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var dup *store.ErrDuplicateID
	if errors.As(err, &dup) {
		return &ErrDuplicateID{ID: dup.ID, cause: err}
	}

	var dm *distance.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	var sm *store.ErrSchemaMismatch
	if errors.As(err, &sm) {
		return &ErrSchemaMismatch{Field: sm.Field, Expected: sm.Expected, Actual: sm.Actual, cause: err}
	}

	var cr *store.ErrCorrupt
	if errors.As(err, &cr) {
		return &ErrCorrupt{Reason: cr.Reason, cause: err}
	}

	return err
}
