package repository

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// invalidTextRepresentation is raised when an id is not a valid uuid.
const invalidTextRepresentation = "22P02"

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrCorruptRecord marks a stored row that could not be decoded. Retrying
// will not help.
var ErrCorruptRecord = errors.New("corrupt record")

func corrupt(what string, err error) error {
	return fmt.Errorf("%w: decode %s: %v", ErrCorruptRecord, what, err)
}

// UnavailableError reports that the backing store could not serve the operation.
// Callers may retry it.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: store unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Retryable marks the error as transient.
func (e *UnavailableError) Retryable() bool {
	return true
}

// Unavailable wraps err as a retryable store failure.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Op: op, Err: err}
}

// IsRetryable reports whether err is a store failure worth retrying.
func IsRetryable(err error) bool {
	var u *UnavailableError
	return errors.As(err, &u)
}

func dbError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) || isMalformedID(err) {
		return ErrNotFound
	}
	if errors.Is(err, ErrCorruptRecord) {
		return errors.Wrap(err, op)
	}
	return Unavailable(op, err)
}

// isMalformedID reports whether Postgres rejected an id that cannot name any row.
func isMalformedID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == invalidTextRepresentation
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}
