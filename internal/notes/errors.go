package notes

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOpen indicates an operation attempted before the store is available.
	ErrNotOpen = errors.New("notes: store not open")
	// ErrNotFound indicates an absent note, prompt or asset.
	ErrNotFound = errors.New("notes: record not found")
	// ErrDecode indicates stored content that cannot be parsed back into prompts.
	ErrDecode = errors.New("notes: cannot decode stored content")
	// ErrUnknownRole indicates a content role with no registered decoder.
	ErrUnknownRole = errors.New("notes: unknown content role")
	// ErrNotWritable indicates a store opened read-only.
	ErrNotWritable = errors.New("notes: store not writable")
	// ErrNoIdentity indicates that no device identifier could be established.
	ErrNoIdentity = errors.New("notes: device identity unavailable")
	// ErrMergeUnavailable indicates that one of the two merge replicas is not open.
	ErrMergeUnavailable = errors.New("notes: merge replica not open")
)

// DatabaseError carries an operation.reason code alongside its cause so
// callers can match on the sentinel with errors.Is while logs keep the
// precise failure site.
type DatabaseError struct {
	code string
	err  error
}

func (e *DatabaseError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *DatabaseError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason code.
func (e *DatabaseError) Code() string {
	return e.code
}

func newDatabaseError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &DatabaseError{code: code, err: cause}
}
