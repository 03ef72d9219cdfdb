package recstore

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyExists - creating a store or inserting a key that is
	// already present.
	ErrAlreadyExists = errors.New("object already exists")

	// ErrNotFound - opening a missing store or addressing an absent key.
	ErrNotFound = errors.New("object does not exist")

	// ErrReadOnly - mutating call on a read-only store, or a durability
	// call on a store with no backing location.
	ErrReadOnly = errors.New("store is read-only")

	// ErrEndOfSequence - sequencing past the last record.
	ErrEndOfSequence = errors.New("end of sequence")

	// ErrCorruption - a segment header disagrees with the subordinate
	// entries it references.
	ErrCorruption = errors.New("record is corrupt")

	// ErrInvalidKey - empty key or key containing control characters.
	ErrInvalidKey = errors.New("invalid key")
)

// StorageError wraps a backend diagnostic so callers never match on
// backend-specific error types.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
