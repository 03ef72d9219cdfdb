package backend

import "errors"

var (
	ErrKeyNotFound   = errors.New("key not found")
	ErrExhausted     = errors.New("no more entries")
	ErrValueTooLarge = errors.New("value exceeds max entry size")
	ErrClosed        = errors.New("backend is closed")
)

// Backend is the contract over one embedded key-value container.
// Entries are ordered by raw key bytes; the seek calls expose that order
// without holding a long-lived iterator, so positioning state stays with
// the caller.
//
// A Backend is owned by exactly one store handle and is not safe for
// concurrent use.
type Backend interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(key []byte) ([]byte, error)

	// Put stores value under key, overwriting any previous value.
	// Values longer than MaxValueSize are rejected with ErrValueTooLarge.
	Put(key, value []byte) error

	// Delete removes the entry under key, or returns ErrKeyNotFound.
	Delete(key []byte) error

	// SeekFirst returns the first entry in key order, or ErrExhausted.
	SeekFirst() (key, value []byte, err error)

	// SeekAfter returns the first entry whose key sorts strictly after
	// the given key, or ErrExhausted. The given key need not exist.
	SeekAfter(key []byte) (k, value []byte, err error)

	// SeekLast returns the last entry in key order, or ErrExhausted.
	SeekLast() (key, value []byte, err error)

	// SeekBefore returns the last entry whose key sorts strictly before
	// the given key, or ErrExhausted. The given key need not exist.
	SeekBefore(key []byte) (k, value []byte, err error)

	// Sync forces all accepted writes to durable storage.
	Sync() error

	// BytesUsed reports the on-disk footprint. Approximate.
	BytesUsed() (uint64, error)

	// MaxValueSize is the largest value Put accepts, in bytes.
	MaxValueSize() int

	Close() error
}
