// Package recstore implements the record-storage subsystem: named stores
// of key/opaque-byte records kept in an embedded key-value engine. Records
// larger than the engine's per-entry limit are transparently segmented
// across a subordinate container and reassembled on read.
package recstore

import (
	"path/filepath"
	"strings"
)

// Mode is the open mode of a store.
type Mode uint8

const (
	ReadOnly  Mode = 0
	ReadWrite Mode = 1
)

func (m Mode) String() string {
	if m == ReadOnly {
		return "read-only"
	}
	return "read-write"
}

// Direction selects where Sequence moves the cursor.
type Direction int

const (
	Next Direction = iota
	Previous
)

// RecordStore is the facade over one named store of logical records.
// Implementations own their backends exclusively; a store handle must not
// be copied or shared between goroutines.
type RecordStore interface {
	Name() string
	Description() string

	// Insert stores a new record. Fails with ErrAlreadyExists when the
	// key is present.
	Insert(key string, data []byte) error

	// Replace overwrites an existing record. Fails with ErrNotFound
	// when the key is absent.
	Replace(key string, data []byte) error

	Remove(key string) error
	Read(key string) ([]byte, error)

	// Length reports the logical byte length of a record without
	// necessarily reading its payload.
	Length(key string) (uint64, error)

	// Count reports the number of logical records in the store.
	Count() (uint64, error)

	// Sequence advances the cursor and returns the record it lands on.
	// ErrEndOfSequence when the traversal is exhausted.
	Sequence(dir Direction) (string, []byte, error)

	// SetCursorAtKey marks key as last visited, so the next
	// Sequence(Next) returns the record after it.
	SetCursorAtKey(key string) error

	// ResetCursor returns the cursor to its initial unpositioned state.
	ResetCursor()

	// Flush forces buffered state for one key's entries to durable
	// storage.
	Flush(key string) error

	// Sync forces durable write of the whole store.
	Sync() error

	// GetSpaceUsed reports the on-disk footprint of the store.
	// Approximate.
	GetSpaceUsed() (uint64, error)

	// ChangeName renames the backing location. The empty name detaches
	// the store from disk: it keeps operating purely in memory.
	ChangeName(newName string) error

	Close() error
}

// validateKey rejects empty keys and keys with control characters. The
// unit separator used for segment keys sits in the control range, so a
// valid key can never collide with a derived segment key.
func validateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x20 || key[i] == 0x7f {
			return ErrInvalidKey
		}
	}
	return nil
}

// validateStoreName rejects names that would escape the parent directory.
func validateStoreName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidKey
	}
	if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') {
		return ErrInvalidKey
	}
	return nil
}
