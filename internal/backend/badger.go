package backend

import (
	"bytes"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v2"
	"github.com/dgraph-io/badger/v2/options"
	"go.uber.org/zap"
)

// DefaultMaxValueSize is the per-entry value cap enforced on the badger
// backend. Records above this size must be segmented by the caller.
const DefaultMaxValueSize = 64 << 10

// BadgerConfig carries the tunables for one badger-backed container.
type BadgerConfig struct {
	ReadOnly     bool
	SyncWrites   bool
	MaxValueSize int // 0 means DefaultMaxValueSize
}

// BadgerBackend implements Backend on top of a badger v2 database.
type BadgerBackend struct {
	db           *badger.DB
	path         string
	maxValueSize int
	sugar        *zap.SugaredLogger
}

var _ Backend = (*BadgerBackend)(nil)

// OpenBadger opens (creating if absent and not read-only) a badger database
// at path. FileIO loading modes keep the mmap footprint small; badger's own
// logger is silenced in favor of ours.
func OpenBadger(path string, conf BadgerConfig, logger *zap.Logger) (*BadgerBackend, error) {
	if conf.MaxValueSize <= 0 {
		conf.MaxValueSize = DefaultMaxValueSize
	}

	if !conf.ReadOnly {
		// badger v2 does not create parent directories itself
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("create backend dir: %w", err)
		}
	}

	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithReadOnly(conf.ReadOnly).
		WithSyncWrites(conf.SyncWrites).
		WithNumCompactors(2)
	opts.TableLoadingMode = options.FileIO
	opts.ValueLogLoadingMode = options.FileIO

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}

	return &BadgerBackend{
		db:           db,
		path:         path,
		maxValueSize: conf.MaxValueSize,
		sugar:        logger.Sugar(),
	}, nil
}

func (b *BadgerBackend) Get(key []byte) ([]byte, error) {
	if b.db == nil {
		return nil, ErrClosed
	}

	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (b *BadgerBackend) Put(key, value []byte) error {
	if b.db == nil {
		return ErrClosed
	}
	if len(value) > b.maxValueSize {
		return ErrValueTooLarge
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (b *BadgerBackend) Delete(key []byte) error {
	if b.db == nil {
		return ErrClosed
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		// badger deletes of absent keys succeed silently; the contract
		// wants NotFound, so probe first inside the same txn
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if err == badger.ErrKeyNotFound {
		return ErrKeyNotFound
	}
	return err
}

func (b *BadgerBackend) SeekFirst() ([]byte, []byte, error) {
	return b.seek(nil, false)
}

func (b *BadgerBackend) SeekAfter(key []byte) ([]byte, []byte, error) {
	return b.seek(key, false)
}

func (b *BadgerBackend) SeekLast() ([]byte, []byte, error) {
	return b.seek(nil, true)
}

func (b *BadgerBackend) SeekBefore(key []byte) ([]byte, []byte, error) {
	return b.seek(key, true)
}

// seek positions a fresh iterator and returns the first entry strictly
// after (or, reversed, strictly before) the given key. A nil key means
// the first (or last) entry.
func (b *BadgerBackend) seek(key []byte, reverse bool) ([]byte, []byte, error) {
	if b.db == nil {
		return nil, nil, ErrClosed
	}

	var outKey, outVal []byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		if key == nil {
			it.Rewind()
		} else {
			// forward Seek lands on the first key >= key, reverse
			// Seek on the last key <= key; step over an exact hit
			it.Seek(key)
			if it.Valid() && bytes.Equal(it.Item().Key(), key) {
				it.Next()
			}
		}
		if !it.Valid() {
			return ErrExhausted
		}

		item := it.Item()
		outKey = item.KeyCopy(nil)
		var err error
		outVal, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return outKey, outVal, nil
}

func (b *BadgerBackend) Sync() error {
	if b.db == nil {
		return ErrClosed
	}
	return b.db.Sync()
}

func (b *BadgerBackend) BytesUsed() (uint64, error) {
	if b.db == nil {
		return 0, ErrClosed
	}
	lsm, vlog := b.db.Size()
	return uint64(lsm) + uint64(vlog), nil
}

func (b *BadgerBackend) MaxValueSize() int {
	return b.maxValueSize
}

func (b *BadgerBackend) Close() error {
	if b.db == nil {
		return nil
	}
	db := b.db
	b.db = nil
	if err := db.Close(); err != nil {
		b.sugar.Errorw("close badger", "path", b.path, "err", err)
		return err
	}
	return nil
}
