package recstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"recstore/internal/backend"
	"recstore/internal/properties"
)

const (
	primaryDirName     = "primary.db"
	subordinateDirName = "subordinate.db"
	ControlFileName    = "control.prop"

	propName        = "Name"
	propDescription = "Description"
	propID          = "Id"
	propCreated     = "Created"
	propType        = "Type"

	storeTypeBadger = "badger"
)

// DBRecordStore is the database-backed RecordStore. One logical record
// maps to a primary entry (the value itself, or a segment header) plus
// zero or more subordinate segment entries.
//
// A DBRecordStore owns its two backends exclusively and must not be
// copied; duplicate handles to the same backing location would break the
// single-writer model.
type DBRecordStore struct {
	name        string
	description string
	parentDir   string // empty once detached from disk
	mode        Mode

	primary     backend.Backend
	subordinate backend.Backend
	seg         segmentIO
	control     *properties.Properties
	cur         cursor

	logger *zap.Logger
	sugar  *zap.SugaredLogger
}

var _ RecordStore = (*DBRecordStore)(nil)

// NewDBRecordStore creates a new store under parentDir and opens it
// read-write. Fails with ErrAlreadyExists when a store of that name is
// already present at that location.
func NewDBRecordStore(name, description, parentDir string, logger *zap.Logger) (*DBRecordStore, error) {
	if err := validateStoreName(name); err != nil {
		return nil, err
	}

	dir := filepath.Join(parentDir, name)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("store %q at %s: %w", name, parentDir, ErrAlreadyExists)
	} else if !os.IsNotExist(err) {
		return nil, storageErr("stat store dir", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, storageErr("create store dir", err)
	}

	control := properties.New()
	control.Set(propName, name)
	control.Set(propDescription, description)
	control.Set(propID, uuid.NewString())
	control.Set(propCreated, time.Now().Format(time.RFC3339))
	control.Set(propType, storeTypeBadger)
	if err := control.Save(filepath.Join(dir, ControlFileName)); err != nil {
		_ = os.RemoveAll(dir)
		return nil, storageErr("write control file", err)
	}

	s, err := openStore(name, description, parentDir, ReadWrite, control, logger)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	s.sugar.Infow("store created", "name", name, "dir", dir)
	return s, nil
}

// OpenDBRecordStore opens an existing store. Fails with ErrNotFound when
// no store of that name exists under parentDir.
func OpenDBRecordStore(name, parentDir string, mode Mode, logger *zap.Logger) (*DBRecordStore, error) {
	if err := validateStoreName(name); err != nil {
		return nil, err
	}

	dir := filepath.Join(parentDir, name)
	control, err := properties.Load(filepath.Join(dir, ControlFileName))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("store %q at %s: %w", name, parentDir, ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("read control file", err)
	}

	s, err := openStore(name, control.GetDefault(propDescription, ""), parentDir, mode, control, logger)
	if err != nil {
		return nil, err
	}
	s.sugar.Debugw("store opened", "name", name, "mode", mode.String())
	return s, nil
}

func openStore(name, description, parentDir string, mode Mode, control *properties.Properties, logger *zap.Logger) (*DBRecordStore, error) {
	dir := filepath.Join(parentDir, name)
	conf := backend.BadgerConfig{ReadOnly: mode == ReadOnly}

	primary, err := backend.OpenBadger(filepath.Join(dir, primaryDirName), conf, logger)
	if err != nil {
		return nil, storageErr("open primary", err)
	}
	subordinate, err := backend.OpenBadger(filepath.Join(dir, subordinateDirName), conf, logger)
	if err != nil {
		_ = primary.Close()
		return nil, storageErr("open subordinate", err)
	}

	return &DBRecordStore{
		name:        name,
		description: description,
		parentDir:   parentDir,
		mode:        mode,
		primary:     primary,
		subordinate: subordinate,
		seg:         newSegmentIO(primary, subordinate, logger),
		control:     control,
		logger:      logger,
		sugar:       logger.Sugar(),
	}, nil
}

func (s *DBRecordStore) Name() string {
	return s.name
}

func (s *DBRecordStore) Description() string {
	return s.description
}

func (s *DBRecordStore) Mode() Mode {
	return s.mode
}

// Detached reports whether the store has no backing location.
func (s *DBRecordStore) Detached() bool {
	return s.parentDir == ""
}

func (s *DBRecordStore) dir() string {
	return filepath.Join(s.parentDir, s.name)
}

func (s *DBRecordStore) writable() error {
	if s.mode != ReadWrite {
		return ErrReadOnly
	}
	return nil
}

func (s *DBRecordStore) Insert(key string, data []byte) error {
	if err := s.writable(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}

	_, err := s.primary.Get([]byte(key))
	if err == nil {
		return fmt.Errorf("key %q: %w", key, ErrAlreadyExists)
	}
	if !errors.Is(err, backend.ErrKeyNotFound) {
		return storageErr("read primary", err)
	}

	if err := s.seg.write(key, data); err != nil {
		return err
	}
	s.sugar.Debugw("insert", "key", key, "length", len(data))
	return nil
}

func (s *DBRecordStore) Replace(key string, data []byte) error {
	if err := s.writable(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}

	if err := s.seg.remove(key); err != nil {
		return err
	}
	if err := s.seg.write(key, data); err != nil {
		return err
	}
	s.sugar.Debugw("replace", "key", key, "length", len(data))
	return nil
}

func (s *DBRecordStore) Remove(key string) error {
	if err := s.writable(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}

	if err := s.seg.remove(key); err != nil {
		return err
	}
	s.sugar.Debugw("remove", "key", key)
	return nil
}

func (s *DBRecordStore) Read(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return s.seg.read(key)
}

func (s *DBRecordStore) Length(key string) (uint64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	return s.seg.length(key)
}

// Count walks the primary key order. Segment entries live in the
// subordinate container, so every primary key is one logical record.
func (s *DBRecordStore) Count() (uint64, error) {
	var n uint64
	key, _, err := s.primary.SeekFirst()
	for err == nil {
		n++
		key, _, err = s.primary.SeekAfter(key)
	}
	if !errors.Is(err, backend.ErrExhausted) {
		return 0, storageErr("count", err)
	}
	return n, nil
}

func (s *DBRecordStore) Sequence(dir Direction) (string, []byte, error) {
	if dir != Next && dir != Previous {
		return "", nil, fmt.Errorf("sequence: unknown direction %d", dir)
	}

	var key, value []byte
	var err error
	switch s.cur.state {
	case cursorExhausted:
		return "", nil, ErrEndOfSequence
	case cursorUnpositioned:
		if dir == Previous {
			key, value, err = s.primary.SeekLast()
		} else {
			key, value, err = s.primary.SeekFirst()
		}
	case cursorAt:
		if dir == Previous {
			key, value, err = s.primary.SeekBefore([]byte(s.cur.key))
		} else {
			key, value, err = s.primary.SeekAfter([]byte(s.cur.key))
		}
	}
	if errors.Is(err, backend.ErrExhausted) {
		s.cur.exhaust()
		return "", nil, ErrEndOfSequence
	}
	if err != nil {
		return "", nil, storageErr("sequence", err)
	}

	data, err := s.seg.assemble(string(key), value)
	if err != nil {
		return "", nil, err
	}
	s.cur.positionAt(string(key))
	return string(key), data, nil
}

func (s *DBRecordStore) SetCursorAtKey(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := s.primary.Get([]byte(key))
	if errors.Is(err, backend.ErrKeyNotFound) {
		return fmt.Errorf("key %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return storageErr("read primary", err)
	}
	s.cur.positionAt(key)
	return nil
}

func (s *DBRecordStore) ResetCursor() {
	s.cur.reset()
}

// Flush validates the key and forces both backends down to storage. The
// backends buffer per store, not per key, so this is as fine-grained as
// flushing gets.
func (s *DBRecordStore) Flush(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := s.primary.Get([]byte(key))
	if errors.Is(err, backend.ErrKeyNotFound) {
		return fmt.Errorf("key %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return storageErr("read primary", err)
	}
	if s.mode == ReadOnly || s.Detached() {
		return nil
	}
	return s.syncBackends()
}

func (s *DBRecordStore) Sync() error {
	if s.mode == ReadOnly || s.Detached() {
		return ErrReadOnly
	}
	return s.syncBackends()
}

func (s *DBRecordStore) syncBackends() error {
	err := multierr.Combine(s.primary.Sync(), s.subordinate.Sync())
	if err != nil {
		return storageErr("sync", err)
	}
	return nil
}

func (s *DBRecordStore) GetSpaceUsed() (uint64, error) {
	p, err := s.primary.BytesUsed()
	if err != nil {
		return 0, storageErr("primary space", err)
	}
	sub, err := s.subordinate.BytesUsed()
	if err != nil {
		return 0, storageErr("subordinate space", err)
	}
	total := p + sub
	if !s.Detached() {
		if fi, err := os.Stat(filepath.Join(s.dir(), ControlFileName)); err == nil {
			total += uint64(fi.Size())
		}
	}
	return total, nil
}

// ChangeName renames the backing location of both containers. The empty
// name detaches the store: every entry is copied into memory backends and
// the handle keeps working without any disk footprint; the old on-disk
// store is left as it was.
func (s *DBRecordStore) ChangeName(newName string) error {
	if err := s.writable(); err != nil {
		return err
	}
	if newName == "" {
		return s.detach()
	}
	if s.Detached() {
		return ErrReadOnly
	}
	if err := validateStoreName(newName); err != nil {
		return err
	}
	if newName == s.name {
		return nil
	}

	newDir := filepath.Join(s.parentDir, newName)
	if _, err := os.Stat(newDir); err == nil {
		return fmt.Errorf("store %q at %s: %w", newName, s.parentDir, ErrAlreadyExists)
	} else if !os.IsNotExist(err) {
		return storageErr("stat new store dir", err)
	}

	// both backends must release their files before the directory moves
	if err := multierr.Combine(s.primary.Close(), s.subordinate.Close()); err != nil {
		return storageErr("close backends", err)
	}
	if err := os.Rename(s.dir(), newDir); err != nil {
		return storageErr("rename store dir", err)
	}

	oldName := s.name
	s.name = newName
	s.control.Set(propName, newName)
	if err := s.control.Save(filepath.Join(newDir, ControlFileName)); err != nil {
		return storageErr("write control file", err)
	}

	conf := backend.BadgerConfig{}
	primary, err := backend.OpenBadger(filepath.Join(newDir, primaryDirName), conf, s.logger)
	if err != nil {
		return storageErr("reopen primary", err)
	}
	subordinate, err := backend.OpenBadger(filepath.Join(newDir, subordinateDirName), conf, s.logger)
	if err != nil {
		_ = primary.Close()
		return storageErr("reopen subordinate", err)
	}
	s.primary = primary
	s.subordinate = subordinate
	s.seg = newSegmentIO(primary, subordinate, s.logger)

	s.sugar.Infow("store renamed", "from", oldName, "to", newName)
	return nil
}

func (s *DBRecordStore) detach() error {
	if s.Detached() {
		return nil
	}

	primary, err := copyToMemory(s.primary)
	if err != nil {
		return err
	}
	subordinate, err := copyToMemory(s.subordinate)
	if err != nil {
		return err
	}

	if err := multierr.Combine(s.primary.Close(), s.subordinate.Close()); err != nil {
		s.sugar.Errorw("close disk backends on detach", "err", err)
	}
	s.primary = primary
	s.subordinate = subordinate
	s.seg = newSegmentIO(primary, subordinate, s.logger)
	s.parentDir = ""

	s.sugar.Infow("store detached", "name", s.name)
	return nil
}

func copyToMemory(src backend.Backend) (*backend.Memory, error) {
	dst := backend.NewMemory(src.MaxValueSize())
	key, value, err := src.SeekFirst()
	for err == nil {
		if perr := dst.Put(key, value); perr != nil {
			return nil, storageErr("copy entry", perr)
		}
		key, value, err = src.SeekAfter(key)
	}
	if !errors.Is(err, backend.ErrExhausted) {
		return nil, storageErr("copy backend", err)
	}
	return dst, nil
}

// Close releases both backend handles. The store is unusable afterwards.
func (s *DBRecordStore) Close() error {
	err := multierr.Combine(s.primary.Close(), s.subordinate.Close())
	if err != nil {
		return storageErr("close", err)
	}
	return nil
}
