package recstore

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"recstore/internal/backend"
)

// A record at most threshold bytes long lives verbatim in the primary
// container. Anything larger is cut into threshold-sized segments stored
// in the subordinate container under derived keys, and the primary entry
// becomes a fixed 16-byte header:
//
//	[0:2]  magic 0xB10E
//	[2]    header version
//	[3]    reserved
//	[4:12] logical length, uint64
//	[12:16] segment count, uint32
//
// All integers big endian. Writing the header last (and deleting it first)
// keeps a crash from ever exposing a header whose segments are missing.
const (
	headerMagic   uint16 = 0xB10E
	headerVersion byte   = 1
	headerSize           = 16

	// unit separator between the logical key and the segment index
	segmentSep byte = 0x1f
)

type segmentHeader struct {
	length uint64
	count  uint32
}

func encodeHeader(h segmentHeader) []byte {
	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint16(buf[0:2], headerMagic)
	buf[2] = headerVersion
	binary.BigEndian.PutUint64(buf[4:12], h.length)
	binary.BigEndian.PutUint32(buf[12:16], h.count)
	return buf
}

// decodeHeader reports whether value is a segment header. Anything that
// does not match the exact layout is an inline record.
func decodeHeader(value []byte) (segmentHeader, bool) {
	if len(value) != headerSize {
		return segmentHeader{}, false
	}
	if binary.BigEndian.Uint16(value[0:2]) != headerMagic || value[2] != headerVersion {
		return segmentHeader{}, false
	}
	h := segmentHeader{
		length: binary.BigEndian.Uint64(value[4:12]),
		count:  binary.BigEndian.Uint32(value[12:16]),
	}
	if h.count == 0 {
		return segmentHeader{}, false
	}
	return h, true
}

// segmentKey derives the subordinate key for one 1-based segment index.
func segmentKey(key string, index uint32) []byte {
	k := make([]byte, 0, len(key)+5)
	k = append(k, key...)
	k = append(k, segmentSep)
	k = binary.BigEndian.AppendUint32(k, index)
	return k
}

// segmentIO splits oversized records across the subordinate container and
// reassembles them. It owns the ordering rules that bound the window of
// inconsistency: segments before header on write, segments after header
// on delete.
type segmentIO struct {
	primary     backend.Backend
	subordinate backend.Backend
	threshold   int
	sugar       *zap.SugaredLogger
}

func newSegmentIO(primary, subordinate backend.Backend, logger *zap.Logger) segmentIO {
	threshold := primary.MaxValueSize()
	if s := subordinate.MaxValueSize(); s < threshold {
		threshold = s
	}
	return segmentIO{
		primary:     primary,
		subordinate: subordinate,
		threshold:   threshold,
		sugar:       logger.Sugar(),
	}
}

// write stores data under key, segmenting when it exceeds the threshold.
// Stale segments from an earlier, larger incarnation of the key are pruned
// first so a shrinking record cannot leave trailing orphans.
func (s *segmentIO) write(key string, data []byte) error {
	if err := s.deleteSegments(key); err != nil {
		return err
	}

	if len(data) <= s.threshold {
		if err := s.primary.Put([]byte(key), data); err != nil {
			return storageErr("write primary", err)
		}
		return nil
	}

	count := uint32((len(data) + s.threshold - 1) / s.threshold)
	for i := uint32(1); i <= count; i++ {
		lo := int(i-1) * s.threshold
		hi := lo + s.threshold
		if hi > len(data) {
			hi = len(data)
		}
		if err := s.subordinate.Put(segmentKey(key, i), data[lo:hi]); err != nil {
			return storageErr(fmt.Sprintf("write segment %d/%d", i, count), err)
		}
	}

	header := encodeHeader(segmentHeader{length: uint64(len(data)), count: count})
	if err := s.primary.Put([]byte(key), header); err != nil {
		return storageErr("write header", err)
	}

	s.sugar.Debugw("segmented write", "key", key, "length", len(data), "segments", count)
	return nil
}

// read returns the full logical value under key.
func (s *segmentIO) read(key string) ([]byte, error) {
	value, err := s.primary.Get([]byte(key))
	if errors.Is(err, backend.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("read primary", err)
	}
	return s.assemble(key, value)
}

// assemble turns a primary entry into the logical value, fetching segments
// when the entry is a header.
func (s *segmentIO) assemble(key string, primaryValue []byte) ([]byte, error) {
	header, ok := decodeHeader(primaryValue)
	if !ok {
		return primaryValue, nil
	}

	data := make([]byte, 0, header.length)
	for i := uint32(1); i <= header.count; i++ {
		seg, err := s.subordinate.Get(segmentKey(key, i))
		if errors.Is(err, backend.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: key %q segment %d of %d missing", ErrCorruption, key, i, header.count)
		}
		if err != nil {
			return nil, storageErr("read segment", err)
		}
		data = append(data, seg...)
	}
	if uint64(len(data)) != header.length {
		return nil, fmt.Errorf("%w: key %q has %d bytes, header declares %d", ErrCorruption, key, len(data), header.length)
	}
	return data, nil
}

// length reports the logical byte length without touching segment payloads.
func (s *segmentIO) length(key string) (uint64, error) {
	value, err := s.primary.Get([]byte(key))
	if errors.Is(err, backend.ErrKeyNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, storageErr("read primary", err)
	}
	if header, ok := decodeHeader(value); ok {
		return header.length, nil
	}
	return uint64(len(value)), nil
}

// remove deletes the record: subordinate segments first, then the primary
// entry. An interrupted remove leaves a header whose read reports
// corruption instead of a silently truncated value.
func (s *segmentIO) remove(key string) error {
	_, err := s.primary.Get([]byte(key))
	if errors.Is(err, backend.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return storageErr("read primary", err)
	}

	if err := s.deleteSegments(key); err != nil {
		return err
	}
	if err := s.primary.Delete([]byte(key)); err != nil {
		return storageErr("delete primary", err)
	}
	return nil
}

// deleteSegments removes every contiguous segment entry for key, present
// or orphaned. Indices are 1-based and contiguous, so the first miss ends
// the run.
func (s *segmentIO) deleteSegments(key string) error {
	var errs error
	for i := uint32(1); ; i++ {
		err := s.subordinate.Delete(segmentKey(key, i))
		if errors.Is(err, backend.ErrKeyNotFound) {
			break
		}
		if err != nil {
			errs = multierr.Append(errs, storageErr(fmt.Sprintf("delete segment %d", i), err))
			break
		}
	}
	return errs
}
