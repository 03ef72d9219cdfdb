package recstore

import (
	"encoding/binary"
	"errors"

	"recstore/internal/backend"
)

// VerifyReport summarizes a consistency walk over both containers.
type VerifyReport struct {
	Records   uint64   // logical records in the primary container
	Segmented uint64   // records stored as header plus segments
	Corrupt   []string // keys whose segments disagree with their header
	Orphans   uint64   // subordinate entries referenced by no header
}

func (r VerifyReport) Clean() bool {
	return len(r.Corrupt) == 0 && r.Orphans == 0
}

// Verify walks every primary record, reassembling segmented ones, then
// sweeps the subordinate container for entries no header references.
// Orphans are expected debris of an interrupted write and are reported,
// not repaired.
func (s *DBRecordStore) Verify() (VerifyReport, error) {
	var report VerifyReport

	key, value, err := s.primary.SeekFirst()
	for err == nil {
		report.Records++
		if _, ok := decodeHeader(value); ok {
			report.Segmented++
		}
		if _, aerr := s.seg.assemble(string(key), value); aerr != nil {
			if !errors.Is(aerr, ErrCorruption) {
				return report, aerr
			}
			report.Corrupt = append(report.Corrupt, string(key))
		}
		key, value, err = s.primary.SeekAfter(key)
	}
	if !errors.Is(err, backend.ErrExhausted) {
		return report, storageErr("verify primary walk", err)
	}

	key, _, err = s.subordinate.SeekFirst()
	for err == nil {
		if !s.segmentReferenced(key) {
			report.Orphans++
		}
		key, _, err = s.subordinate.SeekAfter(key)
	}
	if !errors.Is(err, backend.ErrExhausted) {
		return report, storageErr("verify subordinate walk", err)
	}

	return report, nil
}

// segmentReferenced reports whether a subordinate raw key is covered by a
// primary header. Malformed subordinate keys count as unreferenced.
func (s *DBRecordStore) segmentReferenced(rawKey []byte) bool {
	// layout: logical key, unit separator, 4-byte big-endian index
	if len(rawKey) < 6 || rawKey[len(rawKey)-5] != segmentSep {
		return false
	}
	logical := rawKey[:len(rawKey)-5]
	index := binary.BigEndian.Uint32(rawKey[len(rawKey)-4:])
	if index == 0 {
		return false
	}

	value, err := s.primary.Get(logical)
	if err != nil {
		return false
	}
	header, ok := decodeHeader(value)
	return ok && index <= header.count
}
