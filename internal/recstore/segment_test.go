package recstore

import (
	"bytes"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"recstore/internal/backend"
)

var (
	once   sync.Once
	logger *zap.Logger
)

func getTestLogger() *zap.Logger {
	once.Do(func() {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			log.Fatal(err)
		}
	})

	return logger
}

const testThreshold = 32

func newTestSegmentIO(t *testing.T) (segmentIO, *backend.Memory, *backend.Memory) {
	t.Helper()
	primary := backend.NewMemory(testThreshold)
	subordinate := backend.NewMemory(testThreshold)
	return newSegmentIO(primary, subordinate, getTestLogger()), primary, subordinate
}

func countEntries(t *testing.T, b backend.Backend) int {
	t.Helper()
	n := 0
	key, _, err := b.SeekFirst()
	for err == nil {
		n++
		key, _, err = b.SeekAfter(key)
	}
	require.ErrorIs(t, err, backend.ErrExhausted)
	return n
}

func patternBytes(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func Test_header_EncodeDecode(t *testing.T) {
	in := segmentHeader{length: 1<<40 + 7, count: 12}
	header, ok := decodeHeader(encodeHeader(in))
	require.True(t, ok)
	require.EqualValues(t, in, header)
}

func Test_header_DecodeRejects(t *testing.T) {
	valid := encodeHeader(segmentHeader{length: 10, count: 1})

	short := valid[:headerSize-1]
	_, ok := decodeHeader(short)
	require.False(t, ok)

	badMagic := append([]byte(nil), valid...)
	badMagic[0] ^= 0xff
	_, ok = decodeHeader(badMagic)
	require.False(t, ok)

	badVersion := append([]byte(nil), valid...)
	badVersion[2] = headerVersion + 1
	_, ok = decodeHeader(badVersion)
	require.False(t, ok)

	zeroCount := encodeHeader(segmentHeader{length: 10, count: 0})
	_, ok = decodeHeader(zeroCount)
	require.False(t, ok)
}

func Test_segmentKey_Order(t *testing.T) {
	// big-endian indices must sort in index order under the byte order
	// the subordinate container uses
	prev := segmentKey("finger", 1)
	for i := uint32(2); i < 300; i++ {
		next := segmentKey("finger", i)
		require.Negative(t, bytes.Compare(prev, next))
		prev = next
	}
}

func Test_segmentIO_SmallVerbatim(t *testing.T) {
	seg, primary, subordinate := newTestSegmentIO(t)

	data := patternBytes(10)
	require.NoError(t, seg.write("k", data))

	raw, err := primary.Get([]byte("k"))
	require.NoError(t, err)
	require.EqualValues(t, data, raw, "small record stored verbatim")
	require.EqualValues(t, 0, countEntries(t, subordinate))

	got, err := seg.read("k")
	require.NoError(t, err)
	require.EqualValues(t, data, got)

	n, err := seg.length("k")
	require.NoError(t, err)
	require.EqualValues(t, 10, n)
}

func Test_segmentIO_ExactThresholdUnsegmented(t *testing.T) {
	seg, _, subordinate := newTestSegmentIO(t)

	require.NoError(t, seg.write("k", patternBytes(testThreshold)))
	require.EqualValues(t, 0, countEntries(t, subordinate))
}

func Test_segmentIO_EmptyValue(t *testing.T) {
	seg, _, _ := newTestSegmentIO(t)

	require.NoError(t, seg.write("k", nil))
	got, err := seg.read("k")
	require.NoError(t, err)
	require.Len(t, got, 0)

	n, err := seg.length("k")
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}

func Test_segmentIO_LargeRoundTrip(t *testing.T) {
	seg, primary, subordinate := newTestSegmentIO(t)

	// threshold*3+1 must produce exactly 4 segments and one header
	data := patternBytes(testThreshold*3 + 1)
	require.NoError(t, seg.write("big", data))

	raw, err := primary.Get([]byte("big"))
	require.NoError(t, err)
	header, ok := decodeHeader(raw)
	require.True(t, ok)
	require.EqualValues(t, len(data), header.length)
	require.EqualValues(t, 4, header.count)
	require.EqualValues(t, 4, countEntries(t, subordinate))

	got, err := seg.read("big")
	require.NoError(t, err)
	require.EqualValues(t, data, got)

	n, err := seg.length("big")
	require.NoError(t, err)
	require.EqualValues(t, len(data), n)
}

func Test_segmentIO_ReadMissing(t *testing.T) {
	seg, _, _ := newTestSegmentIO(t)

	_, err := seg.read("absent")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = seg.length("absent")
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, seg.remove("absent"), ErrNotFound)
}

func Test_segmentIO_MissingSegmentIsCorruption(t *testing.T) {
	seg, _, subordinate := newTestSegmentIO(t)

	require.NoError(t, seg.write("big", patternBytes(testThreshold*2+3)))
	require.NoError(t, subordinate.Delete(segmentKey("big", 2)))

	_, err := seg.read("big")
	require.ErrorIs(t, err, ErrCorruption)
}

func Test_segmentIO_LengthMismatchIsCorruption(t *testing.T) {
	seg, _, subordinate := newTestSegmentIO(t)

	require.NoError(t, seg.write("big", patternBytes(testThreshold*2+3)))
	require.NoError(t, subordinate.Put(segmentKey("big", 2), []byte("tiny")))

	_, err := seg.read("big")
	require.ErrorIs(t, err, ErrCorruption)
}

func Test_segmentIO_RemoveDropsSegments(t *testing.T) {
	seg, primary, subordinate := newTestSegmentIO(t)

	require.NoError(t, seg.write("big", patternBytes(testThreshold*4)))
	require.EqualValues(t, 4, countEntries(t, subordinate))

	require.NoError(t, seg.remove("big"))
	require.EqualValues(t, 0, countEntries(t, subordinate))
	require.EqualValues(t, 0, countEntries(t, primary))
}

func Test_segmentIO_ShrinkPrunesStaleSegments(t *testing.T) {
	seg, _, subordinate := newTestSegmentIO(t)

	require.NoError(t, seg.write("k", patternBytes(testThreshold*5)))
	require.EqualValues(t, 5, countEntries(t, subordinate))

	// rewrite with fewer segments, stale tail must go
	data := patternBytes(testThreshold * 2)
	require.NoError(t, seg.write("k", data))
	require.EqualValues(t, 2, countEntries(t, subordinate))

	got, err := seg.read("k")
	require.NoError(t, err)
	require.EqualValues(t, data, got)

	// and down to an unsegmented record
	require.NoError(t, seg.write("k", patternBytes(3)))
	require.EqualValues(t, 0, countEntries(t, subordinate))
}

func Test_segmentIO_OrphanedSegmentsInvisible(t *testing.T) {
	seg, _, subordinate := newTestSegmentIO(t)

	// simulate a crash after segment writes, before the header write
	require.NoError(t, subordinate.Put(segmentKey("ghost", 1), patternBytes(testThreshold)))
	require.NoError(t, subordinate.Put(segmentKey("ghost", 2), patternBytes(4)))

	_, err := seg.read("ghost")
	require.ErrorIs(t, err, ErrNotFound, "no header means no record")

	// a later full write of the same key prunes and replaces the orphans
	data := patternBytes(testThreshold + 1)
	require.NoError(t, seg.write("ghost", data))
	require.EqualValues(t, 2, countEntries(t, subordinate))

	got, err := seg.read("ghost")
	require.NoError(t, err)
	require.EqualValues(t, data, got)
}
