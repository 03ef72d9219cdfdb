package recstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"recstore/internal/backend"
)

func Test_store_VerifyClean(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Insert("small", []byte("x")))
	require.NoError(t, s.Insert("big", patternBytes(backend.DefaultMaxValueSize*2+1)))

	report, err := s.Verify()
	require.NoError(t, err)
	require.True(t, report.Clean())
	require.EqualValues(t, 2, report.Records)
	require.EqualValues(t, 1, report.Segmented)
}

func Test_store_VerifyDetectsCorruption(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Insert("big", patternBytes(backend.DefaultMaxValueSize*2+1)))
	require.NoError(t, s.subordinate.Delete(segmentKey("big", 2)))

	report, err := s.Verify()
	require.NoError(t, err)
	require.False(t, report.Clean())
	require.EqualValues(t, []string{"big"}, report.Corrupt)
}

func Test_store_VerifyDetectsOrphans(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Insert("real", []byte("x")))

	// debris of a write that never reached its header
	require.NoError(t, s.subordinate.Put(segmentKey("ghost", 1), []byte("zzz")))

	report, err := s.Verify()
	require.NoError(t, err)
	require.EqualValues(t, 1, report.Orphans)
	require.Empty(t, report.Corrupt)
	require.EqualValues(t, 1, report.Records, "orphans are invisible to reads")
}

func Test_store_VerifyDetectsTrailingSegment(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Insert("big", patternBytes(backend.DefaultMaxValueSize+1)))

	// a segment past the declared count is unreferenced
	require.NoError(t, s.subordinate.Put(segmentKey("big", 9), []byte("stale")))

	report, err := s.Verify()
	require.NoError(t, err)
	require.EqualValues(t, 1, report.Orphans)
}
