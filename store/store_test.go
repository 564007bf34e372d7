package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syuya2036/vdb/distance"
	"github.com/syuya2036/vdb/internal/fs"
	"github.com/syuya2036/vdb/metadata"
)

func openTestStore(t *testing.T, path string, metric distance.Metric, optFns ...func(o *Options)) *Store {
	t.Helper()
	s, err := Open(path, metric, optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenCreatesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.vdb")

	s := openTestStore(t, path, distance.Euclidean)
	assert.Equal(t, uint64(0), s.Count())
	assert.Equal(t, 0, s.Dimension())
	assert.Equal(t, DefaultM, s.M())
	assert.Equal(t, DefaultEFConstruction, s.EFConstruction())

	_, _, ok := s.EntryPoint()
	assert.False(t, ok)

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(headerSize), st.Size())
}

func TestAppendCommitReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.vdb")

	s := openTestStore(t, path, distance.Cosine)
	meta := metadata.Metadata{Label: "sample", Description: "first vector"}
	require.NoError(t, s.AppendRecord(7, []float32{0.1, 0.2, 0.3}, meta, 2))
	require.NoError(t, s.SetNeighbors(7, 0, nil))
	require.NoError(t, s.Commit(7, 2))
	require.NoError(t, s.Close())

	s2 := openTestStore(t, path, distance.Cosine)
	assert.Equal(t, uint64(1), s2.Count())
	assert.Equal(t, 3, s2.Dimension())

	ep, maxLayer, ok := s2.EntryPoint()
	require.True(t, ok)
	assert.Equal(t, uint64(7), ep)
	assert.Equal(t, 2, maxLayer)

	vec, got, err := s2.ReadRecord(7)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, meta, got)

	layer, err := s2.NodeLayer(7)
	require.NoError(t, err)
	assert.Equal(t, 2, layer)
}

func TestAppendDuplicateID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.vdb")

	s := openTestStore(t, path, distance.Euclidean)
	require.NoError(t, s.AppendRecord(1, []float32{1, 2}, metadata.Metadata{Label: "a"}, 0))
	require.NoError(t, s.Commit(1, 0))

	err := s.AppendRecord(1, []float32{3, 4}, metadata.Metadata{Label: "b"}, 0)
	var dup *ErrDuplicateID
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, uint64(1), dup.ID)

	// The failed append must not have touched the record or the count.
	assert.Equal(t, uint64(1), s.Count())
	vec, meta, err := s.ReadRecord(1)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
	assert.Equal(t, "a", meta.Label)
}

func TestAppendDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.vdb")

	s := openTestStore(t, path, distance.Euclidean)
	require.NoError(t, s.AppendRecord(1, []float32{1, 2, 3}, metadata.Metadata{}, 0))

	err := s.AppendRecord(2, []float32{1, 2}, metadata.Metadata{}, 0)
	var dm *distance.ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 2, dm.Actual)
}

func TestOpenSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.vdb")

	s := openTestStore(t, path, distance.Cosine)
	require.NoError(t, s.AppendRecord(1, []float32{1, 0}, metadata.Metadata{}, 0))
	require.NoError(t, s.Commit(1, 0))
	require.NoError(t, s.Close())

	_, err := Open(path, distance.Euclidean)
	var sm *ErrSchemaMismatch
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, "metric", sm.Field)

	_, err = Open(path, distance.Cosine, func(o *Options) { o.Dimension = 5 })
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, "dimension", sm.Field)
}

func TestNeighborsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.vdb")

	s := openTestStore(t, path, distance.Euclidean, func(o *Options) { o.M = 4 })
	require.NoError(t, s.AppendRecord(1, []float32{0, 0}, metadata.Metadata{}, 1))
	require.NoError(t, s.AppendRecord(2, []float32{1, 0}, metadata.Metadata{}, 0))
	require.NoError(t, s.AppendRecord(3, []float32{0, 1}, metadata.Metadata{}, 0))

	require.NoError(t, s.SetNeighbors(1, 0, []uint64{2, 3}))
	require.NoError(t, s.SetNeighbors(1, 1, []uint64{2}))

	got, err := s.Neighbors(1, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3}, got)

	got, err = s.Neighbors(1, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, got)

	// Layers above the node's assigned layer read as empty.
	got, err = s.Neighbors(2, 1)
	require.NoError(t, err)
	assert.Empty(t, got)

	// Degree bound: layer 0 allows 2M, upper layers M.
	err = s.SetNeighbors(1, 1, []uint64{2, 3, 2, 3, 2})
	assert.Error(t, err)

	// Unknown neighbor ids are filtered on read.
	require.NoError(t, s.SetNeighbors(1, 1, []uint64{2, 999}))
	got, err = s.Neighbors(1, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, got)
}

func TestUncommittedTailDiscardedOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.vdb")

	s := openTestStore(t, path, distance.Euclidean)
	require.NoError(t, s.AppendRecord(1, []float32{1, 2}, metadata.Metadata{Label: "committed"}, 0))
	require.NoError(t, s.Commit(1, 0))

	// Appended but never committed: simulates a crash mid-insertion.
	require.NoError(t, s.AppendRecord(2, []float32{3, 4}, metadata.Metadata{Label: "lost"}, 0))
	require.NoError(t, s.Close())

	s2 := openTestStore(t, path, distance.Euclidean)
	assert.Equal(t, uint64(1), s2.Count())
	assert.False(t, s2.Contains(2))

	_, _, err := s2.ReadRecord(2)
	assert.ErrorIs(t, err, ErrNotFound)

	// The tail was truncated back to the committed boundary, so the id
	// can be inserted again.
	require.NoError(t, s2.AppendRecord(2, []float32{3, 4}, metadata.Metadata{Label: "retry"}, 0))
	require.NoError(t, s2.Commit(1, 0))
	assert.Equal(t, uint64(2), s2.Count())
}

func TestRollbackDiscardsPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.vdb")

	s := openTestStore(t, path, distance.Euclidean)
	require.NoError(t, s.AppendRecord(1, []float32{1, 2}, metadata.Metadata{Label: "kept"}, 0))
	require.NoError(t, s.Commit(1, 0))

	require.NoError(t, s.AppendRecord(2, []float32{3, 4}, metadata.Metadata{}, 1))
	s.Rollback()

	assert.Equal(t, uint64(1), s.Count())
	assert.False(t, s.Contains(2))
	_, _, err := s.ReadRecord(2)
	assert.ErrorIs(t, err, ErrNotFound)

	// The append offset rewound, so the id is free again and the next
	// record lands where the discarded one sat.
	require.NoError(t, s.AppendRecord(2, []float32{5, 6}, metadata.Metadata{Label: "retry"}, 0))
	require.NoError(t, s.Commit(1, 0))
	require.NoError(t, s.Close())

	s2 := openTestStore(t, path, distance.Euclidean)
	assert.Equal(t, uint64(2), s2.Count())
	vec, meta, err := s2.ReadRecord(2)
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 6}, vec)
	assert.Equal(t, "retry", meta.Label)
}

func TestRollbackRevertsAdoptedDimension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.vdb")

	s := openTestStore(t, path, distance.Euclidean)
	require.NoError(t, s.AppendRecord(1, []float32{1, 2, 3}, metadata.Metadata{}, 0))
	s.Rollback()

	// The discarded append must not pin the dimensionality.
	assert.Equal(t, 0, s.Dimension())
	require.NoError(t, s.AppendRecord(1, []float32{1, 2}, metadata.Metadata{}, 0))
	require.NoError(t, s.Commit(1, 0))
	assert.Equal(t, 2, s.Dimension())
}

func TestRollbackWithoutPendingIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.vdb")

	s := openTestStore(t, path, distance.Euclidean)
	require.NoError(t, s.AppendRecord(1, []float32{1, 2}, metadata.Metadata{}, 0))
	require.NoError(t, s.Commit(1, 0))

	s.Rollback()
	assert.Equal(t, uint64(1), s.Count())
	assert.True(t, s.Contains(1))
}

func TestOpenCorruptHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.vdb")

	s := openTestStore(t, path, distance.Euclidean)
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[8] ^= 0xFF // dimension field; CRC no longer matches
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	_, err = Open(path, distance.Euclidean)
	var corruptErr *ErrCorrupt
	assert.ErrorAs(t, err, &corruptErr)
}

func TestOpenCorruptRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.vdb")

	s := openTestStore(t, path, distance.Euclidean)
	require.NoError(t, s.AppendRecord(1, []float32{1, 2}, metadata.Metadata{Label: "x"}, 0))
	require.NoError(t, s.Commit(1, 0))
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[headerSize+recordFixedLen] ^= 0xFF // label byte of the committed record
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	_, err = Open(path, distance.Euclidean)
	var corruptErr *ErrCorrupt
	assert.ErrorAs(t, err, &corruptErr)
}

func TestAppendSurfacesSyncFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.vdb")

	ffs := fs.NewFaultyFS(nil)
	s := openTestStore(t, path, distance.Euclidean, func(o *Options) { o.FS = ffs })

	ffs.SetFault(fs.Fault{FailAfterBytes: -1, FailOnSync: true})

	// The store must not report success while data may still sit in
	// volatile buffers.
	err := s.AppendRecord(1, []float32{1, 2}, metadata.Metadata{}, 0)
	assert.ErrorIs(t, err, fs.ErrInjected)
}

func TestCloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.vdb")

	s := openTestStore(t, path, distance.Euclidean)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.AppendRecord(1, []float32{1}, metadata.Metadata{}, 0), ErrClosed)
	assert.ErrorIs(t, s.Commit(0, 0), ErrClosed)
}
