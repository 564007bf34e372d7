package vdb

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/syuya2036/vdb/distance"
	"github.com/syuya2036/vdb/metadata"
	"github.com/syuya2036/vdb/testutil"
)

func TestBackupRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, distance.Euclidean, WithRandomSeed(6))

	rng := testutil.NewRNG(41)
	vectors := rng.UniformVectors(25, 4)
	for i, v := range vectors {
		require.NoError(t, db.Add(ctx, uint64(i+1), v, metadata.Metadata{Label: "backup"}))
	}

	var buf bytes.Buffer
	require.NoError(t, db.Backup(ctx, &buf))
	require.NotZero(t, buf.Len())

	restorePath := filepath.Join(t.TempDir(), "restored.vdb")
	require.NoError(t, Restore(ctx, &buf, restorePath))

	restored, err := Open(restorePath, distance.Euclidean)
	require.NoError(t, err)
	defer restored.Close()

	require.Equal(t, db.Count(), restored.Count())
	require.Equal(t, db.Dimension(), restored.Dimension())

	for i, v := range vectors {
		result, err := restored.Search(v).EF(25).First(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(i+1), result.ID)
		require.Zero(t, result.Distance)
		require.Equal(t, "backup", result.Metadata.Label)
	}
}

func TestRestoreRefusesExistingFile(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, distance.Euclidean)
	require.NoError(t, db.Add(ctx, 1, []float32{1, 2}, metadata.Metadata{}))

	var buf bytes.Buffer
	require.NoError(t, db.Backup(ctx, &buf))

	// The live database file must not be clobbered.
	require.Error(t, Restore(ctx, &buf, db.Path()))
}

func TestRestoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restored.vdb")
	err := Restore(context.Background(), bytes.NewReader([]byte("not a zstd stream")), path)
	require.Error(t, err)
}
