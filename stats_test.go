package vdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/syuya2036/vdb/distance"
	"github.com/syuya2036/vdb/metadata"
	"github.com/syuya2036/vdb/testutil"
)

func TestStatsEmpty(t *testing.T) {
	db := openTestDB(t, distance.Cosine, WithM(6), WithEFConstruction(50))

	stats, err := db.Stats()
	require.NoError(t, err)
	require.Zero(t, stats.Count)
	require.Zero(t, stats.Dimension)
	require.Equal(t, "cosine", stats.Metric)
	require.Equal(t, 6, stats.M)
	require.Equal(t, 50, stats.EFConstruction)
	require.Empty(t, stats.LayerHistogram)
}

func TestStatsPopulated(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, distance.Euclidean, WithRandomSeed(9))

	rng := testutil.NewRNG(61)
	for i, v := range rng.UniformVectors(50, 4) {
		label := "x"
		if i < 10 {
			label = "y"
		}
		require.NoError(t, db.Add(ctx, uint64(i+1), v, metadata.Metadata{Label: label}))
	}

	stats, err := db.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 50, stats.Count)
	require.Equal(t, 4, stats.Dimension)
	require.Equal(t, 2, stats.Labels)
	require.Len(t, stats.LayerHistogram, stats.MaxLayer+1)

	var total uint64
	for _, n := range stats.LayerHistogram {
		total += n
	}
	require.EqualValues(t, 50, total)
}
