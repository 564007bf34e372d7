package vdb

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// SearchBatch runs one KNN search per query in parallel and returns the
// per-query results in input order. The first failing query aborts the
// batch.
func (db *DB) SearchBatch(ctx context.Context, queries [][]float32, k int, optFns ...func(o *KNNSearchOptions)) ([][]SearchResult, error) {
	start := time.Now()
	results, err := db.searchBatch(ctx, queries, k, optFns...)
	err = translateError(err)
	db.metrics.RecordBatchSearch(len(queries), k, time.Since(start), err)
	db.logger.LogBatchSearch(ctx, len(queries), k, err)
	return results, err
}

func (db *DB) searchBatch(ctx context.Context, queries [][]float32, k int, optFns ...func(o *KNNSearchOptions)) ([][]SearchResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(queries) == 0 {
		return nil, nil
	}

	results := make([][]SearchResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, query := range queries {
		i, query := i, query
		g.Go(func() error {
			r, err := db.knnSearch(gctx, query, k, optFns...)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
