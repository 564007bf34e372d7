// Package vdb provides an embedded vector database backed by a single file.
//
// Vectors are tagged with a caller-supplied id and metadata, indexed with a
// Hierarchical Navigable Small World (HNSW) graph for approximate nearest
// neighbor search, and persisted durably: every mutating call leaves the
// database file loadable and correct, with no explicit save or load step.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, err := vdb.Open("vectors.vdb", distance.Euclidean)
//	if err != nil {
//	    panic(err)
//	}
//	defer db.Close()
//
//	err = db.Add(ctx, 1, []float32{1.0, 2.0, 3.0}, metadata.Metadata{
//	    Label:       "greeting",
//	    Description: "hello world embedding",
//	})
//
// Search with the fluent API:
//
//	results, err := db.Search(query).
//	    KNN(10).
//	    EF(100).
//	    WithLabel("greeting").
//	    Execute(ctx)
//
// A database is safe for concurrent use within a single process. Opening
// the same file from multiple processes is not supported.
package vdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/syuya2036/vdb/distance"
	"github.com/syuya2036/vdb/hnsw"
	"github.com/syuya2036/vdb/metadata"
	"github.com/syuya2036/vdb/store"
)

// DB is an embedded vector database. All state lives in one file; the
// in-memory side holds only derived lookup structures that are rebuilt
// at Open.
type DB struct {
	mu       sync.RWMutex
	store    *store.Store
	index    *hnsw.Index
	labels   *metadata.LabelIndex
	efSearch int
	metrics  MetricsCollector
	logger   *Logger
}

// Open opens the database file at path, creating it if it does not exist.
// The metric is pinned at creation; reopening with a different metric
// fails with ErrSchemaMismatch.
func Open(path string, metric distance.Metric, optFns ...Option) (*DB, error) {
	opts := applyOptions(optFns)

	dist, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}

	s, err := store.Open(path, metric, func(o *store.Options) {
		if opts.m > 0 {
			o.M = opts.m
		}
		if opts.efConstruction > 0 {
			o.EFConstruction = opts.efConstruction
		}
		if opts.dimension > 0 {
			o.Dimension = opts.dimension
		}
		if opts.fsys != nil {
			o.FS = opts.fsys
		}
	})
	if err != nil {
		return nil, translateError(err)
	}

	idx, err := hnsw.New(s, func(o *hnsw.Options) {
		o.M = s.M()
		o.EFConstruction = s.EFConstruction()
		o.DistanceFunc = dist
		o.RandomSeed = opts.randomSeed
	})
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	db := &DB{
		store:    s,
		index:    idx,
		labels:   metadata.NewLabelIndex(),
		efSearch: opts.efSearch,
		metrics:  opts.metricsCollector,
		logger:   opts.logger,
	}

	// The label index is derived state: rebuild it from the committed
	// records rather than persisting it separately.
	if err := db.rebuildLabelIndex(); err != nil {
		_ = s.Close()
		return nil, translateError(err)
	}

	db.logger.LogOpen(path, metric, int(s.Count()))
	return db, nil
}

func (db *DB) rebuildLabelIndex() error {
	for _, id := range db.store.IDs() {
		_, meta, err := db.store.ReadRecord(id)
		if err != nil {
			return err
		}
		if meta.Label != "" {
			db.labels.Add(meta.Label, id)
		}
	}
	return nil
}

// Add inserts a vector with the given id and metadata. The first Add fixes
// the database dimension unless WithDimension pinned it at Open. Re-adding
// an existing id fails with ErrDuplicateID; the database is unchanged.
//
// When Add returns nil the insertion is durable. When it returns an error
// the pending append is rolled back and the committed state is untouched;
// retrying the same id is allowed.
func (db *DB) Add(ctx context.Context, id uint64, vector []float32, meta metadata.Metadata) error {
	start := time.Now()
	err := db.add(ctx, id, vector, meta)
	err = translateError(err)
	db.metrics.RecordAdd(time.Since(start), err)
	db.logger.LogAdd(ctx, id, len(vector), err)
	return err
}

func (db *DB) add(ctx context.Context, id uint64, vector []float32, meta metadata.Metadata) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	level := 0
	if db.store.Count() > 0 {
		level = db.index.DrawLevel()
	}

	if err := db.store.AppendRecord(id, vector, meta, level); err != nil {
		return err
	}

	if err := db.index.Insert(ctx, id, vector, level); err != nil {
		// Discard the append so a later commit cannot publish a record
		// that never joined the graph.
		db.store.Rollback()
		return err
	}

	if meta.Label != "" {
		db.labels.Add(meta.Label, id)
	}
	return nil
}

// Get returns the vector and metadata stored under id.
func (db *DB) Get(id uint64) ([]float32, metadata.Metadata, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	vector, meta, err := db.store.ReadRecord(id)
	return vector, meta, translateError(err)
}

// KNNSearchOptions contains options for KNNSearch.
type KNNSearchOptions struct {
	// EF is the beam width during search. Values below k are raised to
	// k. Zero means the database default.
	EF int

	// FilterFunc restricts results to ids it accepts. It does not
	// restrict graph traversal.
	FilterFunc func(id uint64) bool
}

// KNNSearch returns the k nearest neighbors of query, closest first, ties
// broken by ascending id. Fewer than k results are returned when the
// database holds fewer matching vectors; an empty database yields an
// empty result.
func (db *DB) KNNSearch(ctx context.Context, query []float32, k int, optFns ...func(o *KNNSearchOptions)) ([]SearchResult, error) {
	start := time.Now()
	results, err := db.knnSearch(ctx, query, k, optFns...)
	err = translateError(err)
	db.metrics.RecordSearch(k, time.Since(start), err)
	db.logger.LogSearch(ctx, k, len(results), err)
	return results, err
}

func (db *DB) knnSearch(ctx context.Context, query []float32, k int, optFns ...func(o *KNNSearchOptions)) ([]SearchResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	opts := KNNSearchOptions{EF: db.efSearch}
	for _, fn := range optFns {
		fn(&opts)
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	if dim := db.store.Dimension(); dim > 0 && len(query) != dim {
		return nil, &distance.ErrDimensionMismatch{Expected: dim, Actual: len(query)}
	}

	ranked, err := db.index.Search(ctx, query, k, opts.EF, opts.FilterFunc)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(ranked))
	for _, r := range ranked {
		_, meta, err := db.store.ReadRecord(r.ID)
		if err != nil {
			// A ranked id must resolve; anything else means the index
			// and the record region disagree.
			return nil, fmt.Errorf("vdb: result id %d: %w", r.ID, err)
		}
		results = append(results, SearchResult{
			ID:       r.ID,
			Distance: r.Distance,
			Metadata: meta,
		})
	}
	return results, nil
}

// Dimension returns the vector dimension, or 0 before the first Add when
// no dimension was pinned at Open.
func (db *DB) Dimension() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.store.Dimension()
}

// Count returns the number of stored vectors.
func (db *DB) Count() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.store.Count()
}

// ContainsID reports whether a vector is stored under id.
func (db *DB) ContainsID(id uint64) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.store.Contains(id)
}

// Metric returns the distance metric the database was created with.
func (db *DB) Metric() distance.Metric {
	return db.store.Metric()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.store.Path()
}

// Close releases the file handle. Close is idempotent; any other method
// called after Close fails.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.store.Close()
}
