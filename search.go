package vdb

import (
	"context"

	"github.com/syuya2036/vdb/metadata"
)

// SearchResult represents a search result.
type SearchResult struct {
	// ID is the id of the matched vector.
	ID uint64

	// Distance is the distance between the query and the matched vector.
	// Smaller is closer for every metric.
	Distance float32

	// Metadata is the metadata stored with the matched vector.
	Metadata metadata.Metadata
}

// Search creates a new fluent search builder for the given query vector.
//
// Example:
//
//	results, err := db.Search(query).
//	    KNN(10).
//	    EF(100).
//	    Execute(ctx)
func (db *DB) Search(query []float32) *SearchBuilder {
	return &SearchBuilder{
		db:    db,
		query: query,
		k:     10, // Default k
		ef:    0,  // Use database default
	}
}

// SearchBuilder is a fluent builder for constructing search queries.
type SearchBuilder struct {
	db    *DB
	query []float32
	k     int
	ef    int

	filterFunc func(id uint64) bool
	label      string
}

// KNN sets the number of nearest neighbors to return.
func (sb *SearchBuilder) KNN(k int) *SearchBuilder {
	sb.k = k
	return sb
}

// EF sets the beam width for the search.
// Higher values improve recall but slow down search.
func (sb *SearchBuilder) EF(ef int) *SearchBuilder {
	sb.ef = ef
	return sb
}

// Filter sets a filter function for search results.
// Only vectors where filter(id) returns true are returned.
func (sb *SearchBuilder) Filter(fn func(id uint64) bool) *SearchBuilder {
	sb.filterFunc = fn
	return sb
}

// WithLabel restricts results to vectors stored with the given label.
func (sb *SearchBuilder) WithLabel(label string) *SearchBuilder {
	sb.label = label
	return sb
}

// Execute runs the search and returns the results.
func (sb *SearchBuilder) Execute(ctx context.Context) ([]SearchResult, error) {
	filter := sb.filterFunc
	if sb.label != "" {
		labels, label := sb.db.labels, sb.label
		inner := filter
		filter = func(id uint64) bool {
			if !labels.Contains(label, id) {
				return false
			}
			return inner == nil || inner(id)
		}
	}

	return sb.db.KNNSearch(ctx, sb.query, sb.k, func(o *KNNSearchOptions) {
		if sb.ef > 0 {
			o.EF = sb.ef
		}
		if filter != nil {
			o.FilterFunc = filter
		}
	})
}

// First returns only the nearest result, or ErrNotFound if none matched.
func (sb *SearchBuilder) First(ctx context.Context) (SearchResult, error) {
	sb.k = 1
	results, err := sb.Execute(ctx)
	if err != nil {
		return SearchResult{}, err
	}
	if len(results) == 0 {
		return SearchResult{}, ErrNotFound
	}
	return results[0], nil
}

// Count executes the search and returns the number of results.
func (sb *SearchBuilder) Count(ctx context.Context) (int, error) {
	results, err := sb.Execute(ctx)
	if err != nil {
		return 0, err
	}
	return len(results), nil
}
