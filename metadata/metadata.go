// Package metadata defines the payload attached to every stored vector and
// an in-memory inverted index over record labels.
package metadata

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Metadata is the free-form payload attached to a vector record.
type Metadata struct {
	// Label is a short text tag. It is indexed and can be used to filter
	// search results.
	Label string

	// Description is optional free text. An empty string means absent.
	Description string
}

// LabelIndex is an inverted index from label to the set of record ids
// carrying it. It is derived state: rebuilt from the record region at open
// time, never persisted.
type LabelIndex struct {
	mu       sync.RWMutex
	postings map[string]*roaring64.Bitmap
}

// NewLabelIndex creates an empty label index.
func NewLabelIndex() *LabelIndex {
	return &LabelIndex{
		postings: make(map[string]*roaring64.Bitmap),
	}
}

// Add records that id carries the given label.
func (li *LabelIndex) Add(label string, id uint64) {
	li.mu.Lock()
	defer li.mu.Unlock()

	bm, ok := li.postings[label]
	if !ok {
		bm = roaring64.New()
		li.postings[label] = bm
	}
	bm.Add(id)
}

// Contains reports whether id carries the given label.
func (li *LabelIndex) Contains(label string, id uint64) bool {
	li.mu.RLock()
	defer li.mu.RUnlock()

	bm, ok := li.postings[label]
	return ok && bm.Contains(id)
}

// Cardinality returns the number of ids carrying the given label.
func (li *LabelIndex) Cardinality(label string) uint64 {
	li.mu.RLock()
	defer li.mu.RUnlock()

	bm, ok := li.postings[label]
	if !ok {
		return 0
	}
	return bm.GetCardinality()
}

// Labels returns all distinct labels in the index.
func (li *LabelIndex) Labels() []string {
	li.mu.RLock()
	defer li.mu.RUnlock()

	labels := make([]string, 0, len(li.postings))
	for label := range li.postings {
		labels = append(labels, label)
	}
	return labels
}
