package vdb_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/syuya2036/vdb"
	"github.com/syuya2036/vdb/distance"
	"github.com/syuya2036/vdb/metadata"
)

// Example demonstrates adding vectors and searching for nearest neighbors.
func Example() {
	dir, err := os.MkdirTemp("", "vdb-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	ctx := context.Background()

	db, err := vdb.Open(filepath.Join(dir, "vectors.vdb"), distance.Euclidean)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	vectors := map[uint64][]float32{
		1: {0, 0},
		2: {1, 0},
		3: {0, 1},
		4: {10, 10},
	}
	for id, v := range vectors {
		if err := db.Add(ctx, id, v, metadata.Metadata{Label: "demo"}); err != nil {
			log.Fatal(err)
		}
	}

	result, err := db.Search([]float32{0.1, 0}).First(ctx)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("nearest id: %d\n", result.ID)
	// Output: nearest id: 1
}

// Example_labelFilter demonstrates restricting a search to one label.
func Example_labelFilter() {
	dir, err := os.MkdirTemp("", "vdb-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	ctx := context.Background()

	db, err := vdb.Open(filepath.Join(dir, "vectors.vdb"), distance.Euclidean)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	_ = db.Add(ctx, 1, []float32{0, 0}, metadata.Metadata{Label: "red"})
	_ = db.Add(ctx, 2, []float32{0.1, 0}, metadata.Metadata{Label: "blue"})

	result, err := db.Search([]float32{0, 0}).WithLabel("blue").First(ctx)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("nearest blue id: %d\n", result.ID)
	// Output: nearest blue id: 2
}
