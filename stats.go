package vdb

// Stats is a snapshot of database shape and index parameters.
type Stats struct {
	// Count is the number of stored vectors.
	Count uint64

	// Dimension is the vector dimension, 0 while the database is empty
	// and unpinned.
	Dimension int

	// Metric is the distance metric name.
	Metric string

	// M is the HNSW degree bound per node per layer.
	M int

	// EFConstruction is the candidate list size used during insertion.
	EFConstruction int

	// MaxLayer is the highest populated graph layer.
	MaxLayer int

	// LayerHistogram counts nodes per assigned maximum layer,
	// LayerHistogram[0] being the nodes that exist only on layer 0.
	LayerHistogram []uint64

	// Labels is the number of distinct labels.
	Labels int
}

// Stats returns statistics about the database.
func (db *DB) Stats() (Stats, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	stats := Stats{
		Count:          db.store.Count(),
		Dimension:      db.store.Dimension(),
		Metric:         db.store.Metric().String(),
		M:              db.store.M(),
		EFConstruction: db.store.EFConstruction(),
		Labels:         len(db.labels.Labels()),
	}

	if _, maxLayer, ok := db.store.EntryPoint(); ok {
		stats.MaxLayer = maxLayer
		stats.LayerHistogram = make([]uint64, maxLayer+1)
		for _, id := range db.store.IDs() {
			layer, err := db.store.NodeLayer(id)
			if err != nil {
				return Stats{}, translateError(err)
			}
			if layer > maxLayer {
				layer = maxLayer
			}
			stats.LayerHistogram[layer]++
		}
	}

	return stats, nil
}
