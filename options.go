package vdb

import (
	"log/slog"

	"github.com/syuya2036/vdb/internal/fs"
)

type options struct {
	m                int
	efConstruction   int
	efSearch         int
	dimension        int
	randomSeed       *int64
	metricsCollector MetricsCollector
	logger           *Logger
	fsys             fs.FileSystem
}

// Option configures Open behavior.
//
// Graph parameters (M, efConstruction) and the dimension are persisted in
// the file header at creation; passing them when reopening an existing
// file must match what is on disk.
type Option func(*options)

// WithM configures the HNSW degree bound per node per layer. Layer 0
// allows 2*M. Applies at creation only.
func WithM(m int) Option {
	return func(o *options) {
		o.m = m
	}
}

// WithEFConstruction configures the candidate list size while connecting a
// new node. Larger values improve graph quality at insertion cost.
// Applies at creation only.
func WithEFConstruction(efConstruction int) Option {
	return func(o *options) {
		o.efConstruction = efConstruction
	}
}

// WithEFSearch configures the default beam width for searches. Individual
// searches can override it. Values below k are raised to k.
func WithEFSearch(efSearch int) Option {
	return func(o *options) {
		o.efSearch = efSearch
	}
}

// WithDimension pins the vector dimension at open instead of adopting it
// from the first Add.
func WithDimension(dimension int) Option {
	return func(o *options) {
		o.dimension = dimension
	}
}

// WithRandomSeed pins the layer-assignment RNG so graph construction is
// reproducible. Without it, layers are drawn from a clock-seeded source.
func WithRandomSeed(seed int64) Option {
	return func(o *options) {
		o.randomSeed = &seed
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vdb.BasicMetricsCollector{}
//	db, _ := vdb.Open(path, distance.Euclidean, vdb.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Adds: %d, Avg latency: %dns\n", stats.AddCount, stats.AddAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc != nil {
			o.metricsCollector = mc
		}
	}
}

// WithLogger configures structured logging for operations.
//
// Example with JSON logging:
//
//	logger := vdb.NewJSONLogger(slog.LevelInfo)
//	db, _ := vdb.Open(path, distance.Euclidean, vdb.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// withFS overrides the file system, used by tests to inject faults.
func withFS(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fsys = fsys
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
