package distance

import (
	"fmt"
	"math"
)

// ErrDimensionMismatch is a named error type for dimension mismatch
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Metric represents the distance metric used for vector comparison.
//
// The numeric values are part of the on-disk format and must not change.
type Metric uint8

const (
	// Cosine is 1 - cosine similarity. Range [0, 2]; 0 means identical
	// direction. Vectors with zero L2 norm are treated as maximally
	// distant (2) rather than faulting on the zero division.
	Cosine Metric = 1

	// Euclidean is the L2 norm of the difference of the two vectors.
	Euclidean Metric = 2

	// DotProduct is the negated dot product, so that smaller values mean
	// closer across all metrics. Note that under this metric a vector is
	// not necessarily its own nearest neighbor.
	DotProduct Metric = 3
)

func (m Metric) String() string {
	switch m {
	case Cosine:
		return "cosine"
	case Euclidean:
		return "euclidean"
	case DotProduct:
		return "dotproduct"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	return m == Cosine || m == Euclidean || m == DotProduct
}

// ParseMetric parses a metric name as produced by Metric.String.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "cosine":
		return Cosine, nil
	case "euclidean":
		return Euclidean, nil
	case "dotproduct":
		return DotProduct, nil
	default:
		return 0, fmt.Errorf("unknown metric: %q", s)
	}
}

// Func represents a function for calculating the distance between two vectors.
type Func func(a, b []float32) (float32, error)

// Provider returns the distance function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case Cosine:
		return CosineDistance, nil
	case Euclidean:
		return EuclideanDistance, nil
	case DotProduct:
		return NegativeDot, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}

// Dot calculates the dot product of two equal-length vectors.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Magnitude calculates the L2 norm of a vector.
func Magnitude(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// EuclideanDistance calculates the L2 distance between two vectors.
func EuclideanDistance(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, &ErrDimensionMismatch{Expected: len(a), Actual: len(b)}
	}

	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}

	return float32(math.Sqrt(float64(sum))), nil
}

// CosineDistance calculates 1 - cosine similarity between two vectors.
// A zero vector on either side yields the maximal distance 2.
func CosineDistance(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, &ErrDimensionMismatch{Expected: len(a), Actual: len(b)}
	}

	magA := Magnitude(a)
	magB := Magnitude(b)
	if magA == 0 || magB == 0 {
		return 2, nil
	}

	return 1 - Dot(a, b)/(magA*magB), nil
}

// NegativeDot calculates the negated dot product of two vectors.
func NegativeDot(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, &ErrDimensionMismatch{Expected: len(a), Actual: len(b)}
	}

	return -Dot(a, b), nil
}
