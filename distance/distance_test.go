package distance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 0},
		{name: "unit apart", a: []float32{0, 0}, b: []float32{1, 0}, want: 1},
		{name: "3-4-5", a: []float32{0, 0}, b: []float32{3, 4}, want: 5},
		{name: "zero vectors", a: []float32{0, 0}, b: []float32{0, 0}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EuclideanDistance(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{name: "same direction", a: []float32{1, 0}, b: []float32{2, 0}, want: 0},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 1},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: 2},
		{name: "zero left", a: []float32{0, 0}, b: []float32{1, 0}, want: 2},
		{name: "zero right", a: []float32{1, 0}, b: []float32{0, 0}, want: 2},
		{name: "both zero", a: []float32{0, 0}, b: []float32{0, 0}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineDistance(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestNegativeDot(t *testing.T) {
	got, err := NegativeDot([]float32{1, 2, 3}, []float32{4, 5, 6})
	require.NoError(t, err)
	assert.InDelta(t, float32(-32), got, 1e-6)

	// Larger magnitude in the same direction is "closer" under this metric.
	near, err := NegativeDot([]float32{1, 0}, []float32{5, 0})
	require.NoError(t, err)
	far, err2 := NegativeDot([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err2)
	assert.Less(t, near, far)
}

func TestDimensionMismatch(t *testing.T) {
	for _, fn := range []Func{EuclideanDistance, CosineDistance, NegativeDot} {
		_, err := fn([]float32{1, 2, 3}, []float32{1, 2})
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 3, dm.Expected)
		assert.Equal(t, 2, dm.Actual)
	}
}

func TestProvider(t *testing.T) {
	for _, m := range []Metric{Cosine, Euclidean, DotProduct} {
		fn, err := Provider(m)
		require.NoError(t, err)
		require.NotNil(t, fn)
	}

	_, err := Provider(Metric(0))
	assert.Error(t, err)
}

func TestParseMetric(t *testing.T) {
	for _, m := range []Metric{Cosine, Euclidean, DotProduct} {
		parsed, err := ParseMetric(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}

	_, err := ParseMetric("manhattan")
	assert.Error(t, err)
}
