package queue

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinQueueOrder(t *testing.T) {
	pq := NewMin(8)
	pq.Push(Item{ID: 1, Distance: 3})
	pq.Push(Item{ID: 2, Distance: 1})
	pq.Push(Item{ID: 3, Distance: 2})

	top, ok := pq.Top()
	require.True(t, ok)
	assert.Equal(t, uint64(2), top.ID)

	var got []float32
	for pq.Len() > 0 {
		item, ok := pq.Pop()
		require.True(t, ok)
		got = append(got, item.Distance)
	}
	assert.Equal(t, []float32{1, 2, 3}, got)
}

func TestMaxQueueOrder(t *testing.T) {
	pq := NewMax(8)
	pq.Push(Item{ID: 1, Distance: 3})
	pq.Push(Item{ID: 2, Distance: 1})
	pq.Push(Item{ID: 3, Distance: 2})

	top, ok := pq.Top()
	require.True(t, ok)
	assert.Equal(t, uint64(1), top.ID)

	var got []float32
	for pq.Len() > 0 {
		item, _ := pq.Pop()
		got = append(got, item.Distance)
	}
	assert.Equal(t, []float32{3, 2, 1}, got)
}

func TestPopEmpty(t *testing.T) {
	pq := NewMin(0)
	_, ok := pq.Pop()
	assert.False(t, ok)
	_, ok = pq.Top()
	assert.False(t, ok)
}

func TestHeapPropertyRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pq := NewMin(64)

	want := make([]float32, 0, 256)
	for i := 0; i < 256; i++ {
		d := rng.Float32()
		want = append(want, d)
		pq.Push(Item{ID: uint64(i), Distance: d})
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	for i := 0; pq.Len() > 0; i++ {
		item, _ := pq.Pop()
		assert.Equal(t, want[i], item.Distance)
	}
}
