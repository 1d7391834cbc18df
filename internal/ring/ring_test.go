package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushAndSnapshot(t *testing.T) {
	b := New[int](10)
	b.Push(1, 2, 3)

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []int{1, 2, 3}, b.Snapshot())
}

func TestPush_DropsOldestOverCapacity(t *testing.T) {
	b := New[int](3)
	b.Push(1, 2, 3)
	b.Push(4)

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []int{2, 3, 4}, b.Snapshot())
}

func TestPush_UnboundedWhenCapZero(t *testing.T) {
	b := New[int](0)
	for i := 0; i < 100; i++ {
		b.Push(i)
	}
	assert.Equal(t, 100, b.Len())
}

func TestLast(t *testing.T) {
	b := New[string](5)

	_, ok := b.Last()
	require.False(t, ok)

	b.Push("a", "b")
	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, "b", last)
}

func TestReplaceLast(t *testing.T) {
	b := New[int](5)
	b.ReplaceLast(9) // empty: no-op

	b.Push(1, 2)
	b.ReplaceLast(9)
	assert.Equal(t, []int{1, 9}, b.Snapshot())
}

func TestSnapshot_IsACopy(t *testing.T) {
	b := New[int](5)
	b.Push(1, 2)

	snap := b.Snapshot()
	snap[0] = 99
	assert.Equal(t, []int{1, 2}, b.Snapshot())
}

func TestClear(t *testing.T) {
	b := New[int](5)
	b.Push(1, 2, 3)
	b.Clear()
	assert.Equal(t, 0, b.Len())
}

func TestLoad_AppliesCapacityBound(t *testing.T) {
	b := New[int](3)
	b.Load([]int{1, 2, 3, 4, 5})
	assert.Equal(t, []int{3, 4, 5}, b.Snapshot())
}
