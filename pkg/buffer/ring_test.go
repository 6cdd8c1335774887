package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBasicOperations(t *testing.T) {
	buf := NewRing[string](3)

	assert.Equal(t, 0, buf.Len())
	assert.Equal(t, 3, buf.Capacity())
	_, ok := buf.Newest()
	assert.False(t, ok)

	assert.True(t, buf.Push("first"))
	assert.True(t, buf.Push("second"))

	newest, ok := buf.Newest()
	require.True(t, ok)
	assert.Equal(t, "second", newest)
	assert.Equal(t, []string{"first", "second"}, buf.Snapshot())

	// Snapshot does not consume
	assert.Equal(t, 2, buf.Len())
}

func TestRingOverflowPolicies(t *testing.T) {
	testCases := []struct {
		name     string
		policy   OverflowPolicy
		expected []int
		pushes   int64
	}{
		{name: "DropOldest", policy: DropOldest, expected: []int{3, 4, 5}, pushes: 5},
		{name: "DropNewest", policy: DropNewest, expected: []int{1, 2, 3}, pushes: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var dropped []int
			buf := NewRing[int](3,
				WithOverflowPolicy[int](tc.policy),
				WithDropCallback[int](func(item int) { dropped = append(dropped, item) }))

			for i := 1; i <= 5; i++ {
				buf.Push(i)
			}

			assert.Equal(t, tc.expected, buf.Snapshot())
			assert.Len(t, dropped, 2)
			assert.Equal(t, Stats{Pushes: tc.pushes, Drops: 2}, buf.Stats())
		})
	}
}

func TestRingKeepsMostRecentInOrder(t *testing.T) {
	buf := NewRing[int](50)

	for i := 0; i < 137; i++ {
		buf.Push(i)
	}

	snap := buf.Snapshot()
	require.Len(t, snap, 50)
	for i, v := range snap {
		assert.Equal(t, 87+i, v)
	}
	assert.Equal(t, int64(137), buf.Stats().Pushes)
	assert.Equal(t, int64(87), buf.Stats().Drops)
}

func TestRingClear(t *testing.T) {
	buf := NewRing[int](4)
	for i := 0; i < 6; i++ {
		buf.Push(i)
	}

	buf.Clear()
	assert.Equal(t, 0, buf.Len())
	assert.Empty(t, buf.Snapshot())

	buf.Push(9)
	assert.Equal(t, []int{9}, buf.Snapshot())
}

func TestRingZeroCapacity(t *testing.T) {
	buf := NewRing[int](0)
	assert.Equal(t, 1, buf.Capacity())

	buf.Push(1)
	buf.Push(2)
	assert.Equal(t, []int{2}, buf.Snapshot())
}

func TestRingConcurrentPush(t *testing.T) {
	buf := NewRing[int](50)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				buf.Push(i)
				_ = buf.Snapshot()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, buf.Len())
	assert.Equal(t, int64(8000), buf.Stats().Pushes)
}
