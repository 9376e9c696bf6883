package viperwolf

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestQueue_Empty(t *testing.T) {
	var q = NewQueue[int](4)

	var _, ok = q.TryGet()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 4, q.Cap())
}

func TestQueue_FIFO(t *testing.T) {
	var q = NewQueue[int](3)

	for i := range 10 {
		require.True(t, q.Put(i))
		require.True(t, q.Put(i+100))

		var a, _ = q.TryGet()
		var b, _ = q.TryGet()
		assert.Equal(t, i, a)
		assert.Equal(t, i+100, b)
	}
}

func TestQueue_DropsNewestWhenFull(t *testing.T) {
	var q = NewQueue[string](2)

	assert.True(t, q.Put("badger"))
	assert.True(t, q.Put("mushroom"))
	assert.False(t, q.Put("snake"))
	assert.False(t, q.Put("snake again"))

	assert.Equal(t, uint64(2), q.Dropped())
	assert.Equal(t, 2, q.Len())

	var first, _ = q.TryGet()
	assert.Equal(t, "badger", first)

	// Room again.
	assert.True(t, q.Put("toadstool"))
}

func TestQueue_MatchesSlice(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var capacity = rapid.IntRange(1, 16).Draw(t, "capacity")
		var q = NewQueue[int](capacity)
		var model []int

		var ops = rapid.SliceOfN(rapid.IntRange(-1, 1000), 1, 200).Draw(t, "ops")
		for _, op := range ops {
			if op < 0 {
				var got, ok = q.TryGet()
				if len(model) == 0 {
					assert.False(t, ok)
				} else {
					assert.True(t, ok)
					assert.Equal(t, model[0], got)
					model = model[1:]
				}

				continue
			}

			var accepted = q.Put(op)
			assert.Equal(t, len(model) < capacity, accepted)
			if accepted {
				model = append(model, op)
			}
		}

		assert.Equal(t, len(model), q.Len())
	})
}

func TestQueue_GetMany(t *testing.T) {
	var q = NewBitQueue(10)
	for _, b := range []bool{true, false, true} {
		q.Put(b)
	}

	var dst = make([]bool, 2)
	assert.Equal(t, 2, q.GetMany(dst))
	assert.Equal(t, []bool{true, false}, dst)
	assert.Equal(t, 1, q.GetMany(dst))
	assert.Equal(t, 0, q.GetMany(dst))
}

func TestQueue_GetWaits(t *testing.T) {
	var q = NewFrameQueue(4)

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Put(ReceivedFrame{Channel: 3}) //nolint:exhaustruct
	}()

	var ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var rf, err = q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rf.Channel)
}

func TestQueue_GetCancelled(t *testing.T) {
	var q = NewQueue[int](4)

	var ctx, cancel = context.WithCancel(context.Background())
	cancel()

	var _, err = q.Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueue_WaitWhileEmpty(t *testing.T) {
	var q = NewQueue[int](4)

	assert.False(t, q.WaitWhileEmpty(10*time.Millisecond))

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Put(1)
	}()

	assert.True(t, q.WaitWhileEmpty(0))
	assert.Equal(t, 1, q.Len())
}

func TestQueue_Clear(t *testing.T) {
	var q = NewQueue[int](4)
	q.Put(1)
	q.Put(2)

	q.Clear()

	assert.Equal(t, 0, q.Len())
	var _, ok = q.TryGet()
	assert.False(t, ok)

	q.Put(3)
	var v, _ = q.TryGet()
	assert.Equal(t, 3, v)
}

func TestNewQueue_MinimumCapacity(t *testing.T) {
	var q = NewQueue[int](0)

	assert.Equal(t, 1, q.Cap())
	assert.True(t, q.Put(1))
	assert.False(t, q.Put(2))
}
