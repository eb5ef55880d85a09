package sim

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBatchCapacity(t *testing.T) {
	b := NewEventBatch(4)
	for i := 0; i < 4; i++ {
		require.NoError(t, b.Append(Event{ID: int64(i)}))
	}
	err := b.Append(Event{ID: 99})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBatchFull))
	assert.Equal(t, 4, b.Len())

	// Draining frees capacity for the retrying producer.
	b.Drain()
	assert.NoError(t, b.Append(Event{ID: 99}))
}

func TestEventBatchDrainSortsByTimestampThenID(t *testing.T) {
	b := NewEventBatch(16)
	t0 := time.Unix(100, 0)
	t1 := time.Unix(200, 0)

	// Appended out of causal order.
	require.NoError(t, b.Append(Event{ID: 4, Timestamp: t1}))
	require.NoError(t, b.Append(Event{ID: 2, Timestamp: t0}))
	require.NoError(t, b.Append(Event{ID: 3, Timestamp: t1}))
	require.NoError(t, b.Append(Event{ID: 1, Timestamp: t0}))

	drained := b.Drain()
	require.Len(t, drained, 4)
	ids := []int64{drained[0].ID, drained[1].ID, drained[2].ID, drained[3].ID}
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)
	assert.Zero(t, b.Len())
}

func TestEventBatchDrainEmptiesBatch(t *testing.T) {
	b := NewEventBatch(8)
	require.NoError(t, b.Append(Event{ID: 1}))
	assert.Len(t, b.Drain(), 1)
	assert.Empty(t, b.Drain())
}

func TestEventBatchConcurrentProducers(t *testing.T) {
	b := NewEventBatch(64)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 8; i++ {
				_ = b.Append(Event{ID: int64(p*8 + i), Timestamp: time.Unix(0, 0)})
			}
		}(p)
	}
	wg.Wait()

	drained := b.Drain()
	require.Len(t, drained, 64)
	for i := 1; i < len(drained); i++ {
		assert.Less(t, drained[i-1].ID, drained[i].ID, fmt.Sprintf("position %d", i))
	}
}
