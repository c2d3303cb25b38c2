package workqueue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_StatsHighWaterMark(t *testing.T) {
	rec := &recorder[int]{}
	q, gate, _ := gatedQueue(t, rec)

	items := make([]*Item[int], 0, 3)
	for i := 1; i <= 3; i++ {
		item, err := q.Enqueue(i)
		require.NoError(t, err)
		items = append(items, item)
	}

	stats := q.Stats()
	assert.Equal(t, 3, stats.MaxQueued)
	assert.Equal(t, 3, stats.Queued)
	assert.Equal(t, 1, stats.Busy)
	assert.Equal(t, 0, stats.Waiting)
	assert.Equal(t, 1, stats.Total)

	_, err := q.Cancel(items[2])
	require.NoError(t, err)

	// the mark was reset to the depth at the previous call
	stats = q.Stats()
	assert.Equal(t, 3, stats.MaxQueued)
	assert.Equal(t, 2, stats.Queued)

	stats = q.Stats()
	assert.Equal(t, 2, stats.MaxQueued)

	close(gate)
	require.NoError(t, q.Destroy(false))

	stats = q.Stats()
	assert.Equal(t, 2, stats.MaxQueued)
	stats = q.Stats()
	assert.Equal(t, 0, stats.MaxQueued)
	assert.True(t, stats.Idle())
	assert.Equal(t, uint64(3), stats.Completed())
	assert.Equal(t, uint64(1), stats.Canceled)
}

func TestStats_Helpers(t *testing.T) {
	tests := []struct {
		name      string
		stats     Stats
		idle      bool
		completed uint64
	}{
		{name: "empty", stats: Stats{}, idle: true, completed: 0},
		{name: "busy worker", stats: Stats{Busy: 1, Dispatched: 4}, idle: false, completed: 4},
		{name: "queued items", stats: Stats{Queued: 2, Failed: 1, Dispatched: 2}, idle: false, completed: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.idle, tt.stats.Idle())
			assert.Equal(t, tt.completed, tt.stats.Completed())
		})
	}
}

func TestQueue_StatsAfterInitErrors(t *testing.T) {
	q, err := New(&Config[int]{
		Workers:  2,
		Dispatch: func(ctx context.Context, w *Worker[int], payload int) error { return nil },
	})
	require.NoError(t, err)
	defer q.Destroy(false)

	stats := q.Stats()
	assert.Equal(t, 0, stats.InitErrors)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, stats.Total, stats.Waiting+stats.Busy)
}
