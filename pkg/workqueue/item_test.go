package workqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFifo_PushPopRemove(t *testing.T) {
	var l fifo[string]
	assert.Nil(t, l.popFront())

	a := &Item[string]{payload: "a"}
	b := &Item[string]{payload: "b"}
	c := &Item[string]{payload: "c"}
	l.pushBack(a)
	l.pushBack(b)
	l.pushBack(c)
	require.Equal(t, 3, l.len())
	assert.True(t, l.contains(b))

	// unlink the middle element
	l.remove(b)
	assert.False(t, l.contains(b))
	assert.Equal(t, 2, l.len())

	assert.Same(t, a, l.popFront())
	assert.False(t, l.contains(a))
	assert.Same(t, c, l.popFront())
	assert.Nil(t, l.popFront())
	assert.Equal(t, 0, l.len())

	// the list is reusable once empty
	l.pushBack(b)
	assert.Same(t, b, l.popFront())
}

func TestFifo_Drain(t *testing.T) {
	var l fifo[int]
	items := make([]*Item[int], 0, 4)
	for i := 0; i < 4; i++ {
		item := &Item[int]{payload: i}
		items = append(items, item)
		l.pushBack(item)
	}

	assert.Equal(t, []int{0, 1, 2, 3}, l.drain())
	assert.Equal(t, 0, l.len())
	for _, item := range items {
		assert.False(t, l.contains(item))
		assert.Equal(t, 0, item.payload)
	}
}

func TestItem_Release(t *testing.T) {
	payload := &struct{ n int }{n: 7}
	item := &Item[*struct{ n int }]{payload: payload}

	assert.Same(t, payload, item.release())
	assert.Nil(t, item.payload)
}
