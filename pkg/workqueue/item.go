package workqueue

// Item is the handle returned by Enqueue. It wraps one payload while the
// payload waits in the queue and can be passed to Cancel.
type Item[T any] struct {
	payload T

	// linkage, guarded by the owning queue's job lock
	next, prev *Item[T]
	list       *fifo[T]
}

// fifo is an intrusive doubly linked list of items. All methods must be
// called with the job lock held.
type fifo[T any] struct {
	head, tail *Item[T]
	size       int
}

func (l *fifo[T]) len() int {
	return l.size
}

// contains reports whether item is currently linked into l
func (l *fifo[T]) contains(item *Item[T]) bool {
	return item != nil && item.list == l
}

func (l *fifo[T]) pushBack(item *Item[T]) {
	item.list = l
	item.next = nil
	item.prev = l.tail
	if l.tail != nil {
		l.tail.next = item
	} else {
		l.head = item
	}
	l.tail = item
	l.size++
}

// popFront unlinks and returns the oldest item, or nil if l is empty
func (l *fifo[T]) popFront() *Item[T] {
	item := l.head
	if item == nil {
		return nil
	}
	l.remove(item)
	return item
}

func (l *fifo[T]) remove(item *Item[T]) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		l.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		l.tail = item.prev
	}
	item.next, item.prev, item.list = nil, nil, nil
	l.size--
}

// drain unlinks every item and returns their payloads in FIFO order
func (l *fifo[T]) drain() []T {
	payloads := make([]T, 0, l.size)
	for item := l.popFront(); item != nil; item = l.popFront() {
		payloads = append(payloads, item.release())
	}
	return payloads
}

// release drops the item's reference to its payload and returns it
func (item *Item[T]) release() T {
	payload := item.payload
	var zero T
	item.payload = zero
	return payload
}
