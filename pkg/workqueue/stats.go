package workqueue

// Stats is a point-in-time snapshot of a queue's counters
type Stats struct {
	// Total is the number of live workers
	Total int
	// Waiting is the number of workers waiting for an item
	Waiting int
	// Busy is the number of workers running Dispatch
	Busy int
	// MaxQueued is the highest queue depth seen since the previous Stats call
	MaxQueued int
	// Queued is the current queue depth
	Queued int
	// InitErrors counts workers whose Init failed
	InitErrors int

	// Dispatched counts dispatches that returned without error
	Dispatched uint64
	// Failed counts dispatches that returned an error or panicked
	Failed uint64
	// Canceled counts items removed by Cancel
	Canceled uint64
	// Rejected counts Enqueue calls refused during shutdown
	Rejected uint64
	// Abandoned counts items left undispatched by Destroy
	Abandoned uint64
}

// Stats returns a consistent snapshot of the queue counters and then resets
// the high-water mark to the current queue depth, so each call reports the
// peak depth since the previous call.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Stats{
		Total:      q.total,
		Waiting:    q.waiting,
		Busy:       q.busy,
		MaxQueued:  q.maxQueued,
		Queued:     q.queued,
		InitErrors: q.initErrors,
		Dispatched: q.dispatched,
		Failed:     q.failed,
		Canceled:   q.canceled,
		Rejected:   q.rejected,
		Abandoned:  q.abandoned,
	}

	q.maxQueued = q.queued
	return stats
}

// Idle reports whether no worker is dispatching and nothing is queued
func (s Stats) Idle() bool {
	return s.Busy == 0 && s.Queued == 0
}

// Completed returns the number of items that went through Dispatch
func (s Stats) Completed() uint64 {
	return s.Dispatched + s.Failed
}
