package workqueue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sasha-s/go-deadlock"
	"k8s.io/klog/v2"
)

// InitFunc prepares a worker before it takes any item. Returning an error
// makes New fail and tear down every worker already started.
type InitFunc[T any] func(w *Worker[T]) error

// DeinitFunc releases whatever Init set up. It runs once per successfully
// initialized worker, on that worker's goroutine.
type DeinitFunc[T any] func(w *Worker[T])

// DispatchFunc processes one payload and owns it from then on: it must
// dispose of it or enqueue it again. ctx is cancelled once the queue starts
// stopping its workers; long dispatches should check it.
type DispatchFunc[T any] func(ctx context.Context, w *Worker[T], payload T) error

// Config defines configuration for a work queue
type Config[T any] struct {
	// Workers is the fixed number of worker goroutines
	Workers int

	// MaskSignals blocks SIGINT, SIGHUP, SIGCHLD, SIGTERM and SIGPIPE on
	// each worker's OS thread for the worker's lifetime (Linux only)
	MaskSignals bool

	// Init runs once per worker before it takes work (optional)
	Init InitFunc[T]

	// Deinit runs once per worker after it stops taking work (optional)
	Deinit DeinitFunc[T]

	// Dispatch processes each payload (required)
	Dispatch DispatchFunc[T]

	// ErrorHandler receives dispatch errors (optional, errors are logged by default)
	ErrorHandler ErrorHandler

	// OnAbandon receives payloads still queued when Destroy stops the
	// workers without draining (optional, they are dropped by default)
	OnAbandon func(payload T)

	// DetectDeadlocks makes the convenience lock report waits longer than
	// deadlock.Opts.DeadlockTimeout. Off by default, since collaborators may
	// hold it for as long as they like.
	DetectDeadlocks bool
}

// Queue is a fixed pool of workers draining an unbounded FIFO of payloads
type Queue[T any] struct {
	config Config[T]

	// mu is the job lock; it guards everything below down to the callbacks
	mu           deadlock.Mutex
	itemAdded    *sync.Cond
	itemRemoved  *sync.Cond
	countChanged *sync.Cond

	total      int
	waiting    int
	busy       int
	initErrors int

	mustQuit       bool
	refuseEnqueues bool
	destroyed      bool

	items     fifo[T]
	queued    int
	maxQueued int

	dispatched uint64
	failed     uint64
	canceled   uint64
	rejected   uint64
	abandoned  uint64

	// quitting mirrors mustQuit for lock-free polling
	quitting atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc

	// conv is the convenience lock, never taken by the queue itself
	conv sync.Locker
}

// New creates a work queue and starts config.Workers workers, waiting for
// each one's Init to finish before starting the next. If any Init fails,
// the workers already running are stopped and the error is returned.
func New[T any](config *Config[T]) (*Queue[T], error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if config.Workers <= 0 {
		return nil, fmt.Errorf("%w: worker count must be positive, got %d", ErrInvalidConfig, config.Workers)
	}
	if config.Dispatch == nil {
		return nil, fmt.Errorf("%w: dispatch callback is required", ErrInvalidConfig)
	}

	q := &Queue[T]{config: *config}
	if config.DetectDeadlocks {
		q.conv = &deadlock.Mutex{}
	} else {
		q.conv = &sync.Mutex{}
	}
	q.itemAdded = sync.NewCond(&q.mu)
	q.itemRemoved = sync.NewCond(&q.mu)
	q.countChanged = sync.NewCond(&q.mu)
	q.ctx, q.cancel = context.WithCancel(context.Background())

	for id := 0; id < config.Workers; id++ {
		if err := q.addWorker(id); err != nil {
			// nothing can be queued yet, so abandoning loses no work
			q.teardown(true)
			return nil, err
		}
	}

	klog.V(2).InfoS("Work queue started", "workers", config.Workers)
	return q, nil
}

// addWorker starts one worker and blocks until its Init has either
// succeeded or failed.
func (q *Queue[T]) addWorker(id int) error {
	w := &Worker[T]{id: id, queue: q}

	q.mu.Lock()
	defer q.mu.Unlock()

	total := q.total
	initErrors := q.initErrors

	go q.run(w)

	// countChanged is broadcast on every change of total or initErrors
	for total == q.total && initErrors == q.initErrors {
		q.countChanged.Wait()
	}

	if total == q.total {
		return w.initErr
	}
	return nil
}

// Enqueue appends payload to the tail of the queue and wakes a waiting
// worker. It never blocks on capacity. Once Destroy has started it returns
// ErrRejected and the caller keeps ownership of payload.
func (q *Queue[T]) Enqueue(payload T) (*Item[T], error) {
	item := &Item[T]{payload: payload}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.refuseEnqueues {
		q.rejected++
		return nil, ErrRejected
	}

	q.items.pushBack(item)
	q.queued++
	if q.queued > q.maxQueued {
		q.maxQueued = q.queued
	}

	q.itemAdded.Signal()
	return item, nil
}

// Cancel removes an item that no worker has taken yet and hands its payload
// back to the caller. It returns ErrNotFound if the item was already
// dispatched, already canceled, or was never queued here.
func (q *Queue[T]) Cancel(item *Item[T]) (T, error) {
	var zero T

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.items.contains(item) {
		return zero, ErrNotFound
	}

	q.items.remove(item)
	q.queued--
	q.canceled++
	q.itemRemoved.Broadcast()

	return item.release(), nil
}

// ShuttingDown reports whether workers have been told to quit. Long
// dispatches may poll it to give up early.
func (q *Queue[T]) ShuttingDown() bool {
	return q.quitting.Load()
}

// Lock acquires the convenience lock. It is unrelated to the queue's own
// bookkeeping and exists for callbacks that need a shared critical section.
func (q *Queue[T]) Lock() {
	q.conv.Lock()
}

// Unlock releases the convenience lock. Unlocking a lock that is not held
// is a fatal error.
func (q *Queue[T]) Unlock() {
	q.conv.Unlock()
}

// Destroy stops the queue. With abandon false it first refuses new items
// and waits until workers have taken every queued item; with abandon true
// it stops workers right away and queued items are never dispatched.
// Either way it returns once every worker has run Deinit and exited.
//
// There is no timeout: a callback that never returns blocks Destroy forever.
func (q *Queue[T]) Destroy(abandon bool) error {
	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.destroyed = true
	q.mu.Unlock()

	q.teardown(abandon)
	return nil
}

func (q *Queue[T]) teardown(abandon bool) {
	q.mu.Lock()
	q.destroyed = true
	q.refuseEnqueues = true

	if !abandon {
		klog.V(2).InfoS("Waiting for queue to empty", "queued", q.queued)
		for q.items.len() > 0 {
			q.itemRemoved.Wait()
		}
		klog.V(2).InfoS("Queue is empty")
	}

	klog.V(2).InfoS("Waiting for workers to exit", "workers", q.total)
	q.mustQuit = true
	q.quitting.Store(true)
	q.cancel()

	for q.total > 0 {
		q.itemAdded.Broadcast()
		q.countChanged.Wait()
		klog.V(4).InfoS("Current workers", "workers", q.total)
	}

	left := q.items.drain()
	q.queued = 0
	q.abandoned += uint64(len(left))
	q.mu.Unlock()

	if len(left) > 0 {
		klog.V(2).InfoS("Abandoned queued items", "count", len(left))
		if q.config.OnAbandon != nil {
			for _, payload := range left {
				q.config.OnAbandon(payload)
			}
		}
	}
}
