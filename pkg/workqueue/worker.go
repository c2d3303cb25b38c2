package workqueue

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"k8s.io/klog/v2"
)

// WorkerState defines the state of a Worker
type WorkerState int32

const (
	// WorkerStarting represents a worker running its init callback
	WorkerStarting WorkerState = iota
	// WorkerWaiting represents an idle worker waiting for items
	WorkerWaiting
	// WorkerDispatching represents a worker running the dispatch callback
	WorkerDispatching
	// WorkerExiting represents a worker running its deinit callback or gone
	WorkerExiting
)

// String returns the string representation of WorkerState
func (ws WorkerState) String() string {
	switch ws {
	case WorkerStarting:
		return "starting"
	case WorkerWaiting:
		return "waiting"
	case WorkerDispatching:
		return "dispatching"
	case WorkerExiting:
		return "exiting"
	default:
		return "unknown"
	}
}

// Worker is one long-lived worker goroutine of a Queue. It is handed to
// every callback and carries a per-worker value slot.
type Worker[T any] struct {
	id    int
	queue *Queue[T]
	state int32 // atomic WorkerState

	// value is only touched from this worker's goroutine
	value any

	// initErr is written before initErrors is bumped, under the job lock
	initErr error
}

// ID returns the worker ID, unique within its queue
func (w *Worker[T]) ID() int {
	return w.id
}

// Queue returns the queue this worker drains
func (w *Worker[T]) Queue() *Queue[T] {
	return w.queue
}

// State returns the current worker state
func (w *Worker[T]) State() WorkerState {
	return WorkerState(atomic.LoadInt32(&w.state))
}

func (w *Worker[T]) setState(state WorkerState) {
	atomic.StoreInt32(&w.state, int32(state))
}

// Value returns the worker's private value, or nil if none was set.
// The queue never inspects or releases it; clean it up in Deinit.
func (w *Worker[T]) Value() any {
	return w.value
}

// SetValue stores a private value for this worker, typically a connection
// opened in Init and used by Dispatch.
func (w *Worker[T]) SetValue(v any) {
	w.value = v
}

// run is the worker goroutine: init, then wait/dispatch until told to quit, then deinit
func (q *Queue[T]) run(w *Worker[T]) {
	if q.config.MaskSignals {
		restore := blockSignals()
		defer restore()
	}

	klog.V(4).InfoS("Worker started", "worker", w.id)

	if err := q.callInit(w); err != nil {
		klog.ErrorS(err, "Could not initialize worker", "worker", w.id)
		w.setState(WorkerExiting)
		q.mu.Lock()
		w.initErr = err
		q.initErrors++
		q.countChanged.Broadcast()
		q.mu.Unlock()
		return
	}

	q.mu.Lock()
	q.total++
	q.waiting++
	w.setState(WorkerWaiting)
	q.countChanged.Broadcast()

	for {
		for q.items.len() == 0 && !q.mustQuit {
			q.itemAdded.Wait()
		}

		// queued items are left behind once quitting; graceful teardown drains first
		if q.mustQuit {
			break
		}

		item := q.items.popFront()
		q.waiting--
		q.busy++
		q.queued--
		q.itemRemoved.Broadcast()
		w.setState(WorkerDispatching)
		q.mu.Unlock()

		err := q.callDispatch(w, item.release())
		if err != nil {
			q.handleError(err)
		}

		q.mu.Lock()
		q.busy--
		q.waiting++
		if err != nil {
			q.failed++
		} else {
			q.dispatched++
		}
		w.setState(WorkerWaiting)
	}

	w.setState(WorkerExiting)
	q.mu.Unlock()

	q.callDeinit(w)

	q.mu.Lock()
	q.total--
	q.waiting--
	q.countChanged.Broadcast()
	q.mu.Unlock()

	klog.V(4).InfoS("Worker terminated", "worker", w.id)
}

func (q *Queue[T]) callInit(w *Worker[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(opInit, w.id, r)
		}
	}()

	if q.config.Init == nil {
		return nil
	}
	if err := q.config.Init(w); err != nil {
		return newWorkerError(opInit, w.id, err)
	}
	return nil
}

func (q *Queue[T]) callDispatch(w *Worker[T], payload T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(opDispatch, w.id, r)
		}
	}()

	if err := q.config.Dispatch(q.ctx, w, payload); err != nil {
		return newWorkerError(opDispatch, w.id, err)
	}
	return nil
}

func (q *Queue[T]) callDeinit(w *Worker[T]) {
	defer func() {
		if r := recover(); r != nil {
			klog.ErrorS(recovered(opDeinit, w.id, r), "Worker deinit panicked", "worker", w.id)
		}
	}()

	if q.config.Deinit != nil {
		q.config.Deinit(w)
	}
}

// recovered converts a recovered panic value into a WorkerError carrying the stack
func recovered(op string, workerID int, r interface{}) *WorkerError {
	var buf [4096]byte
	n := runtime.Stack(buf[:], false)

	var cause error
	switch v := r.(type) {
	case error:
		cause = fmt.Errorf("panic: %w", v)
	default:
		cause = fmt.Errorf("panic: %v", v)
	}

	return newWorkerError(op, workerID, cause).WithContext("stack_trace", string(buf[:n]))
}

// handleError passes a dispatch failure to the configured handler, logging
// whatever the handler does not absorb.
func (q *Queue[T]) handleError(err error) {
	if q.config.ErrorHandler != nil {
		err = q.config.ErrorHandler(err)
	}
	if err != nil {
		klog.ErrorS(err, "Dispatch failed")
	}
}
