/*
Package workqueue provides a fixed-size worker pool draining a shared,
unbounded FIFO of opaque payloads.

# Overview

A Queue is created with a worker count and three callbacks:
- Init runs once on each worker before it takes any item
- Dispatch runs once per payload, outside the queue's lock
- Deinit runs once on each worker after it stops taking items

New starts the workers one at a time and waits for each Init. If any Init
fails, the workers already running are stopped and New returns an error
matching ErrInitFailed, so a partially started queue is never returned.

# Ordering and Ownership

Items are dispatched strictly in enqueue order from a single queue. Enqueue
never blocks: there is no capacity limit. Ownership of a payload moves to
Dispatch when a worker takes it; the queue only keeps the Item handle, which
can be passed to Cancel until a worker picks the item up.

# Worker Lifecycle

Each worker moves through starting, waiting, dispatching and exiting:

	starting -> waiting <-> dispatching -> exiting

A worker told to quit never takes a fresh item, even if items are still
queued. Graceful shutdown drains the queue before telling workers to quit, so
this only loses items when shutting down with abandon set.

# Shutdown

Destroy(false) refuses new items, waits for workers to take everything that
is queued, then stops the workers. Destroy(true) stops the workers right
away; items still queued are handed to Config.OnAbandon if set. Both wait
for every worker to finish its current dispatch and run Deinit.

Dispatch receives a context that is cancelled when workers are told to
quit, and ShuttingDown reports the same condition for code that polls.
Nothing is ever preempted: a callback that never returns blocks Destroy.

# Per-Worker Values

Callbacks receive the *Worker they run on. Worker.SetValue and Worker.Value
give each worker a private slot, typically a connection opened in Init, used
in Dispatch, and closed in Deinit.

# Convenience Lock

Lock and Unlock guard a critical section shared by callbacks. The queue never
takes this lock itself and puts no limit on how long it is held. Set
Config.DetectDeadlocks to back it with a go-deadlock mutex while debugging.

# Statistics

Stats returns worker counts, queue depth and cumulative counters. MaxQueued
is the peak depth since the previous Stats call; each call resets it to the
current depth.

# Usage Examples

Basic usage:

	q, err := workqueue.New(&workqueue.Config[string]{
		Workers: 4,
		Dispatch: func(ctx context.Context, w *workqueue.Worker[string], msg string) error {
			return send(ctx, msg)
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	if _, err := q.Enqueue("hello"); errors.Is(err, workqueue.ErrRejected) {
		log.Println("queue is shutting down")
	}

	// drain what is queued, then stop
	q.Destroy(false)

Per-worker connections:

	cfg := &workqueue.Config[[]byte]{
		Workers: 2,
		Init: func(w *workqueue.Worker[[]byte]) error {
			conn, err := dial()
			if err != nil {
				return err
			}
			w.SetValue(conn)
			return nil
		},
		Deinit: func(w *workqueue.Worker[[]byte]) {
			w.Value().(net.Conn).Close()
		},
		Dispatch: func(ctx context.Context, w *workqueue.Worker[[]byte], b []byte) error {
			_, err := w.Value().(net.Conn).Write(b)
			return err
		},
	}
*/
package workqueue
