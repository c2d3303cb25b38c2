package workqueue

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrRejected indicates the queue no longer accepts payloads because
	// shutdown has started. The caller keeps ownership of the payload.
	ErrRejected = errors.New("work queue is shutting down, enqueue rejected")

	// ErrNotFound indicates the item is not queued: it was already
	// dispatched, already canceled, or belongs to another queue.
	ErrNotFound = errors.New("work item not found")

	// ErrClosed indicates the queue has already been destroyed
	ErrClosed = errors.New("work queue is closed")

	// ErrInitFailed indicates a worker's init callback failed during New
	ErrInitFailed = errors.New("worker initialization failed")

	// ErrInvalidConfig indicates New was called with an unusable configuration
	ErrInvalidConfig = errors.New("invalid work queue config")
)

const (
	opInit     = "init"
	opDispatch = "dispatch"
	opDeinit   = "deinit"
)

// WorkerError describes a failure inside one of a worker's callbacks
type WorkerError struct {
	// Op is the callback that failed: init, dispatch or deinit
	Op string

	// WorkerID identifies the worker the callback ran on
	WorkerID int

	// Err is the underlying error
	Err error

	// Context contains diagnostic information, e.g. the stack of a recovered panic
	Context map[string]interface{}
}

func newWorkerError(op string, workerID int, err error) *WorkerError {
	return &WorkerError{
		Op:       op,
		WorkerID: workerID,
		Err:      err,
		Context:  make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d %s: %v", e.WorkerID, e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *WorkerError) Unwrap() error {
	return e.Err
}

// Is reports init failures as ErrInitFailed so callers of New can match them
func (e *WorkerError) Is(target error) bool {
	return target == ErrInitFailed && e.Op == opInit
}

// WithContext adds error context
func (e *WorkerError) WithContext(key string, value interface{}) *WorkerError {
	e.Context[key] = value
	return e
}

// ErrorHandler receives dispatch failures. The returned error is logged if non-nil.
type ErrorHandler func(err error) error
