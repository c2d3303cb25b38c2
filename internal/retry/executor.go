package retry

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/coder/quartz"
	"k8s.io/klog/v2"
)

// Func is an operation to retry
type Func func(ctx context.Context) error

// Error is returned when an operation fails for good
type Error struct {
	Op          string
	Attempts    int
	MaxAttempts int
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed after %d/%d attempts: %v", e.Op, e.Attempts, e.MaxAttempts, e.Err)
}

// Unwrap returns the last attempt's error
func (e *Error) Unwrap() error {
	return e.Err
}

// Stats holds cumulative executor counters
type Stats struct {
	Attempts  uint64
	Retries   uint64
	Successes uint64
	Failures  uint64
}

// Executor runs operations under a Policy
type Executor struct {
	policy  Policy
	clock   quartz.Clock
	onRetry func(op string, attempt int, err error)

	attempts  atomic.Uint64
	retries   atomic.Uint64
	successes atomic.Uint64
	failures  atomic.Uint64
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithClock sets the clock used for delays
func WithClock(clock quartz.Clock) ExecutorOption {
	return func(e *Executor) {
		e.clock = clock
	}
}

// WithOnRetry registers a hook called before every retry
func WithOnRetry(fn func(op string, attempt int, err error)) ExecutorOption {
	return func(e *Executor) {
		e.onRetry = fn
	}
}

// NewExecutor creates an executor for policy
func NewExecutor(policy Policy, opts ...ExecutorOption) *Executor {
	e := &Executor{
		policy: policy,
		clock:  quartz.NewReal(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Do runs fn until it succeeds, the policy gives up, or ctx is done
func (e *Executor) Do(ctx context.Context, op string, fn Func) error {
	attempt := 0

	for {
		attempt++
		e.attempts.Add(1)

		if err := ctx.Err(); err != nil {
			e.failures.Add(1)
			return err
		}

		err := fn(ctx)
		if err == nil {
			e.successes.Add(1)
			if attempt > 1 {
				klog.V(3).InfoS("Retry succeeded", "op", op, "attempt", attempt)
			}
			return nil
		}

		if !e.policy.ShouldRetry(err, attempt) {
			e.failures.Add(1)
			return &Error{Op: op, Attempts: attempt, MaxAttempts: e.policy.MaxAttempts(), Err: err}
		}

		e.retries.Add(1)
		if e.onRetry != nil {
			e.onRetry(op, attempt, err)
		}

		delay := e.policy.NextDelay(attempt)
		klog.V(3).InfoS("Retrying", "op", op, "attempt", attempt, "delay", delay, "err", err)

		if delay > 0 {
			timer := e.clock.NewTimer(delay, "retry", op)
			select {
			case <-ctx.Done():
				timer.Stop()
				e.failures.Add(1)
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// Stats returns the executor counters
func (e *Executor) Stats() Stats {
	return Stats{
		Attempts:  e.attempts.Load(),
		Retries:   e.retries.Load(),
		Successes: e.successes.Load(),
		Failures:  e.failures.Load(),
	}
}
