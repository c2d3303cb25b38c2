// Package retry retries broker operations with exponential backoff
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy decides whether and when to try again
type Policy interface {
	// ShouldRetry reports whether attempt, which failed with err, may be retried
	ShouldRetry(err error, attempt int) bool

	// NextDelay returns the wait before the attempt after attempt
	NextDelay(attempt int) time.Duration

	// MaxAttempts returns the attempt limit, including the first try
	MaxAttempts() int
}

// Condition reports whether an error is worth retrying
type Condition func(error) bool

// Backoff is an exponential backoff policy with optional jitter
type Backoff struct {
	maxAttempts  int
	initialDelay time.Duration
	multiplier   float64
	maxDelay     time.Duration
	jitterFactor float64
	condition    Condition
}

// Option configures a Backoff
type Option func(*Backoff)

// NewBackoff creates an exponential backoff policy
func NewBackoff(maxAttempts int, initialDelay time.Duration, opts ...Option) *Backoff {
	b := &Backoff{
		maxAttempts:  maxAttempts,
		initialDelay: initialDelay,
		multiplier:   2.0,
		maxDelay:     30 * time.Second,
		condition:    DefaultCondition,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// WithMultiplier sets the growth factor between attempts
func WithMultiplier(multiplier float64) Option {
	return func(b *Backoff) {
		if multiplier >= 1 {
			b.multiplier = multiplier
		}
	}
}

// WithMaxDelay caps the delay between attempts
func WithMaxDelay(maxDelay time.Duration) Option {
	return func(b *Backoff) {
		if maxDelay > 0 {
			b.maxDelay = maxDelay
		}
	}
}

// WithJitter spreads each delay by up to factor in either direction
func WithJitter(factor float64) Option {
	return func(b *Backoff) {
		if factor > 0 && factor <= 1.0 {
			b.jitterFactor = factor
		}
	}
}

// WithCondition replaces DefaultCondition
func WithCondition(condition Condition) Option {
	return func(b *Backoff) {
		b.condition = condition
	}
}

// ShouldRetry reports whether attempt may be retried
func (b *Backoff) ShouldRetry(err error, attempt int) bool {
	if attempt >= b.maxAttempts {
		return false
	}
	return b.condition(err)
}

// NextDelay returns initialDelay * multiplier^(attempt-1), capped at maxDelay
func (b *Backoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	delay := time.Duration(float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt-1)))
	if delay > b.maxDelay || delay < 0 {
		delay = b.maxDelay
	}

	return b.applyJitter(delay)
}

// MaxAttempts returns the attempt limit
func (b *Backoff) MaxAttempts() int {
	return b.maxAttempts
}

func (b *Backoff) applyJitter(delay time.Duration) time.Duration {
	if b.jitterFactor == 0 || delay <= 0 {
		return delay
	}

	jitterRange := float64(delay) * b.jitterFactor
	jitterAmount := (rand.Float64() - 0.5) * 2 * jitterRange

	result := delay + time.Duration(jitterAmount)
	if result < 0 {
		result = delay / 2
	}
	return result
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// DefaultCondition retries everything except context and permanent errors
func DefaultCondition(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !IsPermanent(err)
}
