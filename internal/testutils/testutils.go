// Package testutils provides helpers for tests that wait on goroutines
package testutils

import (
	"context"
	"testing"
	"time"
)

// DefaultTimeout bounds waits on work that should finish promptly
const DefaultTimeout = 5 * time.Second

// Context returns a context cancelled after timeout or when the test ends
func Context(t testing.TB, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// Async runs fn on its own goroutine and delivers its result
func Async(fn func() error) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()
	return done
}

// Wait returns the next value from ch, failing the test with msg if none
// arrives within timeout
func Wait[T any](t testing.TB, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatal(msg)
	}
	var zero T
	return zero
}

// WaitClosed fails the test with msg unless ch is closed within timeout
func WaitClosed(t testing.TB, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatal(msg)
	}
}
