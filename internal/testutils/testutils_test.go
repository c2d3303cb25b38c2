package testutils

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncWait(t *testing.T) {
	errBoom := errors.New("boom")
	done := Async(func() error { return errBoom })

	assert.ErrorIs(t, Wait(t, done, time.Second, "no result"), errBoom)
}

func TestWaitClosed(t *testing.T) {
	ch := make(chan struct{})
	go close(ch)

	WaitClosed(t, ch, time.Second, "channel not closed")
}

func TestContext(t *testing.T) {
	ctx := Context(t, 10*time.Millisecond)

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled")
	}
	require.Error(t, ctx.Err())
}
