package flush

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStallHealthyDoesNotBlock(t *testing.T) {
	s := NewStallControl()
	s.WaitIfStalled()
	require.NoError(t, s.WaitIfStalledContext(context.Background()))

	assert.True(t, s.IsHealthy())
	assert.False(t, s.WasStalled())
	assert.False(t, s.HasBlocked())
}

func TestStallFairness(t *testing.T) {
	const n = 8
	s := NewStallControl()
	s.UpdateStalled(true)

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.WaitIfStalled()
		}()
	}
	require.Eventually(t, func() bool { return s.NumWaiting() == n }, 5*time.Second, time.Millisecond)
	assert.True(t, s.HasBlocked())

	// Re-stalling right after the release must not trap anyone.
	s.UpdateStalled(false)
	s.UpdateStalled(true)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("waiters not released")
	}

	assert.Zero(t, s.NumWaiting())
	assert.False(t, s.IsHealthy())
	assert.True(t, s.WasStalled())
}

func TestStallContextInterrupted(t *testing.T) {
	s := NewStallControl()
	s.UpdateStalled(true)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.WaitIfStalledContext(ctx) }()

	require.Eventually(t, func() bool { return s.NumWaiting() == 1 }, 5*time.Second, time.Millisecond)
	cancel()

	err := <-errc
	assert.ErrorIs(t, err, ErrStallInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, s.NumWaiting())
	assert.False(t, s.IsHealthy())
}

func TestStallContextReleased(t *testing.T) {
	s := NewStallControl()
	s.UpdateStalled(true)

	errc := make(chan error, 1)
	go func() { errc <- s.WaitIfStalledContext(context.Background()) }()

	require.Eventually(t, func() bool { return s.NumWaiting() == 1 }, 5*time.Second, time.Millisecond)
	s.UpdateStalled(false)

	require.NoError(t, <-errc)
	assert.True(t, s.IsHealthy())
}

func TestStallAlreadyCancelled(t *testing.T) {
	s := NewStallControl()
	s.UpdateStalled(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.WaitIfStalledContext(ctx), ErrStallInterrupted)
}
