package flush

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// StallControl blocks indexing goroutines while flushing lags behind.
//
// A release wakes every goroutine waiting at that moment, even when the
// writer stalls again before they get to run.
type StallControl struct {
	mu   sync.Mutex
	cond *sync.Cond

	stalled    atomic.Bool
	releases   uint64
	numWaiting int
	wasStalled bool
}

// NewStallControl returns a healthy StallControl.
func NewStallControl() *StallControl {
	c := &StallControl{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// UpdateStalled sets the stall flag. Clearing it releases every waiter.
func (c *StallControl) UpdateStalled(stalled bool) {
	if c.stalled.Load() == stalled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stalled.Load() == stalled {
		return
	}
	c.stalled.Store(stalled)
	if stalled {
		c.wasStalled = true
		return
	}
	c.releases++
	c.cond.Broadcast()
}

// WaitIfStalled blocks until the next release if the writer is stalled.
func (c *StallControl) WaitIfStalled() {
	if !c.stalled.Load() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.stalled.Load() {
		return
	}
	release := c.releases
	c.numWaiting++
	for c.releases == release {
		c.cond.Wait()
	}
	c.numWaiting--
}

// WaitIfStalledContext is WaitIfStalled that gives up when ctx is done.
// It then returns an error wrapping both ErrStallInterrupted and ctx.Err().
func (c *StallControl) WaitIfStalledContext(ctx context.Context) error {
	if !c.stalled.Load() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.stalled.Load() {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.cond.Broadcast()
	})
	defer stop()

	release := c.releases
	c.numWaiting++
	defer func() { c.numWaiting-- }()

	for c.releases == release {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrStallInterrupted, err)
		}
		c.cond.Wait()
	}
	return nil
}

// IsHealthy reports whether the writer is not stalled.
func (c *StallControl) IsHealthy() bool { return !c.stalled.Load() }

// HasBlocked reports whether any goroutine is waiting.
func (c *StallControl) HasBlocked() bool {
	return c.NumWaiting() > 0
}

// NumWaiting returns the number of blocked goroutines.
func (c *StallControl) NumWaiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.numWaiting
}

// WasStalled reports whether the writer ever stalled.
func (c *StallControl) WasStalled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.wasStalled
}
