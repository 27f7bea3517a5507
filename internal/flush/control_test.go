package flush

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlStallsWhenFlushingLags(t *testing.T) {
	p := NewPool(2)
	c := NewControl(ramConfig(1), p, nil)
	a, _ := obtain(t, p, "a", 1)
	b, _ := obtain(t, p, "b", 1)

	flushed := addDoc(c, a, 1536*kb)
	require.NotNil(t, flushed)
	assert.True(t, c.Stall().IsHealthy())

	assert.Nil(t, addDoc(c, b, 600*kb))
	assert.False(t, c.Stall().IsHealthy())
	assert.True(t, c.Stats().Stalled)

	c.DoAfterFlush(flushed)
	assert.True(t, c.Stall().IsHealthy())
	require.NoError(t, c.WaitIfStalled(context.Background()))

	p.Release(a)
	p.Release(b)
}

func TestControlHardLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RAMBufferSizeMB = Disabled
	cfg.MaxBufferedDocs = 1000
	cfg.RAMPerThreadHardLimitMB = 1

	p := NewPool(1)
	c := NewControl(cfg, p, nil)
	s, _ := obtain(t, p, "a", 1)

	assert.Nil(t, addDoc(c, s, 512*kb))
	assert.NotNil(t, addDoc(c, s, 1024*kb))
	p.Release(s)
}

func TestControlFullFlush(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RAMBufferSizeMB = Disabled
	cfg.MaxBufferedDocs = 2

	p := NewPool(2)
	c := NewControl(cfg, p, nil)
	a, bufA := obtain(t, p, "a", 1)
	b, _ := obtain(t, p, "b", 1)
	assert.Nil(t, addDoc(c, a, kb))
	p.Release(a)
	p.Release(b)

	gen := int64(1)
	c.MarkForFullFlush(func() int64 {
		gen++
		return gen - 1
	})
	assert.True(t, c.IsFullFlush())
	stats := c.Stats()
	assert.Equal(t, 1, stats.NumQueued)
	assert.Zero(t, stats.ActiveBytes)
	assert.Equal(t, int64(kb), stats.FlushBytes)

	// b was empty and got dropped; it comes back first and starts over on
	// the new delete queue.
	s, bufNew := obtain(t, p, "new", gen)
	assert.Same(t, b, s)
	assert.Nil(t, addDoc(c, s, kb))

	// Pending during a full flush: the new buffer is parked and the caller
	// helps with the queued one.
	helped := addDoc(c, s, kb)
	assert.Same(t, bufA, helped)
	assert.Equal(t, 1, c.Stats().NumBlocked)
	p.Release(s)

	c.DoAfterFlush(helped)
	assert.Nil(t, c.NextPendingFlush())

	c.FinishFullFlush()
	assert.False(t, c.IsFullFlush())

	next := c.NextPendingFlush()
	assert.Same(t, bufNew, next)
	c.DoAfterFlush(next)

	stats = c.Stats()
	assert.Zero(t, stats.FlushBytes)
	assert.Zero(t, stats.NumBlocked)
	assert.Zero(t, stats.NumFlushing)
}

func TestControlAbortFullFlush(t *testing.T) {
	p := NewPool(1)
	c := NewControl(ramConfig(16), p, nil)
	s, buf := obtain(t, p, "a", 1)
	assert.Nil(t, addDoc(c, s, kb))
	p.Release(s)

	c.MarkForFullFlush(func() int64 { return 1 })
	aborted := c.AbortFullFlush()

	require.Len(t, aborted, 1)
	assert.Same(t, buf, aborted[0])
	assert.False(t, c.IsFullFlush())
	assert.Zero(t, c.FlushBytes())
	assert.Zero(t, c.Stats().NumFlushing)
}

func TestControlDoOnAbort(t *testing.T) {
	p := NewPool(1)
	c := NewControl(ramConfig(16), p, nil)
	s, buf := obtain(t, p, "a", 1)
	assert.Nil(t, addDoc(c, s, 4*kb))
	assert.Equal(t, int64(4*kb), c.ActiveBytes())

	assert.Same(t, buf, c.DoOnAbort(s))
	assert.Zero(t, c.ActiveBytes())
	assert.False(t, s.IsInitialized())
	p.Release(s)
}

func TestControlCheckoutLargest(t *testing.T) {
	p := NewPool(2)
	c := NewControl(ramConfig(16), p, nil)
	a, _ := obtain(t, p, "a", 1)
	b, bufB := obtain(t, p, "b", 1)
	assert.Nil(t, addDoc(c, a, kb))
	assert.Nil(t, addDoc(c, b, 8*kb))

	// Busy states cannot be checked out.
	assert.Nil(t, c.CheckoutLargest())
	assert.Equal(t, int64(1), c.NumPending())

	p.Release(a)
	p.Release(b)
	got := c.CheckoutLargest()
	assert.Same(t, bufB, got)
	assert.Zero(t, c.NumPending())
	c.DoAfterFlush(got)
}

func TestControlWaitForFlush(t *testing.T) {
	p := NewPool(1)
	cfg := DefaultConfig()
	cfg.MaxBufferedDocs = 2
	c := NewControl(cfg, p, nil)
	s, _ := obtain(t, p, "a", 1)
	addDoc(c, s, kb)
	flushed := addDoc(c, s, kb)
	require.NotNil(t, flushed)
	p.Release(s)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.WaitForFlush(ctx), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- c.WaitForFlush(context.Background()) }()
	time.Sleep(5 * time.Millisecond)
	c.DoAfterFlush(flushed)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForFlush not woken")
	}
}

func TestControlSetClosedReleasesStall(t *testing.T) {
	p := NewPool(2)
	c := NewControl(ramConfig(1), p, nil)
	a, _ := obtain(t, p, "a", 1)
	b, _ := obtain(t, p, "b", 1)
	require.NotNil(t, addDoc(c, a, 1536*kb))
	addDoc(c, b, 600*kb)
	require.False(t, c.Stall().IsHealthy())

	c.SetClosed()
	assert.True(t, c.Stall().IsHealthy())
	p.Release(a)
	p.Release(b)
}
