package flush

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
)

// DeleteStats reports the RAM and term count of deletes buffered outside
// the per-thread buffers.
type DeleteStats interface {
	BytesUsed() int64
	NumGlobalTermDeletes() int64
}

type blockedFlush struct {
	buffer Buffer
	bytes  int64
}

// Stats is a snapshot of a Control's counters.
type Stats struct {
	ActiveBytes  int64
	FlushBytes   int64
	DeleteBytes  int64
	NumPending   int64
	NumFlushing  int
	NumQueued    int
	NumBlocked   int
	Stalled      bool
	FullFlush    bool
	PeakActive   int64
	PeakFlush    int64
	PeakNetBytes int64
}

// Control tracks the RAM of active and flushing buffers and hands pending
// buffers to goroutines for flushing.
type Control struct {
	mu   sync.Mutex
	cond *sync.Cond // signalled when a flush finishes

	cfg     Config
	policy  Policy
	pool    *Pool
	stall   *StallControl
	deletes DeleteStats
	logger  *slog.Logger

	activeBytes atomic.Int64
	flushBytes  atomic.Int64
	numPending  atomic.Int64

	applyAllDeletes atomic.Bool

	flushing   map[Buffer]int64
	flushQueue []Buffer
	blocked    []blockedFlush
	fullFlush  bool
	closed     bool

	peakActive int64
	peakFlush  int64
	peakNet    int64
}

// Option configures a Control.
type Option func(*Control)

// WithPolicy replaces the default RAMOrCountsPolicy.
func WithPolicy(p Policy) Option {
	return func(c *Control) { c.policy = p }
}

// WithLogger sets the logger for flush decisions.
func WithLogger(l *slog.Logger) Option {
	return func(c *Control) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStallControl shares an existing StallControl.
func WithStallControl(s *StallControl) Option {
	return func(c *Control) { c.stall = s }
}

// NewControl returns a Control over pool's states. deletes may be nil.
func NewControl(cfg Config, pool *Pool, deletes DeleteStats, opts ...Option) *Control {
	c := &Control{
		cfg:      cfg,
		pool:     pool,
		deletes:  deletes,
		flushing: make(map[Buffer]int64),
		logger:   slog.New(slog.DiscardHandler),
	}
	c.cond = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}
	if c.policy == nil {
		c.policy = NewRAMOrCountsPolicy(cfg)
	}
	if c.stall == nil {
		c.stall = NewStallControl()
	}
	return c
}

// ActiveBytes returns the RAM of buffers still accepting documents.
func (c *Control) ActiveBytes() int64 { return c.activeBytes.Load() }

// FlushBytes returns the RAM of pending and flushing buffers.
func (c *Control) FlushBytes() int64 { return c.flushBytes.Load() }

// NetBytes returns ActiveBytes plus FlushBytes.
func (c *Control) NetBytes() int64 { return c.activeBytes.Load() + c.flushBytes.Load() }

// NumPending returns the buffers marked pending but not checked out.
func (c *Control) NumPending() int64 { return c.numPending.Load() }

// DeleteBytes returns the RAM of globally buffered deletes.
func (c *Control) DeleteBytes() int64 {
	if c.deletes == nil {
		return 0
	}
	return c.deletes.BytesUsed()
}

// NumGlobalTermDeletes returns the number of globally buffered term deletes.
func (c *Control) NumGlobalTermDeletes() int64 {
	if c.deletes == nil {
		return 0
	}
	return c.deletes.NumGlobalTermDeletes()
}

// Stall returns the stall controller.
func (c *Control) Stall() *StallControl { return c.stall }

// WaitIfStalled blocks while the writer is stalled.
func (c *Control) WaitIfStalled(ctx context.Context) error {
	return c.stall.WaitIfStalledContext(ctx)
}

// AnyStalledThreads reports whether goroutines are blocked on a stall.
func (c *Control) AnyStalledThreads() bool { return c.stall.HasBlocked() }

// SetApplyAllDeletes requests that buffered deletes be applied.
func (c *Control) SetApplyAllDeletes() { c.applyAllDeletes.Store(true) }

// GetAndResetApplyAllDeletes returns and clears the apply-deletes request.
func (c *Control) GetAndResetApplyAllDeletes() bool { return c.applyAllDeletes.Swap(false) }

// SetFlushPending marks s pending. Empty buffers are never marked. Callers
// must hold the control lock, as Policies do.
func (c *Control) SetFlushPending(s *ThreadState) {
	if s.flushPending.Load() || s.numDocs == 0 {
		return
	}
	s.flushPending.Store(true)
	c.flushBytes.Add(s.bytesUsed)
	c.activeBytes.Add(-s.bytesUsed)
	c.numPending.Add(1)
}

// FindLargestNonPending returns the non-pending state with the most RAM,
// falling back to s. Callers must hold the control lock.
func (c *Control) FindLargestNonPending(s *ThreadState) *ThreadState {
	largest := s
	maxBytes := s.bytesUsed
	for _, next := range c.pool.States() {
		if next.flushPending.Load() || next.numDocs == 0 {
			continue
		}
		if next.bytesUsed > maxBytes {
			largest, maxBytes = next, next.bytesUsed
		}
	}
	return largest
}

func (c *Control) commitPerThreadBytes(s *ThreadState) {
	delta := s.buffer.BytesUsed() - s.bytesUsed
	s.bytesUsed += delta
	s.numDocs = s.buffer.NumDocs()
	if s.flushPending.Load() {
		c.flushBytes.Add(delta)
	} else {
		c.activeBytes.Add(delta)
	}
}

// DoAfterDocument commits s's RAM, runs the policy and returns a buffer the
// caller must flush, or nil. The caller holds s's lock.
func (c *Control) DoAfterDocument(s *ThreadState, isUpdate bool) Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.commitPerThreadBytes(s)
	if !s.flushPending.Load() {
		if isUpdate {
			c.policy.OnUpdate(c, s)
		} else {
			c.policy.OnInsert(c, s)
		}
		if !s.flushPending.Load() && s.bytesUsed > c.cfg.hardLimitBytes() {
			c.logger.Warn("flush: buffer over per-thread hard limit",
				"state", s.ord, "bytes", s.bytesUsed, "limit", c.cfg.hardLimitBytes())
			c.SetFlushPending(s)
		}
	}

	var toFlush Buffer
	if c.fullFlush {
		if s.flushPending.Load() {
			c.checkoutAndBlock(s)
			toFlush = c.popQueued()
		}
	} else {
		toFlush = c.checkoutLocked(s)
	}
	c.updateStallState()
	c.updatePeaks()
	return toFlush
}

// DoOnDelete runs the policy after a delete.
func (c *Control) DoOnDelete() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.policy.OnDelete(c, nil)
}

// DoAfterFlush releases the RAM of a flushed (or failed) buffer.
func (c *Control) DoAfterFlush(b Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bytes, ok := c.flushing[b]
	invariant(ok, "buffer was not checked out for flushing")
	delete(c.flushing, b)
	c.flushBytes.Add(-bytes)
	c.updateStallState()
	c.cond.Broadcast()
}

// DoOnAbort releases s's RAM and detaches its buffer, which is returned so
// the caller can discard it. The caller holds s's lock.
func (c *Control) DoOnAbort(s *ThreadState) Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.flushPending.Load() {
		c.flushBytes.Add(-s.bytesUsed)
		c.numPending.Add(-1)
	} else {
		c.activeBytes.Add(-s.bytesUsed)
	}
	b := s.reset()
	c.updateStallState()
	return b
}

// checkoutLocked detaches a pending buffer from s, whose lock the caller
// holds.
func (c *Control) checkoutLocked(s *ThreadState) Buffer {
	if !s.flushPending.Load() || s.buffer == nil {
		return nil
	}
	bytes := s.bytesUsed
	b := s.reset()
	c.numPending.Add(-1)
	c.flushing[b] = bytes
	return b
}

// tryCheckout checks out a pending buffer from a state nobody holds.
func (c *Control) tryCheckout(s *ThreadState) Buffer {
	if !s.flushPending.Load() || !s.TryLock() {
		return nil
	}
	defer s.Unlock()
	return c.checkoutLocked(s)
}

// checkoutAndBlock parks a pending buffer until the running full flush
// finishes.
func (c *Control) checkoutAndBlock(s *ThreadState) {
	invariant(s.flushPending.Load(), "blocking a non-pending buffer")
	bytes := s.bytesUsed
	b := s.reset()
	c.numPending.Add(-1)
	c.blocked = append(c.blocked, blockedFlush{buffer: b, bytes: bytes})
}

func (c *Control) popQueued() Buffer {
	if len(c.flushQueue) == 0 {
		return nil
	}
	b := c.flushQueue[0]
	c.flushQueue[0] = nil
	c.flushQueue = c.flushQueue[1:]
	return b
}

// TryCheckoutForFlush checks out s's buffer if it is pending and s is free.
func (c *Control) TryCheckoutForFlush(s *ThreadState) Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.tryCheckout(s)
}

// NextPendingFlush returns a queued buffer or checks out any pending one.
func (c *Control) NextPendingFlush() Buffer {
	c.mu.Lock()
	if b := c.popQueued(); b != nil {
		c.updateStallState()
		c.mu.Unlock()
		return b
	}
	fullFlush := c.fullFlush
	c.mu.Unlock()

	if fullFlush || c.numPending.Load() == 0 {
		return nil
	}
	for _, s := range c.pool.States() {
		if c.numPending.Load() == 0 {
			break
		}
		if s.flushPending.Load() {
			if b := c.TryCheckoutForFlush(s); b != nil {
				return b
			}
		}
	}
	return nil
}

// CheckoutLargest marks the largest free buffer pending and checks it out.
// It returns nil when every buffer is busy or empty.
func (c *Control) CheckoutLargest() Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fullFlush {
		return nil
	}
	var largest *ThreadState
	for _, s := range c.pool.States() {
		if s.numDocs == 0 {
			continue
		}
		if largest == nil || s.bytesUsed > largest.bytesUsed {
			largest = s
		}
	}
	if largest == nil {
		return nil
	}
	c.SetFlushPending(largest)
	b := c.tryCheckout(largest)
	c.updateStallState()
	return b
}

// MarkForFullFlush starts a full flush. swap runs under the control lock; it
// installs a new delete queue and returns the generation of the old one.
// Every buffer recording into the old queue is queued for flushing; empty
// ones are dropped.
func (c *Control) MarkForFullFlush(swap func() int64) {
	c.mu.Lock()
	invariant(!c.fullFlush, "full flush already running")
	c.fullFlush = true
	gen := swap()
	c.mu.Unlock()

	var toFlush []Buffer
	for _, s := range c.pool.States() {
		s.Lock()
		if s.buffer != nil && s.buffer.DeleteGeneration() == gen {
			c.mu.Lock()
			if s.buffer.NumDocs() > 0 {
				c.commitPerThreadBytes(s)
				c.SetFlushPending(s)
				if b := c.checkoutLocked(s); b != nil {
					toFlush = append(toFlush, b)
				}
			} else {
				c.activeBytes.Add(-s.bytesUsed)
				s.reset()
			}
			c.mu.Unlock()
		}
		s.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneBlocked(func(b Buffer) bool { return b.DeleteGeneration() == gen })
	c.flushQueue = append(c.flushQueue, toFlush...)
	c.updateStallState()

	c.logger.Debug("flush: marked for full flush", "gen", gen, "queued", len(c.flushQueue))
}

// pruneBlocked moves blocked buffers accepted by keep into the flush queue.
func (c *Control) pruneBlocked(keep func(Buffer) bool) {
	remaining := c.blocked[:0]
	for _, bf := range c.blocked {
		if keep(bf.buffer) {
			c.flushing[bf.buffer] = bf.bytes
			c.flushQueue = append(c.flushQueue, bf.buffer)
		} else {
			remaining = append(remaining, bf)
		}
	}
	clear(c.blocked[len(remaining):])
	c.blocked = remaining
}

// FinishFullFlush ends the full flush and releases buffers blocked by it.
func (c *Control) FinishFullFlush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	invariant(c.fullFlush, "no full flush running")
	c.pruneBlocked(func(Buffer) bool { return true })
	c.fullFlush = false
	c.updateStallState()
}

// AbortFullFlush ends the full flush and returns every queued or blocked
// buffer for the caller to discard.
func (c *Control) AbortFullFlush() []Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Buffer
	for _, b := range c.flushQueue {
		c.flushBytes.Add(-c.flushing[b])
		delete(c.flushing, b)
		out = append(out, b)
	}
	for _, bf := range c.blocked {
		c.flushBytes.Add(-bf.bytes)
		out = append(out, bf.buffer)
	}
	c.flushQueue = nil
	c.blocked = nil
	c.fullFlush = false
	c.updateStallState()
	c.cond.Broadcast()
	return out
}

// IsFullFlush reports whether a full flush is running.
func (c *Control) IsFullFlush() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fullFlush
}

// WaitForFlush blocks until no buffer is being flushed.
func (c *Control) WaitForFlush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.cond.Broadcast()
	})
	defer stop()

	for len(c.flushing) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.cond.Wait()
	}
	return nil
}

// SetClosed releases stalled goroutines for good.
func (c *Control) SetClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.updateStallState()
}

func (c *Control) stallLimitBytes() int64 {
	if !c.cfg.flushOnRAM() {
		return math.MaxInt64
	}
	return 2 * c.cfg.ramBufferBytes()
}

// updateStallState stalls when flushing lags: active plus flushing RAM is
// over the limit while active RAM alone is under it.
func (c *Control) updateStallState() {
	limit := c.stallLimitBytes()
	active := c.activeBytes.Load()
	flushing := c.flushBytes.Load()
	stall := active+flushing > limit && active < limit && !c.closed
	c.stall.UpdateStalled(stall)
}

func (c *Control) updatePeaks() {
	active := c.activeBytes.Load()
	flushing := c.flushBytes.Load()
	c.peakActive = max(c.peakActive, active)
	c.peakFlush = max(c.peakFlush, flushing)
	c.peakNet = max(c.peakNet, active+flushing)
}

// Stats returns a snapshot of the counters.
func (c *Control) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		ActiveBytes:  c.activeBytes.Load(),
		FlushBytes:   c.flushBytes.Load(),
		DeleteBytes:  c.DeleteBytes(),
		NumPending:   c.numPending.Load(),
		NumFlushing:  len(c.flushing),
		NumQueued:    len(c.flushQueue),
		NumBlocked:   len(c.blocked),
		Stalled:      !c.stall.IsHealthy(),
		FullFlush:    c.fullFlush,
		PeakActive:   c.peakActive,
		PeakFlush:    c.peakFlush,
		PeakNetBytes: c.peakNet,
	}
}
