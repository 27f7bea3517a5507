// Package flush decides when per-thread segment buffers are flushed and
// applies backpressure when flushing falls behind indexing.
//
// A Control aggregates the RAM of every ThreadState handed out by a Pool.
// After each document it runs the Policy, which may mark a buffer pending;
// pending buffers are checked out and handed to the indexing goroutine that
// finished the document. When flushing buffers plus active buffers exceed
// twice the RAM budget while active buffers alone stay under it, the
// StallControl blocks indexing goroutines until flushes catch up.
package flush
