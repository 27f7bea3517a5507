package flush

import (
	"sync"
	"sync/atomic"
)

// Buffer is a per-thread segment buffer as seen by the flush logic.
type Buffer interface {
	// NumDocs returns the docs buffered so far.
	NumDocs() int
	// BytesUsed returns the RAM held by the buffer.
	BytesUsed() int64
	// DeleteGeneration identifies the delete queue the buffer records into.
	DeleteGeneration() int64
}

// ThreadState guards one Buffer. The indexing goroutine that obtained the
// state from the Pool holds its lock while it adds documents.
type ThreadState struct {
	sync.Mutex

	ord    int
	buffer Buffer

	// Guarded by Control.mu.
	bytesUsed int64
	numDocs   int

	flushPending atomic.Bool
}

// Ord returns the state's index in its pool.
func (s *ThreadState) Ord() int { return s.ord }

// Buffer returns the current buffer, or nil. Callers must hold the lock.
func (s *ThreadState) Buffer() Buffer { return s.buffer }

// Init installs b into an empty state. Callers must hold the lock.
func (s *ThreadState) Init(b Buffer) {
	invariant(s.buffer == nil, "thread state %d already initialized", s.ord)
	s.buffer = b
}

// IsInitialized reports whether the state holds a buffer. Callers must hold
// the lock.
func (s *ThreadState) IsInitialized() bool { return s.buffer != nil }

// FlushPending reports whether the buffer was selected for flushing.
func (s *ThreadState) FlushPending() bool { return s.flushPending.Load() }

// BytesUsed returns the bytes last committed to the Control. Policies call
// it under the control lock.
func (s *ThreadState) BytesUsed() int64 { return s.bytesUsed }

// NumDocs returns the doc count last committed to the Control. Policies
// call it under the control lock.
func (s *ThreadState) NumDocs() int { return s.numDocs }

// reset detaches and returns the buffer.
func (s *ThreadState) reset() Buffer {
	b := s.buffer
	s.buffer = nil
	s.bytesUsed = 0
	s.numDocs = 0
	s.flushPending.Store(false)
	return b
}
