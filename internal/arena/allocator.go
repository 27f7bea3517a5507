package arena

import (
	"sync"
	"sync/atomic"

	"github.com/hupe1980/lexgo/internal/mmap"
)

// Allocator supplies and takes back byte blocks of exactly BlockSize bytes.
type Allocator interface {
	// ByteBlock returns a zero-filled block.
	ByteBlock() []byte
	// Recycle hands blocks back. The caller must not touch them afterwards.
	Recycle(blocks [][]byte)
}

// Counter receives byte deltas. *atomic.Int64 satisfies it.
type Counter interface {
	Add(delta int64) int64
}

// MemoryAcquirer reserves memory against a global budget.
// *resource.Controller satisfies it.
type MemoryAcquirer interface {
	AcquireMemory(bytes int64) error
	ReleaseMemory(bytes int64)
}

// DirectAllocator allocates every block on the heap and drops recycled ones.
type DirectAllocator struct{}

// ByteBlock implements Allocator.
func (DirectAllocator) ByteBlock() []byte { return make([]byte, BlockSize) }

// Recycle implements Allocator.
func (DirectAllocator) Recycle([][]byte) {}

// TrackingAllocator is a DirectAllocator that reports the bytes it hands out
// and takes back to a Counter.
type TrackingAllocator struct {
	counter Counter
}

// NewTrackingAllocator returns an allocator reporting to counter.
func NewTrackingAllocator(counter Counter) *TrackingAllocator {
	return &TrackingAllocator{counter: counter}
}

// ByteBlock implements Allocator.
func (a *TrackingAllocator) ByteBlock() []byte {
	a.counter.Add(BlockSize)
	return make([]byte, BlockSize)
}

// Recycle implements Allocator.
func (a *TrackingAllocator) Recycle(blocks [][]byte) {
	a.counter.Add(-int64(len(blocks)) * BlockSize)
}

// RecyclingAllocator keeps up to maxFree returned blocks for reuse.
// Blocks are cleared when they come back.
type RecyclingAllocator struct {
	mu      sync.Mutex
	free    [][]byte
	maxFree int
	counter Counter
	next    Allocator
}

// NewRecyclingAllocator returns an allocator that falls back to next (heap
// when nil) once the free list is empty. counter may be nil.
func NewRecyclingAllocator(maxFree int, next Allocator, counter Counter) *RecyclingAllocator {
	if next == nil {
		next = DirectAllocator{}
	}
	return &RecyclingAllocator{maxFree: maxFree, next: next, counter: counter}
}

// ByteBlock implements Allocator.
func (a *RecyclingAllocator) ByteBlock() []byte {
	a.mu.Lock()
	if n := len(a.free); n > 0 {
		b := a.free[n-1]
		a.free[n-1] = nil
		a.free = a.free[:n-1]
		a.mu.Unlock()
		return b
	}
	a.mu.Unlock()
	if a.counter != nil {
		a.counter.Add(BlockSize)
	}
	return a.next.ByteBlock()
}

// Recycle implements Allocator.
func (a *RecyclingAllocator) Recycle(blocks [][]byte) {
	a.mu.Lock()
	room := a.maxFree - len(a.free)
	keep := min(room, len(blocks))
	for _, b := range blocks[:max(keep, 0)] {
		clear(b)
		a.free = append(a.free, b)
	}
	a.mu.Unlock()

	if rest := blocks[max(keep, 0):]; len(rest) > 0 {
		if a.counter != nil {
			a.counter.Add(-int64(len(rest)) * BlockSize)
		}
		a.next.Recycle(rest)
	}
}

// NumFree returns the number of cached blocks.
func (a *RecyclingAllocator) NumFree() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.free)
}

// Trim drops cached blocks until at most n remain and returns how many were
// dropped.
func (a *RecyclingAllocator) Trim(n int) int {
	a.mu.Lock()
	var dropped [][]byte
	if len(a.free) > n {
		dropped = append(dropped, a.free[n:]...)
		clear(a.free[n:])
		a.free = a.free[:n]
	}
	a.mu.Unlock()

	if len(dropped) > 0 {
		if a.counter != nil {
			a.counter.Add(-int64(len(dropped)) * BlockSize)
		}
		a.next.Recycle(dropped)
	}
	return len(dropped)
}

// DefaultRegionBlocks is the number of blocks per anonymous mapping.
const DefaultRegionBlocks = 32

// Stats describes an allocator's off-heap footprint.
type Stats struct {
	Regions       int64 // anonymous mappings created
	BytesReserved int64 // bytes mapped
	BlocksServed  int64 // blocks handed out, including reused ones
	BlocksFree    int64 // blocks waiting for reuse
	HeapFallbacks int64 // blocks served from the heap after a mapping failed
}

// MappedAllocator carves blocks out of anonymous memory mappings so posting
// bytes stay outside the Go heap. Returned blocks are cleared and reused;
// memory goes back to the OS only on Close.
type MappedAllocator struct {
	mu           sync.Mutex
	regions      []*mmap.Mapping
	current      *mmap.Mapping
	nextInRegion int
	free         [][]byte
	regionBlocks int
	acquirer     MemoryAcquirer

	served    atomic.Int64
	fallbacks atomic.Int64
}

// MappedOption configures a MappedAllocator.
type MappedOption func(*MappedAllocator)

// WithMemoryAcquirer charges every mapped region to acquirer.
func WithMemoryAcquirer(acquirer MemoryAcquirer) MappedOption {
	return func(a *MappedAllocator) {
		a.acquirer = acquirer
	}
}

// WithRegionBlocks sets how many blocks each mapping holds.
func WithRegionBlocks(n int) MappedOption {
	return func(a *MappedAllocator) {
		if n > 0 {
			a.regionBlocks = n
		}
	}
}

// NewMappedAllocator returns an allocator backed by anonymous mappings.
func NewMappedAllocator(opts ...MappedOption) *MappedAllocator {
	a := &MappedAllocator{regionBlocks: DefaultRegionBlocks}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ByteBlock implements Allocator. When no mapping can be obtained (budget
// exhausted or mmap failure) the block comes from the heap instead.
func (a *MappedAllocator) ByteBlock() []byte {
	a.served.Add(1)

	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.free); n > 0 {
		b := a.free[n-1]
		a.free[n-1] = nil
		a.free = a.free[:n-1]
		return b
	}

	if a.current == nil || a.nextInRegion == a.regionBlocks {
		if err := a.mapRegionLocked(); err != nil {
			a.fallbacks.Add(1)
			return make([]byte, BlockSize)
		}
	}

	r, err := a.current.Region(a.nextInRegion*BlockSize, BlockSize)
	if err != nil {
		a.fallbacks.Add(1)
		return make([]byte, BlockSize)
	}
	a.nextInRegion++
	return r.Bytes()
}

func (a *MappedAllocator) mapRegionLocked() error {
	size := a.regionBlocks * BlockSize
	if a.acquirer != nil {
		if err := a.acquirer.AcquireMemory(int64(size)); err != nil {
			return err
		}
	}
	m, err := mmap.MapAnon(size)
	if err != nil {
		if a.acquirer != nil {
			a.acquirer.ReleaseMemory(int64(size))
		}
		return err
	}
	_ = m.Advise(mmap.AccessRandom)
	a.regions = append(a.regions, m)
	a.current = m
	a.nextInRegion = 0
	return nil
}

// Recycle implements Allocator. Heap fallback blocks are kept for reuse too.
func (a *MappedAllocator) Recycle(blocks [][]byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, b := range blocks {
		clear(b)
		a.free = append(a.free, b)
	}
}

// Stats returns a snapshot of the allocator's counters.
func (a *MappedAllocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		Regions:       int64(len(a.regions)),
		BytesReserved: int64(len(a.regions) * a.regionBlocks * BlockSize),
		BlocksServed:  a.served.Load(),
		BlocksFree:    int64(len(a.free)),
		HeapFallbacks: a.fallbacks.Load(),
	}
}

// Close unmaps every region. Blocks handed out earlier become invalid.
func (a *MappedAllocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	for _, m := range a.regions {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if a.acquirer != nil {
			a.acquirer.ReleaseMemory(int64(a.regionBlocks * BlockSize))
		}
	}
	a.regions = nil
	a.current = nil
	a.free = nil
	return firstErr
}
