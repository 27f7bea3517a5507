package engine

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/lexgo/internal/docvalues"
	"github.com/hupe1980/lexgo/internal/updates"
	"github.com/hupe1980/lexgo/model"
)

// globalUpto bounds global entries: they cover every doc of a flushed
// segment.
const globalUpto = math.MaxInt32

type entryKind uint8

const (
	entryTerms entryKind = iota + 1
	entryQueries
	entryNumeric
	entryBinary
)

// queueEntry is one delete or doc-value update call.
type queueEntry struct {
	kind    entryKind
	terms   []model.Term
	queries []model.Query
	update  *updates.DocValuesUpdate
}

func termsEntry(terms ...model.Term) queueEntry {
	return queueEntry{kind: entryTerms, terms: terms}
}

func queriesEntry(queries ...model.Query) queueEntry {
	return queueEntry{kind: entryQueries, queries: queries}
}

func updateEntry(u *updates.DocValuesUpdate) queueEntry {
	if u.Kind == docvalues.Binary {
		return queueEntry{kind: entryBinary, update: u}
	}
	return queueEntry{kind: entryNumeric, update: u}
}

// apply records e into b for docs below docIDUpto.
func (e queueEntry) apply(b *updates.Buffered, docIDUpto int) error {
	switch e.kind {
	case entryTerms:
		for _, t := range e.terms {
			if err := b.AddTerm(t, docIDUpto); err != nil {
				return err
			}
		}
	case entryQueries:
		for _, q := range e.queries {
			if err := b.AddQuery(q, docIDUpto); err != nil {
				return err
			}
		}
	case entryNumeric:
		return b.AddNumericUpdate(e.update, docIDUpto)
	case entryBinary:
		return b.AddBinaryUpdate(e.update, docIDUpto)
	default:
		return fmt.Errorf("engine: unknown queue entry %d", e.kind)
	}
	return nil
}

// deleteSlice is a buffer's position in the queue: the absolute index of
// the first entry it has not applied.
type deleteSlice struct {
	next int64
}

// deleteQueue records deletes and doc-value updates in arrival order.
//
// Every entry goes into the global packet right away. Buffers additionally
// pull the entries past their slice into their private packet, bounded by
// their current doc count. The log only keeps entries some slice has not
// seen yet.
type deleteQueue struct {
	gen int64

	mu      sync.Mutex
	entries []queueEntry
	base    int64
	slices  map[*deleteSlice]struct{}

	global atomic.Pointer[updates.Buffered]
}

func newDeleteQueue(gen int64) *deleteQueue {
	q := &deleteQueue{gen: gen, slices: make(map[*deleteSlice]struct{})}
	q.global.Store(updates.NewBuffered())
	return q
}

// newSlice registers a slice starting after the newest entry.
func (q *deleteQueue) newSlice() *deleteSlice {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := &deleteSlice{next: q.base + int64(len(q.entries))}
	q.slices[s] = struct{}{}
	return s
}

// releaseSlice unregisters s.
func (q *deleteQueue) releaseSlice(s *deleteSlice) {
	if s == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.slices, s)
	q.trimLocked()
}

// add appends e. When s is non-nil it is advanced past e and the entries it
// had not seen, e included, are returned.
func (q *deleteQueue) add(e queueEntry, s *deleteSlice) ([]queueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := e.apply(q.global.Load(), globalUpto); err != nil {
		return nil, err
	}
	q.entries = append(q.entries, e)
	if s == nil {
		q.trimLocked()
		return nil, nil
	}
	return q.advanceLocked(s), nil
}

// updateSlice advances s and returns the entries it had not seen.
func (q *deleteQueue) updateSlice(s *deleteSlice) []queueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.advanceLocked(s)
}

func (q *deleteQueue) advanceLocked(s *deleteSlice) []queueEntry {
	end := q.base + int64(len(q.entries))
	if s.next >= end {
		return nil
	}
	from := int(s.next - q.base)
	out := q.entries[from:len(q.entries):len(q.entries)]
	s.next = end
	q.trimLocked()
	return out
}

// trimLocked drops entries every registered slice has seen. Returned
// entry slices keep the old backing array alive.
func (q *deleteQueue) trimLocked() {
	low := q.base + int64(len(q.entries))
	for s := range q.slices {
		low = min(low, s.next)
	}
	if n := int(low - q.base); n > 0 {
		q.entries = append([]queueEntry(nil), q.entries[n:]...)
		q.base = low
	}
}

// freezeGlobal freezes the global packet and installs an empty one. When s
// is non-nil it is released and the entries it had not seen are returned.
// The packet is nil when nothing was recorded.
func (q *deleteQueue) freezeGlobal(s *deleteSlice) (*updates.Frozen, []queueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var rest []queueEntry
	if s != nil {
		rest = q.advanceLocked(s)
		delete(q.slices, s)
		q.trimLocked()
	}

	global := q.global.Load()
	if !global.Any() {
		return nil, rest, nil
	}
	q.global.Store(updates.NewBuffered())
	f, err := updates.Freeze(global, false)
	if err != nil {
		return nil, rest, err
	}
	return f, rest, nil
}

// bytesUsed and numTermDeletes may be called without the queue lock.
func (q *deleteQueue) bytesUsed() int64 { return q.global.Load().BytesUsed() }

func (q *deleteQueue) numTermDeletes() int64 { return q.global.Load().NumTermDeletes() }

// anyChanges reports whether the global packet holds something.
func (q *deleteQueue) anyChanges() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.global.Load().Any()
}

// numEntries returns the length of the log.
func (q *deleteQueue) numEntries() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}
