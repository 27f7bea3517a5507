package updates

import (
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/lexgo/model"
)

// Rough RAM accounting per entry, including map overhead.
const (
	bytesPerDelTerm         = 88
	bytesPerDelQuery        = 64
	bytesPerDelDocID        = 8
	bytesPerDocValuesUpdate = 96
	bytesPerDocValuesField  = 64
)

type queryEntry struct {
	query model.Query
	limit int
}

// fieldUpdates keeps one field's updates keyed by term in recording order.
// Re-recording a term moves it to the end.
type fieldUpdates struct {
	entries []*DocValuesUpdate
	index   map[model.Term]int
	live    int
}

func newFieldUpdates() *fieldUpdates {
	return &fieldUpdates{index: make(map[model.Term]int)}
}

func (f *fieldUpdates) get(t model.Term) (*DocValuesUpdate, bool) {
	i, ok := f.index[t]
	if !ok {
		return nil, false
	}
	return f.entries[i], true
}

// put appends u and reports whether it replaced an existing entry.
func (f *fieldUpdates) put(u *DocValuesUpdate) bool {
	i, replaced := f.index[u.Term]
	if replaced {
		f.entries[i] = nil
	} else {
		f.live++
	}
	f.index[u.Term] = len(f.entries)
	f.entries = append(f.entries, u)

	// Compact once tombstones dominate.
	if len(f.entries) > 2*f.live+16 {
		f.compact()
	}
	return replaced
}

func (f *fieldUpdates) compact() {
	out := f.entries[:0]
	for _, u := range f.entries {
		if u != nil {
			f.index[u.Term] = len(out)
			out = append(out, u)
		}
	}
	clear(f.entries[len(out):])
	f.entries = out
}

func (f *fieldUpdates) appendTo(dst []*DocValuesUpdate) []*DocValuesUpdate {
	for _, u := range f.entries {
		if u != nil {
			dst = append(dst, u)
		}
	}
	return dst
}

// Buffered is a mutable packet of deletes and doc-value updates.
//
// Writes must be serialized by the owner. BytesUsed and NumTermDeletes may
// be read concurrently.
type Buffered struct {
	terms      map[model.Term]int
	queries    map[string]int
	queryOrder []queryEntry
	numeric    map[string]*fieldUpdates
	binary     map[string]*fieldUpdates
	docIDs     []int

	numNumericUpdates int
	numBinaryUpdates  int

	numTermDeletes atomic.Int64
	bytesUsed      atomic.Int64

	frozen bool
}

// NewBuffered returns an empty packet.
func NewBuffered() *Buffered {
	return &Buffered{
		terms:   make(map[model.Term]int),
		queries: make(map[string]int),
		numeric: make(map[string]*fieldUpdates),
		binary:  make(map[string]*fieldUpdates),
	}
}

// AddTerm records a delete of every doc below docIDUpto containing t. An
// existing entry is only replaced by a larger or equal bound.
func (b *Buffered) AddTerm(t model.Term, docIDUpto int) error {
	cur, ok := b.terms[t]
	if ok && docIDUpto < cur {
		// An out-of-order record from a concurrent writer; the later bound
		// already covers it.
		return nil
	}
	if !ok && len(b.terms) >= MaxEntries {
		return fmt.Errorf("%w: %d term deletes", ErrCapacityExceeded, len(b.terms))
	}
	b.terms[t] = docIDUpto
	b.numTermDeletes.Add(1)
	if !ok {
		b.bytesUsed.Add(bytesPerDelTerm + int64(t.Size()))
	}
	return nil
}

// AddQuery records a delete of every doc below docIDUpto matching q. Queries
// are identified by their String form; the latest record wins.
func (b *Buffered) AddQuery(q model.Query, docIDUpto int) error {
	key := q.String()
	if i, ok := b.queries[key]; ok {
		b.queryOrder[i] = queryEntry{query: q, limit: docIDUpto}
		return nil
	}
	if len(b.queries) >= MaxEntries {
		return fmt.Errorf("%w: %d query deletes", ErrCapacityExceeded, len(b.queries))
	}
	b.queries[key] = len(b.queryOrder)
	b.queryOrder = append(b.queryOrder, queryEntry{query: q, limit: docIDUpto})
	b.bytesUsed.Add(bytesPerDelQuery + int64(len(key)))
	return nil
}

// AddDocID records a delete of a single doc of the owning segment.
func (b *Buffered) AddDocID(doc int) error {
	if len(b.docIDs) >= MaxEntries {
		return fmt.Errorf("%w: %d doc deletes", ErrCapacityExceeded, len(b.docIDs))
	}
	b.docIDs = append(b.docIDs, doc)
	b.bytesUsed.Add(bytesPerDelDocID)
	return nil
}

// AddNumericUpdate records u for docs below docIDUpto.
func (b *Buffered) AddNumericUpdate(u *DocValuesUpdate, docIDUpto int) error {
	recorded, err := b.addUpdate(b.numeric, u, docIDUpto)
	if err != nil {
		return err
	}
	if recorded {
		b.numNumericUpdates++
	}
	return nil
}

// AddBinaryUpdate records u for docs below docIDUpto.
func (b *Buffered) AddBinaryUpdate(u *DocValuesUpdate, docIDUpto int) error {
	recorded, err := b.addUpdate(b.binary, u, docIDUpto)
	if err != nil {
		return err
	}
	if recorded {
		b.numBinaryUpdates++
	}
	return nil
}

// addUpdate reports whether u was recorded. An update whose bound is below
// the one already held for its term is ignored.
func (b *Buffered) addUpdate(byField map[string]*fieldUpdates, u *DocValuesUpdate, docIDUpto int) (bool, error) {
	f, ok := byField[u.Field]
	if !ok {
		f = newFieldUpdates()
		byField[u.Field] = f
		b.bytesUsed.Add(bytesPerDocValuesField + int64(len(u.Field)))
	}
	cur, exists := f.get(u.Term)
	if exists && docIDUpto < cur.DocIDUpto {
		return false, nil
	}
	if !exists && f.live >= MaxEntries {
		return false, fmt.Errorf("%w: %d updates for field %q", ErrCapacityExceeded, f.live, u.Field)
	}

	// The same update is recorded into several packets with different bounds.
	cp := *u
	cp.DocIDUpto = docIDUpto
	if f.put(&cp) {
		b.bytesUsed.Add(cp.ramBytesUsed() - cur.ramBytesUsed())
	} else {
		b.bytesUsed.Add(cp.ramBytesUsed())
	}
	return true, nil
}

// Any reports whether the packet holds anything to apply.
func (b *Buffered) Any() bool {
	return len(b.terms) > 0 || len(b.queryOrder) > 0 || len(b.docIDs) > 0 ||
		b.numNumericUpdates > 0 || b.numBinaryUpdates > 0
}

// AnyDeletes reports whether the packet holds deletes.
func (b *Buffered) AnyDeletes() bool {
	return len(b.terms) > 0 || len(b.queryOrder) > 0 || len(b.docIDs) > 0
}

// BytesUsed returns the estimated RAM held by the packet.
func (b *Buffered) BytesUsed() int64 { return b.bytesUsed.Load() }

// NumTermDeletes counts every AddTerm call, including overwrites.
func (b *Buffered) NumTermDeletes() int64 { return b.numTermDeletes.Load() }

// NumUniqueTerms returns the number of distinct delete terms.
func (b *Buffered) NumUniqueTerms() int { return len(b.terms) }

// NumQueries returns the number of distinct delete queries.
func (b *Buffered) NumQueries() int { return len(b.queryOrder) }

// NumNumericUpdates counts recorded numeric updates, including overwrites.
func (b *Buffered) NumNumericUpdates() int { return b.numNumericUpdates }

// NumBinaryUpdates counts recorded binary updates, including overwrites.
func (b *Buffered) NumBinaryUpdates() int { return b.numBinaryUpdates }

// Clear resets the packet for reuse.
func (b *Buffered) Clear() {
	clear(b.terms)
	clear(b.queries)
	b.queryOrder = nil
	clear(b.numeric)
	clear(b.binary)
	b.docIDs = nil
	b.numNumericUpdates = 0
	b.numBinaryUpdates = 0
	b.numTermDeletes.Store(0)
	b.bytesUsed.Store(0)
	b.frozen = false
}

func (b *Buffered) String() string {
	s := fmt.Sprintf("terms=%d queries=%d docIDs=%d", len(b.terms), len(b.queryOrder), len(b.docIDs))
	if b.numNumericUpdates > 0 {
		s += fmt.Sprintf(" numericUpdates=%d", b.numNumericUpdates)
	}
	if b.numBinaryUpdates > 0 {
		s += fmt.Sprintf(" binaryUpdates=%d", b.numBinaryUpdates)
	}
	return s + fmt.Sprintf(" bytesUsed=%d", b.bytesUsed.Load())
}
