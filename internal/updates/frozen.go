package updates

import (
	"cmp"
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/hupe1980/lexgo/model"
)

const noDelGen = -1

// Frozen is an immutable packet. Its delete generation is assigned once,
// when it is pushed to the Stream.
type Frozen struct {
	terms          *PrefixCodedTerms
	termLimits     []int
	docIDs         []int
	queries        []queryEntry
	numericUpdates []*DocValuesUpdate
	binaryUpdates  []*DocValuesUpdate
	bytesUsed      int64
	numTermDeletes int64
	delGen         int64
	segmentPrivate bool
}

// Freeze snapshots b into a Frozen packet.
//
// Freezing the same packet twice fails with ErrAlreadyFrozen.
func Freeze(b *Buffered, segmentPrivate bool) (*Frozen, error) {
	if b.frozen {
		invariant(false, "packet frozen twice")
		return nil, ErrAlreadyFrozen
	}
	b.frozen = true

	sorted := slices.SortedFunc(maps.Keys(b.terms), model.Term.Compare)
	var pb prefixCodedBuilder
	limits := make([]int, 0, len(sorted))
	for _, t := range sorted {
		pb.add(t)
		limits = append(limits, b.terms[t])
	}

	f := &Frozen{
		terms:          pb.finish(),
		termLimits:     limits,
		docIDs:         slices.Clone(b.docIDs),
		queries:        slices.Clone(b.queryOrder),
		numericUpdates: flattenUpdates(b.numeric),
		binaryUpdates:  flattenUpdates(b.binary),
		numTermDeletes: b.numTermDeletes.Load(),
		delGen:         noDelGen,
		segmentPrivate: segmentPrivate,
	}

	f.bytesUsed = f.terms.RAMBytesUsed() + int64(len(limits)+len(f.docIDs))*bytesPerDelDocID +
		int64(len(f.queries))*bytesPerDelQuery
	for _, u := range f.numericUpdates {
		f.bytesUsed += u.ramBytesUsed()
	}
	for _, u := range f.binaryUpdates {
		f.bytesUsed += u.ramBytesUsed()
	}
	return f, nil
}

// flattenUpdates orders updates by field name, then by recording order.
func flattenUpdates(byField map[string]*fieldUpdates) []*DocValuesUpdate {
	var out []*DocValuesUpdate
	for _, field := range slices.Sorted(maps.Keys(byField)) {
		out = byField[field].appendTo(out)
	}
	return out
}

// SetDelGen assigns the packet's generation. A second assignment panics.
func (f *Frozen) SetDelGen(gen int64) {
	if f.delGen != noDelGen {
		panic(fmt.Errorf("%w: have %d, got %d", ErrDelGenAssigned, f.delGen, gen))
	}
	f.delGen = gen
}

// DelGen returns the assigned generation, or -1.
func (f *Frozen) DelGen() int64 { return f.delGen }

// SegmentPrivate reports whether the packet belongs to a single segment.
func (f *Frozen) SegmentPrivate() bool { return f.segmentPrivate }

// Terms yields the delete terms in sorted order with their doc bounds.
func (f *Frozen) Terms() iter.Seq2[model.Term, int] {
	return func(yield func(model.Term, int) bool) {
		it := f.terms.Iterator()
		for i := 0; it.Next(); i++ {
			if !yield(it.Term(), f.termLimits[i]) {
				return
			}
		}
	}
}

// DocIDs returns the single-doc deletes of a segment-private packet.
func (f *Frozen) DocIDs() []int { return f.docIDs }

// NumTerms returns the number of distinct delete terms.
func (f *Frozen) NumTerms() int { return f.terms.Len() }

// NumTermDeletes returns the number of AddTerm calls frozen into the packet.
func (f *Frozen) NumTermDeletes() int64 { return f.numTermDeletes }

// Queries yields the delete queries with their doc bounds.
func (f *Frozen) Queries() iter.Seq2[model.Query, int] {
	return func(yield func(model.Query, int) bool) {
		for _, e := range f.queries {
			if !yield(e.query, e.limit) {
				return
			}
		}
	}
}

// NumQueries returns the number of delete queries.
func (f *Frozen) NumQueries() int { return len(f.queries) }

// NumericUpdates returns the numeric updates in application order.
func (f *Frozen) NumericUpdates() []*DocValuesUpdate { return f.numericUpdates }

// BinaryUpdates returns the binary updates in application order.
func (f *Frozen) BinaryUpdates() []*DocValuesUpdate { return f.binaryUpdates }

// AnyDeletes reports whether the packet deletes anything.
func (f *Frozen) AnyDeletes() bool {
	return f.terms.Len() > 0 || len(f.queries) > 0 || len(f.docIDs) > 0
}

// AnyUpdates reports whether the packet carries doc-value updates.
func (f *Frozen) AnyUpdates() bool { return len(f.numericUpdates) > 0 || len(f.binaryUpdates) > 0 }

// Any reports whether the packet holds anything to apply.
func (f *Frozen) Any() bool { return f.AnyDeletes() || f.AnyUpdates() }

// BytesUsed returns the estimated RAM held by the packet.
func (f *Frozen) BytesUsed() int64 { return f.bytesUsed }

func (f *Frozen) String() string {
	s := fmt.Sprintf("delGen=%d", f.delGen)
	if f.terms.Len() > 0 {
		s += fmt.Sprintf(" uniqueTerms=%d termDeletes=%d", f.terms.Len(), f.numTermDeletes)
	}
	if len(f.queries) > 0 {
		s += fmt.Sprintf(" queries=%d", len(f.queries))
	}
	if n := len(f.numericUpdates) + len(f.binaryUpdates); n > 0 {
		s += fmt.Sprintf(" dvUpdates=%d", n)
	}
	if f.segmentPrivate {
		s += " private"
	}
	return s + fmt.Sprintf(" bytesUsed=%d", f.bytesUsed)
}

// Deleter is a segment whose docs can be marked deleted.
type Deleter interface {
	model.SegmentReader
	Delete(doc int) bool
}

// ApplyTermDeletes deletes the docs of seg matched by the packet's terms
// within their bounds, plus its single-doc deletes. It returns the number of
// newly deleted docs. Applying a packet twice deletes nothing more.
func (f *Frozen) ApplyTermDeletes(seg Deleter) int {
	var n int
	for t, limit := range f.Terms() {
		for doc := range seg.Docs(t) {
			if doc >= limit {
				break
			}
			if seg.Delete(doc) {
				n++
			}
		}
	}
	for _, doc := range f.docIDs {
		if seg.Delete(doc) {
			n++
		}
	}
	return n
}

// ApplyQueryDeletes deletes the docs of seg matched by the packet's queries
// within their bounds.
func (f *Frozen) ApplyQueryDeletes(seg Deleter) int {
	return applyQueryDeletes(f.Queries(), seg)
}

func byDelGen(a, b *Frozen) int { return cmp.Compare(a.delGen, b.delGen) }
