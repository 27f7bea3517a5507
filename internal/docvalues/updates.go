package docvalues

import (
	"fmt"
	"iter"
	"sort"

	"github.com/bits-and-blooms/bitset"
)

// FieldUpdates buffers value changes of one field for one segment.
//
// Entries are parallel columns: doc, value and a has-value bit. A cleared
// bit is an unset (the doc loses its value).
type FieldUpdates[V any] struct {
	field    string
	kind     Kind
	maxDoc   int
	docs     []int32
	values   column[V]
	hasValue *bitset.BitSet
	sorted   bool
}

// NumericUpdates buffers int64 values.
type NumericUpdates = FieldUpdates[int64]

// BinaryUpdates buffers byte-string values.
type BinaryUpdates = FieldUpdates[[]byte]

// NewNumeric returns an empty numeric buffer for a segment of maxDoc docs.
func NewNumeric(field string, maxDoc int) *NumericUpdates {
	return &FieldUpdates[int64]{
		field:    field,
		kind:     Numeric,
		maxDoc:   maxDoc,
		values:   &numericColumn{},
		hasValue: bitset.New(0),
		sorted:   true,
	}
}

// NewBinary returns an empty binary buffer for a segment of maxDoc docs.
func NewBinary(field string, maxDoc int) *BinaryUpdates {
	return &FieldUpdates[[]byte]{
		field:    field,
		kind:     Binary,
		maxDoc:   maxDoc,
		values:   &binaryColumn{},
		hasValue: bitset.New(0),
		sorted:   true,
	}
}

// Field returns the field name.
func (u *FieldUpdates[V]) Field() string { return u.field }

// Kind returns the value kind.
func (u *FieldUpdates[V]) Kind() Kind { return u.kind }

// MaxDoc returns the doc count of the target segment.
func (u *FieldUpdates[V]) MaxDoc() int { return u.maxDoc }

// Size returns the number of buffered entries, duplicates included.
func (u *FieldUpdates[V]) Size() int { return len(u.docs) }

// Any reports whether anything is buffered.
func (u *FieldUpdates[V]) Any() bool { return len(u.docs) > 0 }

func (u *FieldUpdates[V]) checkAdd(doc int) error {
	if doc < 0 || doc >= u.maxDoc {
		return fmt.Errorf("docvalues: doc %d out of range [0,%d) for field %q", doc, u.maxDoc, u.field)
	}
	if len(u.docs) >= MaxEntries {
		return fmt.Errorf("%w: field %q", ErrCapacityExceeded, u.field)
	}
	return nil
}

func (u *FieldUpdates[V]) appendDoc(doc int) {
	if n := len(u.docs); n > 0 && int(u.docs[n-1]) > doc {
		u.sorted = false
	}
	u.docs = append(u.docs, int32(doc))
}

// Add records value for doc.
func (u *FieldUpdates[V]) Add(doc int, value V) error {
	if err := u.checkAdd(doc); err != nil {
		return err
	}
	if !u.values.fits(value) {
		return fmt.Errorf("%w: field %q holds %d value bytes", ErrCapacityExceeded, u.field, u.values.byteSize())
	}
	u.hasValue.Set(uint(len(u.docs)))
	u.appendDoc(doc)
	u.values.add(value)
	return nil
}

// AddUnset records that doc loses its value.
func (u *FieldUpdates[V]) AddUnset(doc int) error {
	if err := u.checkAdd(doc); err != nil {
		return err
	}
	u.hasValue.Clear(uint(len(u.docs)))
	u.appendDoc(doc)
	u.values.addZero()
	return nil
}

// Merge appends other's entries after this buffer's entries. Binary values
// are copied into this buffer.
func (u *FieldUpdates[V]) Merge(other *FieldUpdates[V]) error {
	if other.kind != u.kind || other.field != u.field {
		return fmt.Errorf("docvalues: cannot merge %s field %q into %s field %q", other.kind, other.field, u.kind, u.field)
	}
	if len(u.docs)+len(other.docs) > MaxEntries {
		return fmt.Errorf("%w: field %q", ErrCapacityExceeded, u.field)
	}
	if u.values.byteSize()+other.values.byteSize() > MaxBinaryBytes {
		return fmt.Errorf("%w: field %q holds %d value bytes", ErrCapacityExceeded, u.field, u.values.byteSize())
	}
	for i, doc := range other.docs {
		u.hasValue.SetTo(uint(len(u.docs)), other.hasValue.Test(uint(i)))
		u.appendDoc(int(doc))
		u.values.appendFrom(other.values, i)
	}
	return nil
}

// RAMBytesUsed estimates the heap held by the buffer.
func (u *FieldUpdates[V]) RAMBytesUsed() int64 {
	return int64(cap(u.docs))*4 + u.values.ramBytesUsed() + int64(u.hasValue.Len()/8) + 64
}

// sortStable orders entries by doc; entries of the same doc keep arrival
// order.
func (u *FieldUpdates[V]) sortStable() {
	if u.sorted {
		return
	}
	sort.Stable(fieldSorter[V]{u})
	u.sorted = true
}

type fieldSorter[V any] struct {
	u *FieldUpdates[V]
}

func (s fieldSorter[V]) Len() int { return len(s.u.docs) }

func (s fieldSorter[V]) Less(i, j int) bool { return s.u.docs[i] < s.u.docs[j] }

func (s fieldSorter[V]) Swap(i, j int) {
	u := s.u
	u.docs[i], u.docs[j] = u.docs[j], u.docs[i]
	u.values.swap(i, j)
	hi, hj := u.hasValue.Test(uint(i)), u.hasValue.Test(uint(j))
	u.hasValue.SetTo(uint(i), hj)
	u.hasValue.SetTo(uint(j), hi)
}

// Iterator sorts the buffer and returns a cursor over the distinct docs in
// increasing order. For a doc recorded more than once the last entry wins.
func (u *FieldUpdates[V]) Iterator() *Iterator[V] {
	u.sortStable()
	return &Iterator[V]{u: u, doc: -1}
}

// All yields each doc with its final value, skipping docs whose final entry
// is an unset.
func (u *FieldUpdates[V]) All() iter.Seq2[int, V] {
	return func(yield func(int, V) bool) {
		it := u.Iterator()
		for doc := it.NextDoc(); doc != NoMoreDocs; doc = it.NextDoc() {
			if !it.HasValue() {
				continue
			}
			if !yield(doc, it.Value()) {
				return
			}
		}
	}
}

// Iterator walks a sorted FieldUpdates buffer.
type Iterator[V any] struct {
	u     *FieldUpdates[V]
	idx   int
	doc   int
	value V
	has   bool
}

// NextDoc advances to the next doc and returns it, or NoMoreDocs.
func (it *Iterator[V]) NextDoc() int {
	docs := it.u.docs
	if it.idx >= len(docs) {
		var zero V
		it.doc, it.value, it.has = NoMoreDocs, zero, false
		return NoMoreDocs
	}
	doc := docs[it.idx]
	it.idx++
	for it.idx < len(docs) && docs[it.idx] == doc {
		it.idx++
	}
	last := it.idx - 1
	it.doc = int(doc)
	it.has = it.u.hasValue.Test(uint(last))
	if it.has {
		it.value = it.u.values.get(last)
	} else {
		var zero V
		it.value = zero
	}
	return it.doc
}

// Doc returns the current doc, -1 before the first NextDoc.
func (it *Iterator[V]) Doc() int { return it.doc }

// Value returns the current doc's value; the zero value when unset.
func (it *Iterator[V]) Value() V { return it.value }

// HasValue reports whether the current doc keeps a value.
func (it *Iterator[V]) HasValue() bool { return it.has }

// Reset rewinds the iterator.
func (it *Iterator[V]) Reset() {
	var zero V
	it.idx, it.doc, it.value, it.has = 0, -1, zero, false
}
