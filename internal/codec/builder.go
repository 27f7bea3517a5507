package codec

import (
	"fmt"
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
)

// Builder is a Consumer that assembles a Segment in memory.
type Builder struct {
	seg  *Segment
	last map[string]string
}

// NewBuilder returns a Builder for a segment of maxDoc docs.
func NewBuilder(name string, maxDoc int) *Builder {
	return &Builder{
		seg: &Segment{
			name:    name,
			maxDoc:  maxDoc,
			fields:  make(map[string]*fieldIndex),
			numeric: make(map[string]*NumericColumn),
			binary:  make(map[string]*BinaryColumn),
		},
		last: make(map[string]string),
	}
}

// AddPostings implements PostingsConsumer. Terms of a field must arrive in
// strictly increasing order.
func (b *Builder) AddPostings(field string, term []byte, postings []Posting) error {
	f, ok := b.seg.fields[field]
	if !ok {
		f = &fieldIndex{}
		b.seg.fields[field] = f
	} else if last := b.last[field]; string(term) <= last {
		return fmt.Errorf("%w: field %q: %q after %q", ErrTermsOutOfOrder, field, term, last)
	}
	if len(postings) == 0 {
		return nil
	}
	for _, p := range postings {
		if p.Doc < 0 || p.Doc >= b.seg.maxDoc {
			return fmt.Errorf("%w: field %q term %q: doc %d out of range [0,%d)", ErrCorrupt, field, term, p.Doc, b.seg.maxDoc)
		}
	}
	t := string(term)
	b.last[field] = t
	f.terms = append(f.terms, t)
	f.postings = append(f.postings, postings)
	return nil
}

// AddNumericField implements DocValuesConsumer.
func (b *Builder) AddNumericField(field string, values iter.Seq2[int, int64]) error {
	if _, ok := b.seg.binary[field]; ok {
		return fmt.Errorf("%w: %q is binary", ErrFieldKind, field)
	}
	c := &NumericColumn{values: make([]int64, b.seg.maxDoc), docs: roaring.New()}
	for doc, v := range values {
		if doc < 0 || doc >= b.seg.maxDoc {
			return fmt.Errorf("%w: numeric field %q: doc %d out of range", ErrCorrupt, field, doc)
		}
		c.values[doc] = v
		c.docs.Add(uint32(doc))
	}
	b.seg.numeric[field] = c
	return nil
}

// AddBinaryField implements DocValuesConsumer. Values are copied.
func (b *Builder) AddBinaryField(field string, values iter.Seq2[int, []byte]) error {
	if _, ok := b.seg.numeric[field]; ok {
		return fmt.Errorf("%w: %q is numeric", ErrFieldKind, field)
	}
	c := &BinaryColumn{values: make([][]byte, b.seg.maxDoc), docs: roaring.New()}
	for doc, v := range values {
		if doc < 0 || doc >= b.seg.maxDoc {
			return fmt.Errorf("%w: binary field %q: doc %d out of range", ErrCorrupt, field, doc)
		}
		c.values[doc] = append([]byte(nil), v...)
		c.docs.Add(uint32(doc))
	}
	b.seg.binary[field] = c
	return nil
}

// Finish returns the built segment. The Builder must not be used after.
func (b *Builder) Finish() *Segment {
	for _, c := range b.seg.numeric {
		c.docs.RunOptimize()
	}
	for _, c := range b.seg.binary {
		c.docs.RunOptimize()
	}
	s := b.seg
	s.buildBloom()
	b.seg = nil
	return s
}
