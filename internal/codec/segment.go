package codec

import (
	"iter"
	"maps"
	"slices"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/lexgo/model"
)

type fieldIndex struct {
	terms    []string
	postings [][]Posting
}

func (f *fieldIndex) lookup(text string) ([]Posting, bool) {
	i := sort.SearchStrings(f.terms, text)
	if i < len(f.terms) && f.terms[i] == text {
		return f.postings[i], true
	}
	return nil, false
}

// NumericColumn holds one numeric doc-values field.
type NumericColumn struct {
	values []int64
	docs   *roaring.Bitmap
}

// BinaryColumn holds one binary doc-values field.
type BinaryColumn struct {
	values [][]byte
	docs   *roaring.Bitmap
}

// Segment is an immutable flushed segment. Deletions are tracked by the
// owner; a segment always exposes every doc it was built with.
type Segment struct {
	name    string
	maxDoc  int
	dvGen   int64
	fields  map[string]*fieldIndex
	numeric map[string]*NumericColumn
	binary  map[string]*BinaryColumn
	bloom   *bloomFilter
}

// Name returns the segment name.
func (s *Segment) Name() string { return s.name }

// MaxDoc returns the number of docs, deleted or not.
func (s *Segment) MaxDoc() int { return s.maxDoc }

// DocValuesGen counts the doc-value updates installed with WithUpdates.
func (s *Segment) DocValuesGen() int64 { return s.dvGen }

// Docs implements model.SegmentReader.
func (s *Segment) Docs(t model.Term) iter.Seq[int] {
	return func(yield func(int) bool) {
		for _, p := range s.Postings(t) {
			if !yield(p.Doc) {
				return
			}
		}
	}
}

// Postings returns t's postings, or nil.
func (s *Segment) Postings(t model.Term) []Posting {
	f, ok := s.fields[t.Field]
	if !ok || !s.MayContain(t) {
		return nil
	}
	p, _ := f.lookup(t.Text)
	return p
}

// DocFreq returns the number of docs containing t.
func (s *Segment) DocFreq(t model.Term) int { return len(s.Postings(t)) }

// Fields returns the indexed fields in sorted order.
func (s *Segment) Fields() []string { return slices.Sorted(maps.Keys(s.fields)) }

// Terms yields a field's terms with their postings in sorted order.
func (s *Segment) Terms(field string) iter.Seq2[string, []Posting] {
	return func(yield func(string, []Posting) bool) {
		f, ok := s.fields[field]
		if !ok {
			return
		}
		for i, t := range f.terms {
			if !yield(t, f.postings[i]) {
				return
			}
		}
	}
}

// NumTerms returns the number of distinct terms over all fields.
func (s *Segment) NumTerms() int {
	var n int
	for _, f := range s.fields {
		n += len(f.terms)
	}
	return n
}

// NumericFields returns the numeric doc-values fields in sorted order.
func (s *Segment) NumericFields() []string { return slices.Sorted(maps.Keys(s.numeric)) }

// BinaryFields returns the binary doc-values fields in sorted order.
func (s *Segment) BinaryFields() []string { return slices.Sorted(maps.Keys(s.binary)) }

// Numeric returns doc's value for field.
func (s *Segment) Numeric(field string, doc int) (int64, bool) {
	c, ok := s.numeric[field]
	if !ok || !c.docs.Contains(uint32(doc)) {
		return 0, false
	}
	return c.values[doc], true
}

// Binary returns doc's value for field.
func (s *Segment) Binary(field string, doc int) ([]byte, bool) {
	c, ok := s.binary[field]
	if !ok || !c.docs.Contains(uint32(doc)) {
		return nil, false
	}
	return c.values[doc], true
}

// NumericValues yields the docs of field that have a value, in doc order.
func (s *Segment) NumericValues(field string) iter.Seq2[int, int64] {
	return func(yield func(int, int64) bool) {
		c, ok := s.numeric[field]
		if !ok {
			return
		}
		it := c.docs.Iterator()
		for it.HasNext() {
			doc := int(it.Next())
			if !yield(doc, c.values[doc]) {
				return
			}
		}
	}
}

// BinaryValues yields the docs of field that have a value, in doc order.
func (s *Segment) BinaryValues(field string) iter.Seq2[int, []byte] {
	return func(yield func(int, []byte) bool) {
		c, ok := s.binary[field]
		if !ok {
			return
		}
		it := c.docs.Iterator()
		for it.HasNext() {
			doc := int(it.Next())
			if !yield(doc, c.values[doc]) {
				return
			}
		}
	}
}

// RAMBytesUsed estimates the memory held by the segment.
func (s *Segment) RAMBytesUsed() int64 {
	var n int64
	if s.bloom != nil {
		n += s.bloom.sizeBytes()
	}
	for name, f := range s.fields {
		n += int64(len(name)) + 64
		for i, t := range f.terms {
			n += int64(len(t)) + 40
			for _, p := range f.postings[i] {
				n += 40 + 8*int64(len(p.Positions))
			}
		}
	}
	for _, c := range s.numeric {
		n += 8*int64(len(c.values)) + int64(c.docs.GetSizeInBytes())
	}
	for _, c := range s.binary {
		n += 24*int64(len(c.values)) + int64(c.docs.GetSizeInBytes())
		for _, v := range c.values {
			n += int64(len(v))
		}
	}
	return n
}
