package codec

import (
	"fmt"
	"maps"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/lexgo/internal/docvalues"
)

// WithUpdates returns a copy of s with c's doc-value updates installed and
// the doc-values generation advanced. Postings are shared. Columns that c
// does not touch are shared too.
func (s *Segment) WithUpdates(c *docvalues.Container) (*Segment, error) {
	out := &Segment{
		name:    s.name,
		maxDoc:  s.maxDoc,
		dvGen:   s.dvGen + 1,
		fields:  s.fields,
		bloom:   s.bloom,
		numeric: maps.Clone(s.numeric),
		binary:  maps.Clone(s.binary),
	}

	for field, u := range c.NumericFields() {
		if _, ok := s.binary[field]; ok {
			return nil, fmt.Errorf("%w: %q is binary", ErrFieldKind, field)
		}
		if u.MaxDoc() != s.maxDoc {
			return nil, fmt.Errorf("%w: numeric updates for %q sized %d, segment has %d docs", ErrCorrupt, field, u.MaxDoc(), s.maxDoc)
		}
		col := cloneNumeric(out.numeric[field], s.maxDoc)
		it := u.Iterator()
		for doc := it.NextDoc(); doc != docvalues.NoMoreDocs; doc = it.NextDoc() {
			if it.HasValue() {
				col.values[doc] = it.Value()
				col.docs.Add(uint32(doc))
			} else {
				col.values[doc] = 0
				col.docs.Remove(uint32(doc))
			}
		}
		out.numeric[field] = col
	}

	for field, u := range c.BinaryFields() {
		if _, ok := s.numeric[field]; ok {
			return nil, fmt.Errorf("%w: %q is numeric", ErrFieldKind, field)
		}
		if u.MaxDoc() != s.maxDoc {
			return nil, fmt.Errorf("%w: binary updates for %q sized %d, segment has %d docs", ErrCorrupt, field, u.MaxDoc(), s.maxDoc)
		}
		col := cloneBinary(out.binary[field], s.maxDoc)
		it := u.Iterator()
		for doc := it.NextDoc(); doc != docvalues.NoMoreDocs; doc = it.NextDoc() {
			if it.HasValue() {
				col.values[doc] = append([]byte(nil), it.Value()...)
				col.docs.Add(uint32(doc))
			} else {
				col.values[doc] = nil
				col.docs.Remove(uint32(doc))
			}
		}
		out.binary[field] = col
	}
	return out, nil
}

func cloneNumeric(c *NumericColumn, maxDoc int) *NumericColumn {
	if c == nil {
		return &NumericColumn{values: make([]int64, maxDoc), docs: roaring.New()}
	}
	return &NumericColumn{values: slices.Clone(c.values), docs: c.docs.Clone()}
}

func cloneBinary(c *BinaryColumn, maxDoc int) *BinaryColumn {
	if c == nil {
		return &BinaryColumn{values: make([][]byte, maxDoc), docs: roaring.New()}
	}
	return &BinaryColumn{values: slices.Clone(c.values), docs: c.docs.Clone()}
}
