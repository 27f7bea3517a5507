package docvalues

import (
	"fmt"
	"iter"
	"maps"
	"slices"
)

// Container groups the field buffers destined for one segment.
type Container struct {
	numeric map[string]*NumericUpdates
	binary  map[string]*BinaryUpdates
}

// NewContainer returns an empty container.
func NewContainer() *Container {
	return &Container{
		numeric: make(map[string]*NumericUpdates),
		binary:  make(map[string]*BinaryUpdates),
	}
}

// Numeric returns the numeric buffer for field, creating it if needed.
func (c *Container) Numeric(field string, maxDoc int) *NumericUpdates {
	u, ok := c.numeric[field]
	if !ok {
		u = NewNumeric(field, maxDoc)
		c.numeric[field] = u
	}
	return u
}

// Binary returns the binary buffer for field, creating it if needed.
func (c *Container) Binary(field string, maxDoc int) *BinaryUpdates {
	u, ok := c.binary[field]
	if !ok {
		u = NewBinary(field, maxDoc)
		c.binary[field] = u
	}
	return u
}

// LookupNumeric returns the numeric buffer for field if one exists.
func (c *Container) LookupNumeric(field string) (*NumericUpdates, bool) {
	u, ok := c.numeric[field]
	return u, ok
}

// LookupBinary returns the binary buffer for field if one exists.
func (c *Container) LookupBinary(field string) (*BinaryUpdates, bool) {
	u, ok := c.binary[field]
	return u, ok
}

// NumericFields yields the numeric buffers ordered by field name.
func (c *Container) NumericFields() iter.Seq2[string, *NumericUpdates] {
	return sortedFields(c.numeric)
}

// BinaryFields yields the binary buffers ordered by field name.
func (c *Container) BinaryFields() iter.Seq2[string, *BinaryUpdates] {
	return sortedFields(c.binary)
}

func sortedFields[V any](m map[string]*FieldUpdates[V]) iter.Seq2[string, *FieldUpdates[V]] {
	return func(yield func(string, *FieldUpdates[V]) bool) {
		for _, field := range slices.Sorted(maps.Keys(m)) {
			if !yield(field, m[field]) {
				return
			}
		}
	}
}

// Any reports whether any buffer holds entries.
func (c *Container) Any() bool {
	for _, u := range c.numeric {
		if u.Any() {
			return true
		}
	}
	for _, u := range c.binary {
		if u.Any() {
			return true
		}
	}
	return false
}

// Size returns the number of entries across all buffers.
func (c *Container) Size() int {
	n := 0
	for _, u := range c.numeric {
		n += u.Size()
	}
	for _, u := range c.binary {
		n += u.Size()
	}
	return n
}

// RAMBytesUsed estimates the heap held by all buffers.
func (c *Container) RAMBytesUsed() int64 {
	var n int64
	for _, u := range c.numeric {
		n += u.RAMBytesUsed()
	}
	for _, u := range c.binary {
		n += u.RAMBytesUsed()
	}
	return n
}

// Merge appends other's buffers field by field.
func (c *Container) Merge(other *Container) error {
	for field, u := range other.numeric {
		if err := c.Numeric(field, u.maxDoc).Merge(u); err != nil {
			return fmt.Errorf("merge numeric updates: %w", err)
		}
	}
	for field, u := range other.binary {
		if err := c.Binary(field, u.maxDoc).Merge(u); err != nil {
			return fmt.Errorf("merge binary updates: %w", err)
		}
	}
	return nil
}
