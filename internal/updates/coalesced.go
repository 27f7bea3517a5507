package updates

import (
	"container/heap"
	"iter"
	"math"
	"slices"

	"github.com/hupe1980/lexgo/model"
)

// Coalesced is a read-only union of global packets. Term and query deletes
// coming from it apply to every doc of a segment.
type Coalesced struct {
	packets []*Frozen
}

// NewCoalesced returns an empty union.
func NewCoalesced() *Coalesced { return &Coalesced{} }

// Update adds a global packet.
func (c *Coalesced) Update(f *Frozen) {
	invariant(!f.segmentPrivate, "coalescing segment-private packet %s", f)
	c.packets = append(c.packets, f)
}

// Len returns the number of packets in the union.
func (c *Coalesced) Len() int { return len(c.packets) }

// Any reports whether any packet holds something to apply.
func (c *Coalesced) Any() bool {
	for _, f := range c.packets {
		if f.Any() {
			return true
		}
	}
	return false
}

// Terms yields the union of all packets' terms in sorted order, without
// duplicates.
func (c *Coalesced) Terms() iter.Seq[model.Term] {
	return func(yield func(model.Term) bool) {
		h := make(termHeap, 0, len(c.packets))
		for _, f := range c.packets {
			it := f.terms.Iterator()
			if it.Next() {
				h = append(h, it)
			}
		}
		heap.Init(&h)

		var last model.Term
		first := true
		for h.Len() > 0 {
			top := h[0]
			t := top.Term()
			if top.Next() {
				heap.Fix(&h, 0)
			} else {
				heap.Pop(&h)
			}
			if !first && t == last {
				continue
			}
			first, last = false, t
			if !yield(t) {
				return
			}
		}
	}
}

// Queries yields every packet's queries with an unbounded doc limit.
func (c *Coalesced) Queries() iter.Seq2[model.Query, int] {
	return func(yield func(model.Query, int) bool) {
		for _, f := range c.packets {
			for _, e := range f.queries {
				if !yield(e.query, math.MaxInt32) {
					return
				}
			}
		}
	}
}

// NumericUpdates yields numeric updates from the oldest packet to the newest.
func (c *Coalesced) NumericUpdates() iter.Seq[*DocValuesUpdate] {
	return c.updates(func(f *Frozen) []*DocValuesUpdate { return f.numericUpdates })
}

// BinaryUpdates yields binary updates from the oldest packet to the newest.
func (c *Coalesced) BinaryUpdates() iter.Seq[*DocValuesUpdate] {
	return c.updates(func(f *Frozen) []*DocValuesUpdate { return f.binaryUpdates })
}

func (c *Coalesced) updates(get func(*Frozen) []*DocValuesUpdate) iter.Seq[*DocValuesUpdate] {
	return func(yield func(*DocValuesUpdate) bool) {
		ordered := slices.Clone(c.packets)
		slices.SortStableFunc(ordered, byDelGen)
		for _, f := range ordered {
			for _, u := range get(f) {
				if !yield(u) {
					return
				}
			}
		}
	}
}

type termHeap []*TermIterator

func (h termHeap) Len() int           { return len(h) }
func (h termHeap) Less(i, j int) bool { return h[i].Term().Compare(h[j].Term()) < 0 }
func (h termHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *termHeap) Push(x any)        { *h = append(*h, x.(*TermIterator)) }

func (h *termHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}
