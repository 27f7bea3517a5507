package merge

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// DocMap maps a source segment's doc IDs onto the merged segment.
type DocMap struct {
	docs       []int32
	numDeleted int
}

// NewDocMap numbers the docs of a maxDoc-sized segment that are not in
// deleted, starting at base.
func NewDocMap(maxDoc int, deleted *roaring.Bitmap, base int) *DocMap {
	m := &DocMap{docs: make([]int32, maxDoc)}
	next := int32(base)
	for doc := range maxDoc {
		if deleted != nil && deleted.Contains(uint32(doc)) {
			m.docs[doc] = -1
			m.numDeleted++
			continue
		}
		m.docs[doc] = next
		next++
	}
	return m
}

// Get returns doc's new ID, or -1 when doc was deleted.
func (m *DocMap) Get(doc int) int {
	if doc < 0 || doc >= len(m.docs) {
		return -1
	}
	return int(m.docs[doc])
}

// MaxDoc returns the size of the source segment.
func (m *DocMap) MaxDoc() int { return len(m.docs) }

// NumDeleted returns the number of source docs that map to -1.
func (m *DocMap) NumDeleted() int { return m.numDeleted }

// NumLive returns the number of source docs that survive.
func (m *DocMap) NumLive() int { return len(m.docs) - m.numDeleted }
