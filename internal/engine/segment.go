package engine

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/lexgo/internal/codec"
	"github.com/hupe1980/lexgo/internal/docvalues"
	"github.com/hupe1980/lexgo/internal/manifest"
	"github.com/hupe1980/lexgo/model"
)

// segment is a published segment together with its deletions. It
// implements updates.Segment. Once published it is guarded by Writer.mu.
type segment struct {
	cs      *codec.Segment
	deleted *roaring.Bitmap

	bufferedDeletesGen int64

	// delGen and dvGen name the blobs of the last commit that wrote them.
	delGen       int64
	dvGen        int64
	deletesDirty bool
	written      bool
	committed    bool

	compression codec.Compression
	size        int64
}

func newSegment(cs *codec.Segment) *segment {
	return &segment{cs: cs, deleted: roaring.New(), dvGen: cs.DocValuesGen()}
}

// Name implements updates.Segment.
func (s *segment) Name() string { return s.cs.Name() }

// MaxDoc implements model.SegmentReader.
func (s *segment) MaxDoc() int { return s.cs.MaxDoc() }

// Docs implements model.SegmentReader. Deleted docs are included.
func (s *segment) Docs(t model.Term) iter.Seq[int] { return s.cs.Docs(t) }

// BufferedDeletesGen implements updates.Segment.
func (s *segment) BufferedDeletesGen() int64 { return s.bufferedDeletesGen }

// SetBufferedDeletesGen implements updates.Segment.
func (s *segment) SetBufferedDeletesGen(gen int64) { s.bufferedDeletesGen = gen }

// IsDeleted implements updates.Segment.
func (s *segment) IsDeleted(doc int) bool { return s.deleted.Contains(uint32(doc)) }

// Delete implements updates.Segment.
func (s *segment) Delete(doc int) bool {
	if doc < 0 || doc >= s.cs.MaxDoc() {
		return false
	}
	if s.deleted.CheckedAdd(uint32(doc)) {
		s.deletesDirty = true
		return true
	}
	return false
}

// NumDeleted implements updates.Segment.
func (s *segment) NumDeleted() int { return int(s.deleted.GetCardinality()) }

// NumLive returns the docs not deleted.
func (s *segment) NumLive() int { return s.MaxDoc() - s.NumDeleted() }

// ApplyDocValuesUpdates implements updates.Segment.
func (s *segment) ApplyDocValuesUpdates(c *docvalues.Container) error {
	cs, err := s.cs.WithUpdates(c)
	if err != nil {
		return err
	}
	s.cs = cs
	return nil
}

// info describes the segment as of its last written blobs.
func (s *segment) info() manifest.SegmentInfo {
	return manifest.SegmentInfo{
		Name:        s.Name(),
		MaxDoc:      s.MaxDoc(),
		DelCount:    s.NumDeleted(),
		DelGen:      s.delGen,
		DVGen:       s.dvGen,
		Compression: s.compression.String(),
		Size:        s.size,
	}
}

// SegmentInfo describes a published segment.
type SegmentInfo struct {
	Name               string
	MaxDoc             int
	NumDeleted         int
	DocValuesGen       int64
	BufferedDeletesGen int64
	Committed          bool
}

func (s *segment) publicInfo() SegmentInfo {
	return SegmentInfo{
		Name:               s.Name(),
		MaxDoc:             s.MaxDoc(),
		NumDeleted:         s.NumDeleted(),
		DocValuesGen:       s.cs.DocValuesGen(),
		BufferedDeletesGen: s.bufferedDeletesGen,
		Committed:          s.committed,
	}
}

// SegmentView is a point-in-time view of a published segment. Deleted is a
// copy; Segment is immutable.
type SegmentView struct {
	Info    SegmentInfo
	Segment *codec.Segment
	Deleted *roaring.Bitmap
}

// IsLive reports whether doc is not deleted.
func (v SegmentView) IsLive(doc int) bool {
	return doc >= 0 && doc < v.Segment.MaxDoc() && !v.Deleted.Contains(uint32(doc))
}

// LiveDocs yields the docs containing t that are not deleted.
func (v SegmentView) LiveDocs(t model.Term) iter.Seq[int] {
	return func(yield func(int) bool) {
		for doc := range v.Segment.Docs(t) {
			if v.Deleted.Contains(uint32(doc)) {
				continue
			}
			if !yield(doc) {
				return
			}
		}
	}
}

func (s *segment) view() SegmentView {
	return SegmentView{Info: s.publicInfo(), Segment: s.cs, Deleted: s.deleted.Clone()}
}
