package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/internal/codec"
	"github.com/hupe1980/lexgo/internal/manifest"
)

// pendingWrite is what a commit has to write for one segment.
type pendingWrite struct {
	seg  *segment
	info manifest.SegmentInfo

	// liveDocs is set when deletions changed since the last commit.
	liveDocs []byte
	delCount int
	// dv is set when doc values changed since the segment was written.
	dv *codec.Segment
}

// Commit flushes and applies everything buffered, writes changed deletions
// and doc values, and stores a new manifest. It returns once the manifest
// is durable.
func (w *Writer) Commit(ctx context.Context) error {
	if err := w.ensureOpen(); err != nil {
		return err
	}
	return w.commit(ctx)
}

func (w *Writer) commit(ctx context.Context) error {
	w.commitMu.Lock()
	defer w.commitMu.Unlock()

	start := time.Now()
	err := w.doCommit(ctx)
	w.metrics.OnCommit(time.Since(start), w.generation.Load(), err)
	if err != nil {
		w.logger.Error("commit failed", "error", err)
		return err
	}
	w.numCommits.Add(1)
	w.logger.Info("committed", "generation", w.generation.Load(), "took", time.Since(start))
	return nil
}

func (w *Writer) doCommit(ctx context.Context) error {
	if err := w.flushAll(ctx, true); err != nil {
		return err
	}

	writes, obsolete, err := w.snapshotWrites()
	if err != nil {
		return err
	}

	var replaced []string
	for _, pw := range writes {
		old := pw.info
		if pw.liveDocs != nil {
			pw.info.DelGen++
			if err := w.writeBlob(ctx, pw.info.LiveDocsFile(), pw.liveDocs); err != nil {
				return err
			}
			if f := old.LiveDocsFile(); f != "" {
				replaced = append(replaced, f)
			}
		}
		if pw.dv != nil {
			pw.info.DVGen = pw.dv.DocValuesGen()
			data, err := codec.Marshal(pw.dv, pw.seg.compression)
			if err != nil {
				return err
			}
			if err := w.writeBlob(ctx, pw.info.SegmentFile(), data); err != nil {
				return err
			}
			pw.info.Size = int64(len(data))
			replaced = append(replaced, old.SegmentFile())
		}
	}

	w.mu.Lock()
	infos := make([]manifest.SegmentInfo, len(writes))
	for i, pw := range writes {
		infos[i] = pw.info
		s := pw.seg
		if pw.liveDocs != nil {
			s.delGen = pw.info.DelGen
			s.deletesDirty = s.NumDeleted() != pw.delCount
		}
		if pw.dv != nil {
			s.dvGen = pw.info.DVGen
			s.size = pw.info.Size
		}
	}
	w.mu.Unlock()

	prev := w.lastCommit
	m := prev.Clone()
	m.Segments = infos
	m.Counter = w.counter.Load()
	if err := w.manifests.Commit(ctx, m); err != nil {
		return err
	}
	w.lastCommit = m
	w.generation.Store(m.Generation)

	w.mu.Lock()
	for _, pw := range writes {
		pw.seg.committed = true
	}
	w.mu.Unlock()

	w.deleteUnreferenced(ctx, prev, m, slices.Concat(obsolete, replaced))
	return nil
}

// snapshotWrites collects what each published segment needs written and
// takes the list of blobs no segment uses anymore.
func (w *Writer) snapshotWrites() ([]*pendingWrite, []string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	writes := make([]*pendingWrite, 0, len(w.segments))
	for _, s := range w.segments {
		pw := &pendingWrite{seg: s, info: s.info(), delCount: s.NumDeleted()}
		if s.deletesDirty {
			data, err := s.deleted.ToBytes()
			if err != nil {
				return nil, nil, fmt.Errorf("segment %s: live docs: %w", s.Name(), err)
			}
			pw.liveDocs = data
		}
		pw.info.DelCount = pw.delCount
		if s.cs.DocValuesGen() != s.dvGen || !s.written {
			pw.dv = s.cs
		}
		writes = append(writes, pw)
	}
	obsolete := w.obsolete
	w.obsolete = nil
	return writes, obsolete, nil
}

// deleteUnreferenced removes the blobs of prev and the obsolete ones that
// m does not reference, then prev's manifest. Failures are only logged; the
// next commit retries what prev referenced.
func (w *Writer) deleteUnreferenced(ctx context.Context, prev, m *manifest.Manifest, obsolete []string) {
	keep := m.Files()
	candidates := slices.Concat(prev.Files(), obsolete)
	slices.Sort(candidates)
	for _, name := range slices.Compact(candidates) {
		if _, found := slices.BinarySearch(keep, name); found {
			continue
		}
		if err := w.store.Delete(ctx, name); err != nil {
			w.logger.Warn("delete unreferenced blob", "name", name, "error", err)
		}
	}
	if prev.Generation > 0 {
		if err := w.manifests.DeleteGeneration(ctx, prev.Generation); err != nil {
			w.logger.Warn("delete manifest", "generation", prev.Generation, "error", err)
		}
	}
}

// load opens the segments of the last commit.
func (w *Writer) load(ctx context.Context) error {
	m, err := w.manifests.Load(ctx)
	if errors.Is(err, manifest.ErrNotFound) {
		w.lastCommit = manifest.New()
		return nil
	}
	if err != nil {
		return err
	}

	for _, info := range m.Segments {
		s, err := w.loadSegment(ctx, info)
		if err != nil {
			return fmt.Errorf("segment %s: %w", info.Name, err)
		}
		w.fields.load(s.cs)
		s.SetBufferedDeletesGen(w.stream.NextGen())
		w.segments = append(w.segments, s)
	}
	w.counter.Store(m.Counter)
	w.lastCommit = m
	w.generation.Store(m.Generation)

	w.logger.Info("opened index",
		"generation", m.Generation,
		"segments", len(m.Segments),
		"docs", m.TotalDocs())
	return nil
}

func (w *Writer) loadSegment(ctx context.Context, info manifest.SegmentInfo) (*segment, error) {
	data, err := blobstore.ReadAll(ctx, w.store, info.SegmentFile())
	if err != nil {
		return nil, err
	}
	cs, err := codec.Decode(data)
	if err != nil {
		return nil, err
	}
	compression, err := codec.ParseCompression(info.Compression)
	if err != nil {
		return nil, err
	}

	s := newSegment(cs)
	s.delGen = info.DelGen
	s.dvGen = info.DVGen
	s.written = true
	s.committed = true
	s.compression = compression
	s.size = info.Size

	if f := info.LiveDocsFile(); f != "" {
		data, err := blobstore.ReadAll(ctx, w.store, f)
		if err != nil {
			return nil, err
		}
		deleted := roaring.New()
		if err := deleted.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("live docs: %w", err)
		}
		s.deleted = deleted
	}
	if n := s.NumDeleted(); n != info.DelCount {
		return nil, fmt.Errorf("live docs: %d deleted, manifest says %d", n, info.DelCount)
	}
	return s, nil
}
