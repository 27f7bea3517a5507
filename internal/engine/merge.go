package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/lexgo/internal/merge"
	"github.com/hupe1980/lexgo/internal/updates"
)

// Merge merges the named segments into a new one and returns its name.
// Deletes and doc-value updates that arrive while the merge runs are
// carried over to the merged segment.
func (w *Writer) Merge(ctx context.Context, names ...string) (string, error) {
	if err := w.ensureOpen(); err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", merge.ErrNoInputs
	}
	if err := w.rc.AcquireJob(ctx); err != nil {
		return "", err
	}
	defer w.rc.ReleaseJob()

	if err := w.applyAllDeletes(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	segs, inputs, startGen, err := w.startMerge(names)
	if err != nil {
		return "", err
	}
	name := w.newSegmentName()

	merged, res, err := w.runMerge(ctx, name, inputs)
	if err != nil {
		w.mu.Lock()
		w.endMergeLocked(segs)
		w.mu.Unlock()
		w.metrics.OnMerge(time.Since(start), len(segs), 0, err)
		w.logger.Error("merge failed", "segment", name, "inputs", names, "error", err)
		return "", err
	}

	w.mu.Lock()
	err = w.commitMergeLocked(segs, inputs, startGen, merged, res)
	w.endMergeLocked(segs)
	w.mu.Unlock()

	w.metrics.OnMerge(time.Since(start), len(segs), merged.MaxDoc(), err)
	if err != nil {
		return "", err
	}
	w.numMerges.Add(1)
	w.logger.Info("merged segments",
		"segment", name,
		"inputs", names,
		"docs", merged.MaxDoc(),
		"took", time.Since(start))
	return name, nil
}

// startMerge registers the inputs and snapshots their deletions. The
// returned generation is the newest packet already reflected in them.
func (w *Writer) startMerge(names []string) ([]*segment, []merge.Input, int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	segs := make([]*segment, 0, len(names))
	for _, name := range names {
		i := slices.IndexFunc(w.segments, func(s *segment) bool { return s.Name() == name })
		if i < 0 {
			return nil, nil, 0, fmt.Errorf("%w: %s", ErrSegmentNotFound, name)
		}
		s := w.segments[i]
		if _, ok := w.merging[s]; ok || slices.Contains(segs, s) {
			return nil, nil, 0, fmt.Errorf("%w: %s", ErrMergeConflict, name)
		}
		segs = append(segs, s)
	}

	res, err := w.applyLocked()
	if err != nil {
		return nil, nil, 0, err
	}
	// Inputs emptied by the apply are gone already.
	for _, s := range segs {
		if !slices.Contains(w.segments, s) {
			return nil, nil, 0, fmt.Errorf("%w: %s", ErrSegmentNotFound, s.Name())
		}
	}

	inputs := make([]merge.Input, len(segs))
	for i, s := range segs {
		w.merging[s] = res.Gen
		inputs[i] = merge.Input{Segment: s.cs, Deleted: s.deleted.Clone()}
	}
	return segs, inputs, res.Gen, nil
}

func (w *Writer) runMerge(ctx context.Context, name string, inputs []merge.Input) (*segment, *merge.Result, error) {
	var ram int64
	for _, in := range inputs {
		ram += in.Segment.RAMBytesUsed()
	}
	if err := w.rc.AcquireMemory(ram); err != nil {
		return nil, nil, err
	}
	defer w.rc.ReleaseMemory(ram)

	res, err := w.merger.Merge(name, inputs)
	if err != nil {
		return nil, nil, err
	}
	merged := newSegment(res.Segment)
	if merged.MaxDoc() > 0 {
		if err := w.writeSegment(ctx, merged); err != nil {
			return nil, nil, err
		}
	}
	return merged, res, nil
}

// commitMergeLocked carries concurrent changes to merged and swaps it in
// for its inputs.
func (w *Writer) commitMergeLocked(segs []*segment, inputs []merge.Input, startGen int64, merged *segment, res *merge.Result) error {
	// Inputs are never dropped while merging.
	now := make([]*roaring.Bitmap, len(segs))
	for i, s := range segs {
		now[i] = s.deleted
	}
	carried := merge.CarryDeletes(inputs, res.DocMaps, now)
	it := carried.Iterator()
	for it.HasNext() {
		merged.Delete(int(it.Next()))
	}

	if _, err := updates.ApplyCoalesced(w.stream.CoalescedSince(startGen), merged); err != nil {
		return err
	}
	merged.SetBufferedDeletesGen(w.stream.NextGen())

	w.segments = slices.DeleteFunc(w.segments, func(s *segment) bool {
		return slices.Contains(segs, s)
	})
	if merged.NumLive() > 0 {
		w.segments = append(w.segments, merged)
	} else if merged.written {
		w.obsolete = append(w.obsolete, merged.info().Files()...)
	}

	for _, s := range segs {
		if s.written && !s.committed {
			w.obsolete = append(w.obsolete, s.info().Files()...)
		}
	}
	return nil
}

func (w *Writer) endMergeLocked(segs []*segment) {
	for _, s := range segs {
		delete(w.merging, s)
	}
	w.pruneLocked()
}
