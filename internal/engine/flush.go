package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/lexgo/internal/codec"
	"github.com/hupe1980/lexgo/internal/flush"
	"github.com/hupe1980/lexgo/internal/manifest"
	"github.com/hupe1980/lexgo/internal/resource"
)

// doFlush turns a checked-out buffer into a segment and publishes whatever
// tickets are ready. The buffer is released in every case.
func (w *Writer) doFlush(ctx context.Context, b flush.Buffer) error {
	pt := b.(*perThread)
	start := time.Now()
	docs := pt.NumDocs()
	bytes := pt.BytesUsed()

	err := w.flushBuffer(ctx, pt)
	pt.release()
	w.control.DoAfterFlush(pt)
	w.numFlushes.Add(1)
	w.publish()

	w.metrics.OnFlush(time.Since(start), docs, bytes, err)
	if err != nil {
		w.logger.Error("flush failed", "segment", pt.name, "docs", docs, "error", err)
		return fmt.Errorf("%w: segment %s: %w", ErrFlushFailed, pt.name, err)
	}
	w.logger.Debug("flushed segment", "segment", pt.name, "docs", docs, "bytes", bytes, "took", time.Since(start))
	return nil
}

func (w *Writer) flushBuffer(ctx context.Context, pt *perThread) error {
	t, err := w.tickets.addFlushTicket(pt)
	if err != nil {
		return err
	}

	seg, private, err := pt.flush()
	if err == nil && seg.NumLive() > 0 {
		err = w.writeSegment(ctx, seg)
	}
	if err != nil {
		w.tickets.markDone(t, nil)
		return err
	}
	w.tickets.markDone(t, &flushedSegment{seg: seg, private: private, docs: pt.NumDocs()})
	return nil
}

// writeSegment stores the segment blob under the name of its current
// doc-values generation.
func (w *Writer) writeSegment(ctx context.Context, seg *segment) error {
	data, err := codec.Marshal(seg.cs, w.compression)
	if err != nil {
		return err
	}
	info := manifest.SegmentInfo{Name: seg.Name(), DVGen: seg.cs.DocValuesGen()}
	if err := w.writeBlob(ctx, info.SegmentFile(), data); err != nil {
		return err
	}
	seg.dvGen = info.DVGen
	seg.size = int64(len(data))
	seg.compression = w.compression
	seg.written = true
	return nil
}

func (w *Writer) writeBlob(ctx context.Context, name string, data []byte) (err error) {
	blob, err := w.store.Create(ctx, name)
	if err != nil {
		return err
	}
	out := resource.NewRateLimitedWriter(ctx, blob, w.rc)
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	if _, err := out.Write(data); err != nil {
		return err
	}
	return out.Sync()
}

// publish drains the completed tickets in order.
func (w *Writer) publish() {
	if w.tickets.purge(w.publishTicket) > 0 {
		w.metrics.OnQueueDepth("tickets", w.tickets.len())
		w.metrics.OnQueueDepth("packets", w.stream.NumPackets())
	}
}

// publishTicket pushes the ticket's global packet, then adds its segment.
// A segment whose private packet carries queries or doc-value updates takes
// that packet's generation, so only the packet reaches it.
func (w *Writer) publishTicket(t *flushTicket) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t.global != nil {
		w.stream.Push(t.global)
	}
	fs := t.flushed
	if t.failed || fs == nil {
		return
	}
	seg := fs.seg
	if seg.NumLive() == 0 {
		w.logger.Debug("dropped fully deleted flush", "segment", seg.Name(), "docs", fs.docs)
		return
	}
	if fs.private != nil && (fs.private.NumQueries() > 0 || fs.private.AnyUpdates()) {
		seg.SetBufferedDeletesGen(w.stream.Push(fs.private))
	} else {
		seg.SetBufferedDeletesGen(w.stream.NextGen())
	}
	w.segments = append(w.segments, seg)
}

// Flush writes every buffered doc into segments. Deletes buffered so far are
// frozen too; applyDeletes also resolves them against the segments.
func (w *Writer) Flush(ctx context.Context, applyDeletes bool) error {
	if err := w.ensureOpen(); err != nil {
		return err
	}
	return w.flushAll(ctx, applyDeletes)
}

func (w *Writer) flushAll(ctx context.Context, applyDeletes bool) error {
	w.fullFlushMu.Lock()
	defer w.fullFlushMu.Unlock()

	start := time.Now()
	var old *deleteQueue
	w.control.MarkForFullFlush(func() int64 {
		w.deleteMu.Lock()
		defer w.deleteMu.Unlock()

		old = w.queue.Load()
		w.queue.Store(newDeleteQueue(old.gen + 1))
		return old.gen
	})

	err := w.flushQueued(ctx)
	err = errors.Join(err, w.control.WaitForFlush(ctx))
	err = errors.Join(err, w.tickets.addDeletes(old))

	if err != nil {
		for _, b := range w.control.AbortFullFlush() {
			if pt, ok := b.(*perThread); ok {
				pt.release()
			}
		}
		w.publish()
		w.logger.Error("full flush aborted", "gen", old.gen, "error", err)
		return err
	}
	w.control.FinishFullFlush()
	w.publish()

	// Buffers blocked during the flush belong to the new queue.
	if err := w.flushQueued(ctx); err != nil {
		return err
	}
	w.logger.Debug("full flush", "gen", old.gen, "took", time.Since(start))

	if applyDeletes {
		return w.applyAllDeletes(ctx)
	}
	return nil
}

// flushQueued flushes the queued buffers in parallel, one job slot each.
func (w *Writer) flushQueued(ctx context.Context) error {
	var g errgroup.Group
	for b := w.control.NextPendingFlush(); b != nil; b = w.control.NextPendingFlush() {
		if err := w.rc.AcquireJob(ctx); err != nil {
			w.discard(b.(*perThread))
			_ = g.Wait()
			w.publish()
			return err
		}
		g.Go(func() error {
			defer w.rc.ReleaseJob()
			return w.doFlush(ctx, b)
		})
	}
	return g.Wait()
}

// discard drops a checked-out buffer. The global packet it would have frozen
// is still queued.
func (w *Writer) discard(pt *perThread) {
	if t, err := w.tickets.addFlushTicket(pt); err == nil {
		w.tickets.markDone(t, nil)
	}
	pt.release()
	w.control.DoAfterFlush(pt)
	w.logger.Warn("discarded buffer", "segment", pt.name, "docs", pt.NumDocs())
}
