package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/internal/analysis"
	"github.com/hupe1980/lexgo/internal/arena"
	"github.com/hupe1980/lexgo/internal/codec"
	"github.com/hupe1980/lexgo/internal/docvalues"
	"github.com/hupe1980/lexgo/internal/flush"
	"github.com/hupe1980/lexgo/internal/manifest"
	"github.com/hupe1980/lexgo/internal/merge"
	"github.com/hupe1980/lexgo/internal/resource"
	"github.com/hupe1980/lexgo/internal/updates"
	"github.com/hupe1980/lexgo/model"
)

// Stats is a snapshot of the writer's counters.
type Stats struct {
	Flush flush.Stats

	NumSegments int
	NumDocs     int
	NumLiveDocs int

	PendingPackets   int
	PendingTickets   int
	DeleteQueueBytes int64
	// DeleteQueueLen counts the logged deletes some buffer has not pulled.
	DeleteQueueLen   int
	StreamBytes      int64
	ArenaBytes       int64

	Flushes    int64
	Merges     int64
	Commits    int64
	Generation uint64
}

// Writer indexes documents concurrently into per-thread buffers and turns
// them into segments.
type Writer struct {
	logger          *slog.Logger
	metrics         MetricsObserver
	flushConfig     flush.Config
	policy          flush.Policy
	maxThreadStates int
	analyzer        analysis.Analyzer
	allocator       arena.Allocator
	mappedArena     bool
	arenaCloser     io.Closer
	rc              *resource.Controller
	store           blobstore.BlobStore
	compression     codec.Compression
	jsonManifest    bool

	pool      *flush.Pool
	control   *flush.Control
	stream    *updates.Stream
	tickets   ticketQueue
	fields    *fieldTypes
	merger    *merge.Merger
	manifests *manifest.Store

	// deleteMu orders delete calls against the queue swap of a full flush.
	deleteMu sync.Mutex
	queue    atomic.Pointer[deleteQueue]

	fullFlushMu sync.Mutex

	commitMu   sync.Mutex
	lastCommit *manifest.Manifest

	// mu guards the published segments. Packets are pushed under it too, so
	// a merge sees a consistent generation.
	mu       sync.Mutex
	segments []*segment
	merging  map[*segment]int64
	obsolete []string

	counter    atomic.Int64
	arenaBytes atomic.Int64
	numFlushes atomic.Int64
	numMerges  atomic.Int64
	numCommits atomic.Int64
	generation atomic.Uint64
	closed     atomic.Bool
}

// deleteStats reports the buffered deletes to flush control. It is called
// under the control lock and only reads atomics.
type deleteStats struct {
	w *Writer
}

func (d deleteStats) BytesUsed() int64 {
	return d.w.queue.Load().bytesUsed() + d.w.stream.BytesUsed()
}

func (d deleteStats) NumGlobalTermDeletes() int64 {
	return d.w.queue.Load().numTermDeletes() + d.w.stream.NumTerms()
}

// Open opens a writer on the configured blob store, loading the last commit
// if there is one. Without a store the index lives in memory.
func Open(ctx context.Context, opts ...Option) (*Writer, error) {
	w := &Writer{
		logger:          slog.New(slog.DiscardHandler),
		metrics:         &NoopMetricsObserver{},
		flushConfig:     flush.DefaultConfig(),
		maxThreadStates: DefaultMaxThreadStates,
		analyzer:        analysis.NewStandardAnalyzer(),
		fields:          newFieldTypes(),
		merging:         make(map[*segment]int64),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.flushConfig.Validate(); err != nil {
		return nil, err
	}
	if w.store == nil {
		w.store = blobstore.NewMemoryStore()
	}
	if w.allocator == nil {
		var next arena.Allocator
		maxFree := defaultFreeBlocks
		if w.mappedArena {
			var mopts []arena.MappedOption
			if w.rc != nil {
				mopts = append(mopts, arena.WithMemoryAcquirer(w.rc))
			}
			mapped := arena.NewMappedAllocator(mopts...)
			next, w.arenaCloser, maxFree = mapped, mapped, 0
		}
		w.allocator = arena.NewRecyclingAllocator(maxFree, next, &w.arenaBytes)
	}

	w.stream = updates.NewStream(w.logger)
	w.queue.Store(newDeleteQueue(1))
	w.pool = flush.NewPool(w.maxThreadStates)

	ctrlOpts := []flush.Option{flush.WithLogger(w.logger)}
	if w.policy != nil {
		ctrlOpts = append(ctrlOpts, flush.WithPolicy(w.policy))
	}
	w.control = flush.NewControl(w.flushConfig, w.pool, deleteStats{w: w}, ctrlOpts...)
	w.merger = merge.NewMerger(merge.WithLogger(w.logger))

	var mopts []manifest.StoreOption
	if w.jsonManifest {
		mopts = append(mopts, manifest.WithJSON())
	}
	w.manifests = manifest.NewStore(w.store, mopts...)

	if err := w.load(ctx); err != nil {
		if w.arenaCloser != nil {
			_ = w.arenaCloser.Close()
		}
		return nil, err
	}
	return w, nil
}

func (w *Writer) ensureOpen() error {
	if w.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (w *Writer) newSegmentName() string {
	return "_" + strconv.FormatInt(w.counter.Add(1)-1, 36)
}

// AddDocument buffers doc.
func (w *Writer) AddDocument(ctx context.Context, doc model.Document) error {
	return w.updateDocument(ctx, nil, doc)
}

// UpdateDocument atomically deletes the docs containing term and adds doc.
// The delete does not reach doc itself.
func (w *Writer) UpdateDocument(ctx context.Context, term model.Term, doc model.Document) error {
	return w.updateDocument(ctx, &term, doc)
}

func (w *Writer) updateDocument(ctx context.Context, delTerm *model.Term, doc model.Document) error {
	if err := w.ensureOpen(); err != nil {
		return err
	}
	if err := w.fields.check(doc); err != nil {
		return err
	}
	if err := w.preUpdate(ctx); err != nil {
		return err
	}

	s, err := w.pool.Obtain(ctx)
	if err != nil {
		return err
	}
	if !s.IsInitialized() {
		s.Init(newPerThread(w.newSegmentName(), w.queue.Load(), w.allocator, w.analyzer))
	}
	pt := s.Buffer().(*perThread)

	if err := pt.addDocument(doc, delTerm); err != nil {
		w.control.DoOnAbort(s)
		w.pool.Release(s)
		pt.release()
		w.logger.Error("aborted buffer", "segment", pt.name, "docs", pt.numDocs, "error", err)
		return fmt.Errorf("%w: segment %s: %w", ErrAborted, pt.name, err)
	}
	toFlush := w.control.DoAfterDocument(s, delTerm != nil)
	w.pool.Release(s)

	return w.postUpdate(ctx, toFlush)
}

// preUpdate helps with pending flushes and waits while indexing is stalled.
func (w *Writer) preUpdate(ctx context.Context) error {
	if w.control.NumPending() == 0 && w.control.Stall().IsHealthy() {
		return nil
	}
	for b := w.control.NextPendingFlush(); b != nil; b = w.control.NextPendingFlush() {
		if err := w.doFlush(ctx, b); err != nil {
			return err
		}
	}
	if w.control.Stall().IsHealthy() {
		return nil
	}
	start := time.Now()
	err := w.control.WaitIfStalled(ctx)
	w.metrics.OnStall(time.Since(start))
	w.logger.Debug("indexing stalled", "took", time.Since(start), "error", err)
	return err
}

// postUpdate flushes the buffer a document pushed over a limit, helps with
// other pending flushes and applies deletes when the policy asked for it.
func (w *Writer) postUpdate(ctx context.Context, toFlush flush.Buffer) error {
	var errs error
	for b := toFlush; b != nil; b = w.control.NextPendingFlush() {
		errs = errors.Join(errs, w.doFlush(ctx, b))
	}
	if w.control.GetAndResetApplyAllDeletes() {
		errs = errors.Join(errs, w.ApplyDeletes(ctx))
	}
	return errs
}

// DeleteTerms deletes every doc containing one of terms, in flushed
// segments and in buffered docs added so far.
func (w *Writer) DeleteTerms(ctx context.Context, terms ...model.Term) error {
	if len(terms) == 0 {
		return nil
	}
	return w.addToQueue(ctx, termsEntry(slices.Clone(terms)...))
}

// DeleteQueries deletes every doc matching one of queries.
func (w *Writer) DeleteQueries(ctx context.Context, queries ...model.Query) error {
	if len(queries) == 0 {
		return nil
	}
	return w.addToQueue(ctx, queriesEntry(slices.Clone(queries)...))
}

// UpdateNumericDocValue sets field to value on every doc containing term.
func (w *Writer) UpdateNumericDocValue(ctx context.Context, term model.Term, field string, value int64) error {
	if err := w.fields.checkOne(field, model.FieldNumeric); err != nil {
		return err
	}
	return w.addToQueue(ctx, updateEntry(updates.NewNumericUpdate(term, field, value)))
}

// UpdateBinaryDocValue sets field to value on every doc containing term. A
// nil value removes the field.
func (w *Writer) UpdateBinaryDocValue(ctx context.Context, term model.Term, field string, value []byte) error {
	if err := w.fields.checkOne(field, model.FieldBinary); err != nil {
		return err
	}
	if value != nil {
		value = slices.Clone(value)
	}
	return w.addToQueue(ctx, updateEntry(updates.NewBinaryUpdate(term, field, value)))
}

// UnsetDocValue removes the doc-values field from every doc containing term.
func (w *Writer) UnsetDocValue(ctx context.Context, term model.Term, field string) error {
	t, ok := w.fields.lookup(field)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	var kind docvalues.Kind
	switch t {
	case model.FieldNumeric:
		kind = docvalues.Numeric
	case model.FieldBinary:
		kind = docvalues.Binary
	default:
		return &FieldTypeError{Field: field, Have: t, Want: model.FieldNumeric}
	}
	return w.addToQueue(ctx, updateEntry(updates.NewUnsetUpdate(kind, term, field)))
}

func (w *Writer) addToQueue(ctx context.Context, e queueEntry) error {
	if err := w.ensureOpen(); err != nil {
		return err
	}
	w.deleteMu.Lock()
	_, err := w.queue.Load().add(e, nil)
	w.deleteMu.Unlock()
	if err != nil {
		return err
	}

	w.control.DoOnDelete()
	if w.control.GetAndResetApplyAllDeletes() {
		return w.ApplyDeletes(ctx)
	}
	return nil
}

// ApplyDeletes freezes the buffered global deletes and resolves every
// pending packet against the published segments.
func (w *Writer) ApplyDeletes(ctx context.Context) error {
	if err := w.ensureOpen(); err != nil {
		return err
	}
	return w.applyAllDeletes(ctx)
}

func (w *Writer) applyAllDeletes(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q := w.queue.Load()
	if !q.anyChanges() && !w.stream.Any() {
		return nil
	}
	w.deleteMu.Lock()
	err := w.tickets.addDeletes(w.queue.Load())
	w.deleteMu.Unlock()
	if err != nil {
		return err
	}
	w.publish()

	w.mu.Lock()
	defer w.mu.Unlock()

	_, err = w.applyLocked()
	return err
}

// applyLocked resolves pending packets, drops segments left without live
// docs and prunes packets no segment needs.
func (w *Writer) applyLocked() (*updates.ApplyResult, error) {
	start := time.Now()
	segs := make([]updates.Segment, len(w.segments))
	for i, s := range w.segments {
		segs[i] = s
	}
	res, err := w.stream.ApplyDeletesAndUpdates(segs)
	if err != nil {
		return nil, err
	}
	if len(res.AllDeleted) > 0 {
		w.dropLocked(res.AllDeleted)
	}
	w.pruneLocked()

	w.metrics.OnApplyDeletes(time.Since(start), res.DeletedDocs, res.UpdatedDocs)
	if res.AnyDeletes || res.UpdatedDocs > 0 {
		w.logger.Debug("applied deletes",
			"gen", res.Gen,
			"deleted", res.DeletedDocs,
			"updated", res.UpdatedDocs,
			"dropped", len(res.AllDeleted),
			"took", time.Since(start))
	}
	return res, nil
}

// dropLocked removes fully deleted segments that are not being merged.
func (w *Writer) dropLocked(drop []updates.Segment) {
	w.segments = slices.DeleteFunc(w.segments, func(s *segment) bool {
		if _, merging := w.merging[s]; merging {
			return false
		}
		if !slices.Contains(drop, updates.Segment(s)) {
			return false
		}
		if s.written && !s.committed {
			w.obsolete = append(w.obsolete, s.info().Files()...)
		}
		w.logger.Debug("dropped fully deleted segment", "segment", s.Name(), "max_doc", s.MaxDoc())
		return true
	})
}

// pruneLocked drops packets older than every segment and running merge.
func (w *Writer) pruneLocked() {
	minGen := int64(1<<63 - 1)
	for _, s := range w.segments {
		minGen = min(minGen, s.bufferedDeletesGen)
	}
	for _, gen := range w.merging {
		minGen = min(minGen, gen+1)
	}
	w.stream.PruneBelow(minGen)
}

// Segments returns the published segments.
func (w *Writer) Segments() []SegmentInfo {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]SegmentInfo, len(w.segments))
	for i, s := range w.segments {
		out[i] = s.publicInfo()
	}
	return out
}

// Snapshot returns a view of every published segment.
func (w *Writer) Snapshot() []SegmentView {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]SegmentView, len(w.segments))
	for i, s := range w.segments {
		out[i] = s.view()
	}
	return out
}

// Segment returns a view of the named segment.
func (w *Writer) Segment(name string) (SegmentView, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, s := range w.segments {
		if s.Name() == name {
			return s.view(), true
		}
	}
	return SegmentView{}, false
}

// Stats returns a snapshot of the writer's counters.
func (w *Writer) Stats() Stats {
	st := Stats{
		Flush:            w.control.Stats(),
		PendingPackets:   w.stream.NumPackets(),
		PendingTickets:   w.tickets.len(),
		DeleteQueueBytes: w.queue.Load().bytesUsed(),
		DeleteQueueLen:   w.queue.Load().numEntries(),
		StreamBytes:      w.stream.BytesUsed(),
		ArenaBytes:       w.arenaBytes.Load(),
		Flushes:          w.numFlushes.Load(),
		Merges:           w.numMerges.Load(),
		Commits:          w.numCommits.Load(),
		Generation:       w.generation.Load(),
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	st.NumSegments = len(w.segments)
	for _, s := range w.segments {
		st.NumDocs += s.MaxDoc()
		st.NumLiveDocs += s.NumLive()
	}
	return st
}

// Close commits, then discards anything buffered concurrently and releases
// the arena. Later calls return nil.
func (w *Writer) Close(ctx context.Context) error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := w.commit(ctx)
	w.control.SetClosed()

	for _, s := range w.pool.States() {
		s.Lock()
		if s.IsInitialized() {
			if b, ok := w.control.DoOnAbort(s).(*perThread); ok {
				b.release()
			}
		}
		s.Unlock()
	}
	if w.arenaCloser != nil {
		err = errors.Join(err, w.arenaCloser.Close())
	}
	w.logger.Info("writer closed", "generation", w.generation.Load(), "error", err)
	return err
}
