package lexgo

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/lexgo/internal/engine"
	"github.com/hupe1980/lexgo/internal/flush"
	"github.com/hupe1980/lexgo/internal/resource"
	"github.com/hupe1980/lexgo/model"
)

type (
	// Document is a list of fields indexed together.
	Document = model.Document
	// Field is one named value of a document.
	Field = model.Field
	// FieldType is the kind of a field; a field name keeps its first type.
	FieldType = model.FieldType
	// Term is a field name and an exact, analyzed token.
	Term = model.Term
	// Query selects documents for deletion.
	Query = model.Query
	// SegmentInfo describes a published segment.
	SegmentInfo = engine.SegmentInfo
	// SegmentView is a point-in-time view of a published segment.
	SegmentView = engine.SegmentView
	// Stats is a snapshot of the index counters.
	Stats = engine.Stats
	// FlushConfig holds the flush triggers.
	FlushConfig = flush.Config
	// ResourceConfig holds limits for flushes and merges.
	ResourceConfig = resource.Config
)

const (
	FieldText    = model.FieldText
	FieldKeyword = model.FieldKeyword
	FieldNumeric = model.FieldNumeric
	FieldBinary  = model.FieldBinary
)

// Disabled turns off a flush trigger.
const Disabled = flush.Disabled

// DefaultFlushConfig returns the default flush triggers: a 16 MB RAM buffer
// and no document count limit.
func DefaultFlushConfig() FlushConfig { return flush.DefaultConfig() }

// NewDocument returns a document with fields.
func NewDocument(fields ...Field) Document { return model.NewDocument(fields...) }

// TextField is analyzed into terms.
func TextField(name, text string) Field { return model.TextField(name, text) }

// KeywordField is indexed as a single term.
func KeywordField(name, value string) Field { return model.KeywordField(name, value) }

// NumericField is a numeric doc value.
func NumericField(name string, value int64) Field { return model.NumericField(name, value) }

// BinaryField is a binary doc value.
func BinaryField(name string, value []byte) Field { return model.BinaryField(name, value) }

// NewTerm returns the term text in field.
func NewTerm(field, text string) Term { return model.NewTerm(field, text) }

// NewTermQuery matches documents containing the term.
func NewTermQuery(field, text string) Query { return model.NewTermQuery(field, text) }

// MatchAllQuery matches every document.
func MatchAllQuery() Query { return model.MatchAllQuery{} }

// Index is a concurrent full-text index writer. All methods are safe for
// concurrent use.
type Index struct {
	w      *engine.Writer
	logger *Logger
}

// Open opens an index, loading the last commit from the blob store if there
// is one.
func Open(ctx context.Context, opts ...Option) (*Index, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	eopts, err := o.engineOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	w, err := engine.Open(ctx, eopts...)
	if err != nil {
		return nil, translateError(err)
	}

	st := w.Stats()
	o.logger.InfoContext(ctx, "index opened",
		"segments", st.NumSegments,
		"docs", st.NumDocs,
		"generation", st.Generation,
	)
	return &Index{w: w, logger: o.logger}, nil
}

// AddDocument indexes doc. It may block while flushing catches up.
func (ix *Index) AddDocument(ctx context.Context, doc Document) error {
	return translateError(ix.w.AddDocument(ctx, doc))
}

// UpdateDocument atomically deletes the documents containing term and adds
// doc.
func (ix *Index) UpdateDocument(ctx context.Context, term Term, doc Document) error {
	return translateError(ix.w.UpdateDocument(ctx, term, doc))
}

// DeleteTerms deletes the documents containing any of terms. Documents added
// afterwards are not affected.
func (ix *Index) DeleteTerms(ctx context.Context, terms ...Term) error {
	return translateError(ix.w.DeleteTerms(ctx, terms...))
}

// DeleteQueries deletes the documents matching any of queries.
func (ix *Index) DeleteQueries(ctx context.Context, queries ...Query) error {
	return translateError(ix.w.DeleteQueries(ctx, queries...))
}

// UpdateNumericDocValue sets field to value in the documents containing
// term.
func (ix *Index) UpdateNumericDocValue(ctx context.Context, term Term, field string, value int64) error {
	return translateError(ix.w.UpdateNumericDocValue(ctx, term, field, value))
}

// UpdateBinaryDocValue sets field to value in the documents containing term.
func (ix *Index) UpdateBinaryDocValue(ctx context.Context, term Term, field string, value []byte) error {
	return translateError(ix.w.UpdateBinaryDocValue(ctx, term, field, value))
}

// UnsetDocValue removes field from the documents containing term.
func (ix *Index) UnsetDocValue(ctx context.Context, term Term, field string) error {
	return translateError(ix.w.UnsetDocValue(ctx, term, field))
}

// ApplyDeletes resolves all buffered deletes and updates against the
// published segments.
func (ix *Index) ApplyDeletes(ctx context.Context) error {
	return translateError(ix.w.ApplyDeletes(ctx))
}

// Flush writes every buffered document into segments. With applyDeletes the
// buffered deletes are resolved too.
func (ix *Index) Flush(ctx context.Context, applyDeletes bool) error {
	start := time.Now()
	err := ix.w.Flush(ctx, applyDeletes)
	ix.logger.LogFlush(ctx, ix.w.Stats().NumSegments, time.Since(start), err)
	return translateError(err)
}

// Merge merges the named segments into one and returns its name.
func (ix *Index) Merge(ctx context.Context, names ...string) (string, error) {
	merged, err := ix.w.Merge(ctx, names...)
	ix.logger.LogMerge(ctx, names, merged, err)
	return merged, translateError(err)
}

// Commit flushes, applies all deletes and durably records the segments.
func (ix *Index) Commit(ctx context.Context) error {
	err := ix.w.Commit(ctx)
	ix.logger.LogCommit(ctx, ix.w.Stats().Generation, err)
	return translateError(err)
}

// Segments returns the published segments, oldest first.
func (ix *Index) Segments() []SegmentInfo {
	return ix.w.Segments()
}

// Snapshot returns point-in-time views of the published segments.
func (ix *Index) Snapshot() []SegmentView {
	return ix.w.Snapshot()
}

// Segment returns a view of the named segment.
func (ix *Index) Segment(name string) (SegmentView, bool) {
	return ix.w.Segment(name)
}

// Stats returns a snapshot of the index counters.
func (ix *Index) Stats() Stats {
	return ix.w.Stats()
}

// Close flushes and commits buffered documents and releases resources.
func (ix *Index) Close(ctx context.Context) error {
	err := ix.w.Close(ctx)
	if err != nil {
		ix.logger.ErrorContext(ctx, "close failed", "error", err)
	}
	return translateError(err)
}
