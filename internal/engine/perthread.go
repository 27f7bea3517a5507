package engine

import (
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/hupe1980/lexgo/internal/analysis"
	"github.com/hupe1980/lexgo/internal/arena"
	"github.com/hupe1980/lexgo/internal/codec"
	"github.com/hupe1980/lexgo/internal/postings"
	"github.com/hupe1980/lexgo/internal/updates"
	"github.com/hupe1980/lexgo/model"
)

// Rough heap cost of a doc-value entry outside its payload.
const (
	bytesPerNumericValue = 16
	bytesPerBinaryValue  = 32
)

// dvColumn holds one doc-values field of a buffer in doc order.
type dvColumn[V any] struct {
	docs   []int
	values []V
}

// set records v for doc. Docs arrive in increasing order; a second value for
// the same doc replaces the first.
func (c *dvColumn[V]) set(doc int, v V) bool {
	if n := len(c.docs); n > 0 && c.docs[n-1] == doc {
		c.values[n-1] = v
		return false
	}
	c.docs = append(c.docs, doc)
	c.values = append(c.values, v)
	return true
}

func (c *dvColumn[V]) all() iter.Seq2[int, V] {
	return func(yield func(int, V) bool) {
		for i, doc := range c.docs {
			if !yield(doc, c.values[i]) {
				return
			}
		}
	}
}

// perThread is the segment buffer one indexing goroutine fills at a time.
// It implements flush.Buffer. Everything except BytesUsed, NumDocs and
// DeleteGeneration requires the owning thread state's lock.
type perThread struct {
	name     string
	queue    *deleteQueue
	slice    *deleteSlice
	analyzer analysis.Analyzer

	terms   *postings.TermsHash
	numeric map[string]*dvColumn[int64]
	binary  map[string]*dvColumn[[]byte]
	dvBytes int64

	// pending holds the updates recorded after the buffer was created,
	// bounded by the doc count at the time.
	pending *updates.Buffered
	numDocs int

	positions map[string]int
}

func newPerThread(name string, q *deleteQueue, alloc arena.Allocator, a analysis.Analyzer) *perThread {
	return &perThread{
		name:      name,
		queue:     q,
		slice:     q.newSlice(),
		analyzer:  a,
		terms:     postings.NewTermsHash(alloc),
		numeric:   make(map[string]*dvColumn[int64]),
		binary:    make(map[string]*dvColumn[[]byte]),
		pending:   updates.NewBuffered(),
		positions: make(map[string]int),
	}
}

// NumDocs implements flush.Buffer.
func (pt *perThread) NumDocs() int { return pt.numDocs }

// BytesUsed implements flush.Buffer.
func (pt *perThread) BytesUsed() int64 {
	return pt.terms.BytesUsed() + pt.dvBytes + pt.pending.BytesUsed()
}

// DeleteGeneration implements flush.Buffer.
func (pt *perThread) DeleteGeneration() int64 { return pt.queue.gen }

// addDocument indexes doc as the buffer's next doc. An update's delete term
// is bounded by the new doc, so it only removes older copies. Any error
// leaves the buffer unusable and the caller must abort it.
func (pt *perThread) addDocument(doc model.Document, delTerm *model.Term) error {
	docID := pt.numDocs
	clear(pt.positions)
	for _, f := range doc.Fields {
		if err := pt.indexField(docID, f); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
	}

	var entries []queueEntry
	if delTerm != nil {
		var err error
		if entries, err = pt.queue.add(termsEntry(*delTerm), pt.slice); err != nil {
			return err
		}
	} else {
		entries = pt.queue.updateSlice(pt.slice)
	}
	if err := pt.applyEntries(entries, docID); err != nil {
		return err
	}
	pt.numDocs++
	return nil
}

func (pt *perThread) indexField(docID int, f model.Field) error {
	switch f.Type {
	case model.FieldText:
		base := pt.positions[f.Name]
		next := base
		for tok := range pt.analyzer.Tokens(f.Text) {
			pos := base + tok.Position
			if err := pt.terms.Add(f.Name, tok.Text, docID, pos); err != nil {
				return err
			}
			next = pos + 1
		}
		pt.positions[f.Name] = next
	case model.FieldKeyword:
		pos := pt.positions[f.Name]
		if err := pt.terms.Add(f.Name, f.Text, docID, pos); err != nil {
			return err
		}
		pt.positions[f.Name] = pos + 1
	case model.FieldNumeric:
		col, ok := pt.numeric[f.Name]
		if !ok {
			col = &dvColumn[int64]{}
			pt.numeric[f.Name] = col
		}
		if col.set(docID, f.Numeric) {
			pt.dvBytes += bytesPerNumericValue
		}
	case model.FieldBinary:
		col, ok := pt.binary[f.Name]
		if !ok {
			col = &dvColumn[[]byte]{}
			pt.binary[f.Name] = col
		}
		v := append([]byte(nil), f.Binary...)
		if col.set(docID, v) {
			pt.dvBytes += bytesPerBinaryValue
		}
		pt.dvBytes += int64(len(v))
	default:
		return fmt.Errorf("unknown field type %s", f.Type)
	}
	return nil
}

func (pt *perThread) applyEntries(entries []queueEntry, docIDUpto int) error {
	for _, e := range entries {
		if err := e.apply(pt.pending, docIDUpto); err != nil {
			return err
		}
	}
	return nil
}

// prepareFlush freezes the queue's global packet and pulls the entries the
// buffer has not seen, bounded by its full doc count. The packet is returned
// even when applying the entries fails.
func (pt *perThread) prepareFlush() (*updates.Frozen, error) {
	global, rest, err := pt.queue.freezeGlobal(pt.slice)
	pt.slice = nil
	if err != nil {
		return nil, err
	}
	return global, pt.applyEntries(rest, pt.numDocs)
}

// flush builds the segment and resolves the private term deletes against
// it. The returned packet still carries the query deletes and doc-value
// updates, which the stream applies.
func (pt *perThread) flush() (*segment, *updates.Frozen, error) {
	b := codec.NewBuilder(pt.name, pt.numDocs)
	if err := pt.terms.Flush(b); err != nil {
		return nil, nil, err
	}
	for _, field := range slices.Sorted(maps.Keys(pt.numeric)) {
		if err := b.AddNumericField(field, pt.numeric[field].all()); err != nil {
			return nil, nil, err
		}
	}
	for _, field := range slices.Sorted(maps.Keys(pt.binary)) {
		if err := b.AddBinaryField(field, pt.binary[field].all()); err != nil {
			return nil, nil, err
		}
	}

	private, err := updates.Freeze(pt.pending, true)
	if err != nil {
		return nil, nil, err
	}
	seg := newSegment(b.Finish())
	private.ApplyTermDeletes(seg)
	return seg, private, nil
}

// release hands the arena blocks back and leaves the delete queue.
func (pt *perThread) release() {
	pt.terms.Reset(false)
	pt.queue.releaseSlice(pt.slice)
	pt.slice = nil
	clear(pt.numeric)
	clear(pt.binary)
	pt.dvBytes = 0
}
