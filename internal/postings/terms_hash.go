package postings

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/hupe1980/lexgo/internal/arena"
	"github.com/hupe1980/lexgo/internal/codec"
	"github.com/hupe1980/lexgo/model"
)

// ErrOutOfOrder is returned when docs or positions of a term go backwards.
var ErrOutOfOrder = errors.New("postings: doc or position out of order")

// termState tracks one term's streams. Addresses are pool-global.
type termState struct {
	docStart, docEnd int
	posStart, posEnd int

	// prevDoc is the last doc written to the doc stream.
	prevDoc int
	// lastDoc is the pending doc, -1 before the first occurrence.
	lastDoc int
	freq    int
	lastPos int
	docFreq int
}

type fieldTerms struct {
	ids   map[string]int
	terms []termState
}

// approximate heap cost of one term entry outside the arena
const termOverhead = 16 + 8 + 80

// TermsHash is the in-memory inverted index of one segment. It is not safe
// for concurrent use; each per-thread buffer owns one.
type TermsHash struct {
	pool   *arena.BlockPool
	writer *arena.SliceWriter
	fields map[string]*fieldTerms

	numTerms  int
	heapBytes int64
}

// NewTermsHash returns an empty TermsHash drawing blocks from a.
func NewTermsHash(a arena.Allocator) *TermsHash {
	pool := arena.NewBlockPool(a)
	return &TermsHash{
		pool:   pool,
		writer: arena.NewSliceWriter(pool),
		fields: make(map[string]*fieldTerms),
	}
}

func (h *TermsHash) newStream() int {
	upto := h.pool.NewSlice(arena.FirstLevelSize)
	return upto + h.pool.ByteOffset
}

func (h *TermsHash) term(field, text string) *termState {
	f, ok := h.fields[field]
	if !ok {
		f = &fieldTerms{ids: make(map[string]int)}
		h.fields[field] = f
		h.heapBytes += int64(len(field)) + 64
	}
	id, ok := f.ids[text]
	if !ok {
		id = len(f.terms)
		f.ids[text] = id
		doc := h.newStream()
		pos := h.newStream()
		f.terms = append(f.terms, termState{
			docStart: doc, docEnd: doc,
			posStart: pos, posEnd: pos,
			lastDoc: -1,
		})
		h.numTerms++
		h.heapBytes += int64(len(text)) + termOverhead
	}
	return &f.terms[id]
}

// Add records an occurrence of text in field at pos of doc. Docs must arrive
// in non-decreasing order per term, and positions in non-decreasing order
// within a doc.
func (h *TermsHash) Add(field, text string, doc, pos int) error {
	if doc < 0 || pos < 0 {
		return fmt.Errorf("%w: doc %d pos %d", ErrOutOfOrder, doc, pos)
	}
	t := h.term(field, text)
	switch {
	case doc < t.lastDoc:
		return fmt.Errorf("%w: %s:%s doc %d after %d", ErrOutOfOrder, field, text, doc, t.lastDoc)
	case doc > t.lastDoc:
		if t.lastDoc >= 0 {
			h.writeDoc(t)
		}
		t.lastDoc = doc
		t.freq = 0
		t.lastPos = 0
		t.docFreq++
	case pos < t.lastPos:
		return fmt.Errorf("%w: %s:%s doc %d pos %d after %d", ErrOutOfOrder, field, text, doc, pos, t.lastPos)
	}

	t.freq++
	h.writer.Init(t.posEnd)
	h.writer.WriteVInt(pos - t.lastPos)
	t.posEnd = h.writer.Address()
	t.lastPos = pos
	return nil
}

func (h *TermsHash) writeDoc(t *termState) {
	delta := t.lastDoc - t.prevDoc
	h.writer.Init(t.docEnd)
	if t.freq == 1 {
		h.writer.WriteVInt(delta<<1 | 1)
	} else {
		h.writer.WriteVInt(delta << 1)
		h.writer.WriteVInt(t.freq)
	}
	t.docEnd = h.writer.Address()
	t.prevDoc = t.lastDoc
}

// NumTerms returns the number of distinct (field, term) pairs.
func (h *TermsHash) NumTerms() int { return h.numTerms }

// Fields returns the indexed fields in sorted order.
func (h *TermsHash) Fields() []string { return slices.Sorted(maps.Keys(h.fields)) }

// BytesUsed returns the arena blocks held plus the term dictionary's
// estimated heap size.
func (h *TermsHash) BytesUsed() int64 {
	return int64(h.pool.NumBlocks())*arena.BlockSize + h.heapBytes
}

// postings decodes the streams of t, including its pending doc.
func (h *TermsHash) postings(t *termState, withPositions bool) ([]codec.Posting, error) {
	out := make([]codec.Posting, 0, t.docFreq)

	var docs, positions arena.SliceReader
	docs.Init(h.pool, t.docStart, t.docEnd)
	if withPositions {
		positions.Init(h.pool, t.posStart, t.posEnd)
	}

	readPositions := func(freq int) ([]int, error) {
		if !withPositions {
			return nil, nil
		}
		ps := make([]int, freq)
		pos := 0
		for i := range ps {
			d, err := positions.ReadVInt()
			if err != nil {
				return nil, err
			}
			pos += d
			ps[i] = pos
		}
		return ps, nil
	}

	doc := 0
	for !docs.EOF() {
		code, err := docs.ReadVInt()
		if err != nil {
			return nil, err
		}
		doc += code >> 1
		freq := 1
		if code&1 == 0 {
			if freq, err = docs.ReadVInt(); err != nil {
				return nil, err
			}
		}
		ps, err := readPositions(freq)
		if err != nil {
			return nil, err
		}
		out = append(out, codec.Posting{Doc: doc, Freq: freq, Positions: ps})
	}
	if t.lastDoc >= 0 {
		ps, err := readPositions(t.freq)
		if err != nil {
			return nil, err
		}
		out = append(out, codec.Posting{Doc: t.lastDoc, Freq: t.freq, Positions: ps})
	}
	return out, nil
}

// Postings returns the buffered postings of t, or nil.
func (h *TermsHash) Postings(t model.Term) ([]codec.Posting, error) {
	f, ok := h.fields[t.Field]
	if !ok {
		return nil, nil
	}
	id, ok := f.ids[t.Text]
	if !ok {
		return nil, nil
	}
	return h.postings(&f.terms[id], true)
}

// Docs yields the docs containing t in increasing order.
func (h *TermsHash) Docs(t model.Term) iter.Seq[int] {
	return func(yield func(int) bool) {
		f, ok := h.fields[t.Field]
		if !ok {
			return
		}
		id, ok := f.ids[t.Text]
		if !ok {
			return
		}
		postings, err := h.postings(&f.terms[id], false)
		if err != nil {
			return
		}
		for _, p := range postings {
			if !yield(p.Doc) {
				return
			}
		}
	}
}

// Flush replays every term into c, fields and terms in sorted order.
func (h *TermsHash) Flush(c codec.PostingsConsumer) error {
	for _, name := range h.Fields() {
		f := h.fields[name]
		for _, text := range slices.Sorted(maps.Keys(f.ids)) {
			postings, err := h.postings(&f.terms[f.ids[text]], true)
			if err != nil {
				return fmt.Errorf("postings: decode %s:%s: %w", name, text, err)
			}
			if err := c.AddPostings(name, []byte(text), postings); err != nil {
				return err
			}
		}
	}
	return nil
}

// Reset drops every term. With reuse the first block is zeroed and kept;
// without it every block goes back to the allocator.
func (h *TermsHash) Reset(reuse bool) {
	h.pool.Reset(reuse, reuse)
	clear(h.fields)
	h.numTerms = 0
	h.heapBytes = 0
}
