package merge

import (
	"container/heap"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/lexgo/internal/codec"
)

// ErrNoInputs is returned when Merge is called without segments.
var ErrNoInputs = errors.New("merge: no input segments")

// Input is a segment to merge together with its deletions at merge start.
type Input struct {
	Segment *codec.Segment
	Deleted *roaring.Bitmap
}

// Result is the outcome of a merge.
type Result struct {
	Segment *codec.Segment
	// DocMaps holds one map per input, in input order.
	DocMaps []*DocMap
}

// Merger merges segments.
type Merger struct {
	logger *slog.Logger
}

// Option configures a Merger.
type Option func(*Merger)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Merger) {
		m.logger = l
	}
}

// NewMerger returns a Merger.
func NewMerger(opts ...Option) *Merger {
	m := &Merger{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Merge builds the segment name from the live docs of inputs. Docs keep
// their relative order; input i's docs follow those of input i-1.
func (m *Merger) Merge(name string, inputs []Input) (*Result, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}

	maps := make([]*DocMap, len(inputs))
	maxDoc := 0
	for i, in := range inputs {
		maps[i] = NewDocMap(in.Segment.MaxDoc(), in.Deleted, maxDoc)
		maxDoc += maps[i].NumLive()
	}

	b := codec.NewBuilder(name, maxDoc)
	if err := mergePostings(b, inputs, maps); err != nil {
		return nil, err
	}
	if err := mergeDocValues(b, inputs, maps); err != nil {
		return nil, err
	}

	seg := b.Finish()
	m.logger.Debug("merged segments",
		"segment", name,
		"inputs", len(inputs),
		"max_doc", maxDoc,
		"terms", seg.NumTerms(),
	)
	return &Result{Segment: seg, DocMaps: maps}, nil
}

// termCursor walks one input's terms for one field.
type termCursor struct {
	input    int
	text     string
	postings []codec.Posting
	next     func() (string, []codec.Posting, bool)
	stop     func()
}

func (c *termCursor) advance() bool {
	var ok bool
	c.text, c.postings, ok = c.next()
	return ok
}

type cursorQueue []*termCursor

func (q cursorQueue) Len() int { return len(q) }
func (q cursorQueue) Less(i, j int) bool {
	if q[i].text != q[j].text {
		return q[i].text < q[j].text
	}
	return q[i].input < q[j].input
}
func (q cursorQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *cursorQueue) Push(x any)   { *q = append(*q, x.(*termCursor)) }
func (q *cursorQueue) Pop() any {
	old := *q
	n := len(old)
	c := old[n-1]
	*q = old[:n-1]
	return c
}

func mergePostings(b *codec.Builder, inputs []Input, maps []*DocMap) error {
	for _, field := range unionFields(inputs, (*codec.Segment).Fields) {
		q := make(cursorQueue, 0, len(inputs))
		for i, in := range inputs {
			next, stop := iter.Pull2(in.Segment.Terms(field))
			c := &termCursor{input: i, next: next, stop: stop}
			if c.advance() {
				q = append(q, c)
			} else {
				stop()
			}
		}
		heap.Init(&q)

		for q.Len() > 0 {
			text := q[0].text
			var merged []codec.Posting
			for q.Len() > 0 && q[0].text == text {
				c := q[0]
				for _, p := range c.postings {
					if doc := maps[c.input].Get(p.Doc); doc >= 0 {
						p.Doc = doc
						merged = append(merged, p)
					}
				}
				if c.advance() {
					heap.Fix(&q, 0)
				} else {
					c.stop()
					heap.Pop(&q)
				}
			}
			if len(merged) == 0 {
				continue
			}
			if err := b.AddPostings(field, []byte(text), merged); err != nil {
				for _, c := range q {
					c.stop()
				}
				return fmt.Errorf("merge: field %q: %w", field, err)
			}
		}
	}
	return nil
}

func unionFields(inputs []Input, fields func(*codec.Segment) []string) []string {
	var out []string
	for _, in := range inputs {
		out = append(out, fields(in.Segment)...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func mergeDocValues(b *codec.Builder, inputs []Input, maps []*DocMap) error {
	for _, field := range unionFields(inputs, (*codec.Segment).NumericFields) {
		err := b.AddNumericField(field, func(yield func(int, int64) bool) {
			for i, in := range inputs {
				for doc, v := range in.Segment.NumericValues(field) {
					if nd := maps[i].Get(doc); nd >= 0 && !yield(nd, v) {
						return
					}
				}
			}
		})
		if err != nil {
			return fmt.Errorf("merge: numeric field %q: %w", field, err)
		}
	}
	for _, field := range unionFields(inputs, (*codec.Segment).BinaryFields) {
		err := b.AddBinaryField(field, func(yield func(int, []byte) bool) {
			for i, in := range inputs {
				for doc, v := range in.Segment.BinaryValues(field) {
					if nd := maps[i].Get(doc); nd >= 0 && !yield(nd, v) {
						return
					}
				}
			}
		})
		if err != nil {
			return fmt.Errorf("merge: binary field %q: %w", field, err)
		}
	}
	return nil
}

// CarryDeletes returns the merged-segment docs of source docs deleted after
// the merge started: those in now but not in the matching Input.Deleted.
func CarryDeletes(inputs []Input, maps []*DocMap, now []*roaring.Bitmap) *roaring.Bitmap {
	out := roaring.New()
	for i, in := range inputs {
		if now[i] == nil {
			continue
		}
		added := now[i].Clone()
		if in.Deleted != nil {
			added.AndNot(in.Deleted)
		}
		it := added.Iterator()
		for it.HasNext() {
			if doc := maps[i].Get(int(it.Next())); doc >= 0 {
				out.Add(uint32(doc))
			}
		}
	}
	return out
}
