package model

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
)

// SegmentReader is the read view of one segment that queries run against.
type SegmentReader interface {
	// MaxDoc returns the number of docs in the segment, deleted ones included.
	MaxDoc() int
	// Docs yields, in increasing order, the docs containing t.
	Docs(t Term) iter.Seq[int]
}

// Query selects documents of a segment for deletion.
//
// String must identify the query: two queries with the same String are
// treated as the same delete.
type Query interface {
	Docs(r SegmentReader) iter.Seq[int]
	String() string
}

// TermQuery matches the docs containing a term.
type TermQuery struct {
	Term Term
}

// NewTermQuery returns a query for field:text.
func NewTermQuery(field, text string) TermQuery {
	return TermQuery{Term: NewTerm(field, text)}
}

// Docs implements Query.
func (q TermQuery) Docs(r SegmentReader) iter.Seq[int] {
	return r.Docs(q.Term)
}

func (q TermQuery) String() string {
	return "term(" + q.Term.String() + ")"
}

// MatchAllQuery matches every doc.
type MatchAllQuery struct{}

// Docs implements Query.
func (MatchAllQuery) Docs(r SegmentReader) iter.Seq[int] {
	return func(yield func(int) bool) {
		for doc := range r.MaxDoc() {
			if !yield(doc) {
				return
			}
		}
	}
}

func (MatchAllQuery) String() string {
	return "all()"
}

// AnyTermQuery matches docs containing at least one of its terms.
type AnyTermQuery struct {
	Terms []Term
}

// Docs implements Query. Docs are yielded in increasing order without
// duplicates.
func (q AnyTermQuery) Docs(r SegmentReader) iter.Seq[int] {
	return func(yield func(int) bool) {
		union := roaring.New()
		for _, t := range q.Terms {
			for doc := range r.Docs(t) {
				union.Add(uint32(doc))
			}
		}
		it := union.Iterator()
		for it.HasNext() {
			if !yield(int(it.Next())) {
				return
			}
		}
	}
}

func (q AnyTermQuery) String() string {
	s := "any("
	for i, t := range q.Terms {
		if i > 0 {
			s += ","
		}
		s += t.String()
	}
	return s + ")"
}
