package codec

import "iter"

// Posting is one doc's occurrences of a term.
type Posting struct {
	Doc       int
	Freq      int
	Positions []int
}

// PostingsConsumer receives a field's terms in sorted order.
type PostingsConsumer interface {
	AddPostings(field string, term []byte, postings []Posting) error
}

// DocValuesConsumer receives doc-value columns. Values are yielded in
// increasing doc order for docs that have a value.
type DocValuesConsumer interface {
	AddNumericField(field string, values iter.Seq2[int, int64]) error
	AddBinaryField(field string, values iter.Seq2[int, []byte]) error
}

// Consumer receives everything a flush produces.
type Consumer interface {
	PostingsConsumer
	DocValuesConsumer
}
