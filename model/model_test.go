package model

import (
	"iter"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSegment struct {
	maxDoc   int
	postings map[Term][]int
}

func (s fakeSegment) MaxDoc() int { return s.maxDoc }

func (s fakeSegment) Docs(t Term) iter.Seq[int] {
	return slices.Values(s.postings[t])
}

func TestTerm_Compare(t *testing.T) {
	assert.Negative(t, NewTerm("a", "z").Compare(NewTerm("b", "a")))
	assert.Negative(t, NewTerm("a", "ab").Compare(NewTerm("a", "b")))
	assert.Zero(t, NewTerm("a", "b").Compare(NewTerm("a", "b")))
	assert.Positive(t, NewTerm("a", "é").Compare(NewTerm("a", "z")), "UTF-8 byte order")
	assert.Equal(t, "body:fox", NewTerm("body", "fox").String())
}

func TestQueries(t *testing.T) {
	seg := fakeSegment{
		maxDoc: 5,
		postings: map[Term][]int{
			NewTerm("f", "a"): {0, 3},
			NewTerm("f", "b"): {1, 3, 4},
		},
	}

	assert.Equal(t, []int{0, 3}, slices.Collect(NewTermQuery("f", "a").Docs(seg)))
	assert.Empty(t, slices.Collect(NewTermQuery("f", "x").Docs(seg)))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, slices.Collect(MatchAllQuery{}.Docs(seg)))

	anyq := AnyTermQuery{Terms: []Term{NewTerm("f", "b"), NewTerm("f", "a")}}
	assert.Equal(t, []int{0, 1, 3, 4}, slices.Collect(anyq.Docs(seg)))
	assert.Equal(t, "any(f:b,f:a)", anyq.String())
	assert.NotEqual(t, NewTermQuery("f", "a").String(), NewTermQuery("f", "b").String())
}

func TestDocument(t *testing.T) {
	doc := NewDocument(KeywordField("id", "1")).
		Add(TextField("body", "hello")).
		Add(NumericField("n", 3)).
		Add(BinaryField("b", []byte{1}))

	assert.Len(t, doc.Fields, 4)
	assert.True(t, doc.Fields[0].Indexed())
	assert.True(t, doc.Fields[1].Indexed())
	assert.False(t, doc.Fields[2].Indexed())
	assert.Equal(t, "binary", doc.Fields[3].Type.String())
}
