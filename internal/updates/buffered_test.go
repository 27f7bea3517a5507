package updates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexgo/model"
)

func TestBufferedAddTerm(t *testing.T) {
	b := NewBuffered()
	foo := model.NewTerm("body", "foo")

	require.NoError(t, b.AddTerm(foo, 3))
	require.NoError(t, b.AddTerm(foo, 5))
	// A smaller bound never shrinks the recorded one.
	require.NoError(t, b.AddTerm(foo, 2))

	assert.Equal(t, 1, b.NumUniqueTerms())
	assert.Equal(t, int64(2), b.NumTermDeletes())
	assert.True(t, b.Any())
	assert.True(t, b.AnyDeletes())
	assert.Positive(t, b.BytesUsed())

	f, err := Freeze(b, true)
	require.NoError(t, err)
	for term, limit := range f.Terms() {
		assert.Equal(t, foo, term)
		assert.Equal(t, 5, limit)
	}
}

func TestBufferedAddQuery(t *testing.T) {
	b := NewBuffered()
	require.NoError(t, b.AddQuery(model.NewTermQuery("id", "1"), 4))
	require.NoError(t, b.AddQuery(model.NewTermQuery("id", "1"), 9))
	require.NoError(t, b.AddQuery(model.MatchAllQuery{}, 2))

	assert.Equal(t, 2, b.NumQueries())

	f, err := Freeze(b, false)
	require.NoError(t, err)

	var limits []int
	for _, limit := range f.Queries() {
		limits = append(limits, limit)
	}
	assert.Equal(t, []int{9, 2}, limits)
}

func TestBufferedDocValuesUpdates(t *testing.T) {
	b := NewBuffered()
	a := model.NewTerm("id", "a")
	c := model.NewTerm("id", "c")

	require.NoError(t, b.AddNumericUpdate(NewNumericUpdate(a, "price", 1), 1))
	require.NoError(t, b.AddNumericUpdate(NewNumericUpdate(c, "price", 2), 2))
	// Re-recording moves the entry behind c.
	require.NoError(t, b.AddNumericUpdate(NewNumericUpdate(a, "price", 3), 3))
	// Ignored: the bound went backwards.
	require.NoError(t, b.AddNumericUpdate(NewNumericUpdate(a, "price", 4), 2))
	require.NoError(t, b.AddBinaryUpdate(NewBinaryUpdate(a, "tag", nil), 3))

	assert.Equal(t, 3, b.NumNumericUpdates())
	assert.Equal(t, 1, b.NumBinaryUpdates())
	assert.False(t, b.AnyDeletes())

	f, err := Freeze(b, false)
	require.NoError(t, err)

	numeric := f.NumericUpdates()
	require.Len(t, numeric, 2)
	assert.Equal(t, c, numeric[0].Term)
	assert.Equal(t, a, numeric[1].Term)
	assert.Equal(t, int64(3), numeric[1].Numeric)
	assert.Equal(t, 3, numeric[1].DocIDUpto)

	binary := f.BinaryUpdates()
	require.Len(t, binary, 1)
	assert.True(t, binary[0].Unset)
}

func TestBufferedUpdateIsCopied(t *testing.T) {
	u := NewNumericUpdate(model.NewTerm("id", "a"), "price", 7)
	b1, b2 := NewBuffered(), NewBuffered()

	require.NoError(t, b1.AddNumericUpdate(u, 3))
	require.NoError(t, b2.AddNumericUpdate(u, 8))

	f1, err := Freeze(b1, false)
	require.NoError(t, err)
	f2, err := Freeze(b2, false)
	require.NoError(t, err)

	assert.Equal(t, 3, f1.NumericUpdates()[0].DocIDUpto)
	assert.Equal(t, 8, f2.NumericUpdates()[0].DocIDUpto)
	assert.Equal(t, 0, u.DocIDUpto)
}

func TestBufferedCapacity(t *testing.T) {
	old := MaxEntries
	MaxEntries = 2
	defer func() { MaxEntries = old }()

	b := NewBuffered()
	require.NoError(t, b.AddTerm(model.NewTerm("f", "a"), 1))
	require.NoError(t, b.AddTerm(model.NewTerm("f", "b"), 1))
	// Overwriting an existing term needs no new slot.
	require.NoError(t, b.AddTerm(model.NewTerm("f", "a"), 2))
	assert.ErrorIs(t, b.AddTerm(model.NewTerm("f", "c"), 1), ErrCapacityExceeded)

	require.NoError(t, b.AddDocID(1))
	require.NoError(t, b.AddDocID(2))
	assert.ErrorIs(t, b.AddDocID(3), ErrCapacityExceeded)
}

func TestBufferedClear(t *testing.T) {
	b := NewBuffered()
	require.NoError(t, b.AddTerm(model.NewTerm("f", "a"), 1))
	require.NoError(t, b.AddQuery(model.MatchAllQuery{}, 1))
	require.NoError(t, b.AddNumericUpdate(NewNumericUpdate(model.NewTerm("f", "a"), "n", 1), 1))

	_, err := Freeze(b, false)
	require.NoError(t, err)

	b.Clear()
	assert.False(t, b.Any())
	assert.Zero(t, b.BytesUsed())
	assert.Zero(t, b.NumTermDeletes())

	// Cleared packets can be frozen again.
	_, err = Freeze(b, false)
	require.NoError(t, err)
}

func TestFieldUpdatesCompaction(t *testing.T) {
	b := NewBuffered()
	a := model.NewTerm("id", "a")
	for i := range 100 {
		require.NoError(t, b.AddNumericUpdate(NewNumericUpdate(a, "n", int64(i)), i))
	}
	assert.LessOrEqual(t, len(b.numeric["n"].entries), 18)

	f, err := Freeze(b, false)
	require.NoError(t, err)
	require.Len(t, f.NumericUpdates(), 1)
	assert.Equal(t, int64(99), f.NumericUpdates()[0].Numeric)
}
