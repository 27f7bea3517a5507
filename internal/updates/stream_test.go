package updates

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexgo/model"
)

func freeze(t *testing.T, private bool, fill func(b *Buffered)) *Frozen {
	t.Helper()
	b := NewBuffered()
	fill(b)
	f, err := Freeze(b, private)
	require.NoError(t, err)
	return f
}

func TestStreamPrivateAndGlobalPackets(t *testing.T) {
	s := NewStream(nil)
	red := model.NewTerm("color", "red")

	segA := newFakeSegment("_0", 0,
		[]model.Term{model.NewTerm("id", "0"), red},
		[]model.Term{model.NewTerm("id", "1"), red},
		[]model.Term{model.NewTerm("id", "2")},
	)
	private := freeze(t, true, func(b *Buffered) {
		require.NoError(t, b.AddQuery(model.TermQuery{Term: red}, 1))
	})
	segA.SetBufferedDeletesGen(s.Push(private))

	s.Push(freeze(t, false, func(b *Buffered) {
		require.NoError(t, b.AddTerm(model.NewTerm("id", "2"), math.MaxInt32))
	}))

	// Flushed after the global delete; must not see it.
	segB := newFakeSegment("_1", s.NextGen(), []model.Term{model.NewTerm("id", "2")})

	res, err := s.ApplyDeletesAndUpdates([]Segment{segA, segB})
	require.NoError(t, err)

	assert.True(t, res.AnyDeletes)
	assert.Equal(t, 2, res.DeletedDocs)
	assert.Equal(t, int64(4), res.Gen)
	assert.Empty(t, res.AllDeleted)

	assert.Equal(t, []int{1}, segA.live())
	assert.Equal(t, []int{0}, segB.live())
	assert.Equal(t, int64(4), segA.BufferedDeletesGen())
	assert.Equal(t, int64(4), segB.BufferedDeletesGen())

	// Re-applying is a no-op apart from the generation.
	res, err = s.ApplyDeletesAndUpdates([]Segment{segA, segB})
	require.NoError(t, err)
	assert.False(t, res.AnyDeletes)
	assert.Equal(t, int64(5), res.Gen)

	s.Prune([]Segment{segA, segB})
	assert.Zero(t, s.NumPackets())
	assert.Zero(t, s.BytesUsed())
	assert.Zero(t, s.NumTerms())
}

func TestStreamDocValuesArrivalOrder(t *testing.T) {
	s := NewStream(nil)
	a := model.NewTerm("id", "a")

	segA := newFakeSegment("_0", s.NextGen(), []model.Term{a})
	for _, v := range []int64{1, 2, 3} {
		s.Push(freeze(t, false, func(b *Buffered) {
			require.NoError(t, b.AddNumericUpdate(NewNumericUpdate(a, "price", v), math.MaxInt32))
		}))
	}

	segB := newFakeSegment("_1", 0, []model.Term{a}, []model.Term{a})
	segB.SetBufferedDeletesGen(s.Push(freeze(t, true, func(b *Buffered) {
		require.NoError(t, b.AddNumericUpdate(NewNumericUpdate(a, "price", 5), 1))
	})))
	s.Push(freeze(t, false, func(b *Buffered) {
		require.NoError(t, b.AddNumericUpdate(NewNumericUpdate(a, "price", 6), math.MaxInt32))
	}))

	res, err := s.ApplyDeletesAndUpdates([]Segment{segA, segB})
	require.NoError(t, err)

	assert.Equal(t, map[int]int64{0: 6}, segA.numericValues("price"))
	assert.Equal(t, map[int]int64{0: 6, 1: 6}, segB.numericValues("price"))
	assert.Equal(t, 7, res.UpdatedDocs)
}

func TestStreamUpdatesSkipDeletedDocs(t *testing.T) {
	s := NewStream(nil)
	a := model.NewTerm("id", "a")
	seg := newFakeSegment("_0", s.NextGen(), []model.Term{a}, []model.Term{model.NewTerm("id", "b")})

	s.Push(freeze(t, false, func(b *Buffered) {
		require.NoError(t, b.AddTerm(a, math.MaxInt32))
		require.NoError(t, b.AddNumericUpdate(NewNumericUpdate(a, "price", 1), math.MaxInt32))
	}))

	res, err := s.ApplyDeletesAndUpdates([]Segment{seg})
	require.NoError(t, err)

	assert.Equal(t, 1, res.DeletedDocs)
	assert.Zero(t, res.UpdatedDocs)
	assert.Empty(t, seg.applied)
}

func TestStreamReportsFullyDeletedSegments(t *testing.T) {
	s := NewStream(nil)
	seg := newFakeSegment("_0", s.NextGen(), terms("f", "x"), terms("f", "y"))
	keep := newFakeSegment("_1", s.NextGen(), terms("f", "z"))

	// Global query limits are unbounded.
	s.Push(freeze(t, false, func(b *Buffered) {
		require.NoError(t, b.AddQuery(model.AnyTermQuery{Terms: terms("f", "x", "y")}, 0))
	}))

	res, err := s.ApplyDeletesAndUpdates([]Segment{seg, keep})
	require.NoError(t, err)

	require.Len(t, res.AllDeleted, 1)
	assert.Same(t, seg, res.AllDeleted[0].(*fakeSegment))
}

func TestStreamFailedApplyConsumesGeneration(t *testing.T) {
	s := NewStream(nil)
	a := model.NewTerm("id", "a")
	x := model.NewTerm("id", "x")
	errDiskFull := errors.New("disk full")

	broken := newFakeSegment("_0", s.NextGen(), []model.Term{a})
	broken.applyErr = errDiskFull
	s.Push(freeze(t, false, func(b *Buffered) {
		require.NoError(t, b.AddNumericUpdate(NewNumericUpdate(a, "price", 1), math.MaxInt32))
	}))
	seg := newFakeSegment("_1", s.NextGen(), []model.Term{x})

	_, err := s.ApplyDeletesAndUpdates([]Segment{broken, seg})
	require.ErrorIs(t, err, errDiskFull)

	// The newer segment was already stamped; the next global packet must
	// still be newer than it.
	gen := s.Push(freeze(t, false, func(b *Buffered) {
		require.NoError(t, b.AddTerm(x, math.MaxInt32))
	}))
	assert.Greater(t, gen, seg.BufferedDeletesGen())

	res, err := s.ApplyDeletesAndUpdates([]Segment{seg})
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedDocs)
	assert.Empty(t, seg.live())
}

func TestStreamWithoutSegments(t *testing.T) {
	s := NewStream(nil)
	s.Push(freeze(t, false, func(b *Buffered) {
		require.NoError(t, b.AddTerm(model.NewTerm("f", "a"), math.MaxInt32))
	}))

	res, err := s.ApplyDeletesAndUpdates(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Gen)
	assert.Equal(t, int64(3), s.NextGen())

	s.Prune(nil)
	assert.False(t, s.Any())
}

func TestStreamPruneBelow(t *testing.T) {
	s := NewStream(nil)
	for range 4 {
		s.Push(freeze(t, false, func(b *Buffered) {
			require.NoError(t, b.AddTerm(model.NewTerm("f", "a"), math.MaxInt32))
		}))
	}
	assert.Equal(t, int64(4), s.NumTerms())

	s.PruneBelow(3)
	assert.Equal(t, 2, s.NumPackets())
	assert.Equal(t, int64(2), s.NumTerms())

	s.PruneBelow(1)
	assert.Equal(t, 2, s.NumPackets())

	s.Clear()
	assert.Zero(t, s.NumPackets())
	assert.Zero(t, s.BytesUsed())
}

func TestStreamCoalescedSince(t *testing.T) {
	s := NewStream(nil)
	a := model.NewTerm("f", "a")
	addA := func(b *Buffered) { require.NoError(t, b.AddTerm(a, math.MaxInt32)) }

	s.Push(freeze(t, false, addA))
	start := s.NextGen()
	s.Push(freeze(t, true, addA))
	s.Push(freeze(t, false, addA))
	s.Push(freeze(t, false, func(*Buffered) {}))

	c := s.CoalescedSince(start)
	assert.Equal(t, 1, c.Len())

	seg := newFakeSegment("_merged", 0, []model.Term{a}, terms("f", "b"))
	res, err := ApplyCoalesced(c, seg)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedDocs)
	assert.Equal(t, []int{1}, seg.live())
	assert.Equal(t, int64(0), seg.BufferedDeletesGen())

	res, err = ApplyCoalesced(nil, seg)
	require.NoError(t, err)
	assert.Zero(t, res.DeletedDocs)
}

func TestCoalescedTermsMerge(t *testing.T) {
	c := NewCoalesced()
	for _, texts := range [][]string{{"b", "d"}, {"a", "d", "e"}, {}, {"c"}} {
		c.Update(freeze(t, false, func(b *Buffered) {
			for _, term := range terms("f", texts...) {
				require.NoError(t, b.AddTerm(term, math.MaxInt32))
			}
		}))
	}

	assert.Equal(t, terms("f", "a", "b", "c", "d", "e"), slices.Collect(c.Terms()))
	assert.True(t, c.Any())

	for _, limit := range c.Queries() {
		t.Fatalf("unexpected query with limit %d", limit)
	}
}

func TestCoalescedRejectsPrivatePackets(t *testing.T) {
	c := NewCoalesced()
	assert.Panics(t, func() { c.Update(freeze(t, true, func(*Buffered) {})) })
}
