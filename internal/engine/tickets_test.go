package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexgo/internal/analysis"
	"github.com/hupe1980/lexgo/internal/arena"
	"github.com/hupe1980/lexgo/model"
)

func newTestBuffer(t *testing.T, q *deleteQueue, name string, docs ...string) *perThread {
	t.Helper()
	pt := newPerThread(name, q, arena.DirectAllocator{}, analysis.NewStandardAnalyzer())
	for _, id := range docs {
		require.NoError(t, pt.addDocument(newDoc(id, "body"), nil))
	}
	return pt
}

func TestTicketsPublishInOrder(t *testing.T) {
	var tq ticketQueue
	q := newDeleteQueue(1)

	first := newTestBuffer(t, q, "_0", "a")
	second := newTestBuffer(t, q, "_1", "b")

	_, err := q.add(termsEntry(model.NewTerm("id", "x")), nil)
	require.NoError(t, err)

	t1, err := tq.addFlushTicket(first)
	require.NoError(t, err)
	require.NotNil(t, t1.global)

	t2, err := tq.addFlushTicket(second)
	require.NoError(t, err)
	assert.Nil(t, t2.global, "the first ticket took the global packet")

	require.NoError(t, tq.addDeletes(q))
	assert.Equal(t, 2, tq.len(), "empty global packets are not queued")

	var published []*flushTicket
	collect := func(t *flushTicket) { published = append(published, t) }

	seg, private, err := second.flush()
	require.NoError(t, err)
	tq.markDone(t2, &flushedSegment{seg: seg, private: private, docs: 1})
	assert.Zero(t, tq.purge(collect))

	tq.markDone(t1, nil)
	assert.Equal(t, 2, tq.purge(collect))
	require.Len(t, published, 2)
	assert.Same(t, t1, published[0])
	assert.True(t, published[0].failed)
	assert.Same(t, t2, published[1])
	assert.False(t, published[1].failed)
	assert.Zero(t, tq.len())

	first.release()
	second.release()
}

func TestPerThreadFlushAppliesPrivateDeletes(t *testing.T) {
	q := newDeleteQueue(1)
	pt := newTestBuffer(t, q, "_0", "a", "b")

	require.NoError(t, pt.addDocument(newDoc("c", "body"), &model.Term{Field: "id", Text: "a"}))
	// Recorded after the third doc, bounded by the flush.
	_, err := q.add(termsEntry(model.NewTerm("id", "c")), nil)
	require.NoError(t, err)

	global, err := pt.prepareFlush()
	require.NoError(t, err)
	require.NotNil(t, global)

	seg, private, err := pt.flush()
	require.NoError(t, err)
	assert.True(t, private.SegmentPrivate())
	assert.Equal(t, 3, seg.MaxDoc())
	assert.True(t, seg.IsDeleted(0))
	assert.False(t, seg.IsDeleted(1))
	assert.True(t, seg.IsDeleted(2))
	assert.Equal(t, 1, seg.NumLive())

	pt.release()
	assert.Zero(t, q.numEntries())
}
