package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/internal/flush"
	ifs "github.com/hupe1980/lexgo/internal/fs"
	"github.com/hupe1980/lexgo/internal/resource"
	"github.com/hupe1980/lexgo/model"
)

func TestDeleteOnlyReachesEarlierDocs(t *testing.T) {
	ctx := context.Background()
	w := openWriter(t)

	for i := range 3 {
		require.NoError(t, w.AddDocument(ctx, newDoc(fmt.Sprint(i), "foo")))
	}
	require.NoError(t, w.DeleteTerms(ctx, model.NewTerm("body", "foo")))
	for i := 3; i < 5; i++ {
		require.NoError(t, w.AddDocument(ctx, newDoc(fmt.Sprint(i), "foo")))
	}
	require.NoError(t, w.Flush(ctx, true))

	for i := range 5 {
		want := 0
		if i >= 3 {
			want = 1
		}
		assert.Equal(t, want, countLive(w, idTerm(fmt.Sprint(i))), "doc %d", i)
	}
	st := w.Stats()
	assert.Equal(t, 5, st.NumDocs)
	assert.Equal(t, 2, st.NumLiveDocs)
}

func TestUpdateDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("within buffer", func(t *testing.T) {
		w := openWriter(t)
		require.NoError(t, w.AddDocument(ctx, newDoc("a", "first")))
		require.NoError(t, w.UpdateDocument(ctx, idTerm("a"), newDoc("a", "second")))
		require.NoError(t, w.Flush(ctx, true))

		assert.Equal(t, 1, countLive(w, idTerm("a")))
		assert.Equal(t, 0, countLive(w, model.NewTerm("body", "first")))
		assert.Equal(t, 1, countLive(w, model.NewTerm("body", "second")))
	})

	t.Run("across flushes", func(t *testing.T) {
		w := openWriter(t)
		require.NoError(t, w.AddDocument(ctx, newDoc("a", "first")))
		require.NoError(t, w.Flush(ctx, false))
		require.NoError(t, w.UpdateDocument(ctx, idTerm("a"), newDoc("a", "second")))
		require.NoError(t, w.Flush(ctx, true))

		assert.Equal(t, 1, countLive(w, idTerm("a")))
		assert.Equal(t, 1, countLive(w, model.NewTerm("body", "second")))
		assert.Zero(t, countLive(w, model.NewTerm("body", "first")))

		// The first segment lost its only doc and is dropped.
		segs := w.Segments()
		require.Len(t, segs, 1)
		assert.Equal(t, 1, segs[0].MaxDoc)
		assert.Zero(t, segs[0].NumDeleted)
	})
}

func TestDeleteAllDropsSegments(t *testing.T) {
	ctx := context.Background()
	w := openWriter(t)

	for i := range 4 {
		require.NoError(t, w.AddDocument(ctx, newDoc(fmt.Sprint(i), "x")))
		require.NoError(t, w.Flush(ctx, false))
	}
	require.Len(t, w.Segments(), 4)

	require.NoError(t, w.DeleteQueries(ctx, model.MatchAllQuery{}))
	require.NoError(t, w.ApplyDeletes(ctx))
	assert.Empty(t, w.Segments())
	assert.Zero(t, w.Stats().PendingPackets)
}

func TestQueryDeleteInBuffer(t *testing.T) {
	ctx := context.Background()
	w := openWriter(t)

	require.NoError(t, w.AddDocument(ctx, newDoc("a", "red apple")))
	require.NoError(t, w.AddDocument(ctx, newDoc("b", "green apple")))
	require.NoError(t, w.DeleteQueries(ctx, model.NewTermQuery("body", "red")))
	require.NoError(t, w.AddDocument(ctx, newDoc("c", "red cherry")))
	require.NoError(t, w.Flush(ctx, true))

	assert.Equal(t, 0, countLive(w, idTerm("a")))
	assert.Equal(t, 1, countLive(w, idTerm("b")))
	assert.Equal(t, 1, countLive(w, idTerm("c")))
}

func TestNumericDocValueUpdates(t *testing.T) {
	ctx := context.Background()

	t.Run("bounded by buffered docs", func(t *testing.T) {
		w := openWriter(t)
		tag := model.KeywordField("tag", "t")

		require.NoError(t, w.AddDocument(ctx, newDoc("0", "x", tag, model.NumericField("price", 1))))
		require.NoError(t, w.UpdateNumericDocValue(ctx, model.NewTerm("tag", "t"), "price", 5))
		require.NoError(t, w.AddDocument(ctx, newDoc("1", "x", tag, model.NumericField("price", 1))))
		require.NoError(t, w.UpdateNumericDocValue(ctx, idTerm("1"), "price", 7))
		require.NoError(t, w.Flush(ctx, true))

		v, doc := findDoc(t, w, "0")
		got, ok := v.Segment.Numeric("price", doc)
		require.True(t, ok)
		assert.Equal(t, int64(5), got)

		v, doc = findDoc(t, w, "1")
		got, ok = v.Segment.Numeric("price", doc)
		require.True(t, ok)
		assert.Equal(t, int64(7), got)
	})

	t.Run("flushed segment", func(t *testing.T) {
		w := openWriter(t)
		require.NoError(t, w.AddDocument(ctx, newDoc("0", "x", model.NumericField("price", 1))))
		require.NoError(t, w.Flush(ctx, false))

		require.NoError(t, w.UpdateNumericDocValue(ctx, idTerm("0"), "price", 9))
		require.NoError(t, w.ApplyDeletes(ctx))

		v, doc := findDoc(t, w, "0")
		got, ok := v.Segment.Numeric("price", doc)
		require.True(t, ok)
		assert.Equal(t, int64(9), got)
		assert.Positive(t, v.Info.DocValuesGen)
	})
}

func TestBinaryDocValueUnset(t *testing.T) {
	ctx := context.Background()
	w := openWriter(t)

	require.NoError(t, w.AddDocument(ctx, newDoc("0", "x", model.BinaryField("blob", []byte("v0")))))
	require.NoError(t, w.AddDocument(ctx, newDoc("1", "x", model.BinaryField("blob", []byte("v1")))))
	require.NoError(t, w.Flush(ctx, false))

	require.NoError(t, w.UnsetDocValue(ctx, idTerm("0"), "blob"))
	require.NoError(t, w.UpdateBinaryDocValue(ctx, idTerm("1"), "blob", []byte("new")))
	require.NoError(t, w.ApplyDeletes(ctx))

	v, doc := findDoc(t, w, "0")
	_, ok := v.Segment.Binary("blob", doc)
	assert.False(t, ok)

	v, doc = findDoc(t, w, "1")
	got, ok := v.Segment.Binary("blob", doc)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), got)
}

func TestFieldTypeConflict(t *testing.T) {
	ctx := context.Background()
	w := openWriter(t)

	require.NoError(t, w.AddDocument(ctx, model.NewDocument(model.NumericField("n", 1))))

	err := w.AddDocument(ctx, model.NewDocument(model.TextField("n", "text")))
	require.ErrorIs(t, err, ErrFieldType)
	var fte *FieldTypeError
	require.True(t, errors.As(err, &fte))
	assert.Equal(t, "n", fte.Field)
	assert.Equal(t, model.FieldNumeric, fte.Have)

	assert.ErrorIs(t, w.UpdateBinaryDocValue(ctx, idTerm("0"), "n", nil), ErrFieldType)
	assert.ErrorIs(t, w.UnsetDocValue(ctx, idTerm("0"), "missing"), ErrUnknownField)
}

func TestConcurrentIndexing(t *testing.T) {
	ctx := context.Background()
	w := openWriter(t, WithFlushConfig(docCountConfig(50)), WithMaxThreadStates(4))

	const goroutines, perGoroutine = 8, 200
	var g errgroup.Group
	for i := range goroutines {
		g.Go(func() error {
			for j := range perGoroutine {
				id := fmt.Sprintf("%d-%d", i, j)
				if err := w.AddDocument(ctx, newDoc(id, "concurrent body")); err != nil {
					return err
				}
				if j%10 == 0 {
					if err := w.UpdateDocument(ctx, idTerm(id), newDoc(id, "updated body")); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, w.Flush(ctx, true))

	st := w.Stats()
	assert.Equal(t, goroutines*perGoroutine, st.NumLiveDocs)
	assert.Positive(t, st.Flushes)
	assert.Equal(t, goroutines*perGoroutine/10, countLive(w, model.NewTerm("body", "updated")))
	assert.Zero(t, st.Flush.ActiveBytes)
}

func TestFlushByRAM(t *testing.T) {
	ctx := context.Background()
	cfg := flush.DefaultConfig()
	cfg.RAMBufferSizeMB = 0.1
	w := openWriter(t, WithFlushConfig(cfg))

	for i := range 2000 {
		require.NoError(t, w.AddDocument(ctx, newDoc(fmt.Sprint(i), fmt.Sprintf("word%d other%d", i, i%7))))
	}
	assert.Positive(t, w.Stats().Flushes)
	assert.Greater(t, len(w.Segments()), 1)
}

func TestCommitAndReopen(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	w, err := Open(ctx, WithBlobStore(store), WithFlushConfig(docCountConfig(2)))
	require.NoError(t, err)
	for i := range 5 {
		require.NoError(t, w.AddDocument(ctx, newDoc(fmt.Sprint(i), "x", model.NumericField("n", int64(i)))))
	}
	require.NoError(t, w.DeleteTerms(ctx, idTerm("1")))
	require.NoError(t, w.UpdateNumericDocValue(ctx, idTerm("3"), "n", 30))
	require.NoError(t, w.Commit(ctx))
	require.NoError(t, w.Close(ctx))
	assert.Equal(t, uint64(2), w.Stats().Generation)

	w2 := openWriter(t, WithBlobStore(store))
	assert.Equal(t, 4, w2.Stats().NumLiveDocs)
	assert.Equal(t, 0, countLive(w2, idTerm("1")))

	v, doc := findDoc(t, w2, "3")
	got, ok := v.Segment.Numeric("n", doc)
	require.True(t, ok)
	assert.Equal(t, int64(30), got)

	// New segment names continue after the committed ones.
	require.NoError(t, w2.AddDocument(ctx, newDoc("5", "x")))
	require.NoError(t, w2.Flush(ctx, false))
	names := map[string]bool{}
	for _, s := range w2.Segments() {
		assert.False(t, names[s.Name], "duplicate segment %s", s.Name)
		names[s.Name] = true
	}

	// Field types survive the reopen.
	assert.ErrorIs(t, w2.AddDocument(ctx, model.NewDocument(model.TextField("n", "x"))), ErrFieldType)
}

func TestCommitDeletesUnreferencedBlobs(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	w := openWriter(t, WithBlobStore(store))

	require.NoError(t, w.AddDocument(ctx, newDoc("0", "x")))
	require.NoError(t, w.Flush(ctx, false))
	require.NoError(t, w.AddDocument(ctx, newDoc("1", "x")))
	require.NoError(t, w.Commit(ctx))

	segs := w.Segments()
	require.Len(t, segs, 2)
	_, err := w.Merge(ctx, segs[0].Name, segs[1].Name)
	require.NoError(t, err)
	require.NoError(t, w.Commit(ctx))

	names, err := store.List(ctx, "_")
	require.NoError(t, err)
	assert.Len(t, names, 1)
}

func TestMerge(t *testing.T) {
	ctx := context.Background()
	w := openWriter(t)

	for i := range 6 {
		require.NoError(t, w.AddDocument(ctx, newDoc(fmt.Sprint(i), "x", model.NumericField("n", int64(i)))))
		if i%2 == 1 {
			require.NoError(t, w.Flush(ctx, false))
		}
	}
	require.NoError(t, w.DeleteTerms(ctx, idTerm("2")))

	segs := w.Segments()
	require.Len(t, segs, 3)
	names := []string{segs[0].Name, segs[1].Name, segs[2].Name}

	merged, err := w.Merge(ctx, names...)
	require.NoError(t, err)

	after := w.Segments()
	require.Len(t, after, 1)
	assert.Equal(t, merged, after[0].Name)
	assert.Equal(t, 5, after[0].MaxDoc)
	assert.Equal(t, 0, countLive(w, idTerm("2")))

	v, doc := findDoc(t, w, "5")
	got, ok := v.Segment.Numeric("n", doc)
	require.True(t, ok)
	assert.Equal(t, int64(5), got)

	t.Run("unknown segment", func(t *testing.T) {
		_, err := w.Merge(ctx, "_zz")
		assert.ErrorIs(t, err, ErrSegmentNotFound)
	})

	t.Run("same segment twice", func(t *testing.T) {
		_, err := w.Merge(ctx, merged, merged)
		assert.ErrorIs(t, err, ErrMergeConflict)
	})
}

func TestMergeMemoryLimit(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1})
	w := openWriter(t, WithResourceController(rc))

	require.NoError(t, w.AddDocument(ctx, newDoc("0", "x")))
	require.NoError(t, w.Flush(ctx, false))
	require.NoError(t, w.AddDocument(ctx, newDoc("1", "x")))
	require.NoError(t, w.Flush(ctx, false))

	segs := w.Segments()
	_, err := w.Merge(ctx, segs[0].Name, segs[1].Name)
	require.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
	assert.Len(t, w.Segments(), 2)

	// The failed merge released its inputs.
	_, err = w.Merge(ctx, segs[0].Name)
	assert.NotErrorIs(t, err, ErrMergeConflict)
}

func TestFlushFailure(t *testing.T) {
	ctx := context.Background()
	faulty := ifs.NewFaultyFS(nil)
	store := blobstore.NewLocalStore(t.TempDir(), blobstore.WithFileSystem(faulty))
	w := openWriter(t, WithBlobStore(store))

	require.NoError(t, w.AddDocument(ctx, newDoc("0", "x")))
	require.NoError(t, w.DeleteTerms(ctx, idTerm("old")))

	faulty.AddRule(".seg", ifs.Fault{FailOnSync: true})
	err := w.Flush(ctx, false)
	require.ErrorIs(t, err, ErrFlushFailed)
	assert.Empty(t, w.Segments())
	assert.Zero(t, w.Stats().PendingTickets)

	faulty.ClearRules()
	require.NoError(t, w.AddDocument(ctx, newDoc("1", "x")))
	require.NoError(t, w.Flush(ctx, true))
	assert.Equal(t, 1, countLive(w, idTerm("1")))
	assert.Equal(t, 0, countLive(w, idTerm("0")))
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	w, err := Open(ctx, WithMappedArena())
	require.NoError(t, err)

	require.NoError(t, w.AddDocument(ctx, newDoc("0", "x")))
	require.NoError(t, w.Close(ctx))
	require.NoError(t, w.Close(ctx))

	assert.ErrorIs(t, w.AddDocument(ctx, newDoc("1", "x")), ErrClosed)
	assert.ErrorIs(t, w.DeleteTerms(ctx, idTerm("0")), ErrClosed)
	assert.ErrorIs(t, w.Flush(ctx, true), ErrClosed)
	assert.ErrorIs(t, w.Commit(ctx), ErrClosed)
	_, err = w.Merge(ctx, "_0")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestInvalidFlushConfig(t *testing.T) {
	cfg := flush.DefaultConfig()
	cfg.RAMBufferSizeMB = flush.Disabled
	_, err := Open(context.Background(), WithFlushConfig(cfg))
	assert.ErrorIs(t, err, flush.ErrInvalidConfig)
}
