package engine

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexgo/internal/arena"
	"github.com/hupe1980/lexgo/internal/flush"
	"github.com/hupe1980/lexgo/internal/updates"
	"github.com/hupe1980/lexgo/model"
)

func TestMain(m *testing.M) {
	arena.Assertions = true
	flush.Assertions = true
	updates.Assertions = true
	os.Exit(m.Run())
}

func openWriter(t *testing.T, opts ...Option) *Writer {
	t.Helper()
	w, err := Open(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close(context.Background()) })
	return w
}

func docCountConfig(n int) flush.Config {
	cfg := flush.DefaultConfig()
	cfg.RAMBufferSizeMB = flush.Disabled
	cfg.MaxBufferedDocs = n
	return cfg
}

func newDoc(id, body string, extra ...model.Field) model.Document {
	doc := model.NewDocument(model.KeywordField("id", id), model.TextField("body", body))
	for _, f := range extra {
		doc = doc.Add(f)
	}
	return doc
}

func idTerm(id string) model.Term { return model.NewTerm("id", id) }

// countLive returns the live docs containing t over every segment.
func countLive(w *Writer, t model.Term) int {
	var n int
	for _, v := range w.Snapshot() {
		for range v.LiveDocs(t) {
			n++
		}
	}
	return n
}

// findDoc returns the segment view and doc number of the live doc with id.
func findDoc(t *testing.T, w *Writer, id string) (SegmentView, int) {
	t.Helper()
	for _, v := range w.Snapshot() {
		for doc := range v.LiveDocs(idTerm(id)) {
			return v, doc
		}
	}
	require.Failf(t, "doc not found", "id %q", id)
	return SegmentView{}, -1
}
