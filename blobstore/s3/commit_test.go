package s3

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexgo/blobstore"
)

func TestDDBCommitStore(t *testing.T) {
	ctx := context.Background()
	ddb := newMemDDB()
	store := NewDDBCommitStore(NewStore(new(mockClient), "bucket"), ddb, "commits", "s3://bucket/idx")

	_, err := store.Open(ctx, CurrentName)
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	require.NoError(t, store.Put(ctx, CurrentName, []byte("segments_1")))
	require.NoError(t, store.Put(ctx, CurrentName, []byte("segments_2")))

	data, err := blobstore.ReadAll(ctx, store, CurrentName)
	require.NoError(t, err)
	assert.Equal(t, "segments_2", string(data))
}

func TestDDBCommitStoreDetectsRace(t *testing.T) {
	ctx := context.Background()
	ddb := newMemDDB()
	store := NewDDBCommitStore(NewStore(new(mockClient), "bucket"), ddb, "commits", "s3://bucket/idx")
	other := NewDDBCommitStore(NewStore(new(mockClient), "bucket"), ddb, "commits", "s3://bucket/idx")

	// The other writer commits between our read of the latest generation
	// and our conditional put.
	ddb.race = func() {
		require.NoError(t, other.Put(ctx, CurrentName, []byte("segments_other")))
	}
	err := store.Put(ctx, CurrentName, []byte("segments_mine"))
	assert.ErrorIs(t, err, ErrConcurrentModification)

	b, err := store.Open(ctx, CurrentName)
	require.NoError(t, err)
	got, err := io.ReadAll(mustRange(t, b))
	require.NoError(t, err)
	assert.Equal(t, "segments_other", string(got))
}

func TestDDBCommitStoreConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	ddb := newMemDDB()
	store := NewDDBCommitStore(NewStore(new(mockClient), "bucket"), ddb, "commits", "s3://bucket/idx")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Put(ctx, CurrentName, []byte("m")); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrConcurrentModification)
			}
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, successes, 1)
	assert.Len(t, ddb.items, successes)
}

func mustRange(t *testing.T, b blobstore.Blob) io.Reader {
	t.Helper()
	rc, err := b.ReadRange(context.Background(), 0, b.Size())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}
