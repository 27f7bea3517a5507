package minio

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexgo/blobstore"
)

func TestStoreIntegration(t *testing.T) {
	endpoint := os.Getenv("LEXGO_MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:9000"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
	})
	if err != nil {
		t.Skipf("minio client: %v", err)
	}

	ctx := context.Background()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("minio not reachable: %v", err)
	}

	const bucket = "lexgo-test"
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, t.Name())

	require.NoError(t, store.Put(ctx, "segments_1", []byte("manifest body")))
	w, err := store.Create(ctx, "_0.seg")
	require.NoError(t, err)
	_, err = io.WriteString(w, "postings and doc values")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := blobstore.ReadAll(ctx, store, "_0.seg")
	require.NoError(t, err)
	assert.Equal(t, "postings and doc values", string(data))

	b, err := store.Open(ctx, "segments_1")
	require.NoError(t, err)
	rc, err := b.ReadRange(ctx, 9, 100)
	require.NoError(t, err)
	tail, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "body", string(tail))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"_0.seg", "segments_1"}, names)

	require.NoError(t, store.Delete(ctx, "_0.seg"))
	require.NoError(t, store.Delete(ctx, "segments_1"))
	require.NoError(t, store.Delete(ctx, "segments_1"))
	_, err = store.Open(ctx, "_0.seg")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
