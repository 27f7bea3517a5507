package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexgo/blobstore"
)

func TestOpen(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket", WithPrefix("idx/"))

	t.Run("NotFound", func(t *testing.T) {
		client.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
			return *in.Bucket == "bucket" && *in.Key == "idx/missing"
		})).Return(nil, &types.NotFound{}).Once()

		_, err := store.Open(context.Background(), "missing")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("Found", func(t *testing.T) {
		client.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
			return *in.Key == "idx/_0.seg"
		})).Return(&s3.HeadObjectOutput{ContentLength: aws.Int64(42)}, nil).Once()

		b, err := store.Open(context.Background(), "_0.seg")
		require.NoError(t, err)
		assert.Equal(t, int64(42), b.Size())
	})

	t.Run("OtherError", func(t *testing.T) {
		client.On("HeadObject", mock.Anything, mock.Anything).Return(nil, errors.New("throttled")).Once()

		_, err := store.Open(context.Background(), "x")
		require.Error(t, err)
		assert.NotErrorIs(t, err, blobstore.ErrNotFound)
	})
	client.AssertExpectations(t)
}

func TestPut(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket", WithPrefix("idx"))

	data := []byte("segments_1")
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Key == "idx/CURRENT" &&
			aws.ToString(in.ChecksumCRC32C) == checksumCRC32C(data) &&
			aws.ToInt64(in.ContentLength) == int64(len(data))
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	require.NoError(t, store.Put(context.Background(), "CURRENT", data))
	client.AssertExpectations(t)
}

func TestChecksumCRC32C(t *testing.T) {
	// Known CRC32C of "123456789" is 0xE3069283.
	assert.Equal(t, "4waSgw==", checksumCRC32C([]byte("123456789")))
}

func TestDelete(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket")

	client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return *in.Key == "_3.seg"
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()
	client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return *in.Key == "gone"
	})).Return(nil, &types.NoSuchKey{}).Once()

	require.NoError(t, store.Delete(context.Background(), "_3.seg"))
	require.NoError(t, store.Delete(context.Background(), "gone"))
	client.AssertExpectations(t)
}

func TestListPaginates(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket", WithPrefix("idx"))

	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return *in.Prefix == "idx/" && in.ContinuationToken == nil
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("next"),
		Contents:              []types.Object{{Key: aws.String("idx/_1.seg")}},
	}, nil).Once()
	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.ContinuationToken) == "next"
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated: aws.Bool(false),
		Contents:    []types.Object{{Key: aws.String("idx/_0.seg")}},
	}, nil).Once()

	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"_0.seg", "_1.seg"}, names)
	client.AssertExpectations(t)
}

func TestBlobReads(t *testing.T) {
	client := new(mockClient)
	b := &blob{client: client, bucket: "bucket", key: "k", size: 11}

	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return *in.Range == "bytes=0-4"
	})).Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("hello"))}, nil).Once()
	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return *in.Range == "bytes=6-10"
	})).Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("world"))}, nil).Twice()

	buf := make([]byte, 5)
	n, err := b.ReadAt(context.Background(), buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	// Reading past the end is clipped and reports EOF.
	long := make([]byte, 8)
	n, err = b.ReadAt(context.Background(), long, 6)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "world", string(long[:n]))

	rc, err := b.ReadRange(context.Background(), 6, 100)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "world", string(got))

	_, err = b.ReadAt(context.Background(), buf, 11)
	assert.ErrorIs(t, err, io.EOF)
	client.AssertExpectations(t)
}

func TestCreateStreamsUpload(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket", WithPrefix("idx"))

	var uploaded string
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Key == "idx/_0.seg" && in.ChecksumAlgorithm == types.ChecksumAlgorithmCrc32c
	})).Run(func(args mock.Arguments) {
		in := args.Get(1).(*s3.PutObjectInput)
		data, _ := io.ReadAll(in.Body)
		uploaded = string(data)
	}).Return(&s3.PutObjectOutput{}, nil).Once()

	w, err := store.Create(context.Background(), "_0.seg")
	require.NoError(t, err)
	_, err = w.Write([]byte("segment "))
	require.NoError(t, err)
	_, err = w.Write([]byte("bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	assert.Equal(t, "segment bytes", uploaded)
	_, err = w.Write([]byte("late"))
	assert.Error(t, err)
	client.AssertExpectations(t)
}

func TestCreateReportsUploadFailure(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket")

	client.On("PutObject", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		_, _ = io.ReadAll(args.Get(1).(*s3.PutObjectInput).Body)
	}).Return(nil, errors.New("access denied")).Once()

	w, err := store.Create(context.Background(), "_0.seg")
	require.NoError(t, err)
	_, _ = w.Write([]byte("x"))
	err = w.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}
