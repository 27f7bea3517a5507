package resource

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	bytes.Buffer
	synced, closed bool
}

func (b *syncBuffer) Sync() error  { b.synced = true; return nil }
func (b *syncBuffer) Close() error { b.closed = true; return nil }

func TestRateLimitedWriter(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})
	buf := &syncBuffer{}
	w := NewRateLimitedWriter(context.Background(), buf, c)

	_, err := w.Write([]byte("segment"))
	require.NoError(t, err)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	assert.Equal(t, "segment", buf.String())
	assert.True(t, buf.synced)
	assert.True(t, buf.closed)
}

func TestRateLimitedWriterCanceled(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 10})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewRateLimitedWriter(ctx, &syncBuffer{}, c)
	_, err := w.Write(make([]byte, 10))
	assert.Error(t, err)
}
