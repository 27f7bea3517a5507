package arena

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelTables(t *testing.T) {
	require.Len(t, NextLevel, len(LevelSizes))
	assert.Equal(t, FirstLevelSize, LevelSizes[0])
	assert.Equal(t, 200, MaxLevelSize)
	for i := 1; i < len(LevelSizes); i++ {
		assert.GreaterOrEqual(t, LevelSizes[i], LevelSizes[i-1])
	}
	last := len(NextLevel) - 1
	assert.Equal(t, last, NextLevel[last], "last level must repeat")
}

func TestBlockPool_NewSlice(t *testing.T) {
	var used atomic.Int64
	p := NewBlockPool(NewTrackingAllocator(&used))
	assert.Equal(t, 0, p.NumBlocks())

	upto := p.NewSlice(FirstLevelSize)
	assert.Equal(t, 0, upto)
	assert.Equal(t, 1, p.NumBlocks())
	assert.Equal(t, int64(BlockSize), used.Load())
	assert.Equal(t, []byte{0, 0, 0, 0, 16}, p.Buffer[:5])

	// Fill the first block; the next slice must start a new block.
	for p.ByteUpto+FirstLevelSize <= BlockSize {
		p.NewSlice(FirstLevelSize)
	}
	upto = p.NewSlice(FirstLevelSize)
	assert.Equal(t, 0, upto)
	assert.Equal(t, 2, p.NumBlocks())
	assert.Equal(t, BlockSize, p.ByteOffset)
	assert.Equal(t, int64(2*BlockSize), used.Load())
}

func TestBlockPool_AllocSliceForwards(t *testing.T) {
	p := NewBlockPool(nil)
	start := p.NewSlice(FirstLevelSize) + p.ByteOffset

	w := NewSliceWriter(p)
	w.Init(start)
	for i := range 5 {
		require.NoError(t, w.WriteByte(byte(i+1)))
	}

	// First slice now holds one data byte and the forwarding address.
	first := p.Block(start)[start : start+5]
	assert.Equal(t, byte(1), first[0])
	next := readAddress(first[1:5])
	assert.Equal(t, start+5, next)

	// The moved bytes and the new byte live in the level-1 slice.
	second := p.Block(next)[next : next+LevelSizes[1]]
	assert.Equal(t, []byte{2, 3, 4, 5}, second[:4])
	assert.Equal(t, byte(16|1), second[LevelSizes[1]-1])
	assert.Equal(t, next+4, w.Address())
}

func TestBlockPool_Reset(t *testing.T) {
	var used atomic.Int64
	p := NewBlockPool(NewTrackingAllocator(&used))
	for range 3 * BlockSize / 200 {
		p.NewSlice(200)
	}
	require.Equal(t, 4, p.NumBlocks())

	t.Run("reuse first", func(t *testing.T) {
		p.Reset(true, true)
		assert.Equal(t, 1, p.NumBlocks())
		assert.Equal(t, 0, p.ByteUpto)
		assert.Equal(t, 0, p.ByteOffset)
		assert.Equal(t, int64(BlockSize), used.Load())
		for _, b := range p.Buffer {
			require.Zero(t, b)
		}
	})

	t.Run("release all", func(t *testing.T) {
		p.NewSlice(FirstLevelSize)
		p.Reset(false, false)
		assert.Equal(t, 0, p.NumBlocks())
		assert.Nil(t, p.Buffer)
		assert.Equal(t, int64(0), used.Load())

		// The pool stays usable.
		assert.Equal(t, 0, p.NewSlice(FirstLevelSize))
		assert.Equal(t, 0, p.ByteOffset)
	})

	t.Run("reuse without zero fill", func(t *testing.T) {
		assert.Panics(t, func() { p.Reset(false, true) })
	})
}

func TestBlockPool_GrowsBufferTable(t *testing.T) {
	p := NewBlockPool(nil)
	for range 40 {
		p.NextBuffer()
	}
	assert.Equal(t, 40, p.NumBlocks())
	assert.Equal(t, 39*BlockSize, p.ByteOffset)
	for i := range 40 {
		assert.NotNil(t, p.Buffers[i])
	}
}
