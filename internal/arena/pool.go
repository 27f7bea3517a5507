package arena

const (
	// BlockShift is log2 of BlockSize.
	BlockShift = 15
	// BlockSize is the size of every byte block (32 KiB).
	BlockSize = 1 << BlockShift
	// BlockMask extracts the offset inside a block from a pool address.
	BlockMask = BlockSize - 1

	// FirstLevelSize is the size of the first slice of every stream.
	FirstLevelSize = 5

	sentinel = 16
)

// LevelSizes holds the slice size of each level.
var LevelSizes = [...]int{5, 14, 20, 30, 40, 40, 80, 80, 120, 200}

// NextLevel maps a level to the level of the slice that follows it.
// The last level repeats.
var NextLevel = [...]int{1, 2, 3, 4, 5, 6, 7, 8, 9, 9}

// MaxLevelSize is the largest slice size.
var MaxLevelSize = LevelSizes[len(LevelSizes)-1]

// BlockPool hands out slices carved from fixed-size byte blocks.
//
// Addresses are pool-global: block index << BlockShift | offset in block.
// Forwarding addresses are stored in four bytes, so a pool must stay below
// 2 GiB; the per-thread hard RAM limit keeps it there.
type BlockPool struct {
	// Buffers holds every block obtained so far; unused tail entries are nil.
	Buffers [][]byte
	// Buffer is the block new slices are carved from.
	Buffer []byte
	// ByteUpto is the next free byte in Buffer.
	ByteUpto int
	// ByteOffset is the global address of Buffer[0].
	ByteOffset int

	bufferUpto int
	allocator  Allocator
}

// NewBlockPool returns an empty pool. The first block is allocated lazily.
func NewBlockPool(a Allocator) *BlockPool {
	if a == nil {
		a = DirectAllocator{}
	}
	return &BlockPool{
		Buffers:    make([][]byte, 10),
		ByteUpto:   BlockSize,
		ByteOffset: -BlockSize,
		bufferUpto: -1,
		allocator:  a,
	}
}

// NumBlocks returns the number of blocks currently held.
func (p *BlockPool) NumBlocks() int {
	return p.bufferUpto + 1
}

// NextBuffer advances to a fresh block.
func (p *BlockPool) NextBuffer() {
	if p.bufferUpto+1 == len(p.Buffers) {
		grown := make([][]byte, len(p.Buffers)+len(p.Buffers)/2+1)
		copy(grown, p.Buffers)
		p.Buffers = grown
	}
	p.Buffer = p.allocator.ByteBlock()
	invariant(len(p.Buffer) == BlockSize, "allocator returned block of %d bytes", len(p.Buffer))
	p.bufferUpto++
	p.Buffers[p.bufferUpto] = p.Buffer
	p.ByteUpto = 0
	p.ByteOffset += BlockSize
}

// NewSlice reserves a slice of size bytes and returns its offset inside
// Buffer. Add ByteOffset for the global address.
func (p *BlockPool) NewSlice(size int) int {
	invariant(size > 0 && size <= BlockSize, "invalid slice size %d", size)
	if p.ByteUpto > BlockSize-size {
		p.NextBuffer()
	}
	upto := p.ByteUpto
	p.ByteUpto += size
	p.Buffer[p.ByteUpto-1] = sentinel
	return upto
}

// AllocSlice is called by a writer that reached the sentinel at slice[upto].
// It reserves the next-level slice, moves the last three data bytes of the
// old slice into it, writes the forwarding address over the old slice's last
// four bytes and returns the write offset inside Buffer.
func (p *BlockPool) AllocSlice(slice []byte, upto int) int {
	level := int(slice[upto] & 15)
	invariant(level < len(NextLevel), "corrupt sentinel %d", slice[upto])
	newLevel := NextLevel[level]
	newSize := LevelSizes[newLevel]

	if p.ByteUpto > BlockSize-newSize {
		p.NextBuffer()
	}

	newUpto := p.ByteUpto
	address := newUpto + p.ByteOffset
	p.ByteUpto += newSize

	copy(p.Buffer[newUpto:newUpto+3], slice[upto-3:upto])
	putAddress(slice[upto-3:], address)

	p.Buffer[p.ByteUpto-1] = byte(sentinel | newLevel)
	return newUpto + 3
}

// Block returns the block that holds address.
func (p *BlockPool) Block(address int) []byte {
	return p.Buffers[address>>BlockShift]
}

// Reset releases the pool's blocks. With zeroFill the used bytes are cleared
// first; with reuseFirst the first block is kept and becomes current again.
// A pool reused without zeroFill is corrupt.
func (p *BlockPool) Reset(zeroFill, reuseFirst bool) {
	if p.bufferUpto == -1 {
		return
	}
	if zeroFill {
		for i := 0; i < p.bufferUpto; i++ {
			clear(p.Buffers[i])
		}
		clear(p.Buffers[p.bufferUpto][:p.ByteUpto])
	}

	if p.bufferUpto > 0 || !reuseFirst {
		first := 0
		if reuseFirst {
			first = 1
		}
		p.allocator.Recycle(p.Buffers[first : p.bufferUpto+1])
		clear(p.Buffers[first : p.bufferUpto+1])
	}

	if reuseFirst {
		invariant(zeroFill, "reusing the first block requires zero fill")
		p.bufferUpto = 0
		p.ByteUpto = 0
		p.ByteOffset = 0
		p.Buffer = p.Buffers[0]
		return
	}
	p.bufferUpto = -1
	p.ByteUpto = BlockSize
	p.ByteOffset = -BlockSize
	p.Buffer = nil
}

func putAddress(b []byte, address int) {
	b[0] = byte(address >> 24)
	b[1] = byte(address >> 16)
	b[2] = byte(address >> 8)
	b[3] = byte(address)
}

func readAddress(b []byte) int {
	return int(b[0])<<24 | int(b[1])<<16 | int(b[2])<<8 | int(b[3])
}
