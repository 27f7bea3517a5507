package arena

import (
	"encoding/binary"
	"io"
)

// SliceWriter appends bytes to a slice chain, allocating follow-up slices as
// needed. The same writer can be re-pointed at many streams with Init.
type SliceWriter struct {
	pool   *BlockPool
	slice  []byte
	upto   int
	offset int
}

// NewSliceWriter returns a writer over pool.
func NewSliceWriter(pool *BlockPool) *SliceWriter {
	return &SliceWriter{pool: pool}
}

// Init positions the writer at a global address previously returned by
// Address (or the start of a fresh slice).
func (w *SliceWriter) Init(address int) {
	w.slice = w.pool.Block(address)
	invariant(w.slice != nil, "no block for address %d", address)
	w.upto = address & BlockMask
	w.offset = address
}

// WriteByte implements io.ByteWriter. It never fails.
func (w *SliceWriter) WriteByte(b byte) error {
	invariant(w.slice != nil, "writer not initialised")
	if w.slice[w.upto] != 0 {
		w.upto = w.pool.AllocSlice(w.slice, w.upto)
		w.slice = w.pool.Buffer
		w.offset = w.pool.ByteOffset
		invariant(w.slice != nil, "pool has no current block")
	}
	w.slice[w.upto] = b
	w.upto++
	return nil
}

// Write implements io.Writer. It never fails.
func (w *SliceWriter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		if w.slice[w.upto] != 0 {
			if err := w.WriteByte(p[0]); err != nil {
				return 0, err
			}
			p = p[1:]
			continue
		}
		// Copy up to the next non-zero byte, which is the sentinel.
		n := 0
		for n < len(p) && w.upto+n < len(w.slice) && w.slice[w.upto+n] == 0 {
			n++
		}
		copy(w.slice[w.upto:], p[:n])
		w.upto += n
		p = p[n:]
	}
	return total, nil
}

// WriteVInt writes v as an unsigned varint.
func (w *SliceWriter) WriteVInt(v int) {
	invariant(v >= 0, "negative vint %d", v)
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(v))
	for _, b := range buf[:n] {
		_ = w.WriteByte(b)
	}
}

// Address returns the global address of the next byte to be written.
func (w *SliceWriter) Address() int {
	return w.upto + (w.offset &^ BlockMask)
}

// SliceReader reads a slice chain from a start address up to an end
// address. It is a cheap value; reuse one per stream with Init.
type SliceReader struct {
	pool         *BlockPool
	buffer       []byte
	bufferUpto   int
	bufferOffset int
	upto         int
	limit        int
	level        int
	end          int
}

// Init positions the reader on the chain starting at start and ending
// (exclusive) at end, the writer's Address after its last write.
func (r *SliceReader) Init(pool *BlockPool, start, end int) {
	invariant(start >= 0 && end >= 0, "negative address start=%d end=%d", start, end)
	invariant(end >= start, "end %d before start %d", end, start)

	r.pool = pool
	r.end = end
	r.level = 0
	r.bufferUpto = start >> BlockShift
	r.bufferOffset = r.bufferUpto * BlockSize
	r.buffer = pool.Buffers[r.bufferUpto]
	r.upto = start & BlockMask

	if start+FirstLevelSize >= end {
		// Everything fits in the first slice.
		r.limit = end & BlockMask
	} else {
		r.limit = r.upto + FirstLevelSize - 4
	}
}

// EOF reports whether every byte up to end was consumed.
func (r *SliceReader) EOF() bool {
	invariant(r.upto+r.bufferOffset <= r.end, "reader past end")
	return r.upto+r.bufferOffset == r.end
}

// ReadByte implements io.ByteReader. Reading at EOF is a programming error:
// it panics with ErrSliceOverrun under Assertions and returns io.EOF
// otherwise.
func (r *SliceReader) ReadByte() (byte, error) {
	if r.EOF() {
		if Assertions {
			panic(ErrSliceOverrun)
		}
		return 0, io.EOF
	}
	invariant(r.upto <= r.limit, "upto %d beyond limit %d", r.upto, r.limit)
	if r.upto == r.limit {
		r.nextSlice()
	}
	b := r.buffer[r.upto]
	r.upto++
	return b, nil
}

// ReadVInt reads an unsigned varint.
func (r *SliceReader) ReadVInt() (int, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// Read implements io.Reader.
func (r *SliceReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if r.EOF() {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) && !r.EOF() {
		if r.upto == r.limit {
			r.nextSlice()
		}
		c := copy(p[n:], r.buffer[r.upto:r.limit])
		r.upto += c
		n += c
	}
	return n, nil
}

// WriteTo implements io.WriterTo, copying the remaining bytes to w.
func (r *SliceReader) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for {
		if r.limit+r.bufferOffset == r.end {
			n, err := w.Write(r.buffer[r.upto:r.limit])
			total += int64(n)
			r.upto += n
			return total, err
		}
		n, err := w.Write(r.buffer[r.upto:r.limit])
		total += int64(n)
		if err != nil {
			r.upto += n
			return total, err
		}
		r.upto = r.limit
		r.nextSlice()
	}
}

func (r *SliceReader) nextSlice() {
	next := readAddress(r.buffer[r.limit : r.limit+4])

	r.level = NextLevel[r.level]
	newSize := LevelSizes[r.level]

	r.bufferUpto = next >> BlockShift
	r.bufferOffset = r.bufferUpto * BlockSize
	r.buffer = r.pool.Buffers[r.bufferUpto]
	r.upto = next & BlockMask

	if next+newSize >= r.end {
		// Final slice: stop at end.
		invariant(r.end-r.bufferOffset >= r.upto, "end %d before slice start %d", r.end, next)
		r.limit = r.end - r.bufferOffset
	} else {
		// Not the final slice: the last four bytes are the next address.
		r.limit = r.upto + newSize - 4
	}
}
