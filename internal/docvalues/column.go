package docvalues

// column stores the values parallel to a buffer's doc column.
type column[V any] interface {
	// fits reports whether v can be added without overflowing the column.
	fits(v V) bool
	// byteSize is the size of the shared value buffer, zero for fixed width.
	byteSize() int
	add(v V)
	addZero()
	get(i int) V
	swap(i, j int)
	appendFrom(other column[V], i int)
	ramBytesUsed() int64
}

type numericColumn struct {
	values []int64
}

func (c *numericColumn) fits(int64) bool { return true }
func (c *numericColumn) byteSize() int   { return 0 }

func (c *numericColumn) add(v int64) {
	c.values = append(c.values, v)
}

func (c *numericColumn) addZero() {
	c.values = append(c.values, 0)
}

func (c *numericColumn) get(i int) int64 {
	return c.values[i]
}

func (c *numericColumn) swap(i, j int) {
	c.values[i], c.values[j] = c.values[j], c.values[i]
}

func (c *numericColumn) ramBytesUsed() int64 {
	return int64(cap(c.values)) * 8
}

func (c *numericColumn) appendFrom(other column[int64], i int) {
	c.values = append(c.values, other.get(i))
}

// binaryColumn keeps every value in one byte buffer; entries point into it.
type binaryColumn struct {
	offsets []int32
	lengths []int32
	buf     []byte
}

func (c *binaryColumn) fits(v []byte) bool {
	return len(c.buf)+len(v) <= MaxBinaryBytes
}

func (c *binaryColumn) byteSize() int { return len(c.buf) }

func (c *binaryColumn) add(v []byte) {
	c.offsets = append(c.offsets, int32(len(c.buf)))
	c.lengths = append(c.lengths, int32(len(v)))
	c.buf = append(c.buf, v...)
}

func (c *binaryColumn) addZero() {
	c.offsets = append(c.offsets, int32(len(c.buf)))
	c.lengths = append(c.lengths, 0)
}

func (c *binaryColumn) get(i int) []byte {
	off := c.offsets[i]
	return c.buf[off : off+c.lengths[i] : off+c.lengths[i]]
}

func (c *binaryColumn) swap(i, j int) {
	c.offsets[i], c.offsets[j] = c.offsets[j], c.offsets[i]
	c.lengths[i], c.lengths[j] = c.lengths[j], c.lengths[i]
}

// appendFrom copies the bytes so offsets are rebased onto this buffer.
func (c *binaryColumn) appendFrom(other column[[]byte], i int) {
	c.add(other.get(i))
}

func (c *binaryColumn) ramBytesUsed() int64 {
	return int64(cap(c.offsets))*4 + int64(cap(c.lengths))*4 + int64(cap(c.buf))
}
