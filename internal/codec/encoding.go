package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/lexgo/internal/hash"
)

const (
	magic = "LXSG"
	// Version is the current blob format version.
	Version = 1

	headerSize  = len(magic) + 2
	trailerSize = 4
)

// Encode writes s to w as a single blob.
func Encode(w io.Writer, s *Segment, c Compression) error {
	blob, err := Marshal(s, c)
	if err != nil {
		return err
	}
	_, err = w.Write(blob)
	return err
}

// Marshal returns s encoded as a blob.
func Marshal(s *Segment, c Compression) ([]byte, error) {
	body := appendBody(nil, s)

	out := make([]byte, 0, headerSize+blockHeaderSize+len(body)+trailerSize)
	out = append(out, magic...)
	out = append(out, Version, byte(c))
	out, err := appendBlock(out, body, c)
	if err != nil {
		return nil, err
	}
	return binary.LittleEndian.AppendUint32(out, hash.CRC32C(out)), nil
}

func appendString(b []byte, s string) []byte {
	b = binary.AppendUvarint(b, uint64(len(s)))
	return append(b, s...)
}

func appendBody(b []byte, s *Segment) []byte {
	b = appendString(b, s.name)
	b = binary.AppendUvarint(b, uint64(s.maxDoc))
	b = binary.AppendVarint(b, s.dvGen)

	fields := s.Fields()
	b = binary.AppendUvarint(b, uint64(len(fields)))
	for _, name := range fields {
		f := s.fields[name]
		b = appendString(b, name)
		b = binary.AppendUvarint(b, uint64(len(f.terms)))
		for i, t := range f.terms {
			b = appendString(b, t)
			postings := f.postings[i]
			b = binary.AppendUvarint(b, uint64(len(postings)))
			prevDoc := 0
			for _, p := range postings {
				b = binary.AppendUvarint(b, uint64(p.Doc-prevDoc))
				prevDoc = p.Doc
				b = binary.AppendUvarint(b, uint64(p.Freq))
				b = binary.AppendUvarint(b, uint64(len(p.Positions)))
				prevPos := 0
				for _, pos := range p.Positions {
					b = binary.AppendUvarint(b, uint64(pos-prevPos))
					prevPos = pos
				}
			}
		}
	}

	numeric := s.NumericFields()
	b = binary.AppendUvarint(b, uint64(len(numeric)))
	for _, name := range numeric {
		b = appendString(b, name)
		b = binary.AppendUvarint(b, s.numeric[name].docs.GetCardinality())
		prevDoc := 0
		for doc, v := range s.NumericValues(name) {
			b = binary.AppendUvarint(b, uint64(doc-prevDoc))
			prevDoc = doc
			b = binary.AppendVarint(b, v)
		}
	}

	binaryFields := s.BinaryFields()
	b = binary.AppendUvarint(b, uint64(len(binaryFields)))
	for _, name := range binaryFields {
		b = appendString(b, name)
		b = binary.AppendUvarint(b, s.binary[name].docs.GetCardinality())
		prevDoc := 0
		for doc, v := range s.BinaryValues(name) {
			b = binary.AppendUvarint(b, uint64(doc-prevDoc))
			prevDoc = doc
			b = appendString(b, string(v))
		}
	}
	return b
}

// Decode parses a blob written by Encode.
func Decode(data []byte) (*Segment, error) {
	if len(data) < headerSize+blockHeaderSize+trailerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(data))
	}
	if string(data[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if v := data[len(magic)]; v > Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	c := Compression(data[len(magic)+1])

	payload, ok := hash.Verify(data)
	if !ok {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	body, err := readBlock(payload[headerSize:], c)
	if err != nil {
		return nil, err
	}
	d := decoder{buf: body}
	s := d.segment()
	if d.err != nil {
		return nil, d.err
	}
	if d.pos != len(body) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(body)-d.pos)
	}
	s.buildBloom()
	return s, nil
}

// decoder reads varints from buf; the first failure sticks.
type decoder struct {
	buf []byte
	pos int
	err error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: "+format, append([]any{ErrCorrupt}, args...)...)
	}
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf[d.pos:])
	if n <= 0 {
		d.fail("bad uvarint at %d", d.pos)
		return 0
	}
	d.pos += n
	return v
}

func (d *decoder) varint() int64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Varint(d.buf[d.pos:])
	if n <= 0 {
		d.fail("bad varint at %d", d.pos)
		return 0
	}
	d.pos += n
	return v
}

// count reads a length and checks it against the bytes left.
func (d *decoder) count() int {
	n := d.uvarint()
	if n > uint64(len(d.buf)-d.pos) {
		d.fail("count %d exceeds remaining %d bytes", n, len(d.buf)-d.pos)
		return 0
	}
	return int(n)
}

func (d *decoder) string() string {
	n := d.count()
	if d.err != nil {
		return ""
	}
	s := string(d.buf[d.pos : d.pos+n])
	d.pos += n
	return s
}

func (d *decoder) doc(prev, maxDoc int) int {
	doc := prev + int(d.uvarint())
	if doc < 0 || doc >= maxDoc {
		d.fail("doc %d out of range [0,%d)", doc, maxDoc)
		return 0
	}
	return doc
}

func (d *decoder) segment() *Segment {
	s := &Segment{
		name:    d.string(),
		fields:  make(map[string]*fieldIndex),
		numeric: make(map[string]*NumericColumn),
		binary:  make(map[string]*BinaryColumn),
	}
	maxDoc := d.uvarint()
	if maxDoc > 1<<31-1 {
		d.fail("maxDoc %d", maxDoc)
		return nil
	}
	s.maxDoc = int(maxDoc)
	s.dvGen = d.varint()

	numFields := d.count()
	for range numFields {
		name := d.string()
		numTerms := d.count()
		f := &fieldIndex{terms: make([]string, 0, numTerms), postings: make([][]Posting, 0, numTerms)}
		for range numTerms {
			t := d.string()
			numDocs := d.count()
			postings := make([]Posting, 0, numDocs)
			doc := 0
			for range numDocs {
				doc = d.doc(doc, s.maxDoc)
				freq := int(d.uvarint())
				numPos := d.count()
				var positions []int
				if numPos > 0 {
					positions = make([]int, numPos)
					pos := 0
					for i := range positions {
						pos += int(d.uvarint())
						positions[i] = pos
					}
				}
				postings = append(postings, Posting{Doc: doc, Freq: freq, Positions: positions})
			}
			f.terms = append(f.terms, t)
			f.postings = append(f.postings, postings)
		}
		s.fields[name] = f
	}

	numNumeric := d.count()
	for range numNumeric {
		name := d.string()
		col := &NumericColumn{values: make([]int64, s.maxDoc), docs: roaring.New()}
		n := d.count()
		doc := 0
		for range n {
			doc = d.doc(doc, s.maxDoc)
			col.values[doc] = d.varint()
			col.docs.Add(uint32(doc))
		}
		s.numeric[name] = col
	}

	numBinary := d.count()
	for range numBinary {
		name := d.string()
		col := &BinaryColumn{values: make([][]byte, s.maxDoc), docs: roaring.New()}
		n := d.count()
		doc := 0
		for range n {
			doc = d.doc(doc, s.maxDoc)
			col.values[doc] = []byte(d.string())
			col.docs.Add(uint32(doc))
		}
		s.binary[name] = col
	}
	return s
}
