package manifest

import (
	"encoding/binary"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/hupe1980/lexgo/internal/hash"
)

const binaryMagic = 0x464d584c // "LXMF"

// WriteBinary writes the manifest:
//
//	Magic    (4 bytes)
//	Version  (4 bytes)
//	Checksum (4 bytes) CRC32C of payload
//	Length   (4 bytes)
//	Payload:
//	  Generation, CreatedAt (unix nanos), Counter (8 bytes each)
//	  NumSegments (4 bytes), then per segment:
//	    Name (string), MaxDoc, DelCount (4 bytes each),
//	    DelGen, DVGen, Size (8 bytes each), Compression (string)
//	  NumUserData (4 bytes), then key and value strings in key order
//
// Strings carry a 2-byte length.
func (m *Manifest) WriteBinary(w io.Writer) error {
	pb := newPayloadBuffer(make([]byte, 0, 64+len(m.Segments)*64))

	pb.writeUint64(m.Generation)
	pb.writeUint64(uint64(m.CreatedAt.UnixNano()))
	pb.writeUint64(uint64(m.Counter))
	pb.writeUint32(uint32(len(m.Segments)))
	for _, s := range m.Segments {
		pb.writeString(s.Name)
		pb.writeUint32(uint32(s.MaxDoc))
		pb.writeUint32(uint32(s.DelCount))
		pb.writeUint64(uint64(s.DelGen))
		pb.writeUint64(uint64(s.DVGen))
		pb.writeUint64(uint64(s.Size))
		pb.writeString(s.Compression)
	}
	pb.writeUint32(uint32(len(m.UserData)))
	for _, k := range slices.Sorted(maps.Keys(m.UserData)) {
		pb.writeString(k)
		pb.writeString(m.UserData[k])
	}
	if pb.err != nil {
		return pb.err
	}

	header := make([]byte, 16)
	binary.LittleEndian.PutUint32(header[0:4], binaryMagic)
	binary.LittleEndian.PutUint32(header[4:8], CurrentVersion)
	binary.LittleEndian.PutUint32(header[8:12], hash.CRC32C(pb.buf))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(pb.buf)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(pb.buf)
	return err
}

// ReadBinary reads a manifest written by WriteBinary.
func ReadBinary(r io.Reader) (*Manifest, error) {
	header := make([]byte, 16)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if magic := binary.LittleEndian.Uint32(header[0:4]); magic != binaryMagic {
		return nil, fmt.Errorf("%w: magic %x", ErrCorrupt, magic)
	}
	version := binary.LittleEndian.Uint32(header[4:8])
	if version > CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrIncompatibleVersion, version)
	}
	checksum := binary.LittleEndian.Uint32(header[8:12])
	length := binary.LittleEndian.Uint32(header[12:16])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrCorrupt, err)
	}
	if hash.CRC32C(payload) != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	pb := newPayloadBuffer(payload)
	m := &Manifest{Version: int(version)}
	m.Generation = pb.readUint64()
	m.CreatedAt = time.Unix(0, int64(pb.readUint64()))
	m.Counter = int64(pb.readUint64())

	n := pb.readUint32()
	if int(n) > len(payload)/8 {
		return nil, fmt.Errorf("%w: %d segments", ErrCorrupt, n)
	}
	m.Segments = make([]SegmentInfo, n)
	for i := range m.Segments {
		s := &m.Segments[i]
		s.Name = pb.readString()
		s.MaxDoc = int(pb.readUint32())
		s.DelCount = int(pb.readUint32())
		s.DelGen = int64(pb.readUint64())
		s.DVGen = int64(pb.readUint64())
		s.Size = int64(pb.readUint64())
		s.Compression = pb.readString()
	}

	if n := pb.readUint32(); n > 0 {
		if int(n) > len(payload)/4 {
			return nil, fmt.Errorf("%w: %d user data entries", ErrCorrupt, n)
		}
		m.UserData = make(map[string]string, n)
		for range n {
			k := pb.readString()
			m.UserData[k] = pb.readString()
		}
	}

	if pb.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, pb.err)
	}
	return m, nil
}

type payloadBuffer struct {
	buf []byte
	pos int
	err error
}

func newPayloadBuffer(b []byte) *payloadBuffer {
	return &payloadBuffer{buf: b}
}

func (p *payloadBuffer) writeUint64(v uint64) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
}

func (p *payloadBuffer) writeUint32(v uint32) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *payloadBuffer) writeString(s string) {
	if p.err != nil {
		return
	}
	if len(s) > 65535 {
		p.err = fmt.Errorf("string too long: %d", len(s))
		return
	}
	p.buf = binary.LittleEndian.AppendUint16(p.buf, uint16(len(s)))
	p.buf = append(p.buf, s...)
}

func (p *payloadBuffer) readUint64() uint64 {
	if p.err != nil {
		return 0
	}
	if p.pos+8 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.LittleEndian.Uint64(p.buf[p.pos:])
	p.pos += 8
	return v
}

func (p *payloadBuffer) readUint32() uint32 {
	if p.err != nil {
		return 0
	}
	if p.pos+4 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.LittleEndian.Uint32(p.buf[p.pos:])
	p.pos += 4
	return v
}

func (p *payloadBuffer) readString() string {
	if p.err != nil {
		return ""
	}
	if p.pos+2 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return ""
	}
	l := int(binary.LittleEndian.Uint16(p.buf[p.pos:]))
	p.pos += 2
	if p.pos+l > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return ""
	}
	s := string(p.buf[p.pos : p.pos+l])
	p.pos += l
	return s
}
