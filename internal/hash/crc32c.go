package hash

import (
	"hash"
	"hash/crc32"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C returns the Castagnoli checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// NewCRC32C returns a streaming Castagnoli hash.
func NewCRC32C() hash.Hash32 {
	return crc32.New(crc32cTable)
}

// Verify reports whether data ends with the little-endian CRC32C of the
// bytes before it, and returns those bytes.
func Verify(data []byte) ([]byte, bool) {
	if len(data) < 4 {
		return nil, false
	}
	n := len(data) - 4
	want := uint32(data[n]) | uint32(data[n+1])<<8 | uint32(data[n+2])<<16 | uint32(data[n+3])<<24
	return data[:n], CRC32C(data[:n]) == want
}
