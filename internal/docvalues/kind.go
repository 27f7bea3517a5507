package docvalues

import (
	"errors"
	"math"
)

// Kind is the type of a doc-values field.
type Kind uint8

const (
	// Numeric fields hold one int64 per document.
	Numeric Kind = iota + 1
	// Binary fields hold one byte string per document.
	Binary
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

// NoMoreDocs is returned by Iterator.NextDoc once the buffer is exhausted.
const NoMoreDocs = math.MaxInt32

// ErrCapacityExceeded is returned when a buffer would exceed MaxEntries.
var ErrCapacityExceeded = errors.New("docvalues: too many buffered updates")

// MaxEntries bounds the entries of a single buffer.
var MaxEntries = math.MaxInt32

// MaxBinaryBytes bounds the value bytes of a single binary buffer. Offsets
// into the value buffer are 32 bit.
var MaxBinaryBytes = math.MaxInt32
