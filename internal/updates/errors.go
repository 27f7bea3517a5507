package updates

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrCapacityExceeded is returned when a packet would hold more entries
	// than MaxEntries.
	ErrCapacityExceeded = errors.New("updates: too many buffered entries")

	// ErrAlreadyFrozen is returned when a buffered packet is frozen twice.
	ErrAlreadyFrozen = errors.New("updates: packet already frozen")

	// ErrDelGenAssigned is the panic value raised when a frozen packet gets a
	// second generation.
	ErrDelGenAssigned = errors.New("updates: delete generation already assigned")
)

// MaxEntries bounds each map of a buffered packet.
var MaxEntries = math.MaxInt32

// Assertions enables internal consistency checks that panic on violation.
var Assertions = false

func invariant(cond bool, format string, args ...any) {
	if Assertions && !cond {
		panic(fmt.Errorf("updates: assertion failed: "+format, args...))
	}
}
