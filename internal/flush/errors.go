package flush

import (
	"errors"
	"fmt"
)

// Disabled turns off an individual flush trigger.
const Disabled = -1

var (
	// ErrStallInterrupted is returned when a goroutine blocked on a stalled
	// writer is cancelled.
	ErrStallInterrupted = errors.New("flush: interrupted while waiting for stalled flushes")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("flush: invalid config")
)

// Assertions enables internal consistency checks that panic on violation.
var Assertions = false

func invariant(cond bool, format string, args ...any) {
	if Assertions && !cond {
		panic(fmt.Errorf("flush: assertion failed: "+format, args...))
	}
}
