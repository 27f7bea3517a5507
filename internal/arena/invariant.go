package arena

import (
	"errors"
	"fmt"
)

// ErrSliceOverrun is the panic value raised when a reader goes past the end
// address it was initialised with.
var ErrSliceOverrun = errors.New("arena: read past end of slice")

// Assertions enables internal consistency checks. Violations are programming
// errors and panic. Tests turn this on.
var Assertions = false

func invariant(cond bool, format string, args ...any) {
	if Assertions && !cond {
		panic(fmt.Errorf("arena: assertion failed: "+format, args...))
	}
}
