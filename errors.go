package lexgo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/lexgo/internal/engine"
	"github.com/hupe1980/lexgo/internal/flush"
	"github.com/hupe1980/lexgo/internal/merge"
	"github.com/hupe1980/lexgo/internal/resource"
)

var (
	// ErrClosed is returned by every call on a closed index.
	ErrClosed = errors.New("index closed")

	// ErrAborted is returned when a document could not be indexed. The
	// documents buffered together with it are discarded too.
	ErrAborted = errors.New("document aborted")

	// ErrFlushFailed is returned when a segment could not be written.
	ErrFlushFailed = errors.New("flush failed")

	// ErrInvalidConfig is returned for flush triggers or configuration
	// values that cannot work.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrUnknownField is returned when a doc-values field was never indexed.
	ErrUnknownField = errors.New("unknown field")

	// ErrSegmentNotFound is returned by Merge for unknown segments.
	ErrSegmentNotFound = errors.New("segment not found")

	// ErrMergeConflict is returned by Merge when a segment is already
	// being merged.
	ErrMergeConflict = errors.New("segment already merging")

	// ErrMemoryLimitExceeded is returned when a merge does not fit the
	// configured memory limit.
	ErrMemoryLimitExceeded = errors.New("memory limit exceeded")
)

// ErrFieldType indicates a field used with a type other than the one it was
// first indexed with.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrFieldType struct {
	Field string
	Have  FieldType
	Want  FieldType
	cause error
}

func (e *ErrFieldType) Error() string {
	return fmt.Sprintf("field %q is %s, not %s", e.Field, e.Have, e.Want)
}

func (e *ErrFieldType) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var fte *engine.FieldTypeError
	if errors.As(err, &fte) {
		return &ErrFieldType{Field: fte.Field, Have: fte.Have, Want: fte.Want, cause: err}
	}

	for _, m := range []struct {
		internal, public error
	}{
		{engine.ErrClosed, ErrClosed},
		{engine.ErrAborted, ErrAborted},
		{engine.ErrFlushFailed, ErrFlushFailed},
		{engine.ErrUnknownField, ErrUnknownField},
		{engine.ErrSegmentNotFound, ErrSegmentNotFound},
		{engine.ErrMergeConflict, ErrMergeConflict},
		{merge.ErrNoInputs, ErrSegmentNotFound},
		{flush.ErrInvalidConfig, ErrInvalidConfig},
		{resource.ErrMemoryLimitExceeded, ErrMemoryLimitExceeded},
	} {
		if errors.Is(err, m.internal) {
			return fmt.Errorf("%w: %w", m.public, err)
		}
	}
	return err
}
