package engine

import (
	"errors"
	"fmt"

	"github.com/hupe1980/lexgo/model"
)

var (
	// ErrClosed is returned when an operation is attempted on a closed writer.
	ErrClosed = errors.New("engine: writer closed")

	// ErrAborted is returned when a buffer had to be discarded together with
	// the documents it held.
	ErrAborted = errors.New("engine: buffer aborted")

	// ErrFlushFailed wraps errors raised while writing a flushed segment.
	ErrFlushFailed = errors.New("engine: flush failed")

	// ErrFieldType is returned when a field is used with conflicting types.
	ErrFieldType = errors.New("engine: conflicting field type")

	// ErrUnknownField is returned when a doc-values field was never indexed.
	ErrUnknownField = errors.New("engine: unknown field")

	// ErrSegmentNotFound is returned when Merge names an unknown segment.
	ErrSegmentNotFound = errors.New("engine: segment not found")

	// ErrMergeConflict is returned when a segment is already being merged.
	ErrMergeConflict = errors.New("engine: segment already merging")
)

// FieldTypeError reports a field used with a type other than the one it was
// first seen with.
type FieldTypeError struct {
	Field string
	Have  model.FieldType
	Want  model.FieldType
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("engine: field %q is %s, got %s", e.Field, e.Have, e.Want)
}

func (e *FieldTypeError) Unwrap() error { return ErrFieldType }
