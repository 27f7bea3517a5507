package codec

import "errors"

var (
	// ErrCorrupt is returned when a blob fails validation.
	ErrCorrupt = errors.New("codec: corrupt segment")

	// ErrUnsupportedVersion is returned for blobs written by a newer format.
	ErrUnsupportedVersion = errors.New("codec: unsupported segment version")

	// ErrTermsOutOfOrder is returned when a consumer receives unsorted terms.
	ErrTermsOutOfOrder = errors.New("codec: terms out of order")

	// ErrFieldKind is returned when a field is used as both numeric and binary.
	ErrFieldKind = errors.New("codec: doc-values field kind mismatch")
)
