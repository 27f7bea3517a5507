package manifest

import "errors"

var (
	// ErrIncompatibleVersion is returned for manifests written by a newer format.
	ErrIncompatibleVersion = errors.New("manifest: incompatible version")

	// ErrNotFound is returned when no commit exists yet.
	ErrNotFound = errors.New("manifest: not found")

	// ErrCorrupt is returned when a manifest fails its checksum or does not parse.
	ErrCorrupt = errors.New("manifest: corrupt")
)
