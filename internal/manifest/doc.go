// Package manifest persists commit points.
//
// A manifest lists the segments of the index with their deletion and
// doc-values generations. Each commit writes a new blob, segments_N (N in
// base 36), and then replaces CURRENT with that name. Load follows CURRENT.
//
// The binary format is a 16-byte header (magic "LXMF", version, CRC32C of
// the payload, payload length) followed by the payload. WithJSON switches
// to an indented JSON encoding, which is handy when inspecting an index by
// hand; both are accepted on load.
package manifest
