// Package arena stores many small, independently growing byte streams inside a
// few large fixed-size blocks.
//
// A stream starts as a 5-byte slice. When a writer hits the end of a slice it
// allocates the next, larger slice (sizes follow LevelSizes) and overwrites the
// last four bytes of the old slice with the absolute pool address of the new
// one. The in-memory postings use two streams per term: doc/freq deltas and
// positions.
//
// # Slice layout
//
// A fresh slice is all zeros except its last byte, which holds 16|level. The
// non-zero byte is how a writer detects that it reached the end: because every
// data byte position starts at zero, a writer only has to test the byte at its
// write position. Recycled blocks must therefore be zeroed before reuse.
//
// # Concurrency
//
// A BlockPool belongs to exactly one per-thread segment buffer and is not safe
// for concurrent use. Allocators may be shared and are safe for concurrent use.
package arena
