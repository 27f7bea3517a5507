// Package mmap wraps the platform memory-mapping primitives.
//
// Two kinds of mappings are supported:
//
//   - Read-only file mappings (Open), used by the local blob store to serve
//     committed segment blobs without copying them onto the heap.
//   - Read-write anonymous mappings (MapAnon), used by the byte-block
//     allocator to keep posting slices outside the garbage collector.
//
// Mapping and Region are safe for concurrent reads. Close is idempotent;
// callers must not touch Bytes() after Close returns.
package mmap
