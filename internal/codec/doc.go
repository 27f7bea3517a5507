// Package codec defines the boundary between the indexing buffers and
// flushed segments, and the segment blob format.
//
// A flush replays a buffer into a Consumer; the Builder is the in-memory
// Consumer that produces an immutable Segment. Segments are encoded into a
// single blob:
//
//	magic "LXSG" | version u8 | compression u8 | block | crc32c u32
//
// The block carries the uncompressed and compressed sizes followed by a
// varint body with postings and doc-value columns. The checksum covers
// everything before it.
package codec
