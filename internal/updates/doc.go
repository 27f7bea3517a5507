// Package updates records deletes and doc-value updates and applies them to
// segments in arrival order.
//
// # Life cycle
//
//  1. Buffered: a mutable packet. Every entry carries docIDUpto, the number
//     of docs of the owning segment buffer when the entry was recorded; it
//     applies to docs below that bound only.
//  2. Frozen: an immutable snapshot made when a buffer is flushed. Terms are
//     sorted and prefix-coded. Pushing a frozen packet to the Stream assigns
//     its delete generation.
//  3. Coalesced: a read-only union of frozen packets used while applying.
//     It references the packets' data and never copies it.
//
// # Generations
//
// Every flushed segment carries a buffered-deletes generation. A packet
// applies to a segment iff the packet's generation is greater than the
// segment's, except for segment-private packets, which apply only to the
// segment with exactly their generation.
package updates
