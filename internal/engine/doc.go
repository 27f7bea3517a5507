// Package engine implements the concurrent index writer.
//
// The writer orchestrates:
//   - per-thread segment buffers checked out of a flush.Pool, each with its
//     own slice arena, terms hash and doc-value columns
//   - a delete queue that every delete and doc-value update goes through,
//     so each buffer sees the updates recorded after it was created, bounded
//     by the doc count it had at the time
//   - a ticket queue that publishes flushed segments and frozen global
//     packets in the order they were frozen
//   - the updates.Stream resolving pending packets against published
//     segments
//   - merges of caller-selected segments that carry updates which arrive
//     while they run
//   - commits of segments, live docs and a manifest to a blob store
//
// Flushes run on the goroutine whose document pushed a buffer over a limit,
// or in parallel during Flush. Indexing goroutines stall while flushing
// falls behind.
package engine
