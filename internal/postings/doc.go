// Package postings buffers inverted postings for one in-memory segment.
//
// Every term owns two slice chains in an arena.BlockPool: a doc stream and a
// position stream. The doc stream holds one entry per completed doc,
// delta<<1|1 when the term occurred once, otherwise delta<<1 followed by the
// frequency. The position stream holds position deltas, restarting at zero
// for each doc. The doc being indexed stays pending in the term state until a
// later doc arrives or the buffer is flushed.
package postings
