// Package docvalues buffers per-document value changes for one segment.
//
// A FieldUpdates buffer records (doc, value) pairs for a single field in
// arrival order. Iterating sorts the buffer by doc with a stable sort, so the
// last value recorded for a doc wins. The same buffer type also collects the
// values of documents while a segment is built, where docs arrive in order.
package docvalues
