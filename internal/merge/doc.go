// Package merge combines flushed segments into one.
//
// Which segments to merge is the caller's decision. This package renumbers
// the surviving docs of each input through a DocMap, builds the merged
// segment, and carries deletes that reached the inputs while the merge ran
// over to the result.
package merge
