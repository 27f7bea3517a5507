// Package hash provides the CRC32-Castagnoli checksums used by segment
// blobs and the commit manifest.
//
// One-shot:
//
//	sum := hash.CRC32C(data)
//
// Streaming:
//
//	h := hash.NewCRC32C()
//	h.Write(chunk)
//	sum := h.Sum32()
package hash
