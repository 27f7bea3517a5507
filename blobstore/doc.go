// Package blobstore stores the immutable blobs of an index: segment files,
// live-doc bitmaps, and commit manifests.
//
// A commit writes its blobs first and then atomically replaces the small
// pointer blob that names the current manifest, so a BlobStore only needs
// atomic whole-blob Put for the pointer.
//
// # Implementations
//
//   - MemoryStore: process memory, for tests and ephemeral indexes
//   - LocalStore: a directory on the local file system, read through mmap
//   - s3.Store: Amazon S3 with multipart uploads
//   - s3.DDBCommitStore: S3 blobs with a DynamoDB-guarded commit pointer
//   - minio.Store: MinIO and other S3-compatible services
package blobstore
