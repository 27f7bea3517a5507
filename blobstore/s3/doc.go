// Package s3 stores index blobs in Amazon S3.
//
//	store, err := s3.New(ctx, "my-bucket", s3.WithPrefix("indexes/products"))
//
// Segment blobs are streamed through the SDK's multipart uploader; small
// blobs such as manifests are written with a single PutObject carrying a
// CRC32C checksum. DDBCommitStore adds a DynamoDB-guarded commit pointer so
// that two writers cannot both advance the same index.
package s3
