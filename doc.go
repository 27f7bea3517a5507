// Package lexgo is an embeddable full-text indexing engine.
//
// Documents are analyzed into per-thread in-memory buffers whose postings
// live in a byte-slice arena. Buffers are flushed into immutable segments
// when the flush policy says so, either by document count or by the RAM all
// buffers and buffered deletes use together. When flushing falls behind,
// indexing goroutines are stalled until it catches up.
//
// Deletes by term or query and doc-values updates are recorded in arrival
// order. A delete only reaches documents added before it, also in segments
// that are still being flushed; the update stream resolves it against each
// segment once the segment is published.
//
// Quick start:
//
//	ix, err := lexgo.Open(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ix.Close(ctx)
//
//	_ = ix.AddDocument(ctx, lexgo.NewDocument(
//	    lexgo.KeywordField("id", "1"),
//	    lexgo.TextField("body", "hello world"),
//	))
//	_ = ix.DeleteTerms(ctx, lexgo.NewTerm("id", "1"))
//	_ = ix.Commit(ctx)
//
// Storage:
//
// Segments, deletions and commit manifests go to a blobstore.BlobStore. The
// default keeps everything in memory; WithBlobStore selects a local
// directory, S3 or MinIO. LoadConfig builds the same options from YAML.
package lexgo
